package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"ssh-control/pkg/manager"
)

// ParseResponse decodes a remote fragment body. Formats are tried in order:
//
//  1. a JSON array of hosts
//  2. a JSON object with "hosts" and/or "groups" (a missing side is empty)
//  3. line-oriented text, "hostAddress:displayName:user:port" per line
//
// Bodies that are not JSON, or JSON matching neither shape, take the text
// path. A JSON body of the right shape whose elements do not decode is an
// error.
func ParseResponse(body []byte) (manager.RemoteResponse, error) {
	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return manager.RemoteResponse{Hosts: parseText(string(body))}, nil
	}

	switch trimmed[0] {
	case '[':
		var hosts []manager.Host
		if err := json.Unmarshal(trimmed, &hosts); err != nil {
			return manager.RemoteResponse{}, fmt.Errorf("parse remote host list: %w", err)
		}
		return manager.RemoteResponse{Hosts: nonNilHosts(hosts)}, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return manager.RemoteResponse{}, fmt.Errorf("parse remote object: %w", err)
		}
		rawHosts, hasHosts := present(obj, "hosts")
		rawGroups, hasGroups := present(obj, "groups")
		if !hasHosts && !hasGroups {
			break
		}
		out := manager.RemoteResponse{Hosts: []manager.Host{}, Groups: []manager.Group{}}
		if hasHosts {
			if err := json.Unmarshal(rawHosts, &out.Hosts); err != nil {
				return manager.RemoteResponse{}, fmt.Errorf("parse remote hosts: %w", err)
			}
		}
		if hasGroups {
			if err := json.Unmarshal(rawGroups, &out.Groups); err != nil {
				return manager.RemoteResponse{}, fmt.Errorf("parse remote groups: %w", err)
			}
		}
		out.Hosts = nonNilHosts(out.Hosts)
		if out.Groups == nil {
			out.Groups = []manager.Group{}
		}
		return out, nil
	}
	return manager.RemoteResponse{Hosts: parseText(string(body))}, nil
}

// present reports whether key holds a non-null value.
func present(obj map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := obj[key]
	if !ok || string(bytes.TrimSpace(raw)) == "null" {
		return nil, false
	}
	return raw, true
}

func nonNilHosts(h []manager.Host) []manager.Host {
	if h == nil {
		return []manager.Host{}
	}
	return h
}

func parseText(body string) []manager.Host {
	hosts := []manager.Host{}
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		parts := strings.Split(line, ":")
		field := func(i int) string {
			if i < len(parts) {
				return strings.TrimSpace(parts[i])
			}
			return ""
		}
		h := manager.Host{HostName: field(0), Name: field(1), User: field(2)}
		if h.Name == "" {
			h.Name = h.HostName
		}
		if p, err := strconv.Atoi(field(3)); err == nil {
			h.Port = p
		}
		hosts = append(hosts, h)
	}
	return hosts
}
