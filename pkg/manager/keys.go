package manager

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"

	"golang.org/x/crypto/ssh"
)

// IdentityStatus classifies an identity file referenced by the tree.
type IdentityStatus string

const (
	IdentityOK         IdentityStatus = "ok"
	IdentityEncrypted  IdentityStatus = "encrypted"
	IdentityMissing    IdentityStatus = "missing"
	IdentityUnreadable IdentityStatus = "unreadable"
	IdentityInvalid    IdentityStatus = "invalid"
)

// Healthy reports whether ssh can be expected to use the file. Passphrase
// protected keys count as healthy; the agent or a prompt unlocks them.
func (s IdentityStatus) Healthy() bool {
	return s == IdentityOK || s == IdentityEncrypted
}

// IdentityReport describes one distinct identity file and the hosts using it.
type IdentityReport struct {
	Path   string         `json:"path"`
	Status IdentityStatus `json:"status"`
	Detail string         `json:"detail,omitempty"`
	Hosts  []string       `json:"hosts"`
}

// CheckIdentityFiles resolves every host in the augmented tree and inspects
// each distinct identity file its settings name. Reports are sorted by path.
// Warnings from remote expansion are returned alongside.
func CheckIdentityFiles(ctx context.Context, cfg *Config, src RemoteSource) ([]IdentityReport, []string, error) {
	byPath := map[string]*IdentityReport{}
	warnings, err := Walk(ctx, cfg, src, func(v HostVisit) error {
		id := strings.TrimSpace(ResolveHostSettings(v.Host, v.Chain).IdentityFile)
		if id == "" {
			return nil
		}
		p := expandPath(id)
		r, ok := byPath[p]
		if !ok {
			r = &IdentityReport{Path: p}
			r.Status, r.Detail = inspectIdentity(p)
			byPath[p] = r
		}
		label := v.Host.HostName
		if v.Host.Name != "" && v.Host.Name != v.Host.HostName {
			label = v.Host.Name + " (" + v.Host.HostName + ")"
		}
		r.Hosts = append(r.Hosts, label)
		return nil
	})
	if err != nil {
		return nil, warnings, err
	}

	out := make([]IdentityReport, 0, len(byPath))
	for _, r := range byPath {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, warnings, nil
}

func inspectIdentity(path string) (IdentityStatus, string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return IdentityMissing, ""
		}
		return IdentityUnreadable, err.Error()
	}
	if _, err := ssh.ParseRawPrivateKey(data); err != nil {
		var pm *ssh.PassphraseMissingError
		if errors.As(err, &pm) {
			return IdentityEncrypted, ""
		}
		return IdentityInvalid, err.Error()
	}
	return IdentityOK, ""
}
