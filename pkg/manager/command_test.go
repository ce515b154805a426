package manager

import (
	"path/filepath"
	"reflect"
	"testing"

	shellquote "github.com/kballard/go-shellquote"
)

func TestBuildSSHCommand(t *testing.T) {
	argv := BuildSSHCommand(Host{HostName: "10.0.0.5"}, ResolvedSettings{User: "admin", Port: 2222})
	want := []string{"ssh", "admin@10.0.0.5", "-p", "2222"}
	if !reflect.DeepEqual(argv, want) {
		t.Fatalf("got %v want %v", argv, want)
	}

	argv = BuildSSHCommand(Host{HostName: "h"}, ResolvedSettings{User: "u", Port: 22, IdentityFile: "   "})
	if len(argv) != 4 {
		t.Fatalf("blank identity file must not add -i: %v", argv)
	}
}

func TestBuildSSHCommand_ExpandsIdentityFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	argv := BuildSSHCommand(Host{HostName: "h"}, ResolvedSettings{User: "u", Port: 22, IdentityFile: "~/.ssh/id_ed25519"})
	if len(argv) != 6 || argv[4] != "-i" || argv[5] != filepath.Join(home, ".ssh", "id_ed25519") {
		t.Fatalf("unexpected argv %v", argv)
	}
}

func TestCommandString_QuotesArguments(t *testing.T) {
	argv := []string{"ssh", "me@host", "-p", "22", "-i", "/keys/my key"}
	line := CommandString(argv)
	back, err := shellquote.Split(line)
	if err != nil {
		t.Fatalf("split %q: %v", line, err)
	}
	if !reflect.DeepEqual(back, argv) {
		t.Fatalf("round trip through the shell changed argv: %q -> %v", line, back)
	}
	if got := CommandString([]string{"ssh", "root@h", "-p", "22"}); got != "ssh root@h -p 22" {
		t.Fatalf("unexpected plain command %q", got)
	}
}

func TestConnectCommand_UsesChain(t *testing.T) {
	chain := []Group{{Name: "g", DefaultUser: "deploy", DefaultPort: 2200}}
	if got := ConnectCommand(Host{HostName: "web"}, chain); got != "ssh deploy@web -p 2200" {
		t.Fatalf("unexpected command %q", got)
	}
}
