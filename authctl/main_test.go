package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  driver: sqlite
  sqlite:
    path: ` + filepath.Join(dir, "auth.db") + `
auth:
  federated_identity_providers:
    acme:
      issuer: https://issuer.example.com
      audience: aud-1
      claim_rules:
        - claims.email_verified == true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	configPath := writeTestConfig(t)

	tests := []struct {
		name     string
		args     []string
		wantOut  []string
		wantFail bool
	}{
		{"migrate", []string{"migrate"}, []string{"schema version 1", "dirty: false"}, false},
		{"providers", []string{"providers"}, []string{"acme", "https://issuer.example.com", "aud-1"}, false},
		{"cleanup", []string{"cleanup"}, []string{"deleted 0 expired tokens"}, false},
		{"audit", []string{"audit", "--limit", "5"}, []string{"ACTION"}, false},
		{"validate-token without target", []string{"validate-token", "abc"}, nil, true},
		{"validate-token unknown provider", []string{"validate-token", "--provider", "nope", "abc"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--config", configPath, "--log-level", "error"}, tt.args...)
			out, err := runCommand(t, args...)
			if (err != nil) != tt.wantFail {
				t.Fatalf("Execute() error = %v, wantFail %v\noutput: %s", err, tt.wantFail, out)
			}
			for _, want := range tt.wantOut {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestReadToken(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		stdin   string
		want    string
		wantErr bool
	}{
		{"argument", []string{" abc \n"}, "", "abc", false},
		{"stdin", nil, "def\n", "def", false},
		{"dash", []string{"-"}, "ghi", "ghi", false},
		{"empty stdin", nil, "  ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readToken(tt.args, strings.NewReader(tt.stdin))
			if (err != nil) != tt.wantErr {
				t.Fatalf("readToken() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("readToken() = %q, want %q", got, tt.want)
			}
		})
	}
}
