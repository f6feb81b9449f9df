package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeGit answers git invocations from a table keyed by the first argument.
func fakeGit(answers map[string]string) gitFunc {
	return func(args ...string) (string, error) {
		out, ok := answers[args[0]]
		if !ok {
			return "", errors.New("exit status 128")
		}
		return out, nil
	}
}

// ///////////////////////////////////////////////
// fromDescribe Tests
// ///////////////////////////////////////////////

func TestFromDescribe(t *testing.T) {
	tests := []struct {
		name string
		desc string
		want string
	}{
		{"clean tag", "v0.1.0", "0.1.0"},
		{"dirty tag", "v0.1.0-dirty", "0.1.0-dirty"},
		{"prerelease tag", "v2.0.0-beta.1", "2.0.0-beta.1"},
		{"prerelease dirty", "v2.0.0-rc-dirty", "2.0.0-rc-dirty"},
		{"3 past tag", "v0.1.0-3-g1234567", "0.1.0-dev.3+g1234567"},
		{"3 past tag dirty", "v0.1.0-3-g1234567-dirty", "0.1.0-dev.3+g1234567.dirty"},
		{"past prerelease tag", "v2.0.0-beta.1-4-gabcdef0", "2.0.0-beta.1-dev.4+gabcdef0"},
		{"large count", "v2.5.0-42-g9999999", "2.5.0-dev.42+g9999999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fromDescribe(tt.desc); got != tt.want {
				t.Errorf("fromDescribe(%q) = %q, want %q", tt.desc, got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// stamp Tests
// ///////////////////////////////////////////////

func TestStamp(t *testing.T) {
	tests := []struct {
		name    string
		answers map[string]string
		want    string
	}{
		{"tagged", map[string]string{"describe": "v0.2.0"}, "0.2.0"},
		{"untagged clean", map[string]string{"rev-parse": "05ffee5", "status": ""}, "0.1.0-dev+05ffee5"},
		{"untagged dirty", map[string]string{"rev-parse": "05ffee5", "status": " M go.mod"}, "0.1.0-dev+05ffee5.dirty"},
		{"not a repository", map[string]string{}, "0.1.0-dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stamp(fakeGit(tt.answers), "0.1.0"); got != tt.want {
				t.Errorf("stamp() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// readBase Tests
// ///////////////////////////////////////////////

func TestReadBase(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		return p
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"plain", write("plain", "0.3.0\n"), "0.3.0"},
		{"v prefix", write("prefixed", "v1.2.0\nnotes\n"), "1.2.0"},
		{"empty", write("empty", "\n"), fallbackBase},
		{"missing", filepath.Join(dir, "missing"), fallbackBase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := readBase(tt.path); got != tt.want {
				t.Errorf("readBase() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRepositoryVersionFile(t *testing.T) {
	got := readBase(filepath.Join("..", "..", "VERSION"))
	if got == fallbackBase || strings.HasPrefix(got, "v") {
		t.Errorf("VERSION at the repository root = %q, want a bare release version", got)
	}
}
