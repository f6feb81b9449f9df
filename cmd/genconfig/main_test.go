package main

import (
	"os"
	"strings"
	"testing"

	daemonize "tools.zach/dev/daemonize"
	"tools.zach/dev/daemonize/internal/config"
)

// ///////////////////////////////////////////////
// parseSectionPath Tests
// ///////////////////////////////////////////////

func TestParseSectionPath(t *testing.T) {
	tests := []struct {
		name    string
		section string
		want    []string
	}{
		{"single segment", "daemon", []string{"daemon"}},
		{"two segments", "daemon.limits", []string{"daemon", "limits"}},
		{"three segments", "command.env.keep", []string{"command", "env", "keep"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSectionPath(tt.section)
			if len(got) != len(tt.want) {
				t.Fatalf("parseSectionPath(%q) returned %d segments, want %d", tt.section, len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("parseSectionPath(%q)[%d] = %q, want %q", tt.section, i, got[i], tt.want[i])
				}
			}
		})
	}
}

// ///////////////////////////////////////////////
// sectionName Tests
// ///////////////////////////////////////////////

func TestSectionName(t *testing.T) {
	tests := []struct {
		name    string
		section string
		want    string
	}{
		{"single segment", "daemon", "Daemon"},
		{"last of two", "daemon.limits", "Limits"},
		{"last of three", "command.env.keep", "Keep"},
		{"already capitalized", "Streams", "Streams"},
		{"single char", "a", "A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sectionName(tt.section)
			if got != tt.want {
				t.Errorf("sectionName(%q) = %q, want %q", tt.section, got, tt.want)
			}
		})
	}
}

func TestSectionNameEmpty(t *testing.T) {
	// A trailing dot produces an empty last segment.
	got := sectionName("")
	if got != "" {
		t.Errorf("sectionName(%q) = %q, want empty string", "", got)
	}
}

// ///////////////////////////////////////////////
// injectOmitted Tests
// ///////////////////////////////////////////////

func TestInjectOmittedNoSection(t *testing.T) {
	// When sectionStack is empty, injectOmitted should be a no-op.
	var out []string
	emitted := map[string]bool{}
	injectOmitted(&out, config.ConfigDocs, nil, emitted)
	if len(out) != 0 {
		t.Errorf("injectOmitted with nil sectionStack produced %d lines, want 0", len(out))
	}
}

func TestInjectOmittedSortedAndCommented(t *testing.T) {
	docs := map[string]config.FieldDoc{
		"daemon.user":   {Comment: "User.", Alternatives: []string{`user = "nobody"`}},
		"daemon.group":  {Alternatives: []string{`group = "nogroup"`}},
		"daemon.umask":  {Comment: "Mask."},
		"daemon.x.deep": {Comment: "Nested keys belong to their own section."},
		"log.level":     {Comment: "Other section."},
	}
	var out []string
	emitted := map[string]bool{"daemon.umask": true}
	injectOmitted(&out, docs, []string{"daemon"}, emitted)

	want := []string{"", `# group = "nogroup"`, "", "# User.", `# user = "nobody"`}
	if strings.Join(out, "\n") != strings.Join(want, "\n") {
		t.Errorf("injectOmitted() = %q, want %q", out, want)
	}
	if !emitted["daemon.user"] || !emitted["daemon.group"] {
		t.Error("injected keys should be marked emitted")
	}
}

// ///////////////////////////////////////////////
// render Tests
// ///////////////////////////////////////////////

func TestRender(t *testing.T) {
	got, err := render(config.ExampleConfig(), config.ConfigDocs)
	if err != nil {
		t.Fatalf("render() error: %v", err)
	}
	for _, want := range []string{
		"# ///// Daemon /////",
		"[daemon]",
		`detach = "auto"`,
		`# detach = "never"`,
		`# chroot_directory = "/srv/jail"`,
		"[command]",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("render() output missing %q", want)
		}
	}
	if strings.Contains(got, "\n  ") {
		t.Error("render() should strip encoder indentation")
	}

	// The rendered file must load back to the example configuration.
	path := t.TempDir() + "/daemonize.toml"
	if err := os.WriteFile(path, []byte(got), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if cfg.Command.Path != config.ExampleConfig().Command.Path {
		t.Errorf("Command.Path = %q", cfg.Command.Path)
	}
}

func TestEmbeddedDefaultIsCurrent(t *testing.T) {
	got, err := render(config.ExampleConfig(), config.ConfigDocs)
	if err != nil {
		t.Fatalf("render() error: %v", err)
	}
	if got != string(daemonize.DefaultConfigTOML) {
		t.Error("config.default.toml is stale; run go generate ./internal/config")
	}
}
