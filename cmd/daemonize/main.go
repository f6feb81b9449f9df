// Package main implements the daemonize command, which runs a configured
// program as a well-behaved Unix daemon and manages the running instance.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"tools.zach/dev/daemonize/internal/paths"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via ldflags:
//
//	go build -ldflags "$(go run ./cmd/buildver -ldflags)" ./cmd/daemonize
//
// When ldflags are not set (bare go build), resolveVersion reads the VCS info
// that Go embeds automatically.
var version = "dev"

// resolveVersion returns the build version string. If [version] was set via
// ldflags at build time it is returned as-is; otherwise VCS revision and dirty
// state embedded by the Go toolchain are used to construct a "dev+<hash>" tag.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Default Data Directory
// ///////////////////////////////////////////////

// defaultDataDir returns ~/.daemonize, falling back to ./.daemonize if the
// home directory cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return filepath.Join(home, paths.DataDirRel)
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute runs the command line and returns the process exit status.
func execute(args []string) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	fmt.Fprintln(os.Stderr, "daemonize:", err)
	return 1
}

// exitError carries the supervised command's exit status out of the run
// command without printing anything.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
