// Package main prints the version stamp for a daemonize build, either bare or
// as the -ldflags value that sets main.version in cmd/daemonize.
//
// The stamp follows git state:
//
//	untagged, clean:    0.1.0-dev+05ffee5
//	untagged, dirty:    0.1.0-dev+05ffee5.dirty
//	on tag v0.2.0:      0.2.0
//	on tag, dirty:      0.2.0-dirty
//	3 commits past tag: 0.2.0-dev.3+g1234567
//
// The untagged base comes from the VERSION file at the repository root.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// versionVar is the symbol the stamp is written to.
const versionVar = "main.version"

// fallbackBase is used when VERSION is missing or empty.
const fallbackBase = "0.0.0"

// gitFunc runs git with args and returns its trimmed output.
type gitFunc func(args ...string) (string, error)

func runGit(args ...string) (string, error) {
	out, err := exec.Command("git", args...).Output()
	return strings.TrimSpace(string(out)), err
}

func main() {
	ldflags := flag.Bool("ldflags", false, "print -X "+versionVar+"=<version> instead of the bare version")
	versionFile := flag.String("version-file", "VERSION", "file holding the untagged base version")
	flag.Parse()

	v := stamp(runGit, readBase(*versionFile))
	if *ldflags {
		fmt.Printf("-X %s=%s", versionVar, v)
		return
	}
	fmt.Print(v)
}

// stamp builds the version from git state. Tagged commits use git describe;
// anything else is base plus the short commit hash.
func stamp(git gitFunc, base string) string {
	if desc, err := git("describe", "--tags", "--match", "v*", "--dirty"); err == nil && desc != "" {
		return fromDescribe(desc)
	}
	hash, err := git("rev-parse", "--short=7", "HEAD")
	if err != nil || hash == "" {
		return base + "-dev"
	}
	v := base + "-dev+" + hash
	if status, err := git("status", "--porcelain"); err == nil && status != "" {
		v += ".dirty"
	}
	return v
}

// fromDescribe converts git describe output such as "v0.2.0-3-g1234567-dirty"
// into "0.2.0-dev.3+g1234567.dirty".
func fromDescribe(desc string) string {
	desc, dirty := strings.CutSuffix(desc, "-dirty")
	desc = strings.TrimPrefix(desc, "v")

	tag, hash, ok := cutLast(desc)
	if ok && strings.HasPrefix(hash, "g") {
		if base, n, ok := cutLast(tag); ok && isDigits(n) {
			meta := hash
			if dirty {
				meta += ".dirty"
			}
			return base + "-dev." + n + "+" + meta
		}
	}
	if dirty {
		return desc + "-dirty"
	}
	return desc
}

// cutLast splits s around its last dash.
func cutLast(s string) (before, after string, found bool) {
	i := strings.LastIndex(s, "-")
	if i <= 0 {
		return s, "", false
	}
	return s[:i], s[i+1:], true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// readBase returns the first line of path, or fallbackBase.
func readBase(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return fallbackBase
	}
	line, _, _ := strings.Cut(string(data), "\n")
	line = strings.TrimPrefix(strings.TrimSpace(line), "v")
	if line == "" {
		return fallbackBase
	}
	return line
}
