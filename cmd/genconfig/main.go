// Package main implements the genconfig tool that writes config.default.toml
// from config.ExampleConfig(), annotated with config.ConfigDocs.
//
// It is invoked by go generate via the directive in internal/config/config.go.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"tools.zach/dev/daemonize/internal/config"
)

// go generate runs from internal/config/, so ../../ is the repo root where
// configdata.go embeds config.default.toml.
const defaultOutPath = "../../config.default.toml"

func main() {
	outPath := flag.String("o", defaultOutPath, "output file")
	flag.Parse()

	result, err := render(config.ExampleConfig(), config.ConfigDocs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*outPath, []byte(result), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *outPath, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", *outPath)
}

// render encodes cfg as TOML and interleaves the comments and alternatives
// from docs. Section headers get a banner, indentation from the encoder is
// stripped, and documented keys the encoder omitted appear commented out.
func render(cfg *config.Config, docs map[string]config.FieldDoc) (string, error) {
	raw, err := cfg.Marshal()
	if err != nil {
		return "", err
	}

	out := []string{
		"# ///////////////////////////////////////////////",
		"# daemonize Configuration",
		"# ///////////////////////////////////////////////",
		"",
	}

	// Track current TOML section path for field lookup
	var sectionStack []string
	emittedKeys := map[string]bool{}

	for _, line := range strings.Split(string(raw), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, "[[") {
			injectOmitted(&out, docs, sectionStack, emittedKeys)

			section := strings.Trim(trimmed, "[] ")
			sectionStack = parseSectionPath(section)

			out = append(out, "", fmt.Sprintf("# ///// %s /////", sectionName(section)), "")
			if doc, ok := docs[section]; ok {
				out = appendComment(out, doc.Comment)
			}
			out = append(out, trimmed)
			continue
		}

		if !strings.Contains(trimmed, "=") || strings.HasPrefix(trimmed, "#") {
			out = append(out, trimmed)
			continue
		}

		key := strings.TrimSpace(strings.SplitN(trimmed, "=", 2)[0])
		fullPath := key
		if len(sectionStack) > 0 {
			fullPath = strings.Join(sectionStack, ".") + "." + key
		}
		emittedKeys[fullPath] = true

		doc, ok := docs[fullPath]
		if !ok {
			out = append(out, trimmed)
			continue
		}
		out = appendComment(out, doc.Comment)
		out = append(out, trimmed)
		for _, alt := range doc.Alternatives {
			out = append(out, "# "+alt)
		}
	}

	injectOmitted(&out, docs, sectionStack, emittedKeys)

	return strings.TrimRight(strings.Join(out, "\n"), "\n") + "\n", nil
}

// appendComment appends each line of comment as a TOML comment.
func appendComment(out []string, comment string) []string {
	if comment == "" {
		return out
	}
	for _, cl := range strings.Split(comment, "\n") {
		out = append(out, "# "+cl)
	}
	return out
}

// injectOmitted appends commented-out entries for docs keys that belong to
// the current section but were not emitted by the TOML encoder, typically an
// omitempty field holding its zero value. Keys are sorted for deterministic
// ordering.
func injectOmitted(out *[]string, docs map[string]config.FieldDoc, sectionStack []string, emitted map[string]bool) {
	if len(sectionStack) == 0 {
		return
	}
	prefix := strings.Join(sectionStack, ".") + "."

	var omitted []string
	for path := range docs {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || strings.Contains(rest, ".") || emitted[path] {
			continue
		}
		omitted = append(omitted, path)
	}
	sort.Strings(omitted)

	for _, path := range omitted {
		doc := docs[path]
		*out = append(*out, "")
		*out = appendComment(*out, doc.Comment)
		for _, alt := range doc.Alternatives {
			*out = append(*out, "# "+alt)
		}
		emitted[path] = true
	}
}

// parseSectionPath splits a dotted TOML section header (e.g. "daemon.limits")
// into its path segments (["daemon", "limits"]).
func parseSectionPath(section string) []string {
	return strings.Split(section, ".")
}

// sectionName returns the last dotted segment of a section header with its
// first letter capitalized: "daemon.limits" yields "Limits".
func sectionName(section string) string {
	parts := strings.Split(section, ".")
	last := parts[len(parts)-1]
	if len(last) == 0 {
		return ""
	}
	return strings.ToUpper(last[:1]) + last[1:]
}
