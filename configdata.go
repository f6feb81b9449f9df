// Package daemonize provides embedded assets for the daemonize command.
//
// The root package exists solely to embed [config.default.toml] via
// [DefaultConfigTOML], which `daemonize init` writes to the data directory.
package daemonize

import _ "embed"

// DefaultConfigTOML holds the raw bytes of config.default.toml, embedded at
// build time. It is generated by cmd/genconfig from the config package's
// example configuration and field documentation.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte
