package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "daemon.detach")
// to their [FieldDoc] entries. The genconfig tool uses this map to annotate the
// generated config.default.toml with inline comments and alternative examples.
var ConfigDocs = map[string]FieldDoc{
	// ── Root ──────────────────────────────────────────────────────
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// ── Daemon ───────────────────────────────────────────────────
	"daemon": {
		Comment: "How the process becomes a daemon.",
	},
	"daemon.pidfile": {
		Comment: "Pidfile holding the daemon's process id while it runs.\nRelative paths are inside the data directory.",
		Alternatives: []string{
			`pidfile = "/run/myservice.pid"`,
		},
	},
	"daemon.lock_message": {
		Comment: "Message printed when another instance already holds the pidfile.",
		Alternatives: []string{
			`lock_message = "myservice is already running"`,
		},
	},
	"daemon.working_directory": {
		Comment: "Directory the daemon changes into (inside the chroot, if any).",
	},
	"daemon.chroot_directory": {
		Comment: "Absolute path that becomes the daemon's root directory. Requires root.",
		Alternatives: []string{
			`chroot_directory = "/srv/jail"`,
		},
	},
	"daemon.umask": {
		Comment: "Octal file creation mask.",
		Alternatives: []string{
			`umask = "022"`,
		},
	},
	"daemon.user": {
		Comment: "User name or uid to run as. Empty keeps the invoking user.",
		Alternatives: []string{
			`user = "nobody"`,
		},
	},
	"daemon.group": {
		Comment: "Group name or gid to run as. Empty keeps the invoking group.",
		Alternatives: []string{
			`group = "nogroup"`,
		},
	},
	"daemon.prevent_core": {
		Comment: "Disable core dumps so daemon memory never reaches disk.",
	},
	"daemon.detach": {
		Comment: "Detach from the terminal and session. Options: \"auto\", \"always\", \"never\"\n\"auto\" stays attached when started by init or a socket-passing superserver.",
		Alternatives: []string{
			`detach = "never"`,
		},
	},
	"daemon.ready_timeout_seconds": {
		Comment: "Seconds the invoking process waits for the detached daemon to report it is ready.\n0 waits indefinitely.",
	},
	"daemon.preserve_fds": {
		Comment: "Extra descriptor numbers to keep open, e.g. sockets passed by a supervisor.",
		Alternatives: []string{
			`preserve_fds = [3, 4]`,
		},
	},

	// ── Streams ──────────────────────────────────────────────────
	"streams": {
		Comment: "Where the standard streams go once daemonized.\nRelative paths are inside the data directory. An empty path means the null device.",
	},
	"streams.stdin": {
		Alternatives: []string{
			`stdin = "/etc/myservice/input"`,
		},
	},
	"streams.stdout": {},
	"streams.stderr": {
		Alternatives: []string{
			`stderr = ""`,
		},
	},

	// ── Command ──────────────────────────────────────────────────
	"command": {
		Comment: "The command run inside the daemon.",
	},
	"command.path": {
		Comment: "Executable to run. Looked up in PATH when not absolute.",
	},
	"command.args": {},
	"command.env_keep": {
		Comment: "Glob patterns of environment variables inherited from the invoking shell.",
		Alternatives: []string{
			`env_keep = ["*"]`,
		},
	},
	"command.env": {
		Comment: "Extra KEY=VALUE environment entries. These win over inherited values.",
		Alternatives: []string{
			`env = ["GOMAXPROCS=2"]`,
		},
	},
	"command.forward": {
		Comment: "Signals relayed to the command. The daemon exits with the command's status.",
	},

	// ── Log ──────────────────────────────────────────────────────
	"log": {
		Comment: "Logging configuration",
	},
	"log.level": {
		Comment: "Minimum log level. Options: \"trace\", \"debug\", \"info\", \"warn\", \"error\"",
		Alternatives: []string{
			`level = "debug"`,
			`level = "warn"`,
		},
	},
	"log.max_size_mb": {
		Comment: "Maximum log file size in megabytes before rotation.",
	},
}
