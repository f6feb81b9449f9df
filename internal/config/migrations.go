package config

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/daemonize/internal/migrate"
)

func init() {
	migrate.Config.Register(migrate.Migration{
		Version:     2,
		Description: "daemon.detach bool to auto/always/never",
		Upgrade:     migrateDetachMode,
	})
}

// migrateDetachMode rewrites a v1 config whose daemon.detach was a boolean.
// true forced detaching and false disabled it; an absent value now means
// auto-detection.
func migrateDetachMode(data []byte) ([]byte, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse v1 config: %w", err)
	}
	if d, ok := doc["daemon"].(map[string]any); ok {
		switch v := d["detach"].(type) {
		case bool:
			if v {
				d["detach"] = "always"
			} else {
				d["detach"] = "never"
			}
		case nil, string:
		default:
			return nil, fmt.Errorf("daemon.detach has unexpected type %T", v)
		}
	}
	doc["version"] = 2

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, fmt.Errorf("encode v2 config: %w", err)
	}
	return buf.Bytes(), nil
}
