package main

import (
	"fmt"
	"os"

	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"gopkg.in/yaml.v3"
)

// dbOpenConfig is the YAML shape a --config file decodes into for
// batch/scripting convenience: its fields mirror db_open's CBOR
// options map one-for-one.
type dbOpenConfig struct {
	ReadOnly               bool  `yaml:"read_only"`
	AllowCreate            bool  `yaml:"allow_create"`
	FsyncOnCommit          bool  `yaml:"fsync_on_commit"`
	JournalCheckpointBytes int64 `yaml:"journal_checkpoint_bytes"`
}

// loadDBOpenOptsBlob reads configPath (if non-empty) and CBOR-encodes
// it into the options blob db_open expects. An empty configPath
// returns a nil blob, letting the ABI apply its own defaults.
func loadDBOpenOptsBlob(configPath string) ([]byte, error) {
	if configPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", configPath, err)
	}
	var cfg dbOpenConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", configPath, err)
	}
	return codec.Encode(map[string]interface{}{
		"read_only":                cfg.ReadOnly,
		"allow_create":             cfg.AllowCreate,
		"fsync_on_commit":          cfg.FsyncOnCommit,
		"journal_checkpoint_bytes": cfg.JournalCheckpointBytes,
	})
}
