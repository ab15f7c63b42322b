// Package config loads the engine's TOML configuration file: the data root
// directory, the default INT column width, and whether commits keep .bak
// backup files around. The core packages (schema, table, txn) never read
// this file themselves — only the CLI loads it, once, at process start,
// and feeds the resulting values into a catalog.Session, the default width
// of INT columns it creates, and txn Options.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/RecDB/recdb/internal/schema"
)

// Config is the decoded contents of recdb.toml.
type Config struct {
	Engine EngineConfig `toml:"engine"`
}

// EngineConfig holds the [engine] table.
type EngineConfig struct {
	DataRoot    string `toml:"data_root"`
	DefaultDB   string `toml:"default_database"`
	IntWidth    int    `toml:"default_int_width"`
	KeepBackups bool   `toml:"keep_backups"`
}

// Default returns the configuration used when no recdb.toml is present:
// a "./data" root, no default database selected, the schema package's
// built-in INT width, and backup files kept after commit.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			DataRoot:    "./data",
			IntWidth:    schema.DefaultIntWidth,
			KeepBackups: true,
		},
	}
}

// Load reads and decodes the TOML file at path. A missing file is not an
// error: it returns Default().
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if cfg.Engine.IntWidth <= 0 {
		cfg.Engine.IntWidth = schema.DefaultIntWidth
	}
	return cfg, nil
}

// Save writes cfg to path as TOML, creating the file if it does not exist.
func Save(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
