package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

type Config struct {
	ConfigPath  string        `koanf:"config"`
	LogLevel    string        `koanf:"log_level"`
	OutputDir   string        `koanf:"output_dir"`
	BlockSize   int           `koanf:"block_size"`
	Workers     int           `koanf:"workers"`
	Overwrite   bool          `koanf:"overwrite"`
	LockTimeout time.Duration `koanf:"lock_timeout"`
	Version     bool          `koanf:"version"`

	// EKey decrypts standard input when the only input is "-".
	EKey string `koanf:"ekey"`

	Inputs []string `koanf:"-"`
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}

	path := filepath.Join(dir, "go-qmc2", "config.yml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}

	return path
}

func newFlagSet() *pflag.FlagSet {
	f := pflag.NewFlagSet("qmc2dec", pflag.ContinueOnError)
	f.Usage = func() {
		_, _ = fmt.Fprintf(f.Output(), "Usage: qmc2dec [flags] FILE...\n\n")
		f.PrintDefaults()
	}

	f.String("config", defaultConfigPath(), "path to a YAML configuration file")
	f.String("log_level", "info", "log level: trace, debug, info, warn, error")
	f.String("output_dir", ".", "directory where decrypted files are written")
	f.Int("block_size", 0, "read size in bytes, 0 uses the cipher recommendation")
	f.Int("workers", 4, "number of files decrypted concurrently")
	f.Bool("overwrite", false, "overwrite existing output files")
	f.Duration("lock_timeout", 10*time.Second, "how long to wait for a locked output file")
	f.Bool("version", false, "print version and exit")
	f.String("ekey", "", "ekey used to decrypt standard input, given as \"-\"")
	return f
}

func loadConfig(args []string) (*Config, error) {
	f := newFlagSet()
	if err := f.Parse(args); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"log_level":    "info",
		"output_dir":   ".",
		"block_size":   0,
		"workers":      4,
		"overwrite":    false,
		"lock_timeout": "10s",
		"ekey":         "",
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed loading default configuration: %w", err)
	}

	if path, _ := f.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed reading configuration file %s: %w", path, err)
		}
	}

	// only flags given on the command line override the file
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed loading command line flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed unmarshalling configuration: %w", err)
	}

	cfg.Inputs = f.Args()

	if cfg.Workers < 1 {
		return nil, fmt.Errorf("invalid number of workers: %d", cfg.Workers)
	} else if cfg.BlockSize < 0 {
		return nil, fmt.Errorf("invalid block size: %d", cfg.BlockSize)
	}

	return &cfg, nil
}
