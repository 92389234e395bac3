package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	qmc2lib "github.com/devgianlu/go-qmc2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, cfg *Config) error {
	if len(cfg.Inputs) == 1 && cfg.Inputs[0] == stdinInput {
		return decryptStream(ctx, LogrusAdapter{log.WithField("file", stdinInput)}, cfg, os.Stdin, os.Stdout)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed creating output directory: %w", err)
	}

	var failed atomic.Int32

	var g errgroup.Group
	g.SetLimit(cfg.Workers)
	for _, input := range cfg.Inputs {
		input := input
		g.Go(func() error {
			entry := LogrusAdapter{log.WithField("file", input)}

			if _, err := decryptFile(ctx, entry, cfg, input); err != nil {
				entry.WithError(err).Errorf("failed decrypting file")
				failed.Add(1)
			}

			return nil
		})
	}

	_ = g.Wait()

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("failed decrypting %d of %d files", n, len(cfg.Inputs))
	}

	return nil
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	} else if err != nil {
		log.WithError(err).Fatal("failed loading configuration")
	}

	if cfg.Version {
		fmt.Println(qmc2lib.SystemInfoString())
		return
	}

	// parse and set log level
	logLevel, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Fatalf("invalid log level: %s", cfg.LogLevel)
	} else {
		log.SetLevel(logLevel)
	}

	if len(cfg.Inputs) == 0 {
		log.Fatal("no input files")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Debugf("running %s", qmc2lib.SystemInfoString())

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Error("decryption finished with errors")
		os.Exit(1)
	}
}
