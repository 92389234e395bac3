package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	qmc2lib "github.com/devgianlu/go-qmc2"
	"github.com/devgianlu/go-qmc2/audio"
	"github.com/devgianlu/go-qmc2/qmc2"
	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
)

var (
	ErrOutputExists = errors.New("output file already exists")
	ErrOutputLocked = errors.New("output file is locked")
	ErrMissingEKey  = errors.New("decrypting standard input requires an ekey")
)

const stdinInput = "-"

func outputPath(cfg *Config, input, ext string) string {
	name := filepath.Base(input)
	return filepath.Join(cfg.OutputDir, strings.TrimSuffix(name, filepath.Ext(name))+ext)
}

// acquireLock retries locking until the lock timeout elapses, another
// process may be writing the same output.
func acquireLock(ctx context.Context, lock *flock.Flock, timeout time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = timeout

	return backoff.Retry(func() error {
		locked, err := lock.TryLock()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed locking %s: %w", lock.Path(), err))
		} else if !locked {
			return ErrOutputLocked
		}

		return nil
	}, backoff.WithContext(b, ctx))
}

func decryptFile(ctx context.Context, log qmc2lib.Logger, cfg *Config, input string) (string, error) {
	in, err := os.Open(input)
	if err != nil {
		return "", fmt.Errorf("failed opening input: %w", err)
	}

	defer func() { _ = in.Close() }()

	stat, err := in.Stat()
	if err != nil {
		return "", fmt.Errorf("failed reading input size: %w", err)
	}

	dec, err := audio.NewQmc2Decryptor(log, in, stat.Size())
	if err != nil {
		return "", err
	}

	ext, err := dec.Extension()
	if err != nil {
		return "", err
	}

	output := outputPath(cfg, input, ext)

	// the lock file is never removed, a waiter could lock an unlinked file
	lock := flock.New(output + ".lock")
	if err := acquireLock(ctx, lock, cfg.LockTimeout); err != nil {
		return "", err
	}

	defer func() { _ = lock.Unlock() }()

	// checked while holding the lock, inputs may share the same name
	if !cfg.Overwrite {
		if _, err := os.Stat(output); err == nil {
			return "", fmt.Errorf("%w: %s", ErrOutputExists, output)
		}
	}

	start := time.Now()
	if err := writeOutput(ctx, dec, cfg.BlockSize, output); err != nil {
		return "", err
	}

	log.WithField("song_id", dec.SongID()).
		Infof("decrypted %s to %s in %v", humanize.Bytes(uint64(dec.Size())), output, time.Since(start).Round(time.Millisecond))
	return output, nil
}

// writeOutput decrypts into a temporary file next to output and renames it
// once complete, a failure never leaves a partial output behind.
func writeOutput(ctx context.Context, dec *audio.Decryptor, blockSize int, output string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(output), "."+filepath.Base(output)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed creating output: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if blockSize == 0 {
		blockSize = dec.RecommendedBlockSize()
	}

	buf := make([]byte, blockSize)
	for pos := int64(0); pos < dec.Size(); {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := dec.ReadAt(buf, pos)
		if n > 0 {
			if _, err := tmp.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed writing output: %w", err)
			}

			pos += int64(n)
		}

		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return fmt.Errorf("failed reading input at %d: %w", pos, err)
		}
	}

	if err := tmp.Chmod(0644); err != nil {
		return fmt.Errorf("failed setting output permissions: %w", err)
	} else if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed closing output: %w", err)
	}

	if err := os.Rename(tmp.Name(), output); err != nil {
		return fmt.Errorf("failed moving output in place: %w", err)
	}

	return nil
}

// decryptStream decrypts a stream without an embedded key, the whole input
// is treated as audio data.
func decryptStream(ctx context.Context, log qmc2lib.Logger, cfg *Config, r io.Reader, w io.Writer) error {
	if cfg.EKey == "" {
		return ErrMissingEKey
	}

	log.Debugf("decrypting stream with ekey %s", qmc2lib.ObfuscateEKey(cfg.EKey))

	c, err := qmc2.NewCipher(cfg.EKey)
	if err != nil {
		return fmt.Errorf("failed creating cipher: %w", err)
	}

	blockSize := cfg.BlockSize
	if blockSize == 0 {
		blockSize = c.RecommendedBlockSize()
	}

	dec := audio.NewStreamDecryptor(r, c)
	buf := make([]byte, blockSize)

	var total uint64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := dec.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed writing output: %w", err)
			}

			total += uint64(n)
		}

		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return fmt.Errorf("failed reading input at %d: %w", total, err)
		}
	}

	log.Infof("decrypted %s from standard input", humanize.Bytes(total))
	return nil
}
