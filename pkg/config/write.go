package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/viper"
)

// ErrSettingsExist is returned by WriteSettings when the file exists and
// overwrite was not requested
var ErrSettingsExist = errors.New("settings file already exists")

const (
	lockTimeout    = 5 * time.Second
	lockRetryDelay = 50 * time.Millisecond
)

// WriteSettings writes the effective configuration to path as YAML. The
// write holds an exclusive lock next to the file so concurrent writers do
// not interleave.
func WriteSettings(path string, overwrite bool) error {
	if path == "" {
		return fmt.Errorf("settings path must not be empty")
	}
	if _, err := os.Stat(path); err == nil && !overwrite {
		return fmt.Errorf("%w: %s", ErrSettingsExist, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	unlock, err := lockFile(path)
	if err != nil {
		return err
	}
	defer unlock()

	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}
	return nil
}

// lockFile takes an flock on path + ".lock", retrying until lockTimeout. The
// lock file stays behind; removing it would let a waiter lock an unlinked inode.
func lockFile(path string) (func(), error) {
	lockPath := path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}

	deadline := time.Now().Add(lockTimeout)
	for {
		err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) || time.Now().After(deadline) {
			f.Close()
			return nil, fmt.Errorf("failed to lock %s: %w", path, err)
		}
		time.Sleep(lockRetryDelay)
	}

	return func() {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}
