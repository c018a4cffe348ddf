package commands

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/hay-kot/chatwidget/internal/core/config"
	"github.com/hay-kot/chatwidget/internal/core/kv"
)

type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string
	DataDir    string

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config

	// Store is the persistence backend selected by storage.driver. It is nil
	// when opening failed; StoreErr then says why.
	Store    kv.Store
	StoreErr error

	closers []func() error
}

// OnClose registers fn to run when the application exits.
func (f *Flags) OnClose(fn func() error) {
	f.closers = append(f.closers, fn)
}

// Close releases everything registered with OnClose, last first.
func (f *Flags) Close() error {
	var errs []error
	for i := len(f.closers) - 1; i >= 0; i-- {
		if err := f.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	f.closers = nil
	return errors.Join(errs...)
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "chatwidget", "config.yaml")
}

// DefaultDataDir returns the default data directory using XDG_DATA_HOME.
func DefaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "chatwidget")
}
