package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/quintetdev/quintet/internal/config"
	"github.com/quintetdev/quintet/internal/store"
)

const (
	quintetDirName = ".quintet"
	workspacesDir  = "workspaces"
)

// quintetPath returns the path to a file inside .quintet/.
func quintetPath(parts ...string) string {
	elems := append([]string{quintetDirName}, parts...)
	return filepath.Join(elems...)
}

// workspaceRoot returns the directory a named workspace lives in.
func workspaceRoot(name string) string {
	return filepath.Join(workspacesDir, name)
}

// mustStore opens the audit store, erroring if quintet is not initialized.
func mustStore() (*store.Store, error) {
	dbPath := quintetPath("quintet.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("quintet not initialized. Run: quintet init")
	}
	return store.New(dbPath)
}

// mustConfig loads the config, erroring if quintet is not initialized.
func mustConfig() (*config.Config, error) {
	cfgPath := quintetPath("config.yaml")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("quintet not initialized. Run: quintet init")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
