package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths holds the resolved filesystem locations used by the service
type Paths struct {
	BaseDir  string
	KeysFile string
	LogFile  string
}

// GetPaths resolves the configured paths. Relative entries are anchored at
// the directory of the loaded config file, or the working directory.
func GetPaths(c *Config) (*Paths, error) {
	base, err := baseDir(c.File)
	if err != nil {
		return nil, err
	}
	return &Paths{
		BaseDir:  base,
		KeysFile: anchor(base, c.Store.Path),
		LogFile:  anchor(base, c.Logging.FilePath),
	}, nil
}

// EnsureDirectories creates the parent directories of every file path
func (p *Paths) EnsureDirectories() error {
	for _, f := range []string{p.KeysFile, p.LogFile} {
		if f == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(f), 0o750); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", f, err)
		}
	}
	return nil
}

func baseDir(configFile string) (string, error) {
	if configFile != "" {
		abs, err := filepath.Abs(configFile)
		if err != nil {
			return "", fmt.Errorf("failed to resolve config file path: %w", err)
		}
		return filepath.Dir(abs), nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return wd, nil
}

func anchor(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
