package store

import (
	"path/filepath"

	"codeberg.org/mutker/energymon/internal/errors"
)

const (
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/energymon/points.db"
)

type Config struct {
	DBPath    string
	BackupDir string
	Enabled   bool
}

func DefaultConfig() Config {
	return Config{
		DBPath:  defaultDBPath,
		Enabled: false,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	return nil
}

// backupDir defaults to a "backups" directory next to the database.
func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), "backups")
}
