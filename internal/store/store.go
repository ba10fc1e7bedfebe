// Package store provides the key-value persistence used for tank state.
package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by Load when nothing was saved under a key yet.
var ErrNotFound = errors.New("store: key not found")

// Store saves and loads opaque documents by key.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Close() error
}

// Open selects a backend from path: *.db, *.sqlite and *.sqlite3 open a
// SQLite database, any other non-empty path is used as a directory of JSON
// files and an empty path keeps everything in memory.
func Open(path string, logger *logrus.Logger) (Store, error) {
	if path == "" {
		logger.Warn("No storage path configured, tank state will not survive a restart")
		return NewMemory(), nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return NewSQLite(path, logger)
	default:
		return NewFile(path, logger)
	}
}
