// Copyright 2026 TreasuryKit
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package database provides persistence for the three entity families
// tracked by this service: stake position references, proposal chains, and
// the singleton service configuration cell. Entity metadata lives in a
// SQLite database via gorm; the append-only diagnostic log lives in a
// Badger store. Both are kept under the same data directory and survive
// process restarts.
package database

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/glebarez/sqlite"
	"github.com/treasurykit/stakewarden/database/models"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const logSequenceBandwidth = 64

type Config struct {
	Logger  *slog.Logger
	DataDir string
}

type Database struct {
	logger  *slog.Logger
	meta    *gorm.DB
	logDb   *badger.DB
	logSeq  *badger.Sequence
	dataDir string
}

// DB returns the underlying gorm handle. Exposed for tests and migrations.
func (d *Database) DB() *gorm.DB {
	return d.meta
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.dataDir
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Close cleans up the database connections
func (d *Database) Close() error {
	var err error
	if d.logSeq != nil {
		err = errors.Join(err, d.logSeq.Release())
	}
	if d.logDb != nil {
		err = errors.Join(err, d.logDb.Close())
	}
	if d.meta != nil {
		if sqlDb, sqlErr := d.meta.DB(); sqlErr == nil {
			err = errors.Join(err, sqlDb.Close())
		}
	}
	return err
}

// New creates a database instance with optional persistence using the
// provided data directory. An empty data directory results in an
// in-memory database, useful for testing.
func New(cfg *Config) (*Database, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	metaDb, err := openMetadata(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logDb, err := openLogStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logSeq, err := logDb.GetSequence(logSequenceKey, logSequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("creating log sequence: %w", err)
	}
	db := &Database{
		logger:  logger,
		meta:    metaDb,
		logDb:   logDb,
		logSeq:  logSeq,
		dataDir: cfg.DataDir,
	}
	if err := db.meta.AutoMigrate(models.MigrateModels...); err != nil {
		return nil, fmt.Errorf("migrating models: %w", err)
	}
	return db, nil
}

func openMetadata(dataDir string) (*gorm.DB, error) {
	if dataDir == "" {
		// cache=shared allows multiple connections to share the same in-memory database
		return gorm.Open(
			sqlite.Open("file::memory:?cache=shared"),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
	}
	// Make sure that we can read data dir, and create if it doesn't exist
	if _, err := os.Stat(dataDir); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read data dir: %w", err)
		}
		if err := os.MkdirAll(dataDir, fs.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}
	metaDbPath := filepath.Join(dataDir, "metadata.sqlite")
	// WAL journal mode, disable sync on write
	connOpts := "_pragma=journal_mode(WAL)&_pragma=sync(OFF)"
	return gorm.Open(
		sqlite.Open(fmt.Sprintf("file:%s?%s", metaDbPath, connOpts)),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
		},
	)
}

func openLogStore(dataDir string) (*badger.DB, error) {
	if dataDir == "" {
		opts := badger.DefaultOptions("").
			WithInMemory(true).
			WithLogger(nil)
		return badger.Open(opts)
	}
	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, fs.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	opts := badger.DefaultOptions(logDir).
		WithLogger(nil)
	return badger.Open(opts)
}
