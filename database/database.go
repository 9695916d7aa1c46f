// Copyright 2026 The Heeler Authors
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

// Package database is the transaction lifecycle store: one row per logical
// transaction keyed by input-set hash, an append-only replacement (fee-bump)
// history, and an append-only mempool snapshot time series, on GORM over
// pure-Go SQLite.
package database

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/heeler-io/heeler/database/models"
)

// ErrTxNotFound is returned by lifecycle updates that require an existing
// record for the transaction's input-set hash.
var ErrTxNotFound = errors.New("transaction not found")

const dbFilename = "heeler.sqlite"

// Config holds the configuration for the store.
type Config struct {
	// DataDir is the directory holding the database file. When empty the
	// store is in-memory, which is useful for testing.
	DataDir string
	Logger  *slog.Logger
	// PromRegistry receives the store's metrics when set.
	PromRegistry prometheus.Registerer
	// KeepWitness disables witness stripping on the write path. By default
	// stored raw bytes have witness data removed; witnesses are large and
	// not needed for lifecycle history.
	KeepWitness bool
}

// Database is the lifecycle store.
//
// The embedded RWMutex is the serialization capability for compound
// check-then-act sequences: individual operations are atomic at the storage
// layer, but callers running a multi-operation decision (exists, then
// mined/replaced/insert; or the prune sweep's read-then-write) must hold the
// exclusive lock across the whole sequence.
type Database struct {
	sync.RWMutex
	db          *gorm.DB
	logger      *slog.Logger
	dataDir     string
	keepWitness bool
	metrics     storeMetrics
}

type storeMetrics struct {
	flushes prometheus.Counter
}

// New creates a store. Uses an in-memory database if cfg.DataDir is empty.
func New(cfg *Config) (*Database, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	var gormDb *gorm.DB
	var err error
	if cfg.DataDir == "" {
		// cache=shared allows multiple connections to share the same
		// in-memory database
		gormDb, err = gorm.Open(
			sqlite.Open("file::memory:?cache=shared"),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
		if err != nil {
			return nil, err
		}
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(cfg.DataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(cfg.DataDir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		dbPath := filepath.Join(cfg.DataDir, dbFilename)
		// WAL journal mode with NORMAL sync: Flush issues an explicit WAL
		// checkpoint, which is the store's durability barrier
		connOpts := "_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=cache_size(-50000)"
		gormDb, err = gorm.Open(
			sqlite.Open(
				fmt.Sprintf("file:%s?%s", dbPath, connOpts),
			),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
		if err != nil {
			return nil, err
		}
	}
	d := &Database{
		db:          gormDb,
		logger:      cfg.Logger,
		dataDir:     cfg.DataDir,
		keepWitness: cfg.KeepWitness,
	}
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	// Configure tracing for GORM
	if err := d.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	d.registerMetrics(cfg.PromRegistry)
	// Create table schemas
	for _, model := range models.MigrateModels {
		d.logger.Debug(
			fmt.Sprintf("creating table: %#v", model),
			"component", "database",
		)
		if err := d.db.AutoMigrate(model); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Database) registerMetrics(registry prometheus.Registerer) {
	promautoFactory := promauto.With(registry)
	d.metrics.flushes = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "heeler_database_flushes_total",
			Help: "total number of explicit durability flushes",
		},
	)
}

// DataDir returns the path to the data directory used for storage. Empty for
// in-memory stores.
func (d *Database) DataDir() string {
	return d.dataDir
}

// Flush forces durability of acknowledged writes before returning. Callers
// invoke it after every mutating task so a crash loses at most the in-flight
// task.
func (d *Database) Flush() error {
	if result := d.db.Exec("PRAGMA wal_checkpoint(FULL)"); result.Error != nil {
		return fmt.Errorf("wal checkpoint: %w", result.Error)
	}
	d.metrics.flushes.Inc()
	return nil
}

// Close cleans up the database connection.
func (d *Database) Close() error {
	sqlDb, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDb.Close()
}
