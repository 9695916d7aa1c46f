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

// Package heeler observes a bitcoind node's mempool and records every
// transaction's lifecycle: first seen, mined, replaced by fee bump, or
// pruned without confirming. Lifecycle state is keyed by a hash of each
// transaction's input set, which stays stable across replacements even as
// the txid changes.
package heeler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/heeler-io/heeler/bitcoind"
	"github.com/heeler-io/heeler/database"
	"github.com/heeler-io/heeler/event"
	"github.com/heeler-io/heeler/worker"
)

type Tracker struct {
	config         Config
	store          *database.Database
	eventBus       *event.EventBus
	queue          *worker.Queue
	pool           *worker.Pool
	txStream       *bitcoind.TxStream
	metrics        *trackerMetrics
	producerCancel context.CancelFunc
	producerWg     sync.WaitGroup
	shutdownFuncs  []func(context.Context) error
	fatalCh        chan error
	done           chan struct{}
	shutdownOnce   sync.Once
}

func New(cfg Config) (*Tracker, error) {
	t := &Tracker{
		config:   cfg,
		eventBus: event.NewEventBus(cfg.promRegistry, cfg.logger),
		fatalCh:  make(chan error, 1),
		done:     make(chan struct{}),
	}
	if err := t.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return t, nil
}

// Run starts the tracker and blocks until Stop is called or the transaction
// stream fails fatally.
func (t *Tracker) Run() error {
	// Configure tracing
	if t.config.tracing {
		if err := t.setupTracing(); err != nil {
			return err
		}
	}
	// Load database
	store, err := database.New(&database.Config{
		DataDir:      t.config.dataDir,
		Logger:       t.config.logger,
		PromRegistry: t.config.promRegistry,
		KeepWitness:  t.config.keepWitness,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	t.store = store
	// Wire lifecycle events into metrics
	if t.config.promRegistry != nil {
		t.initMetrics()
	}
	if t.config.logger.Enabled(context.Background(), slog.LevelDebug) {
		t.initDebugEvents()
	}
	dialer := bitcoind.NewDialer(bitcoind.Config{
		Host: t.config.rpcHost,
		User: t.config.rpcUser,
		Pass: t.config.rpcPass,
	})
	// Prime the store with everything already pooled so later prune sweeps
	// have a baseline and early live events are not misread as new. This
	// runs before the workers, so it writes without queue or lock.
	client, err := dialer()
	if err != nil {
		return fmt.Errorf("dial node for backfill: %w", err)
	}
	backfilled, err := backfillMempool(client, t.store, t.config.logger)
	client.Close()
	if err != nil {
		return fmt.Errorf("backfill mempool: %w", err)
	}
	t.config.logger.Info(
		"backfilled current mempool",
		"component", "tracker",
		"transactions", backfilled,
	)
	// Start the worker pool
	t.queue = worker.NewQueue(t.config.queueSize)
	pool, err := worker.NewPool(&worker.PoolConfig{
		Logger:       t.config.logger,
		EventBus:     t.eventBus,
		PromRegistry: t.config.promRegistry,
		Queue:        t.queue,
		Store:        t.store,
		Dialer:       dialer,
		Workers:      t.config.workers,
	})
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	t.pool = pool
	if err := t.pool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	// Start producers
	producerCtx, producerCancel := context.WithCancel(context.Background())
	t.producerCancel = producerCancel
	stream, err := bitcoind.NewTxStream(
		producerCtx,
		t.config.zmqEndpoint,
		t.config.logger,
	)
	if err != nil {
		return fmt.Errorf("failed to connect transaction stream: %w", err)
	}
	t.txStream = stream
	t.producerWg.Add(2)
	go t.runStream(producerCtx)
	go t.runTickers(producerCtx)
	t.config.logger.Info(
		"tracking mempool lifecycle",
		"component", "tracker",
		"rpc", t.config.rpcHost,
		"stream", t.config.zmqEndpoint,
	)

	// Wait for shutdown signal or a fatal producer error
	select {
	case <-t.done:
		return nil
	case err := <-t.fatalCh:
		return err
	}
}

// Store exposes the lifecycle store for embedders that want to query
// tracked transactions directly.
func (t *Tracker) Store() *database.Database {
	return t.store
}

// runStream forwards every transaction the node announces onto the task
// queue. A stream failure is fatal: without the live feed the tracker is
// blind to new transactions, and restarting is the only safe recovery.
func (t *Tracker) runStream(ctx context.Context) {
	defer t.producerWg.Done()
	for {
		raw, err := t.txStream.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.fatal(fmt.Errorf("transaction stream: %w", err))
			return
		}
		if !t.submitTask(ctx, worker.Task{Kind: worker.KindRawTx, RawTx: raw}) {
			return
		}
	}
}

// runTickers emits the periodic prune-check and snapshot tasks
func (t *Tracker) runTickers(ctx context.Context) {
	defer t.producerWg.Done()
	pruneInterval := t.config.pruneInterval
	if pruneInterval <= 0 {
		pruneInterval = DefaultPruneInterval
	}
	snapshotInterval := t.config.snapshotInterval
	if snapshotInterval <= 0 {
		snapshotInterval = DefaultSnapshotInterval
	}
	pruneTicker := time.NewTicker(pruneInterval)
	defer pruneTicker.Stop()
	snapshotTicker := time.NewTicker(snapshotInterval)
	defer snapshotTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-pruneTicker.C:
			if !t.submitTask(ctx, worker.Task{Kind: worker.KindPruneCheck}) {
				return
			}
		case <-snapshotTicker.C:
			if !t.submitTask(ctx, worker.Task{Kind: worker.KindMempoolState}) {
				return
			}
		}
	}
}

// submitTask enqueues a task, reporting false when the producer should stop
func (t *Tracker) submitTask(ctx context.Context, task worker.Task) bool {
	err := t.queue.Submit(ctx, task)
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, worker.ErrQueueClosed) {
		return false
	}
	t.config.logger.Warn(
		"failed to enqueue task",
		"component", "tracker",
		"kind", task.Kind.String(),
		"error", err,
	)
	return true
}

func (t *Tracker) fatal(err error) {
	select {
	case t.fatalCh <- err:
	default:
	}
}

func (t *Tracker) Stop() error {
	var err error
	t.shutdownOnce.Do(func() {
		err = t.shutdown()
	})
	return err
}

func (t *Tracker) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if t.config.shutdownTimeout > 0 {
		shutdownTimeout = t.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	t.config.logger.Debug("starting graceful shutdown")

	// Phase 1: Stop producing new tasks
	t.config.logger.Debug("shutdown phase 1: stopping producers")

	if t.producerCancel != nil {
		t.producerCancel()
	}
	if t.txStream != nil {
		if closeErr := t.txStream.Close(); closeErr != nil {
			err = errors.Join(
				err,
				fmt.Errorf("transaction stream close: %w", closeErr),
			)
		}
	}
	t.producerWg.Wait()

	// Phase 2: Drain the task queue
	t.config.logger.Debug("shutdown phase 2: draining task queue")

	if t.pool != nil {
		t.pool.Stop()
	} else if t.queue != nil {
		t.queue.Close()
	}

	// Phase 3: Flush state and close the store
	t.config.logger.Debug("shutdown phase 3: flushing store")

	if t.store != nil {
		if flushErr := t.store.Flush(); flushErr != nil {
			err = errors.Join(err, fmt.Errorf("store flush: %w", flushErr))
		}
		if closeErr := t.store.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("store close: %w", closeErr))
		}
	}

	// Phase 4: Cleanup resources
	t.config.logger.Debug("shutdown phase 4: cleanup resources")

	// Call registered shutdown functions
	for _, fn := range t.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	t.shutdownFuncs = nil

	if t.eventBus != nil {
		t.eventBus.Stop()
	}

	t.config.logger.Debug("graceful shutdown complete")
	close(t.done)
	return err
}
