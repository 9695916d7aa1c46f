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

package worker

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/heeler-io/heeler/bitcoind"
	"github.com/heeler-io/heeler/database"
	"github.com/heeler-io/heeler/event"
	"github.com/heeler-io/heeler/txkey"
)

// DefaultWorkerCount is the number of workers draining the queue. Each
// worker dials its own node connection, so raising this multiplies RPC
// connections.
const DefaultWorkerCount = 2

type PoolConfig struct {
	Logger       *slog.Logger
	EventBus     *event.EventBus
	PromRegistry prometheus.Registerer
	Queue        *Queue
	Store        *database.Database
	Dialer       bitcoind.Dialer
	Workers      int
}

// Pool drains the task queue with a fixed set of workers. Workers share the
// store but never a node connection. The store's lock serializes each
// worker's check-then-act sequence so two versions of the same transaction
// observed concurrently cannot interleave their classification.
type Pool struct {
	logger  *slog.Logger
	bus     *event.EventBus
	queue   *Queue
	store   *database.Database
	dialer  bitcoind.Dialer
	workers int
	metrics *poolMetrics
	wg      sync.WaitGroup
}

type poolMetrics struct {
	tasksTotal   *prometheus.CounterVec
	taskFailures *prometheus.CounterVec
	queueDepth   prometheus.GaugeFunc
}

func NewPool(cfg *PoolConfig) (*Pool, error) {
	if cfg == nil {
		return nil, errors.New("no pool config provided")
	}
	if cfg.Queue == nil || cfg.Store == nil || cfg.Dialer == nil {
		return nil, errors.New("pool requires a queue, store, and dialer")
	}
	p := &Pool{
		logger:  cfg.Logger,
		bus:     cfg.EventBus,
		queue:   cfg.Queue,
		store:   cfg.Store,
		dialer:  cfg.Dialer,
		workers: cfg.Workers,
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if p.workers <= 0 {
		p.workers = DefaultWorkerCount
	}
	if cfg.PromRegistry != nil {
		p.initMetrics(cfg.PromRegistry)
	}
	return p, nil
}

func (p *Pool) initMetrics(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	p.metrics = &poolMetrics{
		tasksTotal: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heeler_worker_tasks_total",
				Help: "total number of tasks pulled from the queue per kind",
			},
			[]string{"kind"},
		),
		taskFailures: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heeler_worker_task_failures_total",
				Help: "total number of tasks abandoned due to an error per kind",
			},
			[]string{"kind"},
		),
		queueDepth: promautoFactory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "heeler_worker_queue_depth",
				Help: "number of tasks waiting in the queue",
			},
			func() float64 {
				return float64(p.queue.Depth())
			},
		),
	}
}

// Start dials a node connection per worker and begins draining the queue
func (p *Pool) Start() error {
	for i := range p.workers {
		client, err := p.dialer()
		if err != nil {
			return fmt.Errorf("dial node for worker %d: %w", i, err)
		}
		p.wg.Add(1)
		go p.runWorker(i, client)
	}
	return nil
}

// Stop closes the queue and waits for the workers to drain remaining tasks
func (p *Pool) Stop() {
	p.queue.Close()
	p.wg.Wait()
}

func (p *Pool) runWorker(idx int, client bitcoind.Client) {
	defer p.wg.Done()
	defer client.Close()
	logger := p.logger.With("component", "worker", "worker", idx)
	logger.Debug("worker started")
	for {
		task, ok := p.queue.Next()
		if !ok {
			logger.Debug("worker stopping: queue closed")
			return
		}
		if p.metrics != nil {
			p.metrics.tasksTotal.WithLabelValues(task.Kind.String()).Inc()
		}
		// Failures are isolated to the task: log and move on. The next
		// live event or periodic sweep reconciles anything missed.
		if err := p.processTask(client, task); err != nil {
			if p.metrics != nil {
				p.metrics.taskFailures.WithLabelValues(task.Kind.String()).
					Inc()
			}
			logger.Warn(
				"task failed",
				"kind", task.Kind.String(),
				"error", err,
			)
		}
	}
}

func (p *Pool) processTask(client bitcoind.Client, task Task) error {
	switch task.Kind {
	case KindRawTx:
		return p.processRawTx(client, task.RawTx)
	case KindPruneCheck:
		return p.processPruneCheck(client)
	case KindMempoolState:
		return p.processMempoolState(client)
	default:
		return fmt.Errorf("unknown task kind %d", task.Kind)
	}
}

// processRawTx applies the lifecycle state machine to a transaction observed
// on the node's stream: coinbase, first-seen, mined, or replaced.
func (p *Pool) processRawTx(client bitcoind.Client, raw []byte) error {
	tx, err := btcutil.NewTxFromBytes(raw)
	if err != nil {
		return fmt.Errorf("decode transaction: %w", err)
	}
	msgTx := tx.MsgTx()

	if blockchain.IsCoinBaseTx(msgTx) {
		info, err := client.MempoolInfo()
		if err != nil {
			return fmt.Errorf("query mempool info: %w", err)
		}
		if err := p.store.RecordCoinbase(msgTx, info.Bytes, info.Size); err != nil {
			return fmt.Errorf("record coinbase: %w", err)
		}
		if err := p.store.Flush(); err != nil {
			return fmt.Errorf("flush store: %w", err)
		}
		txid := *tx.Hash()
		p.publish(
			event.TransactionMinedEventType,
			event.TransactionMinedEvent{
				TxId:       txid,
				InputsHash: txid[:],
				Coinbase:   true,
			},
		)
		return nil
	}

	// The node's view decides between mined and replaced below. A failure
	// here (e.g. transaction already evicted again) abandons the task.
	txInfo, err := client.TransactionInfo(tx.Hash())
	if err != nil {
		return fmt.Errorf("query transaction %s: %w", tx.Hash(), err)
	}
	confirmed := txInfo.Confirmations > 0

	evtType, evtData, err := p.recordRawTx(client, tx, confirmed)
	if err != nil {
		return err
	}
	if err := p.store.Flush(); err != nil {
		return fmt.Errorf("flush store: %w", err)
	}
	p.publish(evtType, evtData)
	return nil
}

// recordRawTx classifies the transaction as new, mined, or replaced and
// applies the matching store mutation. The store's lock is held across the
// whole sequence: with concurrent workers, the original and its fee-bumped
// replacement can arrive close together, and without the lock both could
// pass the existence check and insert duplicate records.
func (p *Pool) recordRawTx(
	client bitcoind.Client,
	tx *btcutil.Tx,
	confirmed bool,
) (event.EventType, any, error) {
	msgTx := tx.MsgTx()
	txid := *tx.Hash()
	inputsHash := txkey.InputsHash(msgTx)

	p.store.Lock()
	defer p.store.Unlock()

	exists, err := p.store.Exists(msgTx)
	if err != nil {
		return "", nil, fmt.Errorf("check existence: %w", err)
	}
	switch {
	case !exists:
		info, err := client.MempoolInfo()
		if err != nil {
			return "", nil, fmt.Errorf("query mempool info: %w", err)
		}
		// No explicit found-time for live observations: the zero
		// sentinel distinguishes them from backfilled entries, which
		// carry the node's recorded entry time
		if err := p.store.InsertOrUpdate(msgTx, 0, info.Bytes, info.Size); err != nil {
			return "", nil, fmt.Errorf("insert transaction: %w", err)
		}
		return event.TransactionSeenEventType, event.TransactionSeenEvent{
			TxId:           txid,
			InputsHash:     inputsHash[:],
			MempoolBytes:   info.Bytes,
			MempoolTxCount: info.Size,
		}, nil
	case confirmed:
		if err := p.store.RecordMined(msgTx); err != nil {
			return "", nil, fmt.Errorf("record mined: %w", err)
		}
		return event.TransactionMinedEventType, event.TransactionMinedEvent{
			TxId:       txid,
			InputsHash: inputsHash[:],
		}, nil
	default:
		// Known inputs, new bytes, still unconfirmed: a fee-bump
		// replacement of the tracked transaction
		entry, err := client.MempoolEntry(txid.String())
		if err != nil {
			return "", nil, fmt.Errorf("query mempool entry: %w", err)
		}
		fee, err := btcutil.NewAmount(entry.Fees.Base)
		if err != nil {
			return "", nil, fmt.Errorf("convert replacement fee: %w", err)
		}
		if err := p.store.RecordReplacement(msgTx, int64(fee)); err != nil {
			return "", nil, fmt.Errorf("record replacement: %w", err)
		}
		return event.TransactionReplacedEventType, event.TransactionReplacedEvent{
			TxId:       txid,
			InputsHash: inputsHash[:],
			FeeTotal:   int64(fee),
		}, nil
	}
}

// processPruneCheck reconciles outstanding records against the node's
// current mempool and retires the ones that left without confirming
func (p *Pool) processPruneCheck(client bitcoind.Client) error {
	pooled, err := client.RawMempool()
	if err != nil {
		return fmt.Errorf("query mempool txids: %w", err)
	}
	current := make([]chainhash.Hash, 0, len(pooled))
	for _, h := range pooled {
		current = append(current, *h)
	}

	// The sweep's read-then-write runs behind the same lock as RawTx
	// handling so it cannot race a concurrent mined or replacement update
	// on the same record
	p.store.Lock()
	missing, err := p.store.MissingOutstanding(current)
	if err != nil {
		p.store.Unlock()
		return fmt.Errorf("find vanished transactions: %w", err)
	}
	if len(missing) == 0 {
		p.store.Unlock()
		return nil
	}
	pruned, err := p.store.RecordPrunedBatch(missing)
	p.store.Unlock()
	if err != nil {
		return fmt.Errorf("record pruned batch: %w", err)
	}
	if err := p.store.Flush(); err != nil {
		return fmt.Errorf("flush store: %w", err)
	}
	if pruned > 0 {
		p.publish(
			event.TransactionsPrunedEventType,
			event.TransactionsPrunedEvent{Count: pruned},
		)
	}
	return nil
}

// processMempoolState samples aggregate mempool and chain tip state
func (p *Pool) processMempoolState(client bitcoind.Client) error {
	info, err := client.MempoolInfo()
	if err != nil {
		return fmt.Errorf("query mempool info: %w", err)
	}
	height, err := client.BlockCount()
	if err != nil {
		return fmt.Errorf("query block count: %w", err)
	}
	blockHash, err := client.BlockHash(height)
	if err != nil {
		return fmt.Errorf("query block hash: %w", err)
	}
	if err := p.store.RecordMempoolState(info.Bytes, info.Size, height, blockHash[:]); err != nil {
		return fmt.Errorf("record mempool state: %w", err)
	}
	if err := p.store.Flush(); err != nil {
		return fmt.Errorf("flush store: %w", err)
	}
	p.publish(
		event.MempoolSnapshotEventType,
		event.MempoolSnapshotEvent{
			MempoolBytes:   info.Bytes,
			MempoolTxCount: info.Size,
			BlockHeight:    height,
		},
	)
	return nil
}

func (p *Pool) publish(eventType event.EventType, data any) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventType, event.NewEvent(eventType, data))
}
