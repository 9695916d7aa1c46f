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

package worker_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heeler-io/heeler/bitcoind"
	"github.com/heeler-io/heeler/database"
	"github.com/heeler-io/heeler/database/models"
	"github.com/heeler-io/heeler/event"
	"github.com/heeler-io/heeler/txkey"
	"github.com/heeler-io/heeler/worker"
)

// fakeNode is an in-memory bitcoind.Client double. Workers share one
// instance, so every method locks.
type fakeNode struct {
	mu          sync.Mutex
	mempool     []*chainhash.Hash
	mempoolInfo btcjson.GetMempoolInfoResult
	entries     map[string]*btcjson.GetMempoolEntryResult
	txInfos     map[chainhash.Hash]*btcjson.TxRawResult
	height      int64
	blockHash   chainhash.Hash
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		mempoolInfo: btcjson.GetMempoolInfoResult{Size: 7, Bytes: 4096},
		entries:     make(map[string]*btcjson.GetMempoolEntryResult),
		txInfos:     make(map[chainhash.Hash]*btcjson.TxRawResult),
		height:      800000,
	}
}

func (f *fakeNode) setMempool(txids ...chainhash.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mempool = nil
	for _, txid := range txids {
		txid := txid
		f.mempool = append(f.mempool, &txid)
	}
}

func (f *fakeNode) setConfirmations(txid chainhash.Hash, confirmations uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txInfos[txid] = &btcjson.TxRawResult{
		Txid:          txid.String(),
		Confirmations: confirmations,
	}
}

func (f *fakeNode) setMempoolEntry(txid chainhash.Hash, baseFee float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[txid.String()] = &btcjson.GetMempoolEntryResult{
		Fees: btcjson.MempoolFees{Base: baseFee},
	}
}

func (f *fakeNode) RawMempool() ([]*chainhash.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*chainhash.Hash, len(f.mempool))
	copy(out, f.mempool)
	return out, nil
}

func (f *fakeNode) RawMempoolVerbose() (map[string]btcjson.GetRawMempoolVerboseResult, error) {
	return map[string]btcjson.GetRawMempoolVerboseResult{}, nil
}

func (f *fakeNode) MempoolInfo() (*btcjson.GetMempoolInfoResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info := f.mempoolInfo
	return &info, nil
}

func (f *fakeNode) MempoolEntry(txid string) (*btcjson.GetMempoolEntryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[txid]
	if !ok {
		return nil, errors.New("transaction not in mempool")
	}
	return entry, nil
}

func (f *fakeNode) TransactionInfo(txid *chainhash.Hash) (*btcjson.TxRawResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.txInfos[*txid]
	if !ok {
		return nil, errors.New("no such mempool or blockchain transaction")
	}
	return info, nil
}

func (f *fakeNode) BlockCount() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.height, nil
}

func (f *fakeNode) BlockHash(height int64) (*chainhash.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hash := f.blockHash
	return &hash, nil
}

func (f *fakeNode) Close() {}

// ===== Test helpers =====

func newTestPool(
	t *testing.T,
	node *fakeNode,
	bus *event.EventBus,
) (*worker.Queue, *database.Database) {
	t.Helper()
	db, err := database.New(&database.Config{DataDir: t.TempDir()})
	require.NoError(t, err, "failed to create store")
	t.Cleanup(func() {
		db.Close() //nolint:errcheck
	})
	queue := worker.NewQueue(100)
	pool, err := worker.NewPool(&worker.PoolConfig{
		EventBus: bus,
		Queue:    queue,
		Store:    db,
		Dialer: func() (bitcoind.Client, error) {
			return node, nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, pool.Start())
	t.Cleanup(pool.Stop)
	return queue, db
}

func testOutPoint(hashByte byte, index uint32) wire.OutPoint {
	var h chainhash.Hash
	for i := range h {
		h[i] = hashByte
	}
	return wire.OutPoint{Hash: h, Index: index}
}

func testTx(outValue int64, outPoints ...wire.OutPoint) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	for _, op := range outPoints {
		tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
	}
	tx.AddTxOut(wire.NewTxOut(outValue, []byte{0x51}))
	return tx
}

func testCoinbaseTx(extra byte) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	prevOut := wire.OutPoint{Index: wire.MaxPrevOutIndex}
	tx.AddTxIn(wire.NewTxIn(&prevOut, []byte{0x04, extra}, nil))
	tx.AddTxOut(wire.NewTxOut(50_0000_0000, []byte{0x51}))
	return tx
}

func serializeTx(t *testing.T, tx *wire.MsgTx) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	return buf.Bytes()
}

func submitRawTx(t *testing.T, queue *worker.Queue, tx *wire.MsgTx) {
	t.Helper()
	require.NoError(
		t,
		queue.Submit(
			context.Background(),
			worker.Task{Kind: worker.KindRawTx, RawTx: serializeTx(t, tx)},
		),
	)
}

func waitForRecord(
	t *testing.T,
	db *database.Database,
	inputsHash []byte,
	cond func(*models.Transaction) bool,
) *models.Transaction {
	t.Helper()
	var rec *models.Transaction
	require.Eventually(t, func() bool {
		var err error
		rec, err = db.TransactionByInputsHash(inputsHash)
		return err == nil && rec != nil && cond(rec)
	}, 5*time.Second, 10*time.Millisecond, "record did not reach expected state")
	return rec
}

// ===== Tests =====

func TestPoolRecordsNewTransaction(t *testing.T) {
	node := newFakeNode()
	queue, db := newTestPool(t, node, nil)

	tx := testTx(50000, testOutPoint(0xaa, 0))
	node.setConfirmations(tx.TxHash(), 0)
	submitRawTx(t, queue, tx)

	inputsHash := txkey.InputsHash(tx)
	rec := waitForRecord(t, db, inputsHash[:], func(r *models.Transaction) bool {
		return true
	})
	txid := tx.TxHash()
	assert.Equal(t, txid[:], rec.TxId)
	// Live observations carry the sentinel found-time, not a wall clock
	assert.Equal(t, int64(0), rec.FoundAt)
	assert.Equal(t, int64(4096), rec.MempoolSize)
	assert.Equal(t, int64(7), rec.MempoolTxCount)
	assert.True(t, rec.Outstanding())
}

func TestPoolRecordsMined(t *testing.T) {
	node := newFakeNode()
	queue, db := newTestPool(t, node, nil)

	tx := testTx(50000, testOutPoint(0xaa, 0))
	require.NoError(t, db.InsertOrUpdate(tx, 1234, 0, 0))
	node.setConfirmations(tx.TxHash(), 3)
	submitRawTx(t, queue, tx)

	inputsHash := txkey.InputsHash(tx)
	rec := waitForRecord(t, db, inputsHash[:], func(r *models.Transaction) bool {
		return r.MinedAt != 0
	})
	assert.Equal(t, int64(1234), rec.FoundAt)
	assert.Equal(t, int64(0), rec.PrunedAt)
}

func TestPoolRecordsReplacement(t *testing.T) {
	node := newFakeNode()
	queue, db := newTestPool(t, node, nil)

	op := testOutPoint(0xaa, 0)
	base := testTx(50000, op)
	bumped := testTx(40000, op)
	require.NoError(t, db.InsertOrUpdate(base, 1234, 0, 0))
	node.setConfirmations(bumped.TxHash(), 0)
	node.setMempoolEntry(bumped.TxHash(), 0.0001)
	submitRawTx(t, queue, bumped)

	inputsHash := txkey.InputsHash(base)
	bumpedTxId := bumped.TxHash()
	rec := waitForRecord(t, db, inputsHash[:], func(r *models.Transaction) bool {
		return bytes.Equal(r.TxId, bumpedTxId[:])
	})
	assert.Equal(t, int64(1234), rec.FoundAt)

	events, err := db.Replacements(inputsHash[:])
	require.NoError(t, err)
	require.Len(t, events, 1)
	// 0.0001 BTC
	assert.Equal(t, int64(10000), events[0].FeeTotal)
}

func TestPoolRecordsCoinbase(t *testing.T) {
	node := newFakeNode()
	queue, db := newTestPool(t, node, nil)

	cb := testCoinbaseTx(0x01)
	submitRawTx(t, queue, cb)

	txid := cb.TxHash()
	rec := waitForRecord(t, db, txid[:], func(r *models.Transaction) bool {
		return r.MinedAt != 0
	})
	assert.Equal(t, rec.FoundAt, rec.MinedAt)
	assert.Equal(t, txid[:], rec.TxId)
}

func TestPoolPruneCheck(t *testing.T) {
	node := newFakeNode()
	queue, db := newTestPool(t, node, nil)

	txA := testTx(50000, testOutPoint(0xaa, 0))
	txB := testTx(50000, testOutPoint(0xbb, 0))
	require.NoError(t, db.InsertOrUpdate(txA, 0, 0, 0))
	require.NoError(t, db.InsertOrUpdate(txB, 0, 0, 0))
	// Node still pools A, B has vanished
	node.setMempool(txA.TxHash())

	require.NoError(
		t,
		queue.Submit(context.Background(), worker.Task{Kind: worker.KindPruneCheck}),
	)

	inputsHashB := txkey.InputsHash(txB)
	waitForRecord(t, db, inputsHashB[:], func(r *models.Transaction) bool {
		return r.PrunedAt != 0
	})
	inputsHashA := txkey.InputsHash(txA)
	recA, err := db.TransactionByInputsHash(inputsHashA[:])
	require.NoError(t, err)
	require.NotNil(t, recA)
	assert.Equal(t, int64(0), recA.PrunedAt)
}

func TestPoolMempoolState(t *testing.T) {
	node := newFakeNode()
	node.blockHash[0] = 0x22
	queue, db := newTestPool(t, node, nil)

	require.NoError(
		t,
		queue.Submit(context.Background(), worker.Task{Kind: worker.KindMempoolState}),
	)

	require.Eventually(t, func() bool {
		snaps, err := db.RecentSnapshots(1)
		return err == nil && len(snaps) == 1
	}, 5*time.Second, 10*time.Millisecond)
	snaps, err := db.RecentSnapshots(1)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, int64(4096), snaps[0].MempoolSize)
	assert.Equal(t, int64(7), snaps[0].MempoolTxCount)
	assert.Equal(t, int64(800000), snaps[0].BlockHeight)
	assert.Equal(t, byte(0x22), snaps[0].BlockHash[0])
}

func TestPoolTaskFailuresIsolated(t *testing.T) {
	node := newFakeNode()
	queue, db := newTestPool(t, node, nil)

	// Undecodable bytes, then a transaction the node claims not to know:
	// both tasks fail and must not take the worker down
	require.NoError(
		t,
		queue.Submit(
			context.Background(),
			worker.Task{Kind: worker.KindRawTx, RawTx: []byte{0x00, 0x01}},
		),
	)
	unknown := testTx(50000, testOutPoint(0xbb, 0))
	submitRawTx(t, queue, unknown)

	good := testTx(50000, testOutPoint(0xaa, 0))
	node.setConfirmations(good.TxHash(), 0)
	submitRawTx(t, queue, good)

	inputsHash := txkey.InputsHash(good)
	waitForRecord(t, db, inputsHash[:], func(r *models.Transaction) bool {
		return true
	})
	count, err := db.OutstandingCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

// Two versions of the same transaction processed by concurrent workers must
// end up as a single tracked record with one replacement, never two records.
func TestPoolConcurrentSameKey(t *testing.T) {
	node := newFakeNode()
	queue, db := newTestPool(t, node, nil)

	op := testOutPoint(0xaa, 0)
	base := testTx(50000, op)
	bumped := testTx(40000, op)
	node.setConfirmations(base.TxHash(), 0)
	node.setConfirmations(bumped.TxHash(), 0)
	node.setMempoolEntry(base.TxHash(), 0.0001)
	node.setMempoolEntry(bumped.TxHash(), 0.0002)

	submitRawTx(t, queue, base)
	submitRawTx(t, queue, bumped)

	inputsHash := txkey.InputsHash(base)
	require.Eventually(t, func() bool {
		events, err := db.Replacements(inputsHash[:])
		return err == nil && len(events) == 1
	}, 5*time.Second, 10*time.Millisecond)

	count, err := db.OutstandingCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestPoolPublishesLifecycleEvents(t *testing.T) {
	bus := event.NewEventBus(nil, nil)
	defer bus.Stop()
	node := newFakeNode()
	queue, _ := newTestPool(t, node, bus)
	_, seenCh := bus.Subscribe(event.TransactionSeenEventType)

	tx := testTx(50000, testOutPoint(0xaa, 0))
	node.setConfirmations(tx.TxHash(), 0)
	submitRawTx(t, queue, tx)

	select {
	case evt := <-seenCh:
		payload, ok := evt.Data.(event.TransactionSeenEvent)
		require.True(t, ok, "unexpected payload type %T", evt.Data)
		assert.Equal(t, tx.TxHash(), payload.TxId)
		assert.Equal(t, int64(4096), payload.MempoolBytes)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for lifecycle event")
	}
}
