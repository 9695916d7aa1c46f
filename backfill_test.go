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

package heeler

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heeler-io/heeler/database"
)

// stubNode is a minimal node double for backfill tests. It serves a fixed
// mempool listing and transaction set.
type stubNode struct {
	entries map[string]btcjson.GetRawMempoolVerboseResult
	txInfos map[string]*btcjson.TxRawResult
	info    btcjson.GetMempoolInfoResult
}

func (s *stubNode) RawMempool() ([]*chainhash.Hash, error) { return nil, nil }

func (s *stubNode) RawMempoolVerbose() (
	map[string]btcjson.GetRawMempoolVerboseResult,
	error,
) {
	return s.entries, nil
}

func (s *stubNode) MempoolInfo() (*btcjson.GetMempoolInfoResult, error) {
	info := s.info
	return &info, nil
}

func (s *stubNode) MempoolEntry(
	txid string,
) (*btcjson.GetMempoolEntryResult, error) {
	return nil, errors.New("unexpected getmempoolentry call")
}

func (s *stubNode) TransactionInfo(
	txid *chainhash.Hash,
) (*btcjson.TxRawResult, error) {
	if info, ok := s.txInfos[txid.String()]; ok {
		return info, nil
	}
	return nil, errors.New(
		"No such mempool or blockchain transaction",
	)
}

func (s *stubNode) BlockCount() (int64, error) { return 0, nil }

func (s *stubNode) BlockHash(height int64) (*chainhash.Hash, error) {
	return &chainhash.Hash{}, nil
}

func (s *stubNode) Close() {}

func testOutPoint(hashByte byte, index uint32) wire.OutPoint {
	var h chainhash.Hash
	for i := range h {
		h[i] = hashByte
	}
	return wire.OutPoint{Hash: h, Index: index}
}

func testTx(outValue int64, outPoints ...wire.OutPoint) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	for _, outPoint := range outPoints {
		tx.AddTxIn(wire.NewTxIn(&outPoint, nil, nil))
	}
	tx.AddTxOut(wire.NewTxOut(outValue, []byte{0x51}))
	return tx
}

func txHex(t *testing.T, tx *wire.MsgTx) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	return hex.EncodeToString(buf.Bytes())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBackfillRecordsCurrentMempool(t *testing.T) {
	store, err := database.New(&database.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	defer store.Close()

	txA := testTx(1000, testOutPoint(0x0a, 0))
	txB := testTx(2000, testOutPoint(0x0b, 1))
	txidA := txA.TxHash()
	txidB := txB.TxHash()

	node := &stubNode{
		entries: map[string]btcjson.GetRawMempoolVerboseResult{
			txidA.String(): {Time: 1700000000},
			txidB.String(): {Time: 1700000100},
		},
		txInfos: map[string]*btcjson.TxRawResult{
			txidA.String(): {Hex: txHex(t, txA)},
			txidB.String(): {Hex: txHex(t, txB)},
		},
		info: btcjson.GetMempoolInfoResult{Size: 2, Bytes: 8192},
	}

	recorded, err := backfillMempool(node, store, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, recorded)

	rowA, err := store.TransactionByTxId(txidA[:])
	require.NoError(t, err)
	require.NotNil(t, rowA)
	// Backfilled entries carry the node's entry time, not the live-stream
	// zero sentinel
	assert.Equal(t, int64(1700000000), rowA.FoundAt)
	assert.Equal(t, int64(8192), rowA.MempoolSize)
	assert.Equal(t, int64(2), rowA.MempoolTxCount)
	assert.True(t, rowA.Outstanding())

	rowB, err := store.TransactionByTxId(txidB[:])
	require.NoError(t, err)
	require.NotNil(t, rowB)
	assert.Equal(t, int64(1700000100), rowB.FoundAt)
}

func TestBackfillSkipsBrokenEntries(t *testing.T) {
	store, err := database.New(&database.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	defer store.Close()

	goodTx := testTx(3000, testOutPoint(0x0c, 0))
	goodTxid := goodTx.TxHash()
	garbledTx := testTx(4000, testOutPoint(0x0d, 0))
	garbledTxid := garbledTx.TxHash()
	vanishedTxid := chainhash.Hash{0x0e}

	node := &stubNode{
		entries: map[string]btcjson.GetRawMempoolVerboseResult{
			// malformed txid from the node
			"not-a-txid":         {Time: 1700000000},
			goodTxid.String():    {Time: 1700000001},
			garbledTxid.String(): {Time: 1700000002},
			// listed but evicted before the raw fetch
			vanishedTxid.String(): {Time: 1700000003},
		},
		txInfos: map[string]*btcjson.TxRawResult{
			goodTxid.String():    {Hex: txHex(t, goodTx)},
			garbledTxid.String(): {Hex: "zz-not-hex"},
		},
		info: btcjson.GetMempoolInfoResult{Size: 4, Bytes: 4096},
	}

	recorded, err := backfillMempool(node, store, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, recorded)

	count, err := store.OutstandingCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	row, err := store.TransactionByTxId(goodTxid[:])
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(1700000001), row.FoundAt)
}
