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
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/heeler-io/heeler/bitcoind"
	"github.com/heeler-io/heeler/database"
)

// backfillMempool records every transaction currently in the node's mempool
// with its true pool-entry time. Node-side failures on individual entries
// (already evicted, undecodable) are skipped; store failures are fatal since
// nothing after them could persist either. Returns the number of
// transactions recorded.
func backfillMempool(
	client bitcoind.Client,
	store *database.Database,
	logger *slog.Logger,
) (int, error) {
	startTime := time.Now()
	entries, err := client.RawMempoolVerbose()
	if err != nil {
		return 0, fmt.Errorf("query mempool: %w", err)
	}
	// One aggregate sample shared by every backfilled row
	info, err := client.MempoolInfo()
	if err != nil {
		return 0, fmt.Errorf("query mempool info: %w", err)
	}
	recorded := 0
	for txidStr, entry := range entries {
		txid, err := chainhash.NewHashFromStr(txidStr)
		if err != nil {
			logger.Warn(
				"skipping malformed mempool txid",
				"component", "backfill",
				"txid", txidStr,
				"error", err,
			)
			continue
		}
		txInfo, err := client.TransactionInfo(txid)
		if err != nil {
			// Likely evicted or replaced between the two queries
			logger.Warn(
				"skipping vanished mempool transaction",
				"component", "backfill",
				"txid", txidStr,
				"error", err,
			)
			continue
		}
		raw, err := hex.DecodeString(txInfo.Hex)
		if err != nil {
			logger.Warn(
				"skipping undecodable mempool transaction",
				"component", "backfill",
				"txid", txidStr,
				"error", err,
			)
			continue
		}
		tx, err := btcutil.NewTxFromBytes(raw)
		if err != nil {
			logger.Warn(
				"skipping unparseable mempool transaction",
				"component", "backfill",
				"txid", txidStr,
				"error", err,
			)
			continue
		}
		if err := store.InsertOrUpdate(
			tx.MsgTx(),
			entry.Time,
			info.Bytes,
			info.Size,
		); err != nil {
			return recorded, fmt.Errorf(
				"record mempool transaction %s: %w",
				txidStr,
				err,
			)
		}
		recorded++
	}
	if err := store.Flush(); err != nil {
		return recorded, fmt.Errorf("flush store: %w", err)
	}
	logger.Info(
		"mempool backfill complete",
		"component", "backfill",
		"pooled", len(entries),
		"recorded", recorded,
		"elapsed", time.Since(startTime).Round(time.Millisecond),
	)
	return recorded, nil
}
