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

package event

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// TransactionSeenEventType is the event type for transactions observed in
// the mempool for the first time
const TransactionSeenEventType = EventType("transaction.seen")

// TransactionSeenEvent is emitted when a transaction enters the store with
// an outstanding lifecycle
type TransactionSeenEvent struct {
	// TxId is the transaction's id at the time it was seen
	TxId chainhash.Hash
	// InputsHash is the input-set key the transaction is tracked under
	InputsHash []byte
	// FoundAt is the recorded first-seen time (unix seconds)
	FoundAt int64
	// MempoolBytes is the mempool size sampled when the transaction was seen
	MempoolBytes int64
	// MempoolTxCount is the mempool entry count sampled when the transaction was seen
	MempoolTxCount int64
}

// TransactionMinedEventType is the event type for tracked transactions
// confirmed in a block
const TransactionMinedEventType = EventType("transaction.mined")

// TransactionMinedEvent is emitted when a tracked transaction is marked mined
type TransactionMinedEvent struct {
	// TxId is the transaction's id
	TxId chainhash.Hash
	// InputsHash is the input-set key the transaction is tracked under
	InputsHash []byte
	// Coinbase reports whether the transaction is a block reward
	Coinbase bool
}

// TransactionReplacedEventType is the event type for fee-bump replacements
// of tracked transactions
const TransactionReplacedEventType = EventType("transaction.replaced")

// TransactionReplacedEvent is emitted when a new version of a tracked
// transaction displaces the previous one
type TransactionReplacedEvent struct {
	// TxId is the replacing transaction's id
	TxId chainhash.Hash
	// InputsHash is the input-set key shared by both versions
	InputsHash []byte
	// FeeTotal is the replacing transaction's absolute fee in satoshis
	FeeTotal int64
}

// TransactionsPrunedEventType is the event type for prune sweeps that
// retired transactions which left the mempool without confirming
const TransactionsPrunedEventType = EventType("transaction.pruned")

// TransactionsPrunedEvent is emitted after a prune sweep marks one or more
// outstanding transactions as pruned
type TransactionsPrunedEvent struct {
	// Count is the number of transactions marked pruned by the sweep
	Count int64
}

// MempoolSnapshotEventType is the event type for periodic mempool state samples
const MempoolSnapshotEventType = EventType("mempool.snapshot")

// MempoolSnapshotEvent is emitted after a periodic mempool state sample is
// persisted
type MempoolSnapshotEvent struct {
	// MempoolBytes is the sampled mempool size in bytes
	MempoolBytes int64
	// MempoolTxCount is the sampled number of mempool entries
	MempoolTxCount int64
	// BlockHeight is the chain tip height at sample time
	BlockHeight int64
}
