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

package models

// Transaction is one logical mempool transaction and its lifecycle. The row
// is keyed by the input-set hash, which is stable across fee-bump
// replacements; TxId tracks the latest concrete transaction id. Coinbase
// transactions have no real spent inputs, so their rows carry the txid in
// InputsHash instead.
//
// Timestamps are integer seconds since epoch; zero means unset. MinedAt and
// PrunedAt are mutually exclusive terminal states and are never reset once
// written.
type Transaction struct {
	ID             uint   `gorm:"primaryKey"`
	InputsHash     []byte `gorm:"uniqueIndex;size:32;not null"`
	TxId           []byte `gorm:"column:txid;index;size:32;not null"`
	RawBytes       []byte
	FoundAt        int64  `gorm:"not null;default:0"`
	MinedAt        int64  `gorm:"not null;default:0"`
	PrunedAt       int64  `gorm:"not null;default:0"`
	MempoolSize    int64  `gorm:"not null;default:0"`
	MempoolTxCount int64  `gorm:"not null;default:0"`
	ParentTxId     []byte `gorm:"column:parent_txid;size:32"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// Outstanding returns true while the transaction is still in flight, i.e.
// neither mined nor pruned.
func (t *Transaction) Outstanding() bool {
	return t.MinedAt == 0 && t.PrunedAt == 0
}
