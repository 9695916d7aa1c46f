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

package database

import (
	"bytes"
	"errors"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/heeler-io/heeler/database/models"
	"github.com/heeler-io/heeler/txkey"
)

// Chunk size for batch updates. Maximum default size for SQLite is 999
// bind parameters, so we keep a comfortable margin.
const pruneBatchChunkSize = 499

func (d *Database) serializeTx(tx *wire.MsgTx) ([]byte, error) {
	if d.keepWitness {
		buf := bytes.NewBuffer(make([]byte, 0, tx.SerializeSize()))
		if err := tx.Serialize(buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	buf := bytes.NewBuffer(make([]byte, 0, tx.SerializeSizeStripped()))
	if err := tx.SerializeNoWitness(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RecordCoinbase records a coinbase transaction as found and mined in the
// same instant. Coinbase inputs are synthetic, so the row is keyed by the
// transaction's own id rather than an input-set hash. No-op for non-coinbase
// transactions.
func (d *Database) RecordCoinbase(
	tx *wire.MsgTx,
	mempoolSize int64,
	mempoolTxCount int64,
) error {
	if !blockchain.IsCoinBaseTx(tx) {
		return nil
	}
	raw, err := d.serializeTx(tx)
	if err != nil {
		return err
	}
	txid := tx.TxHash()
	now := time.Now().Unix()
	row := models.Transaction{
		InputsHash:     txid[:],
		TxId:           txid[:],
		RawBytes:       raw,
		FoundAt:        now,
		MinedAt:        now,
		MempoolSize:    mempoolSize,
		MempoolTxCount: mempoolTxCount,
	}
	result := d.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "inputs_hash"}},
		DoUpdates: clause.AssignmentColumns(
			[]string{"txid", "raw_bytes", "found_at", "mined_at"},
		),
	}).Create(&row)
	return result.Error
}

// InsertOrUpdate records a first observation of a logical transaction, or
// refreshes the concrete representation (txid, raw bytes) of one seen
// before. Lifecycle timestamps and the first-observation mempool context are
// never touched on the refresh path. foundAt of zero means the observation
// time is unknown (live-stream path); the backfill path passes the node's
// pool-entry time.
//
// The transaction's inputs are also walked to maintain the best-effort spend
// chain: any existing record whose txid is spent by this transaction gets
// its parent_txid column set to this transaction's id. Last writer wins when
// multiple children spend the same record.
func (d *Database) InsertOrUpdate(
	tx *wire.MsgTx,
	foundAt int64,
	mempoolSize int64,
	mempoolTxCount int64,
) error {
	inputsHash := txkey.InputsHash(tx)
	txid := txkey.TxId(tx)
	raw, err := d.serializeTx(tx)
	if err != nil {
		return err
	}
	return d.db.Transaction(func(dbTxn *gorm.DB) error {
		var existing models.Transaction
		result := dbTxn.Where("inputs_hash = ?", inputsHash[:]).
			First(&existing)
		if result.Error != nil {
			if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return result.Error
			}
			row := models.Transaction{
				InputsHash:     inputsHash[:],
				TxId:           txid[:],
				RawBytes:       raw,
				FoundAt:        foundAt,
				MempoolSize:    mempoolSize,
				MempoolTxCount: mempoolTxCount,
			}
			if result := dbTxn.Create(&row); result.Error != nil {
				return result.Error
			}
		} else {
			result := dbTxn.Model(&models.Transaction{}).
				Where("inputs_hash = ?", inputsHash[:]).
				Updates(map[string]any{
					"txid":      txid[:],
					"raw_bytes": raw,
				})
			if result.Error != nil {
				return result.Error
			}
		}
		for _, txIn := range tx.TxIn {
			prevTxId := txIn.PreviousOutPoint.Hash
			result := dbTxn.Model(&models.Transaction{}).
				Where("txid = ?", prevTxId[:]).
				Update("parent_txid", txid[:])
			if result.Error != nil {
				return result.Error
			}
		}
		return nil
	})
}

// Exists returns true if a record exists for the transaction's input-set
// hash.
func (d *Database) Exists(tx *wire.MsgTx) (bool, error) {
	inputsHash := txkey.InputsHash(tx)
	var count int64
	result := d.db.Model(&models.Transaction{}).
		Where("inputs_hash = ?", inputsHash[:]).
		Count(&count)
	if result.Error != nil {
		return false, result.Error
	}
	return count > 0, nil
}

// RecordMined marks the record for the transaction's input-set hash as mined
// now and refreshes its raw bytes. Returns ErrTxNotFound when no record
// exists. A record already marked pruned keeps its terminal state; the late
// mined observation only refreshes the bytes.
func (d *Database) RecordMined(tx *wire.MsgTx) error {
	inputsHash := txkey.InputsHash(tx)
	raw, err := d.serializeTx(tx)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	return d.db.Transaction(func(dbTxn *gorm.DB) error {
		var existing models.Transaction
		result := dbTxn.Where("inputs_hash = ?", inputsHash[:]).
			First(&existing)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return ErrTxNotFound
			}
			return result.Error
		}
		updates := map[string]any{"raw_bytes": raw}
		if existing.PrunedAt == 0 {
			updates["mined_at"] = now
		}
		result = dbTxn.Model(&models.Transaction{}).
			Where("inputs_hash = ?", inputsHash[:]).
			Updates(updates)
		return result.Error
	})
}

// RecordReplacement appends a fee-bump event for the transaction's input-set
// hash and advances the record's txid and raw bytes to the replacing
// transaction. The logical record survives; only its concrete representation
// changes. feeTotal is the replacing transaction's fee in satoshis. Returns
// ErrTxNotFound when no base record exists.
func (d *Database) RecordReplacement(tx *wire.MsgTx, feeTotal int64) error {
	inputsHash := txkey.InputsHash(tx)
	txid := txkey.TxId(tx)
	raw, err := d.serializeTx(tx)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	return d.db.Transaction(func(dbTxn *gorm.DB) error {
		var existing models.Transaction
		result := dbTxn.Where("inputs_hash = ?", inputsHash[:]).
			First(&existing)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return ErrTxNotFound
			}
			return result.Error
		}
		event := models.Replacement{
			InputsHash: inputsHash[:],
			CreatedAt:  now,
			FeeTotal:   feeTotal,
		}
		if result := dbTxn.Create(&event); result.Error != nil {
			return result.Error
		}
		result = dbTxn.Model(&models.Transaction{}).
			Where("inputs_hash = ?", inputsHash[:]).
			Updates(map[string]any{
				"txid":      txid[:],
				"raw_bytes": raw,
			})
		return result.Error
	})
}

// MissingOutstanding returns the txids of outstanding (neither mined nor
// pruned) records that are absent from the given current-mempool txid set.
// This is the read side of the prune sweep.
func (d *Database) MissingOutstanding(
	current []chainhash.Hash,
) ([]chainhash.Hash, error) {
	var outstanding [][]byte
	result := d.db.Model(&models.Transaction{}).
		Where("mined_at = 0 AND pruned_at = 0").
		Pluck("txid", &outstanding)
	if result.Error != nil {
		return nil, result.Error
	}
	pooled := make(map[chainhash.Hash]struct{}, len(current))
	for _, txid := range current {
		pooled[txid] = struct{}{}
	}
	var missing []chainhash.Hash
	for _, txid := range outstanding {
		h, err := chainhash.NewHash(txid)
		if err != nil {
			return nil, err
		}
		if _, ok := pooled[*h]; !ok {
			missing = append(missing, *h)
		}
	}
	return missing, nil
}

// RecordPrunedBatch marks every outstanding record whose txid is in the
// given set as pruned now. Records already mined (or already pruned) are
// never touched: a mined transaction correctly disappears from the mempool.
// Returns the number of records updated.
func (d *Database) RecordPrunedBatch(txids []chainhash.Hash) (int64, error) {
	if len(txids) == 0 {
		return 0, nil
	}
	now := time.Now().Unix()
	var updated int64
	for i := 0; i < len(txids); i += pruneBatchChunkSize {
		end := min(i+pruneBatchChunkSize, len(txids))
		chunk := make([][]byte, 0, end-i)
		for _, txid := range txids[i:end] {
			chunk = append(chunk, txid.CloneBytes())
		}
		result := d.db.Model(&models.Transaction{}).
			Where(
				"txid IN ? AND mined_at = 0 AND pruned_at = 0",
				chunk,
			).
			Update("pruned_at", now)
		if result.Error != nil {
			return updated, result.Error
		}
		updated += result.RowsAffected
	}
	return updated, nil
}

// TransactionByInputsHash returns the record for the given input-set hash,
// or nil when none exists.
func (d *Database) TransactionByInputsHash(
	inputsHash []byte,
) (*models.Transaction, error) {
	ret := &models.Transaction{}
	result := d.db.Where("inputs_hash = ?", inputsHash).First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return ret, nil
}

// TransactionByTxId returns the record currently carrying the given txid, or
// nil when none exists.
func (d *Database) TransactionByTxId(
	txid []byte,
) (*models.Transaction, error) {
	ret := &models.Transaction{}
	result := d.db.Where("txid = ?", txid).First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return ret, nil
}

// Replacements returns the fee-bump history for the given input-set hash in
// observation order.
func (d *Database) Replacements(
	inputsHash []byte,
) ([]models.Replacement, error) {
	var ret []models.Replacement
	result := d.db.Where("inputs_hash = ?", inputsHash).
		Order("created_at").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// OutstandingCount returns the number of records that are neither mined nor
// pruned.
func (d *Database) OutstandingCount() (int64, error) {
	var count int64
	result := d.db.Model(&models.Transaction{}).
		Where("mined_at = 0 AND pruned_at = 0").
		Count(&count)
	if result.Error != nil {
		return 0, result.Error
	}
	return count, nil
}
