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

// Package txkey derives stable identities for Bitcoin transactions. A
// transaction's input-set hash survives fee-bump replacement, which changes
// the txid, so it is the key under which a logical transaction is tracked
// across its lifetime.
package txkey

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// HashSize is the size in bytes of an input-set hash.
const HashSize = sha256.Size

// InputsHash returns the content address for a transaction: the SHA-256 of
// the consensus serialization of each input's previous outpoint (32-byte hash
// followed by the little-endian output index), in input order. Two
// transactions hash identically exactly when they spend the same outputs in
// the same order. Signature scripts, sequence numbers, and witness data do
// not participate, so a replacement that re-signs its inputs still maps to
// the same address as the transaction it replaces.
func InputsHash(tx *wire.MsgTx) [HashSize]byte {
	h := sha256.New()
	var idx [4]byte
	for _, txIn := range tx.TxIn {
		h.Write(txIn.PreviousOutPoint.Hash[:])
		binary.LittleEndian.PutUint32(idx[:], txIn.PreviousOutPoint.Index)
		h.Write(idx[:])
	}
	var ret [HashSize]byte
	h.Sum(ret[:0])
	return ret
}

// TxId returns the transaction's canonical id: the double-SHA-256 of its
// consensus serialization without witness data.
func TxId(tx *wire.MsgTx) chainhash.Hash {
	return tx.TxHash()
}
