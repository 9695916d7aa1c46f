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
	"time"

	"github.com/heeler-io/heeler/database/models"
)

// RecordMempoolState appends one mempool snapshot sample.
func (d *Database) RecordMempoolState(
	mempoolSize int64,
	mempoolTxCount int64,
	blockHeight int64,
	blockHash []byte,
) error {
	row := models.MempoolSnapshot{
		RecordedAt:     time.Now().Unix(),
		MempoolSize:    mempoolSize,
		MempoolTxCount: mempoolTxCount,
		BlockHeight:    blockHeight,
		BlockHash:      blockHash,
	}
	result := d.db.Create(&row)
	return result.Error
}

// RecentSnapshots returns up to limit snapshots, newest first.
func (d *Database) RecentSnapshots(
	limit int,
) ([]models.MempoolSnapshot, error) {
	var ret []models.MempoolSnapshot
	result := d.db.Order("recorded_at DESC").Limit(limit).Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
