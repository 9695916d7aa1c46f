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

// MempoolSnapshot is one periodic sample of aggregate mempool state.
// Append-only time series.
type MempoolSnapshot struct {
	ID             uint   `gorm:"primaryKey"`
	RecordedAt     int64  `gorm:"index;not null"`
	MempoolSize    int64  `gorm:"not null"`
	MempoolTxCount int64  `gorm:"not null"`
	BlockHeight    int64  `gorm:"not null"`
	BlockHash      []byte `gorm:"size:32"`
}

func (MempoolSnapshot) TableName() string {
	return "mempool_snapshots"
}
