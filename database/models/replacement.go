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

// Replacement is one observed fee-bump (RBF) event for the transaction
// identified by InputsHash. Rows are append-only. FeeTotal is the replacing
// transaction's fee in satoshis.
type Replacement struct {
	ID         uint   `gorm:"primaryKey"`
	InputsHash []byte `gorm:"index:idx_replacements_key;size:32;not null"`
	CreatedAt  int64  `gorm:"index:idx_replacements_key;not null"`
	FeeTotal   int64  `gorm:"not null"`
}

func (Replacement) TableName() string {
	return "replacements"
}
