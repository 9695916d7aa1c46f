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

// Package worker contains the bounded task queue and the worker pool that
// apply transaction lifecycle updates to the store.
package worker

// Kind identifies what a task asks a worker to do
type Kind int

const (
	// KindRawTx carries newly observed transaction wire bytes
	KindRawTx Kind = iota
	// KindPruneCheck triggers a reconciliation sweep against the node's
	// current mempool
	KindPruneCheck
	// KindMempoolState triggers a mempool state sample
	KindMempoolState
)

func (k Kind) String() string {
	switch k {
	case KindRawTx:
		return "rawtx"
	case KindPruneCheck:
		return "prunecheck"
	case KindMempoolState:
		return "mempoolstate"
	default:
		return "unknown"
	}
}

// Task is a unit of work for the pool. RawTx is only set for KindRawTx.
type Task struct {
	RawTx []byte
	Kind  Kind
}
