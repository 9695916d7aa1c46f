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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/heeler-io/heeler/event"
)

type trackerMetrics struct {
	txSeen       prometheus.Counter
	txMined      prometheus.Counter
	txReplaced   prometheus.Counter
	txPruned     prometheus.Counter
	mempoolBytes prometheus.Gauge
	mempoolTxs   prometheus.Gauge
	blockHeight  prometheus.Gauge
}

// initMetrics registers lifecycle metrics and feeds them from the event bus
func (t *Tracker) initMetrics() {
	promautoFactory := promauto.With(t.config.promRegistry)
	t.metrics = &trackerMetrics{
		txSeen: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "heeler_transactions_seen_total",
			Help: "total number of transactions first observed in the mempool",
		}),
		txMined: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "heeler_transactions_mined_total",
			Help: "total number of tracked transactions confirmed in a block",
		}),
		txReplaced: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "heeler_transactions_replaced_total",
			Help: "total number of fee-bump replacements recorded",
		}),
		txPruned: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "heeler_transactions_pruned_total",
			Help: "total number of transactions that left the mempool without confirming",
		}),
		mempoolBytes: promautoFactory.NewGauge(prometheus.GaugeOpts{
			Name: "heeler_mempool_bytes",
			Help: "node mempool size in bytes at the last snapshot",
		}),
		mempoolTxs: promautoFactory.NewGauge(prometheus.GaugeOpts{
			Name: "heeler_mempool_transactions",
			Help: "node mempool entry count at the last snapshot",
		}),
		blockHeight: promautoFactory.NewGauge(prometheus.GaugeOpts{
			Name: "heeler_block_height",
			Help: "node chain tip height at the last snapshot",
		}),
	}
	t.eventBus.SubscribeFunc(
		event.TransactionSeenEventType,
		func(evt event.Event) {
			t.metrics.txSeen.Inc()
		},
	)
	t.eventBus.SubscribeFunc(
		event.TransactionMinedEventType,
		func(evt event.Event) {
			t.metrics.txMined.Inc()
		},
	)
	t.eventBus.SubscribeFunc(
		event.TransactionReplacedEventType,
		func(evt event.Event) {
			t.metrics.txReplaced.Inc()
		},
	)
	t.eventBus.SubscribeFunc(
		event.TransactionsPrunedEventType,
		func(evt event.Event) {
			if data, ok := evt.Data.(event.TransactionsPrunedEvent); ok {
				t.metrics.txPruned.Add(float64(data.Count))
			}
		},
	)
	t.eventBus.SubscribeFunc(
		event.MempoolSnapshotEventType,
		func(evt event.Event) {
			data, ok := evt.Data.(event.MempoolSnapshotEvent)
			if !ok {
				return
			}
			t.metrics.mempoolBytes.Set(float64(data.MempoolBytes))
			t.metrics.mempoolTxs.Set(float64(data.MempoolTxCount))
			t.metrics.blockHeight.Set(float64(data.BlockHeight))
		},
	)
}

// initDebugEvents logs every lifecycle event. It is only wired when the
// logger has debug enabled, since a busy mempool emits many events per second
func (t *Tracker) initDebugEvents() {
	for _, eventType := range []event.EventType{
		event.TransactionSeenEventType,
		event.TransactionMinedEventType,
		event.TransactionReplacedEventType,
		event.TransactionsPrunedEventType,
		event.MempoolSnapshotEventType,
	} {
		t.eventBus.SubscribeFunc(
			eventType,
			func(evt event.Event) {
				t.config.logger.Debug(
					"lifecycle event",
					"component", "tracker",
					"type", string(evt.Type),
					"data", evt.Data,
				)
			},
		)
	}
}
