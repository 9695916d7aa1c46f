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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	// Logging defaults to discard rather than nil so call sites need no guards
	assert.NotNil(t, cfg.logger)
	assert.Empty(t, cfg.dataDir)
	assert.Zero(t, cfg.queueSize)
	assert.Zero(t, cfg.workers)
	assert.False(t, cfg.keepWitness)
	assert.False(t, cfg.tracing)
}

func TestConfigOptions(t *testing.T) {
	registry := prometheus.NewRegistry()
	cfg := NewConfig(
		WithDatabasePath("/tmp/heeler"),
		WithNodeRPC("127.0.0.1:8332", "user", "pass"),
		WithNodeZMQEndpoint("tcp://127.0.0.1:28332"),
		WithQueueSize(500),
		WithWorkers(4),
		WithPruneInterval(10*time.Second),
		WithSnapshotInterval(2*time.Minute),
		WithKeepWitness(true),
		WithPrometheusRegistry(registry),
		WithTracing(true),
		WithTracingStdout(true),
		WithShutdownTimeout(5*time.Second),
	)
	assert.Equal(t, "/tmp/heeler", cfg.dataDir)
	assert.Equal(t, "127.0.0.1:8332", cfg.rpcHost)
	assert.Equal(t, "user", cfg.rpcUser)
	assert.Equal(t, "pass", cfg.rpcPass)
	assert.Equal(t, "tcp://127.0.0.1:28332", cfg.zmqEndpoint)
	assert.Equal(t, 500, cfg.queueSize)
	assert.Equal(t, 4, cfg.workers)
	assert.Equal(t, 10*time.Second, cfg.pruneInterval)
	assert.Equal(t, 2*time.Minute, cfg.snapshotInterval)
	assert.True(t, cfg.keepWitness)
	assert.Equal(t, prometheus.Registerer(registry), cfg.promRegistry)
	assert.True(t, cfg.tracing)
	assert.True(t, cfg.tracingStdout)
	assert.Equal(t, 5*time.Second, cfg.shutdownTimeout)
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	_, err := New(NewConfig())
	require.ErrorContains(t, err, "no node RPC host")

	_, err = New(NewConfig(
		WithNodeRPC("127.0.0.1:8332", "user", "pass"),
	))
	require.ErrorContains(t, err, "no node ZMQ endpoint")

	tracker, err := New(NewConfig(
		WithNodeRPC("127.0.0.1:8332", "user", "pass"),
		WithNodeZMQEndpoint("tcp://127.0.0.1:28332"),
	))
	require.NoError(t, err)
	require.NotNil(t, tracker)
}
