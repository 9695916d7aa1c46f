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
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultPruneInterval is how often outstanding records are reconciled
	// against the node's current mempool
	DefaultPruneInterval = 5 * time.Second
	// DefaultSnapshotInterval is how often aggregate mempool state is sampled
	DefaultSnapshotInterval = 60 * time.Second
)

type Config struct {
	promRegistry     prometheus.Registerer
	logger           *slog.Logger
	dataDir          string
	rpcHost          string
	rpcUser          string
	rpcPass          string
	zmqEndpoint      string
	queueSize        int
	workers          int
	pruneInterval    time.Duration
	snapshotInterval time.Duration
	shutdownTimeout  time.Duration
	keepWitness      bool
	tracing          bool
	tracingStdout    bool
}

func (t *Tracker) configValidate() error {
	if t.config.rpcHost == "" {
		return errors.New("no node RPC host defined")
	}
	if t.config.zmqEndpoint == "" {
		return errors.New("no node ZMQ endpoint defined")
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the Tracker config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new heeler config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithNodeRPC specifies the bitcoind JSON-RPC endpoint (host:port, no
// protocol prefix) and credentials
func WithNodeRPC(host string, user string, pass string) ConfigOptionFunc {
	return func(c *Config) {
		c.rpcHost = host
		c.rpcUser = user
		c.rpcPass = pass
	}
}

// WithNodeZMQEndpoint specifies the bitcoind zmqpubrawtx endpoint to stream
// transactions from (e.g. tcp://127.0.0.1:28332)
func WithNodeZMQEndpoint(endpoint string) ConfigOptionFunc {
	return func(c *Config) {
		c.zmqEndpoint = endpoint
	}
}

// WithQueueSize specifies the task queue capacity. This defaults to 10000
func WithQueueSize(size int) ConfigOptionFunc {
	return func(c *Config) {
		c.queueSize = size
	}
}

// WithWorkers specifies the number of pool workers, each with its own node
// connection. This defaults to 2
func WithWorkers(workers int) ConfigOptionFunc {
	return func(c *Config) {
		c.workers = workers
	}
}

// WithPruneInterval specifies how often to reconcile outstanding records
// against the node's mempool. This defaults to 5 seconds
func WithPruneInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.pruneInterval = interval
	}
}

// WithSnapshotInterval specifies how often to sample aggregate mempool
// state. This defaults to 60 seconds
func WithSnapshotInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.snapshotInterval = interval
	}
}

// WithKeepWitness specifies whether stored transaction bytes retain witness
// data. The default is to strip witnesses, which preserves the txid while
// shrinking storage
func WithKeepWitness(keep bool) ConfigOptionFunc {
	return func(c *Config) {
		c.keepWitness = keep
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
