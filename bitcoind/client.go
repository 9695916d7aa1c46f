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

// Package bitcoind provides the node-facing side of the tracker: a JSON-RPC
// client for mempool and chain queries and a ZMQ subscriber for the node's
// raw transaction stream.
package bitcoind

import (
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
)

// Config holds the JSON-RPC connection settings for a bitcoind node
type Config struct {
	// Host is the RPC host:port without a protocol prefix
	Host string
	// User is the RPC username
	User string
	// Pass is the RPC password
	Pass string
}

// Client is the node query surface the tracker depends on. It mirrors the
// subset of the bitcoind RPC interface the tracker uses, which keeps workers
// testable against a fake node.
type Client interface {
	// RawMempool returns the txids currently in the node's mempool
	RawMempool() ([]*chainhash.Hash, error)
	// RawMempoolVerbose returns the node's mempool entries keyed by txid
	RawMempoolVerbose() (map[string]btcjson.GetRawMempoolVerboseResult, error)
	// MempoolInfo returns aggregate mempool state
	MempoolInfo() (*btcjson.GetMempoolInfoResult, error)
	// MempoolEntry returns the mempool entry for the given txid
	MempoolEntry(txid string) (*btcjson.GetMempoolEntryResult, error)
	// TransactionInfo returns the decoded transaction along with its
	// confirmation state
	TransactionInfo(txid *chainhash.Hash) (*btcjson.TxRawResult, error)
	// BlockCount returns the current chain tip height
	BlockCount() (int64, error)
	// BlockHash returns the block hash at the given height
	BlockHash(height int64) (*chainhash.Hash, error)
	// Close shuts the connection down
	Close()
}

// Dialer opens a new node connection. Each worker dials its own connection
// so a slow call on one does not serialize the others.
type Dialer func() (Client, error)

// NewDialer returns a Dialer for the given connection settings
func NewDialer(cfg Config) Dialer {
	return func() (Client, error) {
		return NewClient(cfg)
	}
}

// RPCClient is the JSON-RPC backed Client implementation
type RPCClient struct {
	rpc *rpcclient.Client
}

// NewClient creates a Client talking JSON-RPC over HTTP POST to bitcoind.
// The connection is lazy, so this does not fail on an unreachable node.
func NewClient(cfg Config) (*RPCClient, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}
	rpc, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("create bitcoind RPC client: %w", err)
	}
	return &RPCClient{rpc: rpc}, nil
}

func (c *RPCClient) RawMempool() ([]*chainhash.Hash, error) {
	return c.rpc.GetRawMempool()
}

func (c *RPCClient) RawMempoolVerbose() (map[string]btcjson.GetRawMempoolVerboseResult, error) {
	return c.rpc.GetRawMempoolVerbose()
}

// MempoolInfo issues getmempoolinfo directly since the client library has no
// typed wrapper for it
func (c *RPCClient) MempoolInfo() (*btcjson.GetMempoolInfoResult, error) {
	raw, err := c.rpc.RawRequest("getmempoolinfo", nil)
	if err != nil {
		return nil, err
	}
	var info btcjson.GetMempoolInfoResult
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode getmempoolinfo result: %w", err)
	}
	return &info, nil
}

func (c *RPCClient) MempoolEntry(txid string) (*btcjson.GetMempoolEntryResult, error) {
	return c.rpc.GetMempoolEntry(txid)
}

func (c *RPCClient) TransactionInfo(txid *chainhash.Hash) (*btcjson.TxRawResult, error) {
	return c.rpc.GetRawTransactionVerbose(txid)
}

func (c *RPCClient) BlockCount() (int64, error) {
	return c.rpc.GetBlockCount()
}

func (c *RPCClient) BlockHash(height int64) (*chainhash.Hash, error) {
	return c.rpc.GetBlockHash(height)
}

func (c *RPCClient) Close() {
	c.rpc.Shutdown()
}
