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

package bitcoind

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-zeromq/zmq4"
)

const rawTxTopic = "rawtx"

// TxStream subscribes to bitcoind's zmqpubrawtx notifications and yields the
// serialized transactions as the node accepts them into its mempool.
type TxStream struct {
	sub    zmq4.Socket
	logger *slog.Logger
}

// NewTxStream connects to the node's ZMQ publisher at the given endpoint
// (e.g. tcp://127.0.0.1:28332) and subscribes to the rawtx topic.
func NewTxStream(
	ctx context.Context,
	endpoint string,
	logger *slog.Logger,
) (*TxStream, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	sub := zmq4.NewSub(ctx)
	if err := sub.Dial(endpoint); err != nil {
		return nil, fmt.Errorf("dial node ZMQ endpoint %s: %w", endpoint, err)
	}
	if err := sub.SetOption(zmq4.OptionSubscribe, rawTxTopic); err != nil {
		sub.Close() //nolint:errcheck
		return nil, fmt.Errorf("subscribe to %s topic: %w", rawTxTopic, err)
	}
	logger.Info(
		"subscribed to node transaction stream",
		"component", "txstream",
		"endpoint", endpoint,
	)
	return &TxStream{
		sub:    sub,
		logger: logger,
	}, nil
}

// Receive blocks until the next raw transaction arrives and returns its
// serialized bytes. Errors are not recoverable: a broken or malformed stream
// means lifecycle events are being missed.
func (s *TxStream) Receive() ([]byte, error) {
	msg, err := s.sub.Recv()
	if err != nil {
		return nil, fmt.Errorf("receive from transaction stream: %w", err)
	}
	return rawTxPayload(msg.Frames)
}

// Close shuts down the subscription
func (s *TxStream) Close() error {
	return s.sub.Close()
}

// rawTxPayload extracts the transaction bytes from a rawtx publication.
// The node publishes three frames: topic, payload, and a little-endian
// sequence number.
func rawTxPayload(frames [][]byte) ([]byte, error) {
	if len(frames) < 2 {
		return nil, fmt.Errorf(
			"malformed stream publication: %d frames",
			len(frames),
		)
	}
	if string(frames[0]) != rawTxTopic {
		return nil, fmt.Errorf("unexpected stream topic %q", frames[0])
	}
	return frames[1], nil
}
