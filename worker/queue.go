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

package worker

import (
	"context"
	"errors"
	"sync"
)

// DefaultQueueSize bounds the number of tasks waiting for a worker. When the
// queue is full producers block rather than drop, so a slow pool throttles
// ingestion instead of losing lifecycle events.
const DefaultQueueSize = 10000

var ErrQueueClosed = errors.New("task queue closed")

// Queue is a bounded multi-producer multi-consumer FIFO of tasks
type Queue struct {
	tasks     chan Task
	done      chan struct{}
	closeOnce sync.Once
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		tasks: make(chan Task, size),
		done:  make(chan struct{}),
	}
}

// Submit enqueues a task, blocking while the queue is full. It returns
// ErrQueueClosed once the queue has been closed and the context's error if
// ctx ends first.
func (q *Queue) Submit(ctx context.Context, task Task) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.tasks <- task:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next blocks until a task is available and returns it. After Close it keeps
// returning buffered tasks until the queue is drained, then reports false.
func (q *Queue) Next() (Task, bool) {
	select {
	case task := <-q.tasks:
		return task, true
	case <-q.done:
		// Drain whatever was accepted before the close
		select {
		case task := <-q.tasks:
			return task, true
		default:
			return Task{}, false
		}
	}
}

// Close stops the queue from accepting new tasks. Safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}

// Depth reports the number of tasks currently waiting
func (q *Queue) Depth() int {
	return len(q.tasks)
}
