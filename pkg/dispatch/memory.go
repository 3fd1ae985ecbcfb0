// Copyright 2026 PingCAP, Inc.
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

package dispatch

import (
	"context"
	"sync"

	"github.com/pingcap/errors"
	cerror "github.com/pingcap/stepflow/pkg/errors"
)

const defaultMemoryQueueSize = 1024

// MemoryBroker is an in-process Broker backed by a buffered channel.
type MemoryBroker struct {
	queue chan *Envelope

	mu      sync.Mutex
	claimed map[string]*Envelope

	closeOnce sync.Once
	closed    chan struct{}
}

var _ Broker = (*MemoryBroker)(nil)

// NewMemoryBroker creates a MemoryBroker. A non-positive size uses the default.
func NewMemoryBroker(size int) *MemoryBroker {
	if size <= 0 {
		size = defaultMemoryQueueSize
	}
	return &MemoryBroker{
		queue:   make(chan *Envelope, size),
		claimed: make(map[string]*Envelope),
		closed:  make(chan struct{}),
	}
}

// Enqueue implements Broker.
func (b *MemoryBroker) Enqueue(ctx context.Context, e *Envelope) error {
	select {
	case <-b.closed:
		return cerror.ErrBrokerClosed.GenWithStackByArgs()
	default:
	}
	select {
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	case <-b.closed:
		return cerror.ErrBrokerClosed.GenWithStackByArgs()
	case b.queue <- e:
		return nil
	}
}

// Claim implements Broker.
func (b *MemoryBroker) Claim(ctx context.Context) (*Envelope, error) {
	select {
	case <-ctx.Done():
		return nil, errors.Trace(ctx.Err())
	case <-b.closed:
		return nil, cerror.ErrBrokerClosed.GenWithStackByArgs()
	case e := <-b.queue:
		b.mu.Lock()
		b.claimed[e.ID] = e
		b.mu.Unlock()
		return e, nil
	}
}

// Ack implements Broker. A claimed envelope has already left the queue.
func (b *MemoryBroker) Ack(_ context.Context, id string) error {
	b.mu.Lock()
	delete(b.claimed, id)
	b.mu.Unlock()
	return nil
}

// Release implements Broker by queueing the claimed envelope again.
func (b *MemoryBroker) Release(ctx context.Context, id string) error {
	b.mu.Lock()
	e, ok := b.claimed[id]
	delete(b.claimed, id)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return b.Enqueue(ctx, e)
}

// Close implements Broker.
func (b *MemoryBroker) Close() error {
	b.closeOnce.Do(func() {
		close(b.closed)
	})
	return nil
}

// MemoryBackend is an in-process Backend.
type MemoryBackend struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{statuses: make(map[string]Status)}
}

// SetStatus implements Backend.
func (b *MemoryBackend) SetStatus(_ context.Context, id string, status Status) error {
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses[id] = status
	return nil
}

// Status implements Backend.
func (b *MemoryBackend) Status(_ context.Context, id string) (Status, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if st, ok := b.statuses[id]; ok {
		return st, nil
	}
	return StatusPending, nil
}

// Forget implements Backend.
func (b *MemoryBackend) Forget(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.statuses, id)
	return nil
}
