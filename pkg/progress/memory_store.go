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

package progress

import (
	"context"
	"sync"
)

// MemoryStore is a Store kept in process memory. Each record is a hash of
// string fields, like the etcd layout.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]map[string]string)}
}

// Init implements Store.
func (s *MemoryStore) Init(_ context.Context, jobID, taskID string) error {
	if err := checkJobID(jobID); err != nil {
		return err
	}
	s.hset(jobID, initFields(taskID))
	return nil
}

// Update implements Updater.
func (s *MemoryStore) Update(_ context.Context, jobID, step string, percent int) error {
	if err := checkUpdate(jobID, step, percent); err != nil {
		return err
	}
	s.hset(jobID, updateFields(step, percent))
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, jobID string) (Record, error) {
	if err := checkJobID(jobID); err != nil {
		return Record{}, err
	}
	s.mu.RLock()
	fields := make(map[string]string, len(s.records[jobID]))
	for k, v := range s.records[jobID] {
		fields[k] = v
	}
	s.mu.RUnlock()
	return recordFromFields(jobID, fields)
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, jobID string) error {
	if err := checkJobID(jobID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.records, jobID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) hset(jobID string, fields map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[jobID]
	if !ok {
		record = make(map[string]string, len(fields))
		s.records[jobID] = record
	}
	for k, v := range fields {
		record[k] = v
	}
}
