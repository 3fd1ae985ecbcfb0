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

package uuid

import (
	"sync"

	"github.com/pingcap/log"
)

// MockGenerator hands out pre-pushed identifiers in FIFO order.
type MockGenerator struct {
	mu   sync.Mutex
	list []string
}

// NewMock creates an empty MockGenerator.
func NewMock() *MockGenerator {
	return &MockGenerator{}
}

// NewString implements Generator.
func (g *MockGenerator) NewString() (ret string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.list) == 0 {
		log.L().Panic("Empty uuid list. Please use Push() to add a uuid to the list.")
	}

	ret, g.list = g.list[0], g.list[1:]
	return
}

// Push appends identifiers to be returned by NewString.
func (g *MockGenerator) Push(uuids ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.list = append(g.list, uuids...)
}
