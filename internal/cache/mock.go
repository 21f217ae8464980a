package cache

import (
	"encoding/json"
	"sync"
)

// MockTable is a fixed URL→response table consulted instead of the live
// cache and network when mock mode is enabled. A miss here is a hard
// error at the caller: tests must never silently reach the network.
type MockTable struct {
	m sync.Map
}

func NewMockTable() *MockTable { return &MockTable{} }

func (t *MockTable) Set(url string, result json.RawMessage) { t.m.Store(url, result) }

func (t *MockTable) Get(url string) (json.RawMessage, bool) {
	v, ok := t.m.Load(url)
	if !ok {
		return nil, false
	}
	return v.(json.RawMessage), true
}

func (t *MockTable) Has(url string) bool {
	_, ok := t.m.Load(url)
	return ok
}
