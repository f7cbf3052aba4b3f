package scanner

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// PoolSet is the set of pool addresses known to the store, grown as pools are accepted.
// Safe for concurrent use.
type PoolSet struct {
	mu    sync.RWMutex
	pools map[common.Address]struct{}
}

// NewPoolSet creates an empty set.
func NewPoolSet() *PoolSet {
	return &PoolSet{pools: make(map[common.Address]struct{})}
}

// Contains reports whether the address is known.
func (s *PoolSet) Contains(addr common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pools[addr]
	return ok
}

// Add inserts the address and reports whether it was new.
func (s *PoolSet) Add(addr common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[addr]; ok {
		return false
	}
	s.pools[addr] = struct{}{}
	return true
}

// Load adds hex addresses and returns how many were new. Invalid entries are skipped.
func (s *PoolSet) Load(addrs []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, a := range addrs {
		if !common.IsHexAddress(a) {
			continue
		}
		addr := common.HexToAddress(a)
		if _, ok := s.pools[addr]; !ok {
			s.pools[addr] = struct{}{}
			added++
		}
	}
	return added
}

// Len returns the number of known pools.
func (s *PoolSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pools)
}
