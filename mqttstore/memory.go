package mqttstore

import (
	"sort"
	"sync"

	"github.com/windtalker/mqtt5engine/packets"
)

// MemoryStore is a non-persistent SessionStore: it survives reconnects
// within one process but not a restart. It is the default store used
// when a client is not configured with one.
type MemoryStore struct {
	mu           sync.Mutex
	outstanding  map[uint16]packets.Packet
	order        []uint16
	receivedQoS2 map[uint16]struct{}
	nextID       uint16
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		outstanding:  make(map[uint16]packets.Packet),
		receivedQoS2: make(map[uint16]struct{}),
	}
}

func (s *MemoryStore) SaveOutstanding(id uint16, pkt packets.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.outstanding[id]; !exists {
		s.order = append(s.order, id)
	}
	s.outstanding[id] = pkt
	return nil
}

func (s *MemoryStore) DeleteOutstanding(id uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.outstanding, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) LoadOutstanding() ([]OutstandingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]OutstandingEntry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, OutstandingEntry{ID: id, Packet: s.outstanding[id]})
	}
	return entries, nil
}

func (s *MemoryStore) ClearOutstanding() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outstanding = make(map[uint16]packets.Packet)
	s.order = nil
	return nil
}

func (s *MemoryStore) SaveReceivedQoS2(id uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receivedQoS2[id] = struct{}{}
	return nil
}

func (s *MemoryStore) DeleteReceivedQoS2(id uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.receivedQoS2, id)
	return nil
}

func (s *MemoryStore) LoadReceivedQoS2() ([]uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint16, 0, len(s.receivedQoS2))
	for id := range s.receivedQoS2 {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) ClearReceivedQoS2() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receivedQoS2 = make(map[uint16]struct{})
	return nil
}

func (s *MemoryStore) SaveNextID(id uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = id
	return nil
}

func (s *MemoryStore) LoadNextID() (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID, nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outstanding = make(map[uint16]packets.Packet)
	s.order = nil
	s.receivedQoS2 = make(map[uint16]struct{})
	s.nextID = 0
	return nil
}
