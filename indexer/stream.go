package indexer

import "sync"

const defaultSubscriberBuffer = 64

// subscribers holds the live channels fed by Record. A subscriber whose
// buffer fills up is closed and removed; it can resume from its last sequence
// through List.
type subscribers struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]chan Record
}

// Subscribe registers a live feed of newly indexed records. The returned
// cancel function must be called to release the subscription. The channel is
// closed when the subscriber falls behind by more than buffer records.
func (ix *Index) Subscribe(buffer int) (<-chan Record, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan Record, buffer)
	s := &ix.live
	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[uint64]chan Record)
	}
	s.next++
	id := s.next
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if existing, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(existing)
			}
		})
	}
	return ch, cancel
}

func (s *subscribers) publish(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- rec:
		default:
			delete(s.subs, id)
			close(ch)
		}
	}
}

func (s *subscribers) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
