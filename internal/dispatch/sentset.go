package dispatch

import "time"

// SentSet records the keys of events already handed to the notifier, with
// the event time so old keys can be pruned. It is owned by a single
// goroutine and is not safe for concurrent use.
type SentSet struct {
	keys map[string]time.Time
}

func NewSentSet() *SentSet {
	return &SentSet{keys: make(map[string]time.Time)}
}

func (s *SentSet) Has(key string) bool {
	_, ok := s.keys[key]
	return ok
}

// Add records key. at is the event time used by Prune.
func (s *SentSet) Add(key string, at time.Time) {
	s.keys[key] = at
}

func (s *SentSet) Len() int { return len(s.keys) }

// Prune removes keys whose event time is before cutoff and reports how many
// were removed.
func (s *SentSet) Prune(cutoff time.Time) int {
	n := 0
	for k, at := range s.keys {
		if at.Before(cutoff) {
			delete(s.keys, k)
			n++
		}
	}
	return n
}
