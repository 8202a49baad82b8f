package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store holds rate limit counters, suspicion counters and the blocked IP set.
// Implementations must make Take atomic per key.
type Store interface {
	// Take counts one request against key. A missing or expired entry restarts
	// at 1 with a fresh window. A full window is reported as not allowed and is
	// left unchanged.
	Take(ctx context.Context, key string, max int, window time.Duration, now time.Time) (Entry, bool, error)
	// Sweep drops expired entries and returns how many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
	// RecordSuspicion bumps the suspicion counter of ip. A counter idle for
	// longer than decay restarts at 1.
	RecordSuspicion(ctx context.Context, ip string, now time.Time, decay time.Duration) (int, error)
	Block(ctx context.Context, ip string) error
	// Unblock removes ip from the blocked set and clears its suspicion counter.
	Unblock(ctx context.Context, ip string) error
	IsBlocked(ctx context.Context, ip string) (bool, error)
	// Blocked lists the blocked set in lexical order.
	Blocked(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Name() string
}

type suspicion struct {
	count     int
	expiresAt time.Time
}

// MemoryStore keeps all state in process memory. It is not shared between instances.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]Entry
	suspects map[string]suspicion
	blocked  map[string]struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string]Entry),
		suspects: make(map[string]suspicion),
		blocked:  make(map[string]struct{}),
	}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Take(_ context.Context, key string, max int, window time.Duration, now time.Time) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || now.After(e.ResetAt) {
		e = Entry{Count: 1, ResetAt: now.Add(window)}
		s.entries[key] = e
		return e, true, nil
	}
	if e.Count < max {
		e.Count++
		s.entries[key] = e
		return e, true, nil
	}
	return e, false, nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if now.After(e.ResetAt) {
			delete(s.entries, k)
			removed++
		}
	}
	for ip, sus := range s.suspects {
		if now.After(sus.expiresAt) {
			delete(s.suspects, ip)
		}
	}
	return removed, nil
}

func (s *MemoryStore) RecordSuspicion(_ context.Context, ip string, now time.Time, decay time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sus, ok := s.suspects[ip]
	if !ok || now.After(sus.expiresAt) {
		sus = suspicion{}
	}
	sus.count++
	sus.expiresAt = now.Add(decay)
	s.suspects[ip] = sus
	return sus.count, nil
}

func (s *MemoryStore) Block(_ context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked[ip] = struct{}{}
	return nil
}

func (s *MemoryStore) Unblock(_ context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocked, ip)
	delete(s.suspects, ip)
	return nil
}

func (s *MemoryStore) IsBlocked(_ context.Context, ip string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blocked[ip]
	return ok, nil
}

func (s *MemoryStore) Blocked(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.blocked))
	for ip := range s.blocked {
		out = append(out, ip)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// Len returns the current number of rate limit entries (for testing/metrics)
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
