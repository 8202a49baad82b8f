package contact

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var (
	ErrNotFound  = errors.New("lead not found")
	ErrDuplicate = errors.New("a lead with this email already exists")
)

// Page selects a slice of the newest-first lead list. Page is 1-based.
type Page struct {
	Page     int
	PageSize int
}

// Normalize clamps the page into the supported range.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

func (p Page) offset() int {
	return (p.Page - 1) * p.PageSize
}

// Store persists leads. E-mail addresses are unique, compared case-insensitively.
type Store interface {
	Create(ctx context.Context, lead *Lead) error
	Get(ctx context.Context, id string) (Lead, error)
	List(ctx context.Context, page Page) ([]Lead, int64, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// MemoryStore keeps leads in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	leads   map[string]Lead
	byEmail map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leads:   make(map[string]Lead),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, lead *Lead) error {
	key := strings.ToLower(lead.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[key]; ok {
		return ErrDuplicate
	}
	s.leads[lead.ID] = *lead
	s.byEmail[key] = lead.ID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lead, ok := s.leads[id]
	if !ok {
		return Lead{}, ErrNotFound
	}
	return lead, nil
}

func (s *MemoryStore) List(_ context.Context, page Page) ([]Lead, int64, error) {
	page = page.Normalize()
	s.mu.RLock()
	all := make([]Lead, 0, len(s.leads))
	for _, l := range s.leads {
		all = append(all, l)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := int64(len(all))
	start := page.offset()
	if start >= len(all) {
		return []Lead{}, total, nil
	}
	end := start + page.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.leads, id)
	delete(s.byEmail, strings.ToLower(lead.Email))
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
