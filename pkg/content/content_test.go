package content

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/northbeam-ai/sitegate/pkg/audit"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (r *recordingEmitter) Emit(_ context.Context, e *audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestValidSlug(t *testing.T) {
	for _, s := range []string{"hero", "case-studies", "a", "x1-2"} {
		assert.True(t, ValidSlug(s), s)
	}
	for _, s := range []string{"", "Hero", "a_b", "../etc", "a b", strings.Repeat("a", 65)} {
		assert.False(t, ValidSlug(s), s)
	}
}

func TestStoreDefaults(t *testing.T) {
	s, err := NewStore(DefaultSections(), nil, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	list := s.List(context.Background())
	require.Len(t, list, 5)
	assert.Equal(t, "blog", list[0].Slug)

	hero, err := s.Get(context.Background(), "hero")
	require.NoError(t, err)
	assert.Equal(t, "Book a call", hero.Fields["cta"])
	assert.False(t, hero.UpdatedAt.IsZero())

	_, err = s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(context.Background(), "Bad_Slug")
	assert.ErrorIs(t, err, ErrInvalidSlug)
}

func TestStorePut(t *testing.T) {
	rec := &recordingEmitter{}
	s, err := NewStore(DefaultSections(), rec, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2025, 5, 5, 5, 5, 5, 0, time.UTC) }

	fields := map[string]string{"headline": "New headline"}
	sec, err := s.Put(context.Background(), "hero", Update{Title: "Hero", Fields: fields}, audit.Actor{User: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "admin", sec.UpdatedBy)
	assert.Equal(t, time.Date(2025, 5, 5, 5, 5, 5, 0, time.UTC), sec.UpdatedAt)

	// The stored copy is isolated from the caller's map.
	fields["headline"] = "mutated"
	got, err := s.Get(context.Background(), "hero")
	require.NoError(t, err)
	assert.Equal(t, "New headline", got.Fields["headline"])
	_, hasCTA := got.Fields["cta"]
	assert.False(t, hasCTA)

	require.Len(t, rec.events, 1)
	assert.Equal(t, audit.EventContentUpdated, rec.events[0].Type)
	assert.Equal(t, "hero", rec.events[0].Target.Name)
	assert.Equal(t, false, rec.events[0].Details["created"])

	_, err = s.Put(context.Background(), "new-page", Update{Title: "New"}, audit.Actor{User: "admin"})
	require.NoError(t, err)
	assert.Equal(t, true, rec.events[1].Details["created"])
	assert.Len(t, s.List(context.Background()), 6)
}

func TestStorePutRejectsInvalidSlug(t *testing.T) {
	s, err := NewStore(nil, nil, nil)
	require.NoError(t, err)
	_, err = s.Put(context.Background(), "../x", Update{}, audit.Actor{})
	assert.ErrorIs(t, err, ErrInvalidSlug)
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sections:
  - slug: hero
    title: Welcome
    fields:
      headline: Hello
  - slug: careers
    title: Jobs
`), 0o600))

	sections, err := LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, "Hello", sections[0].Fields["headline"])

	s, err := NewStore(sections, nil, nil)
	require.NoError(t, err)
	assert.Len(t, s.List(context.Background()), 2)
}

func TestLoadSeedErrors(t *testing.T) {
	_, err := LoadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sections:\n  - slug: hero\n    unknown: 1\n"), 0o600))
	_, err = LoadSeed(path)
	assert.Error(t, err)

	_, err = NewStore([]Section{{Slug: "Not Valid"}}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidSlug)
}

func TestLoadSeedDefault(t *testing.T) {
	sections, err := LoadSeed("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSections(), sections)
}
