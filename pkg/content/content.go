package content

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/northbeam-ai/sitegate/pkg/audit"
	"github.com/northbeam-ai/sitegate/pkg/metrics"
)

var (
	ErrNotFound    = errors.New("content section not found")
	ErrInvalidSlug = errors.New("invalid content slug")
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]{1,64}$`)

// ValidSlug reports whether s can address a section.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// Section is one editable block of the public site.
type Section struct {
	Slug      string            `json:"slug" yaml:"slug"`
	Title     string            `json:"title" yaml:"title"`
	Fields    map[string]string `json:"fields" yaml:"fields"`
	UpdatedAt time.Time         `json:"updatedAt" yaml:"-"`
	UpdatedBy string            `json:"updatedBy,omitempty" yaml:"-"`
}

func (s Section) clone() Section {
	fields := make(map[string]string, len(s.Fields))
	for k, v := range s.Fields {
		fields[k] = v
	}
	s.Fields = fields
	return s
}

// Update is the editable part of a section.
type Update struct {
	Title  string            `json:"title"`
	Fields map[string]string `json:"fields"`
}

// Store holds the sections in memory.
type Store struct {
	mu       sync.RWMutex
	sections map[string]Section
	audit    audit.Emitter
	log      *zap.SugaredLogger
	now      func() time.Time
}

// NewStore creates a store seeded with sections.
func NewStore(seed []Section, emitter audit.Emitter, log *zap.SugaredLogger) (*Store, error) {
	if emitter == nil {
		emitter = audit.NopEmitter{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Store{
		sections: make(map[string]Section, len(seed)),
		audit:    emitter,
		log:      log.Named("content"),
		now:      time.Now,
	}
	started := s.now().UTC()
	for _, sec := range seed {
		if !ValidSlug(sec.Slug) {
			return nil, fmt.Errorf("seed section %q: %w", sec.Slug, ErrInvalidSlug)
		}
		sec = sec.clone()
		if sec.UpdatedAt.IsZero() {
			sec.UpdatedAt = started
		}
		s.sections[sec.Slug] = sec
	}
	return s, nil
}

// List returns every section ordered by slug.
func (s *Store) List(context.Context) []Section {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Section, 0, len(s.sections))
	for _, sec := range s.sections {
		out = append(out, sec.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

func (s *Store) Get(_ context.Context, slug string) (Section, error) {
	if !ValidSlug(slug) {
		return Section{}, ErrInvalidSlug
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.sections[slug]
	if !ok {
		return Section{}, ErrNotFound
	}
	return sec.clone(), nil
}

// Put creates or replaces the section at slug on behalf of actor.
func (s *Store) Put(ctx context.Context, slug string, upd Update, actor audit.Actor) (Section, error) {
	if !ValidSlug(slug) {
		return Section{}, ErrInvalidSlug
	}
	sec := Section{
		Slug:      slug,
		Title:     upd.Title,
		Fields:    upd.Fields,
		UpdatedAt: s.now().UTC(),
		UpdatedBy: actor.User,
	}.clone()

	s.mu.Lock()
	_, existed := s.sections[slug]
	s.sections[slug] = sec
	s.mu.Unlock()

	metrics.ContentUpdates.WithLabelValues(slug).Inc()
	s.log.Infow("Updated content section", "slug", slug, "user", actor.User, "created", !existed)
	s.audit.Emit(ctx, &audit.Event{
		Type:    audit.EventContentUpdated,
		Actor:   actor,
		Target:  audit.Target{Kind: "content", Name: slug},
		Details: map[string]interface{}{"created": !existed, "fields": len(sec.Fields)},
	})
	return sec.clone(), nil
}

type seedFile struct {
	Sections []Section `yaml:"sections"`
}

// LoadSeed reads sections from a YAML file. An empty path yields the defaults.
func LoadSeed(path string) ([]Section, error) {
	if path == "" {
		return DefaultSections(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content seed: %w", err)
	}
	var f seedFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("parse content seed %s: %w", path, err)
	}
	return f.Sections, nil
}

// DefaultSections is the content shipped with the binary.
func DefaultSections() []Section {
	return []Section{
		{Slug: "hero", Title: "AI that ships", Fields: map[string]string{
			"headline":    "Production AI for ambitious teams",
			"subheadline": "Strategy, engineering and operations for machine learning systems.",
			"cta":         "Book a call",
		}},
		{Slug: "services", Title: "Services", Fields: map[string]string{
			"strategy":    "AI strategy and roadmap workshops",
			"engineering": "LLM applications, retrieval and agents",
			"mlops":       "MLOps platforms and model monitoring",
		}},
		{Slug: "case-studies", Title: "Case studies", Fields: map[string]string{
			"logistics": "Cut dispatch planning time by 40% with demand forecasting",
			"support":   "Automated tier-one support answers with a retrieval assistant",
		}},
		{Slug: "careers", Title: "Careers", Fields: map[string]string{
			"intro": "We are hiring engineers who like shipping models to production.",
		}},
		{Slug: "blog", Title: "Blog", Fields: map[string]string{
			"intro": "Notes from the field on building with AI.",
		}},
	}
}
