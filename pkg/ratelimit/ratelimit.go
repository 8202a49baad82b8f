package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/northbeam-ai/sitegate/pkg/metrics"
)

// Category selects the rule a request is counted against.
type Category string

const (
	CategoryAPI     Category = "api"
	CategoryContact Category = "contact"
	CategoryLogin   Category = "login"
	CategoryAdmin   Category = "admin"
)

// UnknownClient is the client id used when no forwarding header is present.
const UnknownClient = "unknown"

// Rule is a fixed window: at most MaxRequests per Window.
type Rule struct {
	Window      time.Duration
	MaxRequests int
}

// DefaultRules returns the built-in rule per category.
func DefaultRules() map[Category]Rule {
	return map[Category]Rule{
		CategoryAPI:     {Window: 15 * time.Minute, MaxRequests: 100},
		CategoryContact: {Window: time.Hour, MaxRequests: 5},
		CategoryAdmin:   {Window: 15 * time.Minute, MaxRequests: 200},
		CategoryLogin:   {Window: 15 * time.Minute, MaxRequests: 50},
	}
}

// Entry is the counter of one (client, category) pair.
type Entry struct {
	Count   int
	ResetAt time.Time
}

// Result is the outcome of a single Check.
type Result struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// RetryAfter is the number of whole seconds until the window resets, rounded up.
func (r Result) RetryAfter(now time.Time) int {
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// Config holds rate limiter configuration
type Config struct {
	// Rules overrides the default rule per category. Missing categories keep their default.
	Rules map[Category]Rule
	// SweepInterval is how often expired counters are removed. Zero disables the sweeper.
	SweepInterval time.Duration
	// Now is the clock, defaults to time.Now.
	Now func() time.Time
}

// Limiter checks requests against per-category fixed windows stored in a Store.
type Limiter struct {
	store    Store
	rules    map[Category]Rule
	now      func() time.Time
	log      *zap.SugaredLogger
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a limiter on top of store and starts the background sweeper.
func New(store Store, cfg Config, log *zap.SugaredLogger) *Limiter {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	rules := DefaultRules()
	for cat, r := range cfg.Rules {
		if r.Window > 0 && r.MaxRequests > 0 {
			rules[cat] = r
		}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	l := &Limiter{
		store: store,
		rules: rules,
		now:   now,
		log:   log.Named("ratelimit"),
		done:  make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		l.wg.Add(1)
		go l.sweeper(cfg.SweepInterval)
	}
	return l
}

// Rule returns the rule for cat. Unknown categories use the api rule.
func (l *Limiter) Rule(cat Category) Rule {
	if r, ok := l.rules[cat]; ok {
		return r
	}
	return l.rules[CategoryAPI]
}

// Check counts one request of clientID in cat and reports whether it is allowed.
// Denied requests do not advance the counter. Store failures fail open.
func (l *Limiter) Check(ctx context.Context, clientID string, cat Category) Result {
	rule := l.Rule(cat)
	now := l.now()

	entry, allowed, err := l.store.Take(ctx, key(clientID, cat), rule.MaxRequests, rule.Window, now)
	if err != nil {
		l.log.Warnw("Rate limit store failed, allowing request",
			"category", cat, "clientID", clientID, "error", err)
		metrics.RateLimitStoreErrors.WithLabelValues(l.store.Name(), "take").Inc()
		metrics.RateLimitDecisions.WithLabelValues(string(cat), "error").Inc()
		return Result{Allowed: true, Remaining: rule.MaxRequests, Limit: rule.MaxRequests, ResetAt: now.Add(rule.Window)}
	}

	res := Result{Allowed: allowed, Limit: rule.MaxRequests, ResetAt: entry.ResetAt}
	if allowed {
		res.Remaining = max(rule.MaxRequests-entry.Count, 0)
		metrics.RateLimitDecisions.WithLabelValues(string(cat), "allowed").Inc()
	} else {
		metrics.RateLimitDecisions.WithLabelValues(string(cat), "denied").Inc()
	}
	return res
}

// SetHeaders stamps the X-RateLimit-* headers for res.
func SetHeaders(h http.Header, res Result) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

// Reject writes the 429 response for a denied result and aborts the chain.
func (l *Limiter) Reject(c *gin.Context, res Result) {
	retryAfter := res.RetryAfter(l.now())
	SetHeaders(c.Writer.Header(), res)
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":      "Too many requests",
		"message":    "Rate limit exceeded. Please try again in " + strconv.Itoa(retryAfter) + " seconds.",
		"retryAfter": retryAfter,
	})
}

// Middleware returns a Gin middleware that applies the rule of cat per client id.
func (l *Limiter) Middleware(cat Category) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := ClientID(c.Request)
		res := l.Check(c.Request.Context(), clientID, cat)
		if !res.Allowed {
			l.log.Infow("Rate limit exceeded", "category", cat, "clientID", clientID, "path", c.Request.URL.Path)
			l.Reject(c, res)
			return
		}
		SetHeaders(c.Writer.Header(), res)
		c.Next()
	}
}

// Stop stops the sweeper goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
	l.wg.Wait()
}

func (l *Limiter) sweeper(interval time.Duration) {
	defer l.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.Sweep(context.Background())
		}
	}
}

// Sweep removes every expired counter and returns how many were dropped.
func (l *Limiter) Sweep(ctx context.Context) int {
	removed, err := l.store.Sweep(ctx, l.now())
	if err != nil {
		l.log.Warnw("Rate limit sweep failed", "error", err)
		metrics.RateLimitStoreErrors.WithLabelValues(l.store.Name(), "sweep").Inc()
		return 0
	}
	if removed > 0 {
		metrics.RateLimitSweptEntries.Add(float64(removed))
		l.log.Debugw("Swept expired rate limit entries", "removed", removed)
	}
	return removed
}

// ClientID identifies the caller by the first X-Forwarded-For hop, then
// X-Real-IP, then "unknown". Both headers are client controlled unless a
// trusted proxy overwrites them.
func ClientID(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return UnknownClient
}

func key(clientID string, cat Category) string {
	return clientID + ":" + string(cat)
}
