// Package usage tracks LLM token consumption per provider and model; each
// retained record also carries its channel. Recording is best-effort and
// lock-cheap; reporting aggregates on demand.
package usage

import (
	"sync"
	"time"
)

// Usage is one call's token accounting.
type Usage struct {
	InputTokens  int64 `yaml:"inputTokens"`
	OutputTokens int64 `yaml:"outputTokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int64 { return u.InputTokens + u.OutputTokens }

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Record is one LLM call as reported by the tool loop.
type Record struct {
	Provider  string
	Model     string
	ChannelID string
	Usage     Usage
	Timestamp time.Time
}

// Pricing is a model's cost per million tokens, used for estimates.
type Pricing struct {
	InputPerMillion  float64 `yaml:"inputPerMillion"`
	OutputPerMillion float64 `yaml:"outputPerMillion"`
}

// Estimate returns the dollar cost of u under this pricing.
func (p Pricing) Estimate(u Usage) float64 {
	return float64(u.InputTokens)/1e6*p.InputPerMillion +
		float64(u.OutputTokens)/1e6*p.OutputPerMillion
}

// Config tunes the tracker.
type Config struct {
	// MaxRecords bounds the retained call log; older records are dropped
	// once aggregated. Zero keeps the default.
	MaxRecords int `yaml:"maxRecords"`
	// Pricing maps model id to its cost table for estimates.
	Pricing map[string]Pricing `yaml:"pricing"`
}

// DefaultConfig returns the tracker defaults.
func DefaultConfig() Config {
	return Config{MaxRecords: 1000}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = DefaultConfig().MaxRecords
	}
	return cfg
}

// modelKey scopes an aggregate to one provider+model pair.
type modelKey struct {
	provider string
	model    string
}

// Tracker accumulates usage records. All methods are safe for concurrent
// use; Record never returns an error — usage accounting must not fail a
// turn.
type Tracker struct {
	mu      sync.Mutex
	config  Config
	totals  map[modelKey]Usage
	calls   map[modelKey]int64
	recent  []Record
	started time.Time
}

// NewTracker builds a Tracker; zero-valued cfg fields fall back to
// DefaultConfig.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{
		config:  sanitizeConfig(cfg),
		totals:  make(map[modelKey]Usage),
		calls:   make(map[modelKey]int64),
		started: time.Now(),
	}
}

// Record accumulates one call.
func (t *Tracker) Record(r Record) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	key := modelKey{provider: r.Provider, model: r.Model}

	t.mu.Lock()
	defer t.mu.Unlock()

	total := t.totals[key]
	total.Add(r.Usage)
	t.totals[key] = total
	t.calls[key]++

	t.recent = append(t.recent, r)
	if len(t.recent) > t.config.MaxRecords {
		t.recent = t.recent[len(t.recent)-t.config.MaxRecords:]
	}
}

// ModelTotal is one aggregated row of a usage report.
type ModelTotal struct {
	Provider      string
	Model         string
	Calls         int64
	Usage         Usage
	EstimatedCost float64
}

// Totals returns the per-model aggregates, cost-estimated where pricing is
// configured.
func (t *Tracker) Totals() []ModelTotal {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ModelTotal, 0, len(t.totals))
	for key, usage := range t.totals {
		row := ModelTotal{
			Provider: key.provider,
			Model:    key.model,
			Calls:    t.calls[key],
			Usage:    usage,
		}
		if pricing, ok := t.config.Pricing[key.model]; ok {
			row.EstimatedCost = pricing.Estimate(usage)
		}
		out = append(out, row)
	}
	return out
}

// Recent returns up to n of the newest records, newest last.
func (t *Tracker) Recent(n int) []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n <= 0 || n > len(t.recent) {
		n = len(t.recent)
	}
	out := make([]Record, n)
	copy(out, t.recent[len(t.recent)-n:])
	return out
}
