// Package profile decides whether a user has enough retained history to be
// imitated, and selects the message sample used to build a style prompt.
package profile

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/bdobrica/Kagemusha/internal/kagemusha/store"
)

// Config holds the profile-readiness and sampling knobs.
type Config struct {
	// MinMessages is the window length required before a user counts as
	// ready for imitation.
	MinMessages int
	// SampleSize caps how many messages a style sample may contain.
	SampleSize int
	// RecentMessages is the number of most recent messages always included
	// verbatim in a sample. Recency wins: these are never dropped in favor
	// of older messages.
	RecentMessages int
}

// DefaultConfig mirrors the documented configuration defaults.
var DefaultConfig = Config{
	MinMessages:    20,
	SampleSize:     30,
	RecentMessages: 5,
}

// Status is one row of the profile-listing report.
type Status struct {
	UserID       int64
	Username     string
	DisplayName  string
	MessageCount int
	Ready        bool
}

// Gate answers readiness questions and draws style samples. It is safe for
// concurrent use.
type Gate struct {
	store *store.Store
	cfg   Config

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGate creates a Gate over the given store. When rng is nil a time-seeded
// source is used; tests inject a fixed seed for determinism.
func NewGate(s *store.Store, cfg Config, rng *rand.Rand) *Gate {
	if cfg.MinMessages <= 0 {
		cfg.MinMessages = DefaultConfig.MinMessages
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = DefaultConfig.SampleSize
	}
	if cfg.RecentMessages < 0 {
		cfg.RecentMessages = DefaultConfig.RecentMessages
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Gate{store: s, cfg: cfg, rng: rng}
}

// IsReady reports whether the user's window in the chat has reached the
// profile threshold. Unknown users are simply not ready.
func (g *Gate) IsReady(chatID string, userID int64) (bool, error) {
	count, err := g.store.CountMessages(chatID, userID)
	if err != nil {
		return false, fmt.Errorf("profile readiness: %w", err)
	}
	return count >= g.cfg.MinMessages, nil
}

// Threshold returns the window length required for readiness. Callers use it
// to phrase "not enough history" replies.
func (g *Gate) Threshold() int {
	return g.cfg.MinMessages
}

// Sample returns up to SampleSize of the user's messages in chronological
// order. The most recent RecentMessages are always included verbatim; the
// remaining budget is filled by uniform sampling without replacement from the
// older part of the window. A window shorter than the recent count is
// returned whole.
func (g *Gate) Sample(chatID string, userID int64) ([]string, error) {
	window, err := g.store.Window(chatID, userID)
	if err != nil {
		return nil, fmt.Errorf("profile sample: %w", err)
	}
	if len(window) == 0 || g.cfg.SampleSize == 0 {
		return nil, nil
	}

	recentCount := g.cfg.RecentMessages
	if recentCount > g.cfg.SampleSize {
		recentCount = g.cfg.SampleSize
	}
	if recentCount > len(window) {
		recentCount = len(window)
	}

	older := window[:len(window)-recentCount]
	need := g.cfg.SampleSize - recentCount
	if need > len(older) {
		need = len(older)
	}

	var chosen []int
	if need > 0 {
		g.mu.Lock()
		perm := g.rng.Perm(len(older))
		g.mu.Unlock()
		chosen = perm[:need]
		sort.Ints(chosen)
	}

	sample := make([]string, 0, len(chosen)+recentCount)
	for _, idx := range chosen {
		sample = append(sample, older[idx].Text)
	}
	for _, m := range window[len(window)-recentCount:] {
		sample = append(sample, m.Text)
	}
	return sample, nil
}

// StatusReport lists every user with retained history in the chat, ordered by
// message count descending, with their readiness flag. Users with zero
// messages simply do not appear; the report never errors on missing users.
func (g *Gate) StatusReport(chatID string) ([]Status, error) {
	counts, err := g.store.ProfileCounts(chatID)
	if err != nil {
		return nil, fmt.Errorf("profile report: %w", err)
	}

	report := make([]Status, 0, len(counts))
	for _, pc := range counts {
		report = append(report, Status{
			UserID:       pc.UserID,
			Username:     pc.Username,
			DisplayName:  pc.DisplayName,
			MessageCount: pc.MessageCount,
			Ready:        pc.MessageCount >= g.cfg.MinMessages,
		})
	}
	return report, nil
}
