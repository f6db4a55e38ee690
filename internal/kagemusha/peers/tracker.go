// Package peers tracks pairwise interaction statistics between users and
// periodically refreshes each pair's relationship summary through the
// generation service.
package peers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bdobrica/Kagemusha/internal/kagemusha/store"
)

// LinkState describes where a peer link sits in its lifecycle.
type LinkState string

const (
	// StateNew marks a link created by a first co-occurrence that has not
	// accumulated further interactions or an analysis yet.
	StateNew LinkState = "new"
	// StateTracking marks a link accumulating interactions.
	StateTracking LinkState = "tracking"
	// StateDueForReanalysis marks a link whose summary should be recomputed
	// on the next scheduled pass.
	StateDueForReanalysis LinkState = "due_for_reanalysis"
)

// Config holds the reanalysis thresholds. Both are independent: either one
// marks a link due.
type Config struct {
	// ReanalyzeInterval is how stale an existing analysis may get before new
	// interactions make the link due again.
	ReanalyzeInterval time.Duration
	// InteractionStep marks a link due every time this many interactions
	// accumulate past the last analysis.
	InteractionStep int
	// MaxExcerpts caps how many pair messages feed one analysis.
	MaxExcerpts int
}

// DefaultConfig mirrors the documented configuration defaults.
var DefaultConfig = Config{
	ReanalyzeInterval: 24 * time.Hour,
	InteractionStep:   5,
	MaxExcerpts:       20,
}

// Summarizer recomputes a relationship summary from pair excerpts.
// *Analyzer is the production implementation; tests substitute fakes.
type Summarizer interface {
	Analyze(ctx context.Context, nameA, nameB string, excerpts []store.ChatMessage) (*Analysis, error)
}

// Tracker owns the peer-link lifecycle. Interaction recording happens on the
// inbound message path; reanalysis runs on its own cadence via Tick.
type Tracker struct {
	store      *store.Store
	summarizer Summarizer
	cfg        Config
}

// NewTracker creates a Tracker over the given store and summarizer.
func NewTracker(s *store.Store, summarizer Summarizer, cfg Config) *Tracker {
	if cfg.ReanalyzeInterval <= 0 {
		cfg.ReanalyzeInterval = DefaultConfig.ReanalyzeInterval
	}
	if cfg.InteractionStep <= 0 {
		cfg.InteractionStep = DefaultConfig.InteractionStep
	}
	if cfg.MaxExcerpts <= 0 {
		cfg.MaxExcerpts = DefaultConfig.MaxExcerpts
	}
	return &Tracker{store: s, summarizer: summarizer, cfg: cfg}
}

// RecordInteraction notes one co-occurrence (reply or mention) between two
// users in a chat, creating the link lazily on first contact.
func (t *Tracker) RecordInteraction(chatID string, userA, userB int64) error {
	return t.store.RecordInteraction(chatID, userA, userB)
}

// State derives the lifecycle state of a link at the given time.
func (t *Tracker) State(link *store.PeerLink, now time.Time) LinkState {
	if t.isDue(link, now) {
		return StateDueForReanalysis
	}
	if link.InteractionCount <= 1 && link.LastAnalyzedAt == 0 {
		return StateNew
	}
	return StateTracking
}

func (t *Tracker) isDue(link *store.PeerLink, now time.Time) bool {
	pending := link.InteractionCount - link.LastAnalyzedCount
	if pending >= t.cfg.InteractionStep {
		return true
	}
	return link.LastAnalyzedAt > 0 &&
		pending > 0 &&
		now.Unix()-link.LastAnalyzedAt >= int64(t.cfg.ReanalyzeInterval/time.Second)
}

// Due returns the links due for reanalysis at the given time.
func (t *Tracker) Due(now time.Time) ([]store.PeerLink, error) {
	return t.store.DueLinks(now.Unix(), int64(t.cfg.ReanalyzeInterval/time.Second), t.cfg.InteractionStep)
}

// Tick runs one scheduled reanalysis pass: every due link gets a fresh
// summary from the summarizer. A failed analysis is logged and skipped so the
// link stays due for the next pass; Tick itself only fails when the due-link
// scan fails.
func (t *Tracker) Tick(ctx context.Context, now time.Time) error {
	due, err := t.Due(now)
	if err != nil {
		return fmt.Errorf("peers tick: %w", err)
	}

	for _, link := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.reanalyze(ctx, &link, now); err != nil {
			slog.Warn("peer link reanalysis failed, will retry next pass",
				"link", link.ID, "chat", link.ChatID, "err", err)
		}
	}
	return nil
}

func (t *Tracker) reanalyze(ctx context.Context, link *store.PeerLink, now time.Time) error {
	userA, err := t.store.GetUserByID(link.UserA)
	if err != nil {
		return fmt.Errorf("load user %d: %w", link.UserA, err)
	}
	userB, err := t.store.GetUserByID(link.UserB)
	if err != nil {
		return fmt.Errorf("load user %d: %w", link.UserB, err)
	}

	excerpts, err := t.store.PairMessages(link.ChatID, link.UserA, link.UserB, t.cfg.MaxExcerpts)
	if err != nil {
		return fmt.Errorf("load excerpts: %w", err)
	}
	if len(excerpts) == 0 {
		// Interactions without retained text (e.g. after a purge): nothing to
		// analyze, but clear the pending counter so the link stops being due.
		return t.store.ApplyReanalysis(link.ID, link.Summary, now.Unix())
	}

	analysis, err := t.summarizer.Analyze(ctx, userA.Name(), userB.Name(), excerpts)
	if err != nil {
		return err
	}

	if err := t.store.ApplyReanalysis(link.ID, analysis.Summary, now.Unix()); err != nil {
		return err
	}
	slog.Info("peer link reanalyzed", "link", link.ID, "chat", link.ChatID,
		"interactions", link.InteractionCount)
	return nil
}

// Run drives Tick on a fixed cadence until ctx is cancelled. It is the only
// background task in the system and runs independently of message traffic.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("peer reanalysis loop starting", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("peer reanalysis loop stopping")
			return
		case <-ticker.C:
			if err := t.Tick(ctx, time.Now()); err != nil {
				slog.Error("peer reanalysis pass failed", "err", err)
			}
		}
	}
}
