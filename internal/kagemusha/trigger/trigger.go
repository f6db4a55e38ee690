// Package trigger implements the probabilistic auto-imitation decision.
//
// The decision is pure bookkeeping: given the sender, the mentioned users,
// and an injected random source, it either names an imitation target or stays
// quiet. All side effects (prompt assembly, generation, sending) belong to
// the caller.
package trigger

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Readiness is the profile-gate view the trigger needs.
type Readiness interface {
	IsReady(chatID string, userID int64) (bool, error)
}

// Decider decides, per inbound message, whether to fire an automatic
// imitation. Safe for concurrent use.
type Decider struct {
	readiness   Readiness
	probability float64

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Decider. probability is clamped to [0, 1]. When rng is nil a
// time-seeded source is used; tests inject a fixed seed.
func New(readiness Readiness, probability float64, rng *rand.Rand) *Decider {
	if probability < 0 {
		probability = 0
	}
	if probability > 1 {
		probability = 1
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Decider{readiness: readiness, probability: probability, rng: rng}
}

// Decide returns the imitation target and true when the trigger fires.
// It fires only when a mentioned user other than the sender has a ready
// profile and a single uniform draw lands below the configured probability.
// The first non-self mention is the only candidate considered.
func (d *Decider) Decide(chatID string, senderID int64, mentioned []int64) (int64, bool, error) {
	var candidate int64
	found := false
	for _, userID := range mentioned {
		if userID == senderID {
			continue
		}
		candidate = userID
		found = true
		break
	}
	if !found {
		return 0, false, nil
	}

	ready, err := d.readiness.IsReady(chatID, candidate)
	if err != nil {
		return 0, false, fmt.Errorf("trigger readiness check: %w", err)
	}
	if !ready {
		return 0, false, nil
	}

	d.mu.Lock()
	draw := d.rng.Float64()
	d.mu.Unlock()

	if draw >= d.probability {
		return 0, false, nil
	}
	return candidate, true, nil
}
