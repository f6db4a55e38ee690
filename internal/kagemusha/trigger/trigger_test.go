package trigger_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/bdobrica/Kagemusha/internal/kagemusha/trigger"
)

// fakeReadiness marks a fixed set of user IDs as ready.
type fakeReadiness struct {
	ready map[int64]bool
}

func (f *fakeReadiness) IsReady(chatID string, userID int64) (bool, error) {
	return f.ready[userID], nil
}

func TestDecide_NoMentions(t *testing.T) {
	d := trigger.New(&fakeReadiness{ready: map[int64]bool{2: true}}, 1.0, rand.New(rand.NewSource(1)))

	_, fired, err := d.Decide("!room", 1, nil)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if fired {
		t.Error("fired with no mentions")
	}
}

func TestDecide_NeverFiresForSelfMention(t *testing.T) {
	d := trigger.New(&fakeReadiness{ready: map[int64]bool{1: true}}, 1.0, rand.New(rand.NewSource(1)))

	_, fired, err := d.Decide("!room", 1, []int64{1})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if fired {
		t.Error("fired for a self-mention")
	}
}

func TestDecide_NeverFiresWhenNotReady(t *testing.T) {
	d := trigger.New(&fakeReadiness{ready: map[int64]bool{}}, 1.0, rand.New(rand.NewSource(1)))

	for i := 0; i < 1000; i++ {
		_, fired, err := d.Decide("!room", 1, []int64{2})
		if err != nil {
			t.Fatalf("Decide: %v", err)
		}
		if fired {
			t.Fatal("fired for a user without a ready profile")
		}
	}
}

func TestDecide_SkipsSelfThenPicksNextMention(t *testing.T) {
	d := trigger.New(&fakeReadiness{ready: map[int64]bool{2: true}}, 1.0, rand.New(rand.NewSource(1)))

	target, fired, err := d.Decide("!room", 1, []int64{1, 2})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if !fired {
		t.Fatal("expected fire with probability 1 and ready target")
	}
	if target != 2 {
		t.Errorf("target: got %d, want 2", target)
	}
}

func TestDecide_ZeroProbabilityNeverFires(t *testing.T) {
	d := trigger.New(&fakeReadiness{ready: map[int64]bool{2: true}}, 0, rand.New(rand.NewSource(1)))

	for i := 0; i < 1000; i++ {
		_, fired, err := d.Decide("!room", 1, []int64{2})
		if err != nil {
			t.Fatalf("Decide: %v", err)
		}
		if fired {
			t.Fatal("fired with probability 0")
		}
	}
}

func TestDecide_EmpiricalFrequency(t *testing.T) {
	const (
		probability = 0.2
		trials      = 20_000
	)
	d := trigger.New(&fakeReadiness{ready: map[int64]bool{2: true}}, probability, rand.New(rand.NewSource(99)))

	fires := 0
	for i := 0; i < trials; i++ {
		_, fired, err := d.Decide("!room", 1, []int64{2})
		if err != nil {
			t.Fatalf("Decide: %v", err)
		}
		if fired {
			fires++
		}
	}

	got := float64(fires) / trials
	if math.Abs(got-probability) > 0.02 {
		t.Errorf("empirical fire rate %.4f, want %.2f ± 0.02", got, probability)
	}
}
