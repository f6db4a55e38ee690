package commands

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/Kagemusha/internal/kagemusha/llm"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/profile"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/prompt"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/store"
)

const testRoom = "!room:example.org"

type scriptedProvider struct {
	responses []string
	errs      []error
	calls     int
}

func (p *scriptedProvider) Complete(_ context.Context, _ llm.Request) (string, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return "", p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return "generated reply", nil
}

type env struct {
	store    *store.Store
	handlers *Handlers
	provider *scriptedProvider
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"), store.Limits{MaxMessagesPerUser: 200, MinTokensToStore: 1})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	gate := profile.NewGate(s, profile.Config{MinMessages: 5, SampleSize: 10, RecentMessages: 2}, rand.New(rand.NewSource(1)))
	assembler := prompt.New(s, gate, nil, prompt.DefaultConfig)
	provider := &scriptedProvider{}

	h := NewHandlers(s, gate, assembler, provider)
	h.retryCfg.InitialDelay = time.Millisecond
	return &env{store: s, handlers: h, provider: provider}
}

func (e *env) addUser(t *testing.T, username string, messages int) *store.User {
	t.Helper()
	uid, err := e.store.UpsertUser("@"+username+":example.org", username, "")
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	now := time.Now().Unix()
	for i := 0; i < messages; i++ {
		if _, err := e.store.IngestMessage(testRoom, uid, fmt.Sprintf("%s says thing %d", username, i), now+int64(i)); err != nil {
			t.Fatalf("IngestMessage: %v", err)
		}
	}
	u, err := e.store.GetUserByID(uid)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	return u
}

func eventFrom(sender string) *event.Event {
	return &event.Event{
		Sender: id.UserID(sender),
		RoomID: id.RoomID(testRoom),
	}
}

func TestHandleImitate_Success(t *testing.T) {
	e := newEnv(t)
	e.addUser(t, "alice", 6)
	e.provider.responses = []string{"sounds like something alice would say"}

	reply, err := e.handlers.HandleImitate(context.Background(),
		&Command{Args: []string{"@alice", "hello", "there"}}, eventFrom("@bob:example.org"))
	if err != nil {
		t.Fatalf("HandleImitate: %v", err)
	}
	if reply != "sounds like something alice would say" {
		t.Errorf("reply: got %q", reply)
	}
	if e.provider.calls != 1 {
		t.Errorf("provider calls: got %d, want 1", e.provider.calls)
	}
}

func TestHandleImitate_UnknownUser(t *testing.T) {
	e := newEnv(t)

	reply, err := e.handlers.HandleImitate(context.Background(),
		&Command{Args: []string{"@ghost"}}, eventFrom("@bob:example.org"))
	if err != nil {
		t.Fatalf("HandleImitate: %v", err)
	}
	if !strings.Contains(reply, "don't know @ghost") {
		t.Errorf("reply: got %q", reply)
	}
	if e.provider.calls != 0 {
		t.Error("provider should not be called for an unknown user")
	}
}

func TestHandleImitate_NotReady(t *testing.T) {
	e := newEnv(t)
	e.addUser(t, "alice", 2)

	reply, err := e.handlers.HandleImitate(context.Background(),
		&Command{Args: []string{"@alice"}}, eventFrom("@bob:example.org"))
	if err != nil {
		t.Fatalf("HandleImitate: %v", err)
	}
	if !strings.Contains(reply, "2 of 5") {
		t.Errorf("reply should carry the counts, got %q", reply)
	}
}

func TestHandleImitate_MissingArgs(t *testing.T) {
	e := newEnv(t)

	reply, err := e.handlers.HandleImitate(context.Background(),
		&Command{}, eventFrom("@bob:example.org"))
	if err != nil {
		t.Fatalf("HandleImitate: %v", err)
	}
	if !strings.HasPrefix(reply, "Usage:") {
		t.Errorf("reply: got %q", reply)
	}
}

func TestHandleImitate_TransientErrorRetried(t *testing.T) {
	e := newEnv(t)
	e.addUser(t, "alice", 6)
	e.provider.errs = []error{fmt.Errorf("slow down: %w", llm.ErrRateLimit)}
	e.provider.responses = []string{"", "second try"}

	reply, err := e.handlers.HandleImitate(context.Background(),
		&Command{Args: []string{"@alice"}}, eventFrom("@bob:example.org"))
	if err != nil {
		t.Fatalf("HandleImitate: %v", err)
	}
	if reply != "second try" {
		t.Errorf("reply: got %q", reply)
	}
	if e.provider.calls != 2 {
		t.Errorf("provider calls: got %d, want 2", e.provider.calls)
	}
}

func TestHandleImitate_PermanentErrorApologizes(t *testing.T) {
	e := newEnv(t)
	e.addUser(t, "alice", 6)
	e.provider.errs = []error{fmt.Errorf("invalid model")}

	reply, err := e.handlers.HandleImitate(context.Background(),
		&Command{Args: []string{"@alice"}}, eventFrom("@bob:example.org"))
	if err != nil {
		t.Fatalf("HandleImitate: %v", err)
	}
	if reply != apology {
		t.Errorf("reply: got %q, want apology", reply)
	}
	if e.provider.calls != 1 {
		t.Errorf("permanent error retried: %d calls", e.provider.calls)
	}
}

func TestHandleDialogue_Success(t *testing.T) {
	e := newEnv(t)
	e.addUser(t, "alice", 6)
	e.addUser(t, "bob", 6)
	e.provider.responses = []string{"Alice: hi\nBob: hello"}

	reply, err := e.handlers.HandleDialogue(context.Background(),
		&Command{Args: []string{"@alice", "@bob", "the", "weather"}}, eventFrom("@carol:example.org"))
	if err != nil {
		t.Fatalf("HandleDialogue: %v", err)
	}
	if !strings.Contains(reply, "Alice: hi") {
		t.Errorf("reply: got %q", reply)
	}
}

func TestHandleDialogue_MissingSecondUser(t *testing.T) {
	e := newEnv(t)

	reply, err := e.handlers.HandleDialogue(context.Background(),
		&Command{Args: []string{"@alice"}}, eventFrom("@carol:example.org"))
	if err != nil {
		t.Fatalf("HandleDialogue: %v", err)
	}
	if !strings.HasPrefix(reply, "Usage:") {
		t.Errorf("reply: got %q", reply)
	}
}

func TestHandleRoast_Success(t *testing.T) {
	e := newEnv(t)
	e.addUser(t, "alice", 6)
	e.provider.responses = []string{"she types faster than she thinks, and we love her for it"}

	reply, err := e.handlers.HandleRoast(context.Background(),
		&Command{Args: []string{"@alice"}}, eventFrom("@bob:example.org"))
	if err != nil {
		t.Fatalf("HandleRoast: %v", err)
	}
	if !strings.HasPrefix(reply, "🔥 A roast for @alice:") {
		t.Errorf("missing roast header: %q", reply)
	}
	if !strings.Contains(reply, "types faster than she thinks") {
		t.Errorf("missing generated text: %q", reply)
	}
}

func TestHandleRoast_MissingArg(t *testing.T) {
	e := newEnv(t)

	reply, err := e.handlers.HandleRoast(context.Background(),
		&Command{}, eventFrom("@bob:example.org"))
	if err != nil {
		t.Fatalf("HandleRoast: %v", err)
	}
	if !strings.HasPrefix(reply, "Usage:") {
		t.Errorf("reply: got %q", reply)
	}
}

func TestHandleRoast_UnknownUser(t *testing.T) {
	e := newEnv(t)

	reply, err := e.handlers.HandleRoast(context.Background(),
		&Command{Args: []string{"@ghost"}}, eventFrom("@bob:example.org"))
	if err != nil {
		t.Fatalf("HandleRoast: %v", err)
	}
	if !strings.Contains(reply, "don't know @ghost") {
		t.Errorf("reply: got %q", reply)
	}
	if e.provider.calls != 0 {
		t.Error("provider should not be called for an unknown user")
	}
}

func TestHandleRoast_NotReady(t *testing.T) {
	e := newEnv(t)
	e.addUser(t, "alice", 2)

	reply, err := e.handlers.HandleRoast(context.Background(),
		&Command{Args: []string{"@alice"}}, eventFrom("@bob:example.org"))
	if err != nil {
		t.Fatalf("HandleRoast: %v", err)
	}
	if !strings.Contains(reply, "2 of 5") {
		t.Errorf("reply should carry the counts, got %q", reply)
	}
	if e.provider.calls != 0 {
		t.Error("provider should not be called below the threshold")
	}
}

func TestHandleCompatibility_Success(t *testing.T) {
	e := newEnv(t)
	e.addUser(t, "alice", 6)
	e.addUser(t, "bob", 6)
	e.provider.responses = []string{"87%. One writes novels, the other writes ok."}

	reply, err := e.handlers.HandleCompatibility(context.Background(),
		&Command{Args: []string{"@alice", "@bob"}}, eventFrom("@carol:example.org"))
	if err != nil {
		t.Fatalf("HandleCompatibility: %v", err)
	}
	if !strings.HasPrefix(reply, "💕 Compatibility test: @alice & @bob") {
		t.Errorf("missing header: %q", reply)
	}
	if !strings.Contains(reply, "87%") {
		t.Errorf("missing generated text: %q", reply)
	}
}

func TestHandleCompatibility_SameUser(t *testing.T) {
	e := newEnv(t)
	e.addUser(t, "alice", 6)

	reply, err := e.handlers.HandleCompatibility(context.Background(),
		&Command{Args: []string{"@alice", "@alice"}}, eventFrom("@carol:example.org"))
	if err != nil {
		t.Fatalf("HandleCompatibility: %v", err)
	}
	if !strings.Contains(reply, "two different users") {
		t.Errorf("reply: got %q", reply)
	}
	if e.provider.calls != 0 {
		t.Error("provider should not be called for a self pairing")
	}
}

func TestHandleCompatibility_MissingSecondUser(t *testing.T) {
	e := newEnv(t)

	reply, err := e.handlers.HandleCompatibility(context.Background(),
		&Command{Args: []string{"@alice"}}, eventFrom("@carol:example.org"))
	if err != nil {
		t.Fatalf("HandleCompatibility: %v", err)
	}
	if !strings.HasPrefix(reply, "Usage:") {
		t.Errorf("reply: got %q", reply)
	}
}

func TestHandleCompatibility_OneSideNotReady(t *testing.T) {
	e := newEnv(t)
	e.addUser(t, "alice", 6)
	e.addUser(t, "bob", 2)

	reply, err := e.handlers.HandleCompatibility(context.Background(),
		&Command{Args: []string{"@alice", "@bob"}}, eventFrom("@carol:example.org"))
	if err != nil {
		t.Fatalf("HandleCompatibility: %v", err)
	}
	if !strings.Contains(reply, "2 of 5") {
		t.Errorf("reply should carry the counts, got %q", reply)
	}
}

func TestHandleProfiles(t *testing.T) {
	e := newEnv(t)
	e.addUser(t, "alice", 6)
	e.addUser(t, "bob", 3)

	reply, err := e.handlers.HandleProfiles(context.Background(), &Command{}, eventFrom("@carol:example.org"))
	if err != nil {
		t.Fatalf("HandleProfiles: %v", err)
	}
	if !strings.Contains(reply, "@alice — 6 messages (ready)") {
		t.Errorf("missing ready line: %q", reply)
	}
	if !strings.Contains(reply, "@bob — 3 messages (needs 2 more)") {
		t.Errorf("missing pending line: %q", reply)
	}
}

func TestHandleProfiles_EmptyRoom(t *testing.T) {
	e := newEnv(t)

	reply, err := e.handlers.HandleProfiles(context.Background(), &Command{}, eventFrom("@carol:example.org"))
	if err != nil {
		t.Fatalf("HandleProfiles: %v", err)
	}
	if !strings.Contains(reply, "no message history") {
		t.Errorf("reply: got %q", reply)
	}
}

func TestHandleAutoImitateToggle(t *testing.T) {
	e := newEnv(t)
	evt := eventFrom("@carol:example.org")

	if _, err := e.handlers.HandleAutoImitateOn(context.Background(), &Command{}, evt); err != nil {
		t.Fatalf("HandleAutoImitateOn: %v", err)
	}
	enabled, err := e.store.AutoImitateEnabled(testRoom)
	if err != nil || !enabled {
		t.Fatalf("expected enabled, got %v err %v", enabled, err)
	}

	if _, err := e.handlers.HandleAutoImitateOff(context.Background(), &Command{}, evt); err != nil {
		t.Fatalf("HandleAutoImitateOff: %v", err)
	}
	enabled, err = e.store.AutoImitateEnabled(testRoom)
	if err != nil || enabled {
		t.Fatalf("expected disabled, got %v err %v", enabled, err)
	}
}

func TestHandleForgetMe(t *testing.T) {
	e := newEnv(t)
	e.addUser(t, "alice", 6)

	reply, err := e.handlers.HandleForgetMe(context.Background(), &Command{}, eventFrom("@alice:example.org"))
	if err != nil {
		t.Fatalf("HandleForgetMe: %v", err)
	}
	if !strings.Contains(reply, "6") {
		t.Errorf("reply should report deleted count, got %q", reply)
	}

	// Second purge finds nothing.
	reply, err = e.handlers.HandleForgetMe(context.Background(), &Command{}, eventFrom("@alice:example.org"))
	if err != nil {
		t.Fatalf("HandleForgetMe: %v", err)
	}
	if !strings.Contains(reply, "nothing stored") {
		t.Errorf("reply: got %q", reply)
	}
}
