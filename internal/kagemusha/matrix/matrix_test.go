package matrix

import (
	"context"
	"path/filepath"
	"testing"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/Kagemusha/internal/kagemusha/store"
)

func newTestSyncStore(t *testing.T) *DBSyncStore {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"), store.DefaultLimits)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return newDBSyncStore(s.DB())
}

func TestSyncStore_NextBatchRoundTrip(t *testing.T) {
	ss := newTestSyncStore(t)
	ctx := context.Background()
	userID := id.UserID("@bot:example.org")

	token, err := ss.LoadNextBatch(ctx, userID)
	if err != nil {
		t.Fatalf("LoadNextBatch: %v", err)
	}
	if token != "" {
		t.Errorf("first load: got %q, want empty", token)
	}

	if err := ss.SaveNextBatch(ctx, userID, "s123_456"); err != nil {
		t.Fatalf("SaveNextBatch: %v", err)
	}
	if err := ss.SaveNextBatch(ctx, userID, "s789_012"); err != nil {
		t.Fatalf("SaveNextBatch overwrite: %v", err)
	}

	token, err = ss.LoadNextBatch(ctx, userID)
	if err != nil {
		t.Fatalf("LoadNextBatch: %v", err)
	}
	if token != "s789_012" {
		t.Errorf("got %q, want latest token", token)
	}
}

func TestSyncStore_FilterIDIsIndependent(t *testing.T) {
	ss := newTestSyncStore(t)
	ctx := context.Background()
	userID := id.UserID("@bot:example.org")

	if err := ss.SaveFilterID(ctx, userID, "filter-1"); err != nil {
		t.Fatalf("SaveFilterID: %v", err)
	}
	if err := ss.SaveNextBatch(ctx, userID, "s1"); err != nil {
		t.Fatalf("SaveNextBatch: %v", err)
	}

	filterID, err := ss.LoadFilterID(ctx, userID)
	if err != nil {
		t.Fatalf("LoadFilterID: %v", err)
	}
	if filterID != "filter-1" {
		t.Errorf("got %q, want filter-1", filterID)
	}
}

func messageEvent(content *event.MessageEventContent) *event.Event {
	return &event.Event{
		Sender:  id.UserID("@alice:example.org"),
		RoomID:  id.RoomID("!room:example.org"),
		Content: event.Content{Parsed: content},
	}
}

func TestMentions(t *testing.T) {
	evt := messageEvent(&event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    "hey bob",
		Mentions: &event.Mentions{
			UserIDs: []id.UserID{"@bob:example.org", "@carol:example.org"},
		},
	})

	got := Mentions(evt)
	if len(got) != 2 || got[0] != "@bob:example.org" || got[1] != "@carol:example.org" {
		t.Errorf("Mentions: got %v", got)
	}

	plain := messageEvent(&event.MessageEventContent{MsgType: event.MsgText, Body: "no mentions"})
	if got := Mentions(plain); got != nil {
		t.Errorf("expected nil for message without mentions, got %v", got)
	}
}

func TestReplyTarget(t *testing.T) {
	reply := messageEvent(&event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    "replying",
		RelatesTo: &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: id.EventID("$orig")},
		},
	})
	if got := ReplyTarget(reply); got != "$orig" {
		t.Errorf("ReplyTarget: got %q", got)
	}

	plain := messageEvent(&event.MessageEventContent{MsgType: event.MsgText, Body: "not a reply"})
	if got := ReplyTarget(plain); got != "" {
		t.Errorf("expected empty for non-reply, got %q", got)
	}
}
