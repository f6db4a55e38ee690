// Package app provides the main Kagemusha application
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"maunium.net/go/mautrix/event"

	"github.com/bdobrica/Kagemusha/common/retry"
	"github.com/bdobrica/Kagemusha/common/trace"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/commands"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/llm"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/matrix"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/peers"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/persona"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/profile"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/prompt"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/store"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/trigger"
)

// Config holds application configuration
type Config struct {
	DatabasePath string
	Matrix       matrix.Config
	LLM          llm.Config

	// PersonasPath is an optional YAML file with per-user persona hints.
	PersonasPath string

	// AutoImitateProbability is the chance of a spontaneous imitation when a
	// ready user is mentioned and auto-imitation is enabled for the room.
	AutoImitateProbability float64

	Limits  store.Limits
	Profile profile.Config
	Prompt  prompt.Config
	Peers   peers.Config

	// PeersTickInterval is the cadence of the relationship reanalysis loop.
	// Defaults to 15 minutes when zero.
	PeersTickInterval time.Duration

	// GenerationTimeout bounds one imitation or dialogue generation,
	// including the bounded retry. Defaults to 2 minutes when zero.
	GenerationTimeout time.Duration
}

// App is the main Kagemusha application
type App struct {
	config    *Config
	store     *store.Store
	matrix    *matrix.Client
	gate      *profile.Gate
	trigger   *trigger.Decider
	tracker   *peers.Tracker
	assembler *prompt.Assembler
	provider  llm.Provider
	router    *commands.Router
	handlers  *commands.Handlers
	retryCfg  retry.Config

	// userIDs caches Matrix ID → internal ID so the display-name lookup runs
	// once per user, not once per message.
	mu      sync.Mutex
	userIDs map[string]int64
}

// New creates a new Kagemusha application
func New(config *Config) (*App, error) {
	slog.Info("opening database", "path", config.DatabasePath)
	st, err := store.New(config.DatabasePath, config.Limits)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Inject the DB so the client can persist the sync token across restarts.
	matrixCfg := config.Matrix
	matrixCfg.DB = st.DB()
	slog.Info("connecting to Matrix", "homeserver", matrixCfg.Homeserver)
	matrixClient, err := matrix.New(&matrixCfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize Matrix client: %w", err)
	}

	hints := persona.Empty()
	if config.PersonasPath != "" {
		hints, err = persona.Load(config.PersonasPath)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to load personas: %w", err)
		}
		slog.Info("persona hints loaded", "path", config.PersonasPath, "count", hints.Len())
	}

	gate := profile.NewGate(st, config.Profile, nil)
	provider := llm.New(config.LLM)
	assembler := prompt.New(st, gate, hints, config.Prompt)
	decider := trigger.New(gate, config.AutoImitateProbability, nil)

	analyzer := peers.NewAnalyzer(provider)
	tracker := peers.NewTracker(st, analyzer, config.Peers)

	botName := localpart(config.Matrix.UserID)
	router := commands.NewRouter(botName)
	handlers := commands.NewHandlers(st, gate, assembler, provider)
	handlers.RegisterAll(router)

	retryCfg := retry.DefaultConfig
	retryCfg.ShouldRetry = llm.IsTransient

	return &App{
		config:    config,
		store:     st,
		matrix:    matrixClient,
		gate:      gate,
		trigger:   decider,
		tracker:   tracker,
		assembler: assembler,
		provider:  provider,
		router:    router,
		handlers:  handlers,
		retryCfg:  retryCfg,
		userIDs:   make(map[string]int64),
	}, nil
}

// Run starts the application and blocks until an interrupt signal arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("starting Matrix sync")
	if err := a.matrix.Start(ctx, a.handleMessage); err != nil {
		return fmt.Errorf("failed to start Matrix client: %w", err)
	}

	tickInterval := a.config.PeersTickInterval
	if tickInterval <= 0 {
		tickInterval = 15 * time.Minute
	}
	go a.tracker.Run(ctx, tickInterval)

	slog.Info("Kagemusha is running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	return nil
}

// Stop stops the application
func (a *App) Stop() {
	slog.Info("stopping Matrix client")
	a.matrix.Stop()

	slog.Info("closing database")
	a.store.Close()
}

// handleMessage processes one inbound room message: either a command or a
// capture candidate that may also fire an automatic imitation.
func (a *App) handleMessage(ctx context.Context, evt *event.Event) {
	msgContent := evt.Content.AsMessage()
	if msgContent == nil {
		return
	}
	text := msgContent.Body

	if commands.IsCommand(text) {
		ctx = trace.WithTraceID(ctx, trace.GenerateID())
		response, err := a.router.Route(ctx, text, evt)
		if err != nil {
			if errors.Is(err, commands.ErrNotACommand) {
				return
			}
			response = fmt.Sprintf("❌ %s", err)
		}
		if response != "" {
			if err := a.matrix.ReplyMarkdown(evt.RoomID.String(), evt.ID.String(), response); err != nil {
				slog.Error("failed to send response", "room", evt.RoomID.String(), "err", err)
			}
		}
		return
	}

	a.capture(ctx, evt, text)
}

// capture runs the ingestion path for an ordinary chat message.
func (a *App) capture(ctx context.Context, evt *event.Event, text string) {
	if !shouldCapture(text) {
		return
	}

	chatID := evt.RoomID.String()
	senderID, err := a.resolveUser(evt.Sender.String())
	if err != nil {
		slog.Error("failed to resolve sender", "sender", evt.Sender.String(), "err", err)
		return
	}

	stored, err := a.store.IngestMessage(chatID, senderID, text, evt.Timestamp/1000)
	if err != nil {
		slog.Error("failed to ingest message", "chat", chatID, "err", err)
		return
	}
	if stored {
		slog.Debug("message captured", "chat", chatID, "user", senderID)
	}

	a.recordInteractions(ctx, evt, chatID, senderID)

	a.maybeAutoImitate(evt, chatID, senderID)
}

// recordInteractions notes reply and mention co-occurrences for the
// relationship tracker.
func (a *App) recordInteractions(ctx context.Context, evt *event.Event, chatID string, senderID int64) {
	if target := matrix.ReplyTarget(evt); target != "" {
		repliedTo, err := a.matrix.EventSender(ctx, chatID, target)
		if err != nil {
			slog.Debug("could not resolve replied-to event", "event", target, "err", err)
		} else if repliedTo != a.matrix.GetUserID() {
			otherID, err := a.resolveUser(repliedTo)
			if err == nil {
				if err := a.tracker.RecordInteraction(chatID, senderID, otherID); err != nil {
					slog.Error("failed to record interaction", "chat", chatID, "err", err)
				}
			}
		}
	}

	for _, mentioned := range matrix.Mentions(evt) {
		if mentioned == a.matrix.GetUserID() || mentioned == evt.Sender.String() {
			continue
		}
		otherID, err := a.lookupUser(mentioned)
		if err != nil {
			continue // never seen them write, nothing to link
		}
		if err := a.tracker.RecordInteraction(chatID, senderID, otherID); err != nil {
			slog.Error("failed to record interaction", "chat", chatID, "err", err)
		}
	}
}

// maybeAutoImitate runs the trigger and, when it fires, generates the
// imitation in a bounded goroutine so a slow generation never holds the event
// loop.
func (a *App) maybeAutoImitate(evt *event.Event, chatID string, senderID int64) {
	enabled, err := a.store.AutoImitateEnabled(chatID)
	if err != nil {
		slog.Error("failed to read auto-imitate setting", "chat", chatID, "err", err)
		return
	}
	if !enabled {
		return
	}

	var mentionedIDs []int64
	for _, mentioned := range matrix.Mentions(evt) {
		if mentioned == a.matrix.GetUserID() {
			continue
		}
		if otherID, err := a.lookupUser(mentioned); err == nil {
			mentionedIDs = append(mentionedIDs, otherID)
		}
	}

	targetID, fire, err := a.trigger.Decide(chatID, senderID, mentionedIDs)
	if err != nil {
		slog.Error("trigger decision failed", "chat", chatID, "err", err)
		return
	}
	if !fire {
		return
	}

	timeout := a.config.GenerationTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		ctx = trace.WithTraceID(ctx, trace.GenerateID())

		if err := a.autoImitate(ctx, evt, chatID, targetID, senderID); err != nil {
			slog.Error("auto-imitation failed", "chat", chatID, "target", targetID,
				"trace_id", trace.FromContext(ctx), "err", err)
		}
	}()
}

func (a *App) autoImitate(ctx context.Context, evt *event.Event, chatID string, targetID, senderID int64) error {
	target, err := a.store.GetUserByID(targetID)
	if err != nil {
		return err
	}
	requester, err := a.store.GetUserByID(senderID)
	if err != nil {
		return err
	}

	seed := ""
	if content := evt.Content.AsMessage(); content != nil {
		seed = stripMentions(content.Body, matrix.Mentions(evt))
	}

	spec, err := a.assembler.BuildImitation(chatID, target, requester, seed)
	if err != nil {
		// The readiness check already passed; a race with /forgetme can still
		// land here. Stay quiet either way.
		if errors.Is(err, prompt.ErrProfileNotReady) {
			return nil
		}
		return err
	}

	req := spec.Render()
	var reply string
	err = retry.Do(ctx, a.retryCfg, func() error {
		var err error
		reply, err = a.provider.Complete(ctx, req)
		return err
	})
	if err != nil {
		return err
	}

	return a.matrix.Reply(chatID, evt.ID.String(), reply)
}

// resolveUser returns the internal ID for a Matrix user, creating the row on
// first sight. The display name is fetched once and cached via the users
// table afterwards.
func (a *App) resolveUser(matrixID string) (int64, error) {
	a.mu.Lock()
	if id, ok := a.userIDs[matrixID]; ok {
		a.mu.Unlock()
		return id, nil
	}
	a.mu.Unlock()

	displayName, err := a.matrix.GetDisplayName(matrixID)
	if err != nil {
		slog.Debug("could not fetch display name", "user", matrixID, "err", err)
		displayName = ""
	}

	id, err := a.store.UpsertUser(matrixID, localpart(matrixID), displayName)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	a.userIDs[matrixID] = id
	a.mu.Unlock()
	return id, nil
}

// lookupUser resolves a Matrix ID to an internal ID without creating a row.
// Mentioned users who never wrote anything stay unknown.
func (a *App) lookupUser(matrixID string) (int64, error) {
	a.mu.Lock()
	if id, ok := a.userIDs[matrixID]; ok {
		a.mu.Unlock()
		return id, nil
	}
	a.mu.Unlock()

	u, err := a.store.GetUserByMatrixID(matrixID)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	a.userIDs[matrixID] = u.ID
	a.mu.Unlock()
	return u.ID, nil
}

// stripMentions removes mention text from a message so the imitated reply
// answers the remaining words, not the name-drop itself. Both the full Matrix
// ID and the @localpart form are removed for every mentioned user.
func stripMentions(text string, mentions []string) string {
	for _, matrixID := range mentions {
		text = strings.ReplaceAll(text, matrixID, "")
		if lp := localpart(matrixID); lp != "" {
			text = strings.ReplaceAll(text, "@"+lp, "")
		}
	}
	return strings.Join(strings.Fields(text), " ")
}

// shouldCapture filters out messages that would pollute a style profile:
// command-like prefixes and messages carrying links. The token-count floor is
// enforced by the store on ingestion.
func shouldCapture(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	switch trimmed[0] {
	case '/', '!', '.':
		return false
	}
	lowered := strings.ToLower(trimmed)
	if strings.Contains(lowered, "http://") || strings.Contains(lowered, "https://") {
		return false
	}
	return true
}

// localpart extracts the local part of a Matrix user ID:
// "@alice:example.org" → "alice".
func localpart(matrixID string) string {
	s := strings.TrimPrefix(matrixID, "@")
	if colon := strings.Index(s, ":"); colon >= 0 {
		return s[:colon]
	}
	return s
}
