package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"maunium.net/go/mautrix/event"

	"github.com/bdobrica/Kagemusha/common/retry"
	"github.com/bdobrica/Kagemusha/common/trace"
	"github.com/bdobrica/Kagemusha/common/version"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/llm"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/profile"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/prompt"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/store"
)

const apology = "Something went wrong on my side, please try again in a bit."

// Handlers holds all command handlers and dependencies
type Handlers struct {
	store     *store.Store
	gate      *profile.Gate
	assembler *prompt.Assembler
	provider  llm.Provider
	retryCfg  retry.Config
}

// NewHandlers creates a new Handlers instance
func NewHandlers(s *store.Store, gate *profile.Gate, assembler *prompt.Assembler, provider llm.Provider) *Handlers {
	cfg := retry.DefaultConfig
	cfg.ShouldRetry = llm.IsTransient
	return &Handlers{store: s, gate: gate, assembler: assembler, provider: provider, retryCfg: cfg}
}

// RegisterAll wires every handler into the router.
func (h *Handlers) RegisterAll(r *Router) {
	r.Register("imitate", h.HandleImitate)
	r.Register("imitate_profiles", h.HandleProfiles)
	r.Register("auto_imitate_on", h.HandleAutoImitateOn)
	r.Register("auto_imitate_off", h.HandleAutoImitateOff)
	r.Register("dialogue", h.HandleDialogue)
	r.Register("roast", h.HandleRoast)
	r.Register("compatibility", h.HandleCompatibility)
	r.Register("forgetme", h.HandleForgetMe)
	r.Register("help", h.HandleHelp)
	r.Register("version", h.HandleVersion)
}

// HandleHelp shows available commands
func (h *Handlers) HandleHelp(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	help := `**Kagemusha**

I learn how people in this room write and answer in their voice.

**Commands:**
• /imitate @user [text] - Reply to the text in @user's style
• /imitate_profiles - Show who I can imitate and who needs more history
• /dialogue @user1 @user2 [topic] - Generate a short dialogue between two users
• /roast @user - Playfully roast @user based on how they write
• /compatibility @user1 @user2 - Run a mock compatibility test for two users
• /auto_imitate_on - Enable spontaneous imitation when someone is mentioned
• /auto_imitate_off - Disable spontaneous imitation
• /forgetme - Delete everything I have stored about you
• /help - Show this help message
`
	return help, nil
}

// HandleVersion shows version information
func (h *Handlers) HandleVersion(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	return fmt.Sprintf("**Kagemusha**\nVersion: %s\nCommit: %s\nBuild Time: %s",
		version.Version, version.GitCommit, version.BuildTime), nil
}

// HandleImitate generates one reply in the target user's style.
// Usage: /imitate @user [text to reply to]
func (h *Handlers) HandleImitate(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	username, ok := cmd.GetArg(0)
	if !ok {
		return "Usage: /imitate @user [text to reply to]", nil
	}

	target, err := h.store.GetUserByUsername(username)
	if errors.Is(err, store.ErrUserNotFound) {
		return fmt.Sprintf("I don't know %s yet. They need to write something here first.", username), nil
	}
	if err != nil {
		return h.fail(ctx, "imitate", err)
	}

	// The requester may be unknown when they never wrote a storable message.
	requester, err := h.store.GetUserByMatrixID(evt.Sender.String())
	if err != nil && !errors.Is(err, store.ErrUserNotFound) {
		return h.fail(ctx, "imitate", err)
	}

	spec, err := h.assembler.BuildImitation(evt.RoomID.String(), target, requester, cmd.Tail(1))
	if err != nil {
		if reply, ok := notReadyReply(err); ok {
			return reply, nil
		}
		return h.fail(ctx, "imitate", err)
	}

	return h.generate(ctx, "imitate", spec.Render())
}

// HandleDialogue generates a short dialogue between two users.
// Usage: /dialogue @user1 @user2 [topic]
func (h *Handlers) HandleDialogue(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	nameA, okA := cmd.GetArg(0)
	nameB, okB := cmd.GetArg(1)
	if !okA || !okB {
		return "Usage: /dialogue @user1 @user2 [topic]", nil
	}

	userA, err := h.store.GetUserByUsername(nameA)
	if errors.Is(err, store.ErrUserNotFound) {
		return fmt.Sprintf("I don't know %s yet.", nameA), nil
	}
	if err != nil {
		return h.fail(ctx, "dialogue", err)
	}
	userB, err := h.store.GetUserByUsername(nameB)
	if errors.Is(err, store.ErrUserNotFound) {
		return fmt.Sprintf("I don't know %s yet.", nameB), nil
	}
	if err != nil {
		return h.fail(ctx, "dialogue", err)
	}

	spec, err := h.assembler.BuildDialogue(evt.RoomID.String(), userA, userB, cmd.Tail(2))
	if err != nil {
		if reply, ok := notReadyReply(err); ok {
			return reply, nil
		}
		return h.fail(ctx, "dialogue", err)
	}

	return h.generate(ctx, "dialogue", spec.Render())
}

// HandleRoast generates a playful roast of the target user.
// Usage: /roast @user
func (h *Handlers) HandleRoast(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	username, ok := cmd.GetArg(0)
	if !ok {
		return "Usage: /roast @user", nil
	}

	target, err := h.store.GetUserByUsername(username)
	if errors.Is(err, store.ErrUserNotFound) {
		return fmt.Sprintf("I don't know %s yet. They need to write something here first.", username), nil
	}
	if err != nil {
		return h.fail(ctx, "roast", err)
	}

	spec, err := h.assembler.BuildRoast(evt.RoomID.String(), target)
	if err != nil {
		if reply, ok := notReadyReply(err); ok {
			return reply, nil
		}
		return h.fail(ctx, "roast", err)
	}

	text, err := h.generate(ctx, "roast", spec.Render())
	if err != nil || text == apology {
		return text, err
	}
	return fmt.Sprintf("🔥 A roast for %s:\n\n%s", target.Name(), text), nil
}

// HandleCompatibility runs a mock compatibility test for two users.
// Usage: /compatibility @user1 @user2
func (h *Handlers) HandleCompatibility(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	nameA, okA := cmd.GetArg(0)
	nameB, okB := cmd.GetArg(1)
	if !okA || !okB {
		return "Usage: /compatibility @user1 @user2", nil
	}

	userA, err := h.store.GetUserByUsername(nameA)
	if errors.Is(err, store.ErrUserNotFound) {
		return fmt.Sprintf("I don't know %s yet.", nameA), nil
	}
	if err != nil {
		return h.fail(ctx, "compatibility", err)
	}
	userB, err := h.store.GetUserByUsername(nameB)
	if errors.Is(err, store.ErrUserNotFound) {
		return fmt.Sprintf("I don't know %s yet.", nameB), nil
	}
	if err != nil {
		return h.fail(ctx, "compatibility", err)
	}

	if userA.ID == userB.ID {
		return "Pick two different users. Self-compatibility is always 100%.", nil
	}

	spec, err := h.assembler.BuildCompatibility(evt.RoomID.String(), userA, userB)
	if err != nil {
		if reply, ok := notReadyReply(err); ok {
			return reply, nil
		}
		return h.fail(ctx, "compatibility", err)
	}

	text, err := h.generate(ctx, "compatibility", spec.Render())
	if err != nil || text == apology {
		return text, err
	}
	return fmt.Sprintf("💕 Compatibility test: %s & %s\n\n%s", userA.Name(), userB.Name(), text), nil
}

// HandleProfiles lists everyone with retained history in the room.
func (h *Handlers) HandleProfiles(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	report, err := h.gate.StatusReport(evt.RoomID.String())
	if err != nil {
		return h.fail(ctx, "imitate_profiles", err)
	}
	if len(report) == 0 {
		return "I have no message history in this room yet.", nil
	}

	var b strings.Builder
	b.WriteString("**Profiles in this room:**\n")
	for _, status := range report {
		state := fmt.Sprintf("needs %d more", h.gate.Threshold()-status.MessageCount)
		if status.Ready {
			state = "ready"
		}
		fmt.Fprintf(&b, "• %s — %d messages (%s)\n",
			statusName(status), status.MessageCount, state)
	}
	return b.String(), nil
}

// HandleAutoImitateOn enables spontaneous imitation in the room.
func (h *Handlers) HandleAutoImitateOn(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	if err := h.store.SetAutoImitate(evt.RoomID.String(), true); err != nil {
		return h.fail(ctx, "auto_imitate_on", err)
	}
	return "Auto-imitation is on. I may chime in when someone with a ready profile is mentioned.", nil
}

// HandleAutoImitateOff disables spontaneous imitation in the room.
func (h *Handlers) HandleAutoImitateOff(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	if err := h.store.SetAutoImitate(evt.RoomID.String(), false); err != nil {
		return h.fail(ctx, "auto_imitate_off", err)
	}
	return "Auto-imitation is off.", nil
}

// HandleForgetMe deletes everything stored about the sender, in every room.
func (h *Handlers) HandleForgetMe(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	user, err := h.store.GetUserByMatrixID(evt.Sender.String())
	if errors.Is(err, store.ErrUserNotFound) {
		return "I have nothing stored about you.", nil
	}
	if err != nil {
		return h.fail(ctx, "forgetme", err)
	}

	deleted, err := h.store.PurgeUser(user.ID)
	if err != nil {
		return h.fail(ctx, "forgetme", err)
	}
	slog.Info("purged user on request", "matrix_id", evt.Sender.String(), "messages", deleted)
	return fmt.Sprintf("Done. I deleted %d of your messages and everything derived from them.", deleted), nil
}

// generate runs one generation call with a bounded retry on transient errors.
func (h *Handlers) generate(ctx context.Context, command string, req llm.Request) (string, error) {
	var text string
	err := retry.Do(ctx, h.retryCfg, func() error {
		var err error
		text, err = h.provider.Complete(ctx, req)
		return err
	})
	if err != nil {
		return h.fail(ctx, command, err)
	}
	return text, nil
}

// fail logs an infrastructure error with a trace ID and returns the generic
// apology. Validation and state problems never reach here.
func (h *Handlers) fail(ctx context.Context, command string, err error) (string, error) {
	traceID := trace.FromContext(ctx)
	if traceID == "" {
		traceID = trace.GenerateID()
	}
	slog.Error("command failed", "command", command, "trace_id", traceID, "err", err)
	return apology, nil
}

func notReadyReply(err error) (string, bool) {
	var notReady *prompt.NotReadyError
	if !errors.As(err, &notReady) {
		return "", false
	}
	return fmt.Sprintf("%s doesn't have enough history yet: %d of %d messages needed.",
		notReady.Name, notReady.Have, notReady.Need), true
}

func statusName(s profile.Status) string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	if s.Username != "" {
		return "@" + strings.TrimPrefix(s.Username, "@")
	}
	return "unknown user"
}
