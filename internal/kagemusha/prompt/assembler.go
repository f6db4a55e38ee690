// Package prompt assembles generation requests from retained history: style
// samples, ambient chat context, relationship hints, and persona hints, all
// read in one pass before any network call is made.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bdobrica/Kagemusha/internal/kagemusha/persona"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/profile"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/store"
)

const systemPrompt = "You are an impersonation bot. Given excerpts of a user's chat messages, " +
	"you answer in that user's style. Preserve their tone, vocabulary, favorite expressions, " +
	"emoji habits, and typical message length. If the person jokes around or writes casually, " +
	"reflect that. Answer in the same language the samples are written in unless told otherwise. " +
	"Keep the style natural and relaxed, never stiff or robotic."

// ErrProfileNotReady marks a build attempt against a user whose window has not
// reached the profile threshold.
var ErrProfileNotReady = errors.New("profile not ready")

// NotReadyError carries the counts needed to phrase a friendly reply. It
// unwraps to ErrProfileNotReady.
type NotReadyError struct {
	Name string
	Have int
	Need int
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s has %d of %d required messages", e.Name, e.Have, e.Need)
}

func (e *NotReadyError) Unwrap() error {
	return ErrProfileNotReady
}

// Config holds the context and peer-profile knobs.
type Config struct {
	// ContextMessages is how many recent chat messages across all users are
	// included as dialogue context.
	ContextMessages int
	// PeerProfileCount caps how many auxiliary participants get a style
	// snippet in a dialogue prompt.
	PeerProfileCount int
	// PeerProfileSamples caps the snippets per auxiliary participant.
	PeerProfileSamples int
}

// DefaultConfig mirrors the documented configuration defaults.
var DefaultConfig = Config{
	ContextMessages:    6,
	PeerProfileCount:   3,
	PeerProfileSamples: 2,
}

// PeerProfile is an auxiliary participant's style snippet set.
type PeerProfile struct {
	Name    string
	Samples []string
}

// RequesterProfile describes who asked for the imitation.
type RequesterProfile struct {
	Name         string
	Samples      []string
	IsSamePerson bool
}

// Spec is a fully assembled imitation request. All store reads happen during
// Build; Render is pure so the caller holds no store access during the
// generation call.
type Spec struct {
	TargetName     string
	TargetUsername string
	Samples        []string
	Context        []store.ChatMessage
	Relationship   string
	Peers          []PeerProfile
	Requester      *RequesterProfile
	Gender         string
	Notes          string
	Starter        string
}

// RoastSpec is a fully assembled playful-roast request.
type RoastSpec struct {
	TargetName     string
	TargetUsername string
	Samples        []string
	Notes          string
}

// CompatibilitySpec is a fully assembled mock compatibility test between two
// users. Both sides reuse the dialogue Participant shape.
type CompatibilitySpec struct {
	A            Participant
	B            Participant
	Relationship string
}

// Participant is one side of a generated dialogue.
type Participant struct {
	Name         string
	Username     string
	Samples      []string
	Relationship string
	Gender       string
	Notes        string
}

// DialogueSpec is a fully assembled two-party dialogue request.
type DialogueSpec struct {
	A     Participant
	B     Participant
	Topic string
	Peers []PeerProfile
}

// Assembler builds Specs from the store, the profile gate, and persona hints.
type Assembler struct {
	store *store.Store
	gate  *profile.Gate
	hints *persona.Hints
	cfg   Config
}

// New creates an Assembler. Nil hints behave as an empty hint set.
func New(s *store.Store, gate *profile.Gate, hints *persona.Hints, cfg Config) *Assembler {
	if cfg.ContextMessages <= 0 {
		cfg.ContextMessages = DefaultConfig.ContextMessages
	}
	if cfg.PeerProfileCount < 0 {
		cfg.PeerProfileCount = DefaultConfig.PeerProfileCount
	}
	if cfg.PeerProfileSamples <= 0 {
		cfg.PeerProfileSamples = DefaultConfig.PeerProfileSamples
	}
	if hints == nil {
		hints = persona.Empty()
	}
	return &Assembler{store: s, gate: gate, hints: hints, cfg: cfg}
}

// BuildImitation assembles an imitation spec for target in the given chat.
// requester may be nil for trigger-driven imitations; seed is the text the
// imitated reply answers (empty means "say something in character").
func (a *Assembler) BuildImitation(chatID string, target, requester *store.User, seed string) (*Spec, error) {
	samples, err := a.readySamples(chatID, target)
	if err != nil {
		return nil, err
	}

	context, err := a.store.RecentChatMessages(chatID, a.cfg.ContextMessages)
	if err != nil {
		return nil, fmt.Errorf("build imitation: %w", err)
	}

	spec := &Spec{
		TargetName:     target.Name(),
		TargetUsername: strings.TrimPrefix(target.Username, "@"),
		Samples:        samples,
		Context:        context,
		Starter:        strings.TrimSpace(seed),
	}

	if hint, ok := a.hints.Lookup(target.Username); ok {
		spec.Gender = hint.Gender
		spec.Notes = hint.Notes
	}

	if requester != nil {
		spec.Relationship, err = a.relationshipHint(chatID, target.ID, requester.ID)
		if err != nil {
			return nil, fmt.Errorf("build imitation: %w", err)
		}
		reqSamples, err := a.store.RecentMessages(chatID, requester.ID, a.cfg.PeerProfileSamples)
		if err != nil {
			return nil, fmt.Errorf("build imitation: %w", err)
		}
		spec.Requester = &RequesterProfile{
			Name:         requester.Name(),
			Samples:      reqSamples,
			IsSamePerson: requester.ID == target.ID,
		}
	}

	return spec, nil
}

// BuildDialogue assembles a dialogue spec between two users, both of whom must
// have ready profiles. Auxiliary peer snippets come from the chat's most
// active other participants.
func (a *Assembler) BuildDialogue(chatID string, userA, userB *store.User, topic string) (*DialogueSpec, error) {
	samplesA, err := a.readySamples(chatID, userA)
	if err != nil {
		return nil, err
	}
	samplesB, err := a.readySamples(chatID, userB)
	if err != nil {
		return nil, err
	}

	relationship, err := a.relationshipHint(chatID, userA.ID, userB.ID)
	if err != nil {
		return nil, fmt.Errorf("build dialogue: %w", err)
	}

	peers, err := a.peerProfiles(chatID, []int64{userA.ID, userB.ID})
	if err != nil {
		return nil, fmt.Errorf("build dialogue: %w", err)
	}

	spec := &DialogueSpec{
		A:     a.participant(userA, samplesA, relationship),
		B:     a.participant(userB, samplesB, relationship),
		Topic: strings.TrimSpace(topic),
		Peers: peers,
	}
	return spec, nil
}

// BuildRoast assembles a roast spec for target in the given chat. The same
// readiness gate applies: there is no roasting someone with a thin window.
func (a *Assembler) BuildRoast(chatID string, target *store.User) (*RoastSpec, error) {
	samples, err := a.readySamples(chatID, target)
	if err != nil {
		return nil, err
	}

	spec := &RoastSpec{
		TargetName:     target.Name(),
		TargetUsername: strings.TrimPrefix(target.Username, "@"),
		Samples:        samples,
	}
	if hint, ok := a.hints.Lookup(target.Username); ok {
		spec.Notes = hint.Notes
	}
	return spec, nil
}

// BuildCompatibility assembles a mock compatibility test between two users,
// both of whom must have ready profiles.
func (a *Assembler) BuildCompatibility(chatID string, userA, userB *store.User) (*CompatibilitySpec, error) {
	samplesA, err := a.readySamples(chatID, userA)
	if err != nil {
		return nil, err
	}
	samplesB, err := a.readySamples(chatID, userB)
	if err != nil {
		return nil, err
	}

	relationship, err := a.relationshipHint(chatID, userA.ID, userB.ID)
	if err != nil {
		return nil, fmt.Errorf("build compatibility: %w", err)
	}

	return &CompatibilitySpec{
		A:            a.participant(userA, samplesA, ""),
		B:            a.participant(userB, samplesB, ""),
		Relationship: relationship,
	}, nil
}

func (a *Assembler) participant(u *store.User, samples []string, relationship string) Participant {
	p := Participant{
		Name:         u.Name(),
		Username:     strings.TrimPrefix(u.Username, "@"),
		Samples:      samples,
		Relationship: relationship,
	}
	if hint, ok := a.hints.Lookup(u.Username); ok {
		p.Gender = hint.Gender
		p.Notes = hint.Notes
	}
	return p
}

// readySamples draws a style sample after checking the profile threshold.
func (a *Assembler) readySamples(chatID string, u *store.User) ([]string, error) {
	count, err := a.store.CountMessages(chatID, u.ID)
	if err != nil {
		return nil, fmt.Errorf("profile check: %w", err)
	}
	if need := a.gate.Threshold(); count < need {
		return nil, &NotReadyError{Name: u.Name(), Have: count, Need: need}
	}
	samples, err := a.gate.Sample(chatID, u.ID)
	if err != nil {
		return nil, fmt.Errorf("draw sample: %w", err)
	}
	return samples, nil
}

func (a *Assembler) relationshipHint(chatID string, userA, userB int64) (string, error) {
	link, err := a.store.GetPeerLink(chatID, userA, userB)
	if err != nil {
		return "", err
	}
	if link == nil {
		return "", nil
	}
	return link.Summary, nil
}

func (a *Assembler) peerProfiles(chatID string, exclude []int64) ([]PeerProfile, error) {
	if a.cfg.PeerProfileCount == 0 {
		return nil, nil
	}
	top, err := a.store.TopParticipants(chatID, exclude, a.cfg.PeerProfileCount)
	if err != nil {
		return nil, err
	}
	var peers []PeerProfile
	for _, pc := range top {
		samples, err := a.store.RecentMessages(chatID, pc.UserID, a.cfg.PeerProfileSamples)
		if err != nil {
			return nil, err
		}
		if len(samples) == 0 {
			continue
		}
		peers = append(peers, PeerProfile{
			Name:    speakerLabel(pc.Username, pc.DisplayName),
			Samples: samples,
		})
	}
	return peers, nil
}

func speakerLabel(username, displayName string) string {
	if displayName != "" {
		return displayName
	}
	if username != "" {
		return "@" + strings.TrimPrefix(username, "@")
	}
	return "unknown user"
}
