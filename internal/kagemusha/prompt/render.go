package prompt

import (
	"fmt"
	"strings"

	"github.com/bdobrica/Kagemusha/internal/kagemusha/llm"
)

// Render turns an imitation spec into the final generation request.
func (s *Spec) Render() llm.Request {
	var b strings.Builder

	fmt.Fprintf(&b, "Compose a reply in the style of user %s", s.TargetName)
	if s.TargetUsername != "" {
		fmt.Fprintf(&b, " (username: @%s)", s.TargetUsername)
	}
	b.WriteString(".\n\nSample messages (names removed):\n")
	for _, sample := range s.Samples {
		fmt.Fprintf(&b, "- %s\n", sample)
	}
	b.WriteString("\n")

	if s.Relationship != "" {
		fmt.Fprintf(&b, "Relationship with the addressee:\n%s\n\n", s.Relationship)
	}
	if len(s.Context) > 0 {
		b.WriteString("Dialogue context:\n")
		for _, msg := range s.Context {
			fmt.Fprintf(&b, "%s: %s\n", msg.Speaker, msg.Text)
		}
		b.WriteString("\n")
	}
	if len(s.Peers) > 0 {
		b.WriteString("Other participants and their manner:\n")
		for _, peer := range s.Peers {
			fmt.Fprintf(&b, "%s: %s\n", peer.Name, strings.Join(peer.Samples, " / "))
		}
		b.WriteString("\n")
	}
	if s.Requester != nil {
		fmt.Fprintf(&b, "The question comes from %s.", s.Requester.Name)
		if len(s.Requester.Samples) > 0 {
			fmt.Fprintf(&b, " They usually write like this: %s.", strings.Join(s.Requester.Samples, " / "))
		}
		b.WriteString("\n")
		if s.Requester.IsSamePerson {
			b.WriteString("They are asking themselves. Phrase the reply as an inner monologue" +
				" or an honest admission, without addressing themselves as another person.")
		} else {
			b.WriteString("You may address them by name or informally if that matches the samples.")
		}
		b.WriteString("\n\n")
	}
	b.WriteString(genderInstruction(s.Gender))
	if s.Notes != "" {
		fmt.Fprintf(&b, "Additional persona notes: %s\n\n", s.Notes)
	}

	if s.Starter != "" {
		fmt.Fprintf(&b, "Text to reply to: %s\n\n", s.Starter)
	} else {
		b.WriteString("No specific message to reply to: write something in character, prompted by the dialogue context.\n\n")
	}

	b.WriteString("Write a single reply as if the user themselves wrote it." +
		" Keep their tone, length, and sentence structure." +
		" Do not prefix the reply with their name or any label." +
		" Do not quote the samples or the context verbatim, convey the meaning in fresh words." +
		" Do not list multiple alternative replies." +
		" If the samples contain no emoji, add none." +
		" Use the characteristic words and intonation of this specific user, not a generic template." +
		" Make the reply lively and concrete." +
		" Build it as one coherent text with smooth transitions and a single consistent tone." +
		" Do not echo the other person's question back as the answer." +
		" If the question is short, accusatory, or provocative, expand the reply with the" +
		" user's typical details, emotions, or thoughts instead of a bare confirmation." +
		" Reply:")

	return llm.Request{System: systemPrompt, User: b.String()}
}

// Render turns a dialogue spec into the final generation request.
func (d *DialogueSpec) Render() llm.Request {
	topic := d.Topic
	if topic == "" {
		topic = "anything they like"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Compose a short dialogue between two chat participants. Topic: %s.\n\n", topic)
	b.WriteString("Participants and their styles:\n")
	b.WriteString(participantSection(d.A))
	b.WriteString("\n\n")
	b.WriteString(participantSection(d.B))
	b.WriteString("\n\n")

	if len(d.Peers) > 0 {
		b.WriteString("Other participants and their manner:\n")
		for _, peer := range d.Peers {
			fmt.Fprintf(&b, "%s: %s\n", peer.Name, strings.Join(peer.Samples, " / "))
		}
		b.WriteString("\n")
	}

	b.WriteString("Generate 4-6 exchanges, alternating between the participants." +
		" Each line uses the format 'Name: text'." +
		" Honor each participant's style and the stated relationship." +
		" The lines must sound natural and develop the topic.")

	return llm.Request{System: systemPrompt, User: b.String()}
}

const roastSystemPrompt = "You are the house comedian of a friendly chat room. You write playful roasts: " +
	"sharp and funny but affectionate, never cruel. Mock only the habits and quirks visible in the " +
	"person's own messages. Never touch looks, family, health, or anything the person cannot change. " +
	"Answer in the same language the samples are written in."

const compatibilitySystemPrompt = "You run a mock compatibility test for a chat room. Your verdicts are " +
	"playful pseudo-science with a wink, and every observation must be grounded in the participants' " +
	"actual messages. Answer in the same language the samples are written in."

// Render turns a roast spec into the final generation request.
func (r *RoastSpec) Render() llm.Request {
	var b strings.Builder

	fmt.Fprintf(&b, "Write a playful roast of user %s", r.TargetName)
	if r.TargetUsername != "" {
		fmt.Fprintf(&b, " (username: @%s)", r.TargetUsername)
	}
	b.WriteString(".\n\nTheir messages:\n")
	for _, sample := range r.Samples {
		fmt.Fprintf(&b, "- %s\n", sample)
	}
	b.WriteString("\n")
	if r.Notes != "" {
		fmt.Fprintf(&b, "Persona notes: %s\n\n", r.Notes)
	}

	b.WriteString("Build the roast entirely on what these messages reveal: pet phrases, obsessions," +
		" typing habits, the topics they circle back to." +
		" Three to five sentences, one coherent text, no bullet points." +
		" End on a warm note so the target laughs along instead of leaving the room." +
		" Roast:")

	return llm.Request{System: roastSystemPrompt, User: b.String()}
}

// Render turns a compatibility spec into the final generation request.
func (c *CompatibilitySpec) Render() llm.Request {
	var b strings.Builder

	b.WriteString("Run a compatibility test between two chat participants.\n\n")
	b.WriteString(participantSection(c.A))
	b.WriteString("\n\n")
	b.WriteString(participantSection(c.B))
	b.WriteString("\n\n")
	if c.Relationship != "" {
		fmt.Fprintf(&b, "What is known about how they interact:\n%s\n\n", c.Relationship)
	}

	b.WriteString("Give a compatibility percentage, then a short playful verdict explaining it" +
		" through the clash or harmony of their actual writing styles and topics," +
		" and finish with one humorous piece of advice for the pair." +
		" Keep the whole thing compact, a single block of text.")

	return llm.Request{System: compatibilitySystemPrompt, User: b.String()}
}

func participantSection(p Participant) string {
	var b strings.Builder
	b.WriteString(p.Name)
	if p.Username != "" {
		fmt.Fprintf(&b, " (@%s)", p.Username)
	}
	b.WriteString(":\nSpeech samples:\n")
	for _, sample := range p.Samples {
		fmt.Fprintf(&b, "- %s\n", sample)
	}
	if p.Relationship != "" {
		fmt.Fprintf(&b, "Relationship with the other participant: %s\n", p.Relationship)
	}
	if p.Gender != "" {
		fmt.Fprintf(&b, "Speaks in the %s grammatical person where the language marks it.\n", p.Gender)
	}
	if p.Notes != "" {
		fmt.Fprintf(&b, "Persona notes: %s\n", p.Notes)
	}
	return strings.TrimRight(b.String(), "\n")
}

func genderInstruction(gender string) string {
	switch gender {
	case "female":
		return "The user speaks in the feminine voice. Use feminine verb and pronoun forms where the language marks them.\n\n"
	case "male":
		return "The user speaks in the masculine voice. Use masculine verb and pronoun forms where the language marks them.\n\n"
	}
	return ""
}
