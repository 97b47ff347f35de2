package main

import (
	"context"
	"fmt"
	"strings"
)

// NextSpeaker returns the role that speaks after lastSpeakerID, strict
// round-robin with wraparound. With no prior speaker (or an unknown id) the
// first configured role speaks. Pure function; scheduling state lives in the
// caller's loop.
func NextSpeaker(roles []AgentRole, lastSpeakerID string) AgentRole {
	if len(roles) == 0 {
		return AgentRole{}
	}
	if lastSpeakerID == "" {
		return roles[0]
	}
	for i, role := range roles {
		if role.ID == lastSpeakerID {
			return roles[(i+1)%len(roles)]
		}
	}
	return roles[0]
}

// FormatHistory renders a transcript as role-tagged lines for turn prompts.
func FormatHistory(messages []DiscussionMessage) string {
	var sb strings.Builder
	for _, msg := range messages {
		sb.WriteString(fmt.Sprintf("[%s]: %s\n", msg.SpeakerName, msg.Content))
	}
	return sb.String()
}

// BuildTurnSystemPrompt constructs the system prompt for one speaker's turn:
// who they are, who else is at the table, brevity constraints, their persona,
// and any pending user instruction injected by an intervention.
func BuildTurnSystemPrompt(speaker AgentRole, allRoles []AgentRole, topic, topicContext, instruction string) string {
	var others []string
	for _, role := range allRoles {
		if role.ID != speaker.ID {
			others = append(others, role.Name)
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are %s, one participant in a roundtable discussion.\n", speaker.Name))
	sb.WriteString(fmt.Sprintf("Topic: %s\n", topic))
	if topicContext != "" {
		sb.WriteString(fmt.Sprintf("Background context:\n%s\n", topicContext))
	}
	if len(others) > 0 {
		sb.WriteString(fmt.Sprintf("The other participants are: %s.\n", strings.Join(others, ", ")))
	}
	sb.WriteString("Keep your turn short and conversational: a few sentences, no headings, no bullet lists. ")
	sb.WriteString("React to what was said before you rather than restating it.\n")
	if speaker.Persona != "" {
		sb.WriteString("\n" + speaker.Persona + "\n")
	}
	if instruction != "" {
		sb.WriteString(fmt.Sprintf("\nThe user has interjected with the following instruction. Address it in your next turn:\n%s\n", instruction))
	}
	return sb.String()
}

// RunTurn executes a single roundtable turn for the given speaker over the
// supplied (already windowed) history. Returns the speaker's contribution, or
// an error the caller can choose to skip, retry, or abort on. Turns within one
// discussion never overlap; every turn's prompt depends on all completed turns.
func RunTurn(ctx context.Context, speaker AgentRole, history []DiscussionMessage, allRoles []AgentRole, topic, topicContext, instruction string) (string, error) {
	systemPrompt := BuildTurnSystemPrompt(speaker, allRoles, topic, topicContext, instruction)

	userContent := "The discussion so far:\n\n" + FormatHistory(history) + "\nIt is now your turn to speak."
	if len(history) == 0 {
		userContent = "You are opening the discussion. Give your initial position on the topic."
	}

	messages := []OpenRouterMessage{
		{Role: "user", Content: userContent},
	}

	response, err := QueryModel(ctx, speaker.Binding.Model, messages, systemPrompt, ModelQueryTimeout)
	if err != nil {
		return "", fmt.Errorf("turn failed for %s: %w", speaker.Name, err)
	}

	return strings.TrimSpace(response.Content), nil
}
