package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Discussion owns one DiscussionState and drives it through its lifecycle.
// All state mutation happens behind the mutex; the event-producing loop is the
// single writer of messages, while Intervene and Terminate may be called from
// other goroutines at any point while the discussion is running.
type Discussion struct {
	mu                 sync.Mutex
	state              DiscussionState
	cancel             context.CancelFunc
	pendingInstruction string
	started            bool
}

// NewDiscussion validates the config, resolves every role's model binding once,
// and returns a running (but not yet started) discussion. A role that cannot
// be resolved is a creation-time error; a misconfigured role cannot make
// progress, so this is fatal rather than retryable.
func NewDiscussion(id string, config DiscussionConfig) (*Discussion, error) {
	if config.Topic == "" {
		return nil, fmt.Errorf("discussion topic is required")
	}
	if len(config.Roles) == 0 {
		return nil, fmt.Errorf("discussion requires at least one role")
	}
	for i, role := range config.Roles {
		if err := resolveBinding(role.Binding); err != nil {
			return nil, fmt.Errorf("role %q (index %d): %w", role.Name, i, err)
		}
		if role.ID == "" {
			return nil, fmt.Errorf("role %q (index %d) has no id", role.Name, i)
		}
	}

	if config.MaxRounds <= 0 {
		config.MaxRounds = DefaultMaxRounds
	}
	if config.ConsensusThreshold <= 0 {
		config.ConsensusThreshold = DefaultConsensusThreshold
	}
	if config.ConsensusMode == "" {
		config.ConsensusMode = DefaultConsensusMode
	}

	return &Discussion{
		state: DiscussionState{
			ID:                  id,
			Config:              config,
			CurrentRound:        1,
			CurrentSpeakerIndex: 0,
			Messages:            []DiscussionMessage{},
			Status:              StatusRunning,
			Interventions:       []UserIntervention{},
			CreatedAt:           time.Now().UTC(),
		},
	}, nil
}

// resolveBinding checks that a role's provider/model pair maps to a model we
// can actually invoke. Bindings are resolved here once, never per turn.
func resolveBinding(binding ModelBinding) error {
	if binding.Model == "" {
		return fmt.Errorf("model binding has no model")
	}
	switch binding.Provider {
	case ProviderOpenRouter, "":
		return nil
	default:
		return fmt.Errorf("unknown model provider %q", binding.Provider)
	}
}

// Snapshot returns a copy of the current state for API reads.
func (d *Discussion) Snapshot() DiscussionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *Discussion) snapshotLocked() DiscussionState {
	snapshot := d.state
	snapshot.Messages = append([]DiscussionMessage(nil), d.state.Messages...)
	snapshot.Interventions = append([]UserIntervention(nil), d.state.Interventions...)
	return snapshot
}

// Start begins producing the discussion's event sequence. The sequence is
// lazy (events are produced as the consumer reads them) and non-restartable:
// a second Start on the same discussion is an error. The returned channel is
// closed after the terminal event.
func (d *Discussion) Start(ctx context.Context) (<-chan DiscussionEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return nil, fmt.Errorf("discussion %s already started", d.state.ID)
	}
	if d.state.Status != StatusRunning {
		return nil, fmt.Errorf("discussion %s is %s", d.state.ID, d.state.Status)
	}
	d.started = true

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	events := make(chan DiscussionEvent)
	go d.run(runCtx, events)
	return events, nil
}

// run is the single-threaded event loop: one model invocation in flight at a
// time, because every turn is causally dependent on the full prior history.
func (d *Discussion) run(ctx context.Context, events chan<- DiscussionEvent) {
	defer close(events)
	defer d.cancel()

	events <- DiscussionEvent{Type: EventDiscussionStart}

	for {
		d.mu.Lock()

		if d.state.Status == StatusTerminated {
			d.mu.Unlock()
			events <- DiscussionEvent{Type: EventDiscussionTerminated}
			return
		}

		if d.state.CurrentRound > d.state.Config.MaxRounds {
			d.completeLocked(ReasonMaxRounds)
			d.mu.Unlock()
			events <- DiscussionEvent{Type: EventDiscussionComplete, Reason: ReasonMaxRounds}
			return
		}

		// Consensus is evaluated between turns once the transcript is long
		// enough to be meaningful.
		if len(d.state.Messages) >= ConsensusMinMessages {
			messages := append([]DiscussionMessage(nil), d.state.Messages...)
			threshold := d.state.Config.ConsensusThreshold
			mode := d.state.Config.ConsensusMode
			d.mu.Unlock()

			result := EvaluateConsensus(ctx, messages, threshold, mode)

			d.mu.Lock()
			if d.state.Status == StatusTerminated {
				d.mu.Unlock()
				events <- DiscussionEvent{Type: EventDiscussionTerminated}
				return
			}
			if result.Detected {
				d.state.ConsensusDetected = true
				d.completeLocked(ReasonConsensus)
				d.mu.Unlock()
				events <- DiscussionEvent{Type: EventDiscussionComplete, Reason: ReasonConsensus, Consensus: &result}
				return
			}
		}

		if d.state.CurrentSpeakerIndex >= len(d.state.Config.Roles) {
			// Defensive: roles are fixed at creation, so this is unreachable
			// unless state was corrupted externally.
			d.state.CurrentSpeakerIndex = 0
		}
		speaker := d.state.Config.Roles[d.state.CurrentSpeakerIndex]
		round := d.state.CurrentRound
		topic := d.state.Config.Topic
		topicContext := d.state.Config.Context
		roles := append([]AgentRole(nil), d.state.Config.Roles...)
		history := windowMessages(d.state.Messages, HistoryWindow)
		instruction := d.pendingInstruction
		d.pendingInstruction = ""
		d.mu.Unlock()

		events <- DiscussionEvent{Type: EventRoundStart, Round: round, SpeakerID: speaker.ID}

		// The only model call in flight for this discussion. Terminate cancels
		// ctx, which aborts the underlying HTTP request.
		content, err := RunTurn(ctx, speaker, history, roles, topic, topicContext, instruction)

		d.mu.Lock()
		if d.state.Status == StatusTerminated {
			d.mu.Unlock()
			events <- DiscussionEvent{Type: EventDiscussionTerminated}
			return
		}

		if err != nil {
			// A failed turn is skipped, not retried; the discussion proceeds
			// to the next speaker and the failed turn never enters history.
			log.Printf("Discussion %s: turn failed for role %s: %v", d.state.ID, speaker.ID, err)
			wrapped := d.advanceLocked()
			d.mu.Unlock()
			events <- DiscussionEvent{Type: EventError, Round: round, SpeakerID: speaker.ID, Error: err.Error()}
			if wrapped {
				events <- DiscussionEvent{Type: EventRoundComplete, Round: round}
			}
			continue
		}

		msg := DiscussionMessage{
			ID:          uuid.New().String(),
			RoleID:      speaker.ID,
			SpeakerName: speaker.Name,
			Model:       speaker.Binding.Model,
			Content:     content,
			Round:       round,
			Timestamp:   time.Now().UTC(),
		}
		d.state.Messages = append(d.state.Messages, msg)
		wrapped := d.advanceLocked()
		d.mu.Unlock()

		events <- DiscussionEvent{Type: EventMessage, Round: round, SpeakerID: speaker.ID, Message: &msg}
		if wrapped {
			events <- DiscussionEvent{Type: EventRoundComplete, Round: round}
		}
	}
}

// advanceLocked moves to the next speaker, incrementing the round on
// wraparound. Returns true when a round just completed. Caller holds the lock.
func (d *Discussion) advanceLocked() bool {
	d.state.CurrentSpeakerIndex = (d.state.CurrentSpeakerIndex + 1) % len(d.state.Config.Roles)
	if d.state.CurrentSpeakerIndex == 0 {
		d.state.CurrentRound++
		return true
	}
	return false
}

// completeLocked transitions running -> completed. Caller holds the lock.
func (d *Discussion) completeLocked(reason string) {
	if d.state.Status != StatusRunning {
		return
	}
	d.state.Status = StatusCompleted
	d.state.CompletionReason = reason
	now := time.Now().UTC()
	d.state.CompletedAt = &now
}

// Intervene records a user intervention and steers the currently active role
// by injecting the content as an extra instruction before its next turn.
// Turn order and round count are unchanged. Only valid while running.
func (d *Discussion) Intervene(interventionType InterventionType, content string) (*UserIntervention, error) {
	switch interventionType {
	case InterventionRedirect, InterventionCorrection, InterventionDeepDive, InterventionTerminate:
	default:
		return nil, fmt.Errorf("unknown intervention type %q", interventionType)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state.Status != StatusRunning {
		return nil, fmt.Errorf("discussion %s is %s, interventions are only valid while running", d.state.ID, d.state.Status)
	}

	intervention := UserIntervention{
		ID:             uuid.New().String(),
		Type:           interventionType,
		Content:        content,
		AtMessageIndex: len(d.state.Messages),
		Timestamp:      time.Now().UTC(),
	}
	d.state.Interventions = append(d.state.Interventions, intervention)

	if interventionType == InterventionTerminate {
		d.terminateLocked()
	} else {
		d.pendingInstruction = content
	}

	return &intervention, nil
}

// Terminate flips the discussion to terminated and aborts any in-flight model
// invocation. Idempotent: repeated calls have no further effect.
func (d *Discussion) Terminate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.terminateLocked()
}

func (d *Discussion) terminateLocked() {
	if d.state.Status != StatusRunning {
		return
	}
	d.state.Status = StatusTerminated
	now := time.Now().UTC()
	d.state.CompletedAt = &now
	if d.cancel != nil {
		d.cancel()
	}
}

// windowMessages returns the most recent limit messages. The full log is never
// fed into a turn prompt; this bounds context size.
func windowMessages(messages []DiscussionMessage, limit int) []DiscussionMessage {
	if len(messages) <= limit {
		return append([]DiscussionMessage(nil), messages...)
	}
	return append([]DiscussionMessage(nil), messages[len(messages)-limit:]...)
}
