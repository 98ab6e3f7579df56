// Package dialogue layers one-speaker-at-a-time discipline on top of the
// message board.
//
// Who speaks first is a caller decision: one side must open with Send and
// the other must start waiting. Two peers that both start waiting deadlock
// by construction; the coordinator does not attempt to auto-negotiate a
// leader, because there is no safe way to break the tie without a third
// party.
package dialogue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/heihuo000/message-board-system/internal/models"
	"github.com/heihuo000/message-board-system/internal/store"
	"github.com/heihuo000/message-board-system/internal/wait"
)

// ErrDialogueEnded is returned by Send and AwaitPartner after the dialogue
// reached its terminal state.
var ErrDialogueEnded = errors.New("dialogue has ended")

// ErrPartnerUnresponsive is returned by SendAndAwaitReply when every
// retry elapsed without a reply. The coordinator has already transitioned
// to the terminal state when this is returned.
var ErrPartnerUnresponsive = errors.New("partner unresponsive")

// Mode selects the turn-taking discipline. It is fixed at construction.
type Mode string

const (
	// ModeStrict accepts only the configured partner's messages and
	// enforces alternating turns.
	ModeStrict Mode = "strict"
	// ModeFlexible accepts messages from any sender and tolerates a
	// partner with no published state.
	ModeFlexible Mode = "flexible"
	// ModeAsync never blocks the caller's turn; sends are always allowed.
	ModeAsync Mode = "async"
)

// Board is the slice of the message store the coordinator uses.
type Board interface {
	Append(ctx context.Context, sender, content string, priority models.Priority, replyTo string) (*models.Message, error)
	Query(ctx context.Context, f store.Filter) ([]models.Message, error)
}

// Config configures a Coordinator.
type Config struct {
	ClientID  string
	PartnerID string
	StateDir  string // where <client>_state.json lives
	Mode      Mode
	// WaitTimeout bounds a single AwaitPartner call. Default 5 minutes.
	WaitTimeout time.Duration
	// MaxRetries bounds SendAndAwaitReply attempts. Default 3.
	MaxRetries int
	// RetryBase is the unit of the linear backoff between retries:
	// sleep = RetryBase * attempt. Default 10 seconds.
	RetryBase time.Duration
	// PollInterval overrides the wait primitive's poll interval.
	PollInterval time.Duration

	Logger zerolog.Logger
}

// Coordinator is one side of a two-party dialogue. It owns and is the
// only writer of its AgentState file; the partner reads it to decide
// whose turn it is.
type Coordinator struct {
	cfg    Config
	board  Board
	waiter *wait.Waiter
	filter *Filter
	state  models.AgentState
	logger zerolog.Logger
}

// New creates a Coordinator, resuming persisted state when present. A
// fresh dialogue starts in WAITING_FOR_PARTNER with the watermark set to
// now, so stale board history is never replayed into a new conversation.
func New(board Board, cfg Config) (*Coordinator, error) {
	if cfg.ClientID == "" || cfg.PartnerID == "" {
		return nil, &store.ValidationError{Field: "client_id", Reason: "client and partner ids are required"}
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeStrict
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 5 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 10 * time.Second
	}
	if cfg.StateDir == "" {
		cfg.StateDir = "./data"
	}

	c := &Coordinator{
		cfg:    cfg,
		board:  board,
		waiter: wait.NewWithInterval(board, cfg.PollInterval),
		logger: cfg.Logger,
	}

	// Resume only a dialogue with the same pairing; a new partner means a
	// new session with a fresh watermark.
	if st, ok := loadState(statePath(cfg.StateDir, cfg.ClientID)); ok &&
		st.ClientID == cfg.ClientID && st.PartnerID == cfg.PartnerID {
		c.state = st
	} else {
		c.state = models.AgentState{
			ClientID:  cfg.ClientID,
			PartnerID: cfg.PartnerID,
			SessionID: uuid.NewString(),
			State:     models.StateWaitingForPartner,
			Watermark: time.Now().Unix(),
			UpdatedAt: time.Now().Unix(),
		}
	}

	c.filter = NewFilter(c.state.Watermark)
	return c, nil
}

// State returns a copy of the current agent state.
func (c *Coordinator) State() models.AgentState {
	return c.state
}

// PartnerState reads the partner's persisted state. A missing or
// unparsable record reads as absent, never as an error.
func (c *Coordinator) PartnerState() (models.AgentState, bool) {
	return loadState(statePath(c.cfg.StateDir, c.cfg.PartnerID))
}

// MyTurn reports whether this side may speak now. In async mode it is
// always true. Otherwise the partner's published state decides: a partner
// waiting for a reply means we owe one; a partner waiting for us to lead
// means we must not wait too. With no partner state, leading is allowed.
func (c *Coordinator) MyTurn() bool {
	if c.state.State.Terminal() {
		return false
	}
	if c.cfg.Mode == ModeAsync || c.state.State == models.StateMyTurn {
		return true
	}

	partner, ok := c.PartnerState()
	if !ok {
		return true
	}
	switch partner.State {
	case models.StateWaitingForReply:
		return true
	case models.StateWaitingForPartner:
		return false
	}
	return true
}

// Send appends a message and moves this side to WAITING_FOR_REPLY.
func (c *Coordinator) Send(ctx context.Context, content string, priority models.Priority, replyTo string) (*models.Message, error) {
	if c.state.State.Terminal() {
		return nil, ErrDialogueEnded
	}
	if priority == "" {
		priority = models.PriorityNormal
	}

	msg, err := c.board.Append(ctx, c.cfg.ClientID, content, priority, replyTo)
	if err != nil {
		return nil, err
	}

	c.state.State = models.StateWaitingForReply
	c.state.TurnCounter++
	c.persist()

	c.logger.Debug().
		Str("message_id", msg.ID).
		Int("turn", c.state.TurnCounter).
		Msg("message sent")
	return msg, nil
}

// AwaitPartner blocks until the partner's next message arrives or timeout
// elapses. Hits from this side's own sender id, duplicates, and (in
// strict mode) third-party senders are skipped without consuming the
// turn. On a hit the state becomes MY_TURN and the watermark advances.
// A timeout is a normal outcome: found=false, state unchanged. Once the
// dialogue is terminal, waiting fails with ErrDialogueEnded.
func (c *Coordinator) AwaitPartner(ctx context.Context, timeout time.Duration) (*models.Message, bool, error) {
	if c.state.State.Terminal() {
		return nil, false, ErrDialogueEnded
	}
	if timeout <= 0 {
		timeout = c.cfg.WaitTimeout
	}
	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}

		res, err := c.waiter.WaitForNext(ctx, c.cfg.ClientID, c.state.Watermark, remaining)
		if err != nil {
			return nil, false, err
		}
		if !res.Found {
			return nil, false, nil
		}

		msg := res.Message
		switch {
		case msg.Sender == c.cfg.ClientID:
			// Own message leaked past the sender exclusion; skip it.
			c.skip(msg)
		case c.cfg.Mode == ModeStrict && msg.Sender != c.cfg.PartnerID:
			c.skip(msg)
		case !c.filter.ShouldProcess(msg):
			c.skip(msg)
		default:
			c.state.State = models.StateMyTurn
			c.state.Watermark = msg.CreatedAt
			c.persist()

			c.logger.Debug().
				Str("message_id", msg.ID).
				Str("sender", msg.Sender).
				Msg("partner message received")
			return msg, true, nil
		}

		if !time.Now().Before(deadline) {
			return nil, false, nil
		}
	}
}

// skip advances the watermark past an ignored message so it is not
// re-fetched on the next poll.
func (c *Coordinator) skip(msg *models.Message) {
	if msg.CreatedAt > c.state.Watermark {
		c.state.Watermark = msg.CreatedAt
		c.persist()
	}
}

// SendAndAwaitReply sends content, then waits for the partner's reply up
// to maxRetries times with a linear backoff between attempts. When every
// attempt times out the dialogue transitions to its terminal state and
// ErrPartnerUnresponsive is returned.
func (c *Coordinator) SendAndAwaitReply(ctx context.Context, content string, timeout time.Duration, maxRetries int) (*models.Message, error) {
	if maxRetries <= 0 {
		maxRetries = c.cfg.MaxRetries
	}

	if _, err := c.Send(ctx, content, models.PriorityNormal, ""); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		msg, found, err := c.AwaitPartner(ctx, timeout)
		if err != nil {
			return nil, err
		}
		if found {
			return msg, nil
		}

		if attempt < maxRetries {
			pause := c.cfg.RetryBase * time.Duration(attempt)
			c.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", pause).
				Msg("no reply, retrying")

			timer := time.NewTimer(pause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	c.state.State = models.StateDialogueEnd
	c.persist()
	return nil, ErrPartnerUnresponsive
}

// End terminates the dialogue from any state.
func (c *Coordinator) End() {
	c.state.State = models.StateDialogueEnd
	c.persist()
}

func (c *Coordinator) persist() {
	c.state.UpdatedAt = time.Now().Unix()
	if err := saveState(statePath(c.cfg.StateDir, c.cfg.ClientID), c.state); err != nil {
		// State files are advisory turn hints; the board itself stays
		// consistent, so log and carry on.
		c.logger.Warn().Err(err).Msg("failed to persist agent state")
	}
}
