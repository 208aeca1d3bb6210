// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/settings"
	"github.com/jeranaias/rigchat/internal/stream"
	"github.com/jeranaias/rigchat/internal/timeline"
	"github.com/jeranaias/rigchat/internal/transport"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// ChatDirectory is the persistence service that owns chat records.
type ChatDirectory interface {
	// Refresh loads the chat identified by ref (an id or a chat URL).
	Refresh(ctx context.Context, ref string) (*model.ChatSession, error)

	// DeleteChat removes a persisted chat.
	DeleteChat(ctx context.Context, id string) error

	// UpdateContextSettings stores new context settings on a chat.
	UpdateContextSettings(ctx context.Context, id string, cs model.ContextSettings) error
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config wires a Controller.
type Config struct {
	Transport transport.Transport

	// Directory is optional; without it adopted sessions are not refreshed
	// and deletes only reset the local state.
	Directory ChatDirectory

	// Overrides are the user's standing preferences, typically from the
	// config file. Per-session overrides are layered on top.
	Overrides settings.Overrides

	Logger *slog.Logger
}

// =============================================================================
// CONTROLLER
// =============================================================================

// turn is the bookkeeping for one in-flight send.
type turn struct {
	epoch     uint64
	messageID model.MessageID
	streaming bool
	cancel    context.CancelFunc
	cancelled bool // set by Cancel, guarded by Controller.mu
}

// Controller owns the active session and its timeline.
type Controller struct {
	transport transport.Transport
	directory ChatDirectory
	logger    *slog.Logger

	mu         sync.Mutex
	state      State
	epoch      uint64
	session    *model.ChatSession
	timeline   *timeline.Timeline
	capability *model.ModelCapability
	base       settings.Overrides
	overrides  settings.Overrides
	turn       *turn

	pumps   sync.WaitGroup
	stale   atomic.Int64
	changes notifier
}

// New creates a controller with an empty draft session and no model.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		transport: cfg.Transport,
		directory: cfg.Directory,
		logger:    logger,
		session:   model.NewDraft(""),
		timeline:  timeline.New(),
		base:      cfg.Overrides.Clone(),
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a copy of the active session.
func (c *Controller) Session() *model.ChatSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

// Timeline returns the active timeline. The pointer changes when the
// session changes; re-read it after Subscribe signals.
func (c *Controller) Timeline() *timeline.Timeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeline
}

// Model returns the selected model, or nil.
func (c *Controller) Model() *model.ModelCapability {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capability.Clone()
}

// Effective resolves the settings the next send would use.
func (c *Controller) Effective() settings.EffectiveSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.effectiveLocked()
}

func (c *Controller) effectiveLocked() settings.EffectiveSettings {
	return settings.Resolve(c.capability, c.session.Persisted, c.base.Merge(c.overrides))
}

// StaleDiscarded returns how many events were dropped because their turn
// was no longer current.
func (c *Controller) StaleDiscarded() int64 {
	return c.stale.Load()
}

// Subscribe signals after session, model or state changes. Message changes
// are signalled by the timeline itself.
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	return c.changes.subscribe()
}

// =============================================================================
// SEND
// =============================================================================

// Send validates text and dispatches a turn. It returns once the turn is
// started; progress shows up in the timeline. The turn runs until it
// finishes, ctx is cancelled, Cancel is called or the session changes.
func (c *Controller) Send(ctx context.Context, text string) error {
	text = norm.NFC.String(text)

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = StateValidating

	if strings.TrimSpace(text) == "" {
		c.state = StateIdle
		c.mu.Unlock()
		return ErrEmptyInput
	}
	if c.capability == nil {
		c.timeline.Append(model.NewAssistantNotice(NoModelMessage))
		c.state = StateIdle
		c.mu.Unlock()
		return ErrNoModel
	}

	c.state = StateDispatching
	eff := c.effectiveLocked()

	var history []model.HistoryEntry
	if prior := c.timeline.Snapshot(); eff.ContextEnabled && prior.Len() > 0 {
		history = model.HistoryFrom(prior.Messages())
	}

	c.timeline.Append(model.NewUserMessage(text))
	placeholder := c.timeline.Append(model.NewPlaceholder())

	req := &transport.Request{
		ConfigID:   c.capability.ID,
		Message:    text,
		History:    history,
		SessionRef: sessionRef(c.session),
		Settings:   eff,
	}

	turnCtx, cancel := context.WithCancel(ctx)
	t := &turn{
		epoch:     c.epoch,
		messageID: placeholder,
		streaming: eff.StreamingEnabled,
		cancel:    cancel,
	}
	c.turn = t
	if t.streaming {
		c.state = StateStreaming
	} else {
		c.state = StateAwaitingUnary
	}
	c.pumps.Add(1)
	c.mu.Unlock()

	c.logger.Info("TURN_DISPATCH",
		"session", req.SessionRef, "model", req.ConfigID, "streaming", t.streaming,
		"history", len(history), "message", placeholder.String())
	c.changes.notify()

	go c.pump(turnCtx, t, req)
	return nil
}

// pump drives one turn: it calls the transport and feeds every outcome
// through Apply in arrival order.
func (c *Controller) pump(ctx context.Context, t *turn, req *transport.Request) {
	defer c.pumps.Done()
	defer t.cancel()

	base := Event{Epoch: t.epoch, MessageID: t.messageID}
	var tr Transition

	if t.streaming {
		tr = c.pumpStream(ctx, t, req, base)
	} else {
		res, err := c.transport.SendUnary(ctx, req)
		ev := base
		if err != nil {
			ev.Kind, ev.Err = c.failureKind(t), err
		} else {
			ev.Kind, ev.Text, ev.SessionRef = EventReply, res.Reply, res.SessionRef
		}
		tr = c.apply(ev)
	}

	if tr.Adopt != "" && c.directory != nil {
		c.refresh(ctx, t.epoch, tr.Adopt)
	}
}

func (c *Controller) pumpStream(ctx context.Context, t *turn, req *transport.Request, base Event) Transition {
	events, err := c.transport.SendStreaming(ctx, req)
	if err != nil {
		ev := base
		ev.Kind, ev.Err = c.failureKind(t), err
		return c.apply(ev)
	}

	for sev := range events {
		ev := base
		switch sev.Type {
		case stream.TypeContent:
			ev.Kind, ev.Text = EventContent, sev.Content
		case stream.TypeDone:
			ev.Kind, ev.Success, ev.SessionRef = EventDone, sev.Success, sev.SessionRef
		case stream.TypeError:
			ev.Kind, ev.Err = c.failureKind(t), errorOf(sev)
		default:
			continue
		}
		if tr := c.apply(ev); tr.Final {
			// drain so the producer is never left blocked
			for range events {
			}
			return tr
		}
	}

	// Channel closed without a terminal event.
	ev := base
	ev.Kind, ev.Err = c.failureKind(t), stream.ErrIncompleteStream
	return c.apply(ev)
}

// failureKind tells a user cancel apart from a transport failure.
func (c *Controller) failureKind(t *turn) EventKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.cancelled {
		return EventCancelled
	}
	return EventFailed
}

func errorOf(ev stream.Event) error {
	if ev.Err != nil {
		return ev.Err
	}
	return errors.New(ev.Message)
}

// =============================================================================
// APPLY
// =============================================================================

// Apply feeds one event to the state machine and returns the resulting state.
// Events for an older epoch or another message are discarded.
func (c *Controller) Apply(ev Event) State {
	c.apply(ev)
	return c.State()
}

func (c *Controller) apply(ev Event) Transition {
	c.mu.Lock()

	t := c.turn
	if t == nil || ev.Epoch != c.epoch || ev.MessageID != t.messageID {
		c.mu.Unlock()
		c.stale.Add(1)
		c.logger.Debug("STALE_EVENT_DISCARDED", "event", ev.Kind.String(), "message", ev.MessageID.String(), "epoch", ev.Epoch)
		return Transition{Next: StateIdle, Ignored: true}
	}

	msg, ok := c.timeline.Get(t.messageID)
	if !ok {
		c.mu.Unlock()
		c.stale.Add(1)
		return Transition{Next: StateIdle, Ignored: true}
	}

	tr := Reduce(c.state, msg, ev)
	if tr.Ignored {
		c.mu.Unlock()
		c.logger.Debug("EVENT_IGNORED", "event", ev.Kind.String(), "state", c.state.String())
		return tr
	}

	if tr.Patch != nil {
		c.timeline.UpdateByID(t.messageID, *tr.Patch)
	}
	c.state = tr.Next

	adopted := ""
	if tr.Adopt != "" && c.session.IsDraft() {
		c.session.ID = tr.Adopt
		adopted = tr.Adopt
	}
	tr.Adopt = adopted

	if tr.Final {
		// Finalizing and Errored settle back to Idle; the session stays usable.
		c.turn = nil
		c.state = StateIdle
	}
	c.mu.Unlock()

	switch {
	case tr.Next == StateErrored:
		c.logger.Warn("TURN_FAILED", "event", ev.Kind.String(), "message", ev.MessageID.String(), "error", ev.Err)
	case tr.Final:
		c.logger.Info("TURN_COMPLETE", "message", ev.MessageID.String())
	}
	if adopted != "" {
		c.logger.Info("SESSION_ADOPTED", "session", adopted)
	}
	if tr.Final || adopted != "" {
		c.changes.notify()
	}
	return tr
}

// refresh reloads an adopted session from the directory. The result is only
// used if the same session is still active.
func (c *Controller) refresh(ctx context.Context, epoch uint64, ref string) {
	sess, err := c.directory.Refresh(context.WithoutCancel(ctx), ref)
	if err != nil {
		c.logger.Warn("SESSION_REFRESH_FAILED", "session", ref, "error", err)
		return
	}

	c.mu.Lock()
	if epoch != c.epoch || c.session.ID != ref {
		c.mu.Unlock()
		c.stale.Add(1)
		return
	}
	c.session = sess.Clone()
	c.mu.Unlock()
	c.changes.notify()
}

// =============================================================================
// CANCELLATION AND WAITING
// =============================================================================

// Cancel stops the running turn. The placeholder keeps any text received so
// far and is marked errored. It reports whether a turn was running.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turn == nil {
		return false
	}
	c.turn.cancelled = true
	c.turn.cancel()
	return true
}

// Wait blocks until every dispatched turn, including abandoned ones, has
// finished, or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// SESSION MANAGEMENT
// =============================================================================

// SwitchSession makes sess active with the given persisted messages. A turn
// in progress on the previous session is cancelled and its remaining events
// are discarded.
func (c *Controller) SwitchSession(sess *model.ChatSession, messages []model.Message) {
	c.mu.Lock()
	c.abandonLocked()
	if sess == nil {
		sess = model.NewDraft(c.modelIDLocked())
	}
	c.session = sess.Clone()
	c.timeline = timeline.New(messages...)
	c.overrides = settings.Overrides{}
	c.mu.Unlock()

	c.logger.Info("SESSION_SWITCHED", "session", sess.ID)
	c.changes.notify()
}

// NewChat starts an empty draft session.
func (c *Controller) NewChat() {
	c.SwitchSession(nil, nil)
}

// DeleteActive deletes the active chat through the directory, if it is
// persisted, and starts a new draft. A running turn is abandoned either way;
// when the directory refuses, the chat stays active so the delete can be
// retried.
func (c *Controller) DeleteActive(ctx context.Context) error {
	c.mu.Lock()
	id := c.session.ID
	c.settleTurnLocked()
	c.abandonLocked()
	c.mu.Unlock()

	if id != "" && c.directory != nil {
		if err := c.directory.DeleteChat(ctx, id); err != nil {
			c.logger.Warn("CHAT_DELETE_FAILED", "session", id, "error", err)
			c.changes.notify()
			return err
		}
	}
	c.NewChat()
	return nil
}

// settleTurnLocked finalizes the running turn's placeholder as cancelled,
// for callers that abandon a turn but may keep its timeline.
func (c *Controller) settleTurnLocked() {
	if c.turn == nil {
		return
	}
	if msg, ok := c.timeline.Get(c.turn.messageID); ok {
		c.timeline.UpdateByID(msg.ID, *cancelled(msg).Patch)
	}
}

func (c *Controller) abandonLocked() {
	c.epoch++
	if c.turn != nil {
		c.turn.cancel()
		c.turn = nil
	}
	c.state = StateIdle
}

func (c *Controller) modelIDLocked() string {
	if c.capability == nil {
		return ""
	}
	return c.capability.ID
}

func sessionRef(s *model.ChatSession) string {
	if s.URL != "" {
		return s.URL
	}
	return s.ID
}

// =============================================================================
// MODEL AND SETTINGS
// =============================================================================

// SelectModel sets the model used by the next send. nil deselects.
// A draft session follows the selection.
func (c *Controller) SelectModel(capability *model.ModelCapability) {
	c.mu.Lock()
	c.capability = capability.Clone()
	if c.session.IsDraft() {
		c.session.ModelID = c.modelIDLocked()
	}
	c.mu.Unlock()
	c.changes.notify()
}

// SetBaseOverrides replaces the standing overrides, e.g. after the config
// file changed.
func (c *Controller) SetBaseOverrides(o settings.Overrides) {
	c.mu.Lock()
	c.base = o.Clone()
	c.mu.Unlock()
	c.changes.notify()
}

// Toggle switches a boolean feature for this session. It returns false when
// the model capability does not allow it; nothing changes in that case.
func (c *Controller) Toggle(f settings.Feature, on bool) bool {
	c.mu.Lock()
	merged := c.base.Merge(c.overrides)
	if _, ok := merged.Toggle(f, on, c.capability, c.session.Persisted); !ok {
		c.mu.Unlock()
		return false
	}
	c.overrides = c.overrides.With(f, on)
	c.mu.Unlock()
	c.changes.notify()
	return true
}

// Set parses and applies one named setting for this session. applied is
// false for a feature the model capability refuses.
func (c *Controller) Set(key, value string) (applied bool, err error) {
	ch, err := settings.Parse(key, value)
	if err != nil {
		return false, err
	}
	if ch.IsFeature {
		return c.Toggle(ch.Feature, ch.On), nil
	}

	c.mu.Lock()
	c.overrides = c.overrides.Merge(ch.Delta)
	c.mu.Unlock()
	c.changes.notify()
	return true, nil
}

// PersistContextSettings stores the current effective context settings on
// the active chat. Draft sessions keep them locally until adopted.
func (c *Controller) PersistContextSettings(ctx context.Context) error {
	c.mu.Lock()
	cs := c.effectiveLocked().ContextSettings()
	c.session.Persisted = cs.Clone()
	id := c.session.ID
	c.mu.Unlock()

	if id == "" || c.directory == nil {
		return nil
	}
	return c.directory.UpdateContextSettings(ctx, id, cs)
}
