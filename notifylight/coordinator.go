// --- File: notifylight/coordinator.go ---
package notifylight

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/tinywideclouds/go-notifylight/pkg/inapp"
)

// DefaultSettleDelay is the pause between one message being dismissed and
// the next one being presented.
const DefaultSettleDelay = time.Second

// State is the presentation state of a Coordinator.
type State string

const (
	StateIdle       State = "idle"
	StateDisplaying State = "displaying"
)

// Snapshot is a point-in-time copy of the coordinator's state.
type Snapshot struct {
	State    State
	Current  *inapp.Message
	Queue    []inapp.Message
	Settling bool
}

type CoordinatorOption func(*Coordinator)

// WithSettleDelay overrides DefaultSettleDelay. A delay <= 0 advances to the
// next message synchronously on dismissal.
func WithSettleDelay(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.settleDelay = d }
}

// WithCoordinatorClock replaces the wall clock used for the settle delay.
func WithCoordinatorClock(clock clockwork.Clock) CoordinatorOption {
	return func(c *Coordinator) { c.clock = clock }
}

// Coordinator owns the in-app message queue and decides what is on screen.
//
// It is Idle or Displaying exactly one message. Every transition happens
// under one mutex; network calls and presenter calls never run while it is
// held. Ids are unique across the queue and the displayed message, and a
// message dismissed in this session is not queued again until Reset.
type Coordinator struct {
	mu sync.Mutex

	queue   []inapp.Message
	current *inapp.Message
	// generation identifies the current presentation; it changes on every
	// presentation and on Reset so stale responders cannot act.
	generation uint64

	settle    clockwork.Timer
	settleSeq uint64

	// history holds the messages dismissed since the last Reset in
	// dismissal order; dismissed indexes it by id.
	history   []inapp.Message
	dismissed map[string]int

	acksInFlight int
	acksDone     chan struct{}

	presenter   inapp.Presenter
	acker       inapp.Acknowledger
	events      *EventBus
	clock       clockwork.Clock
	settleDelay time.Duration
	logger      *slog.Logger
}

// presentation is a transition to Displaying that still has to be handed to
// the presenter once the lock is released.
type presentation struct {
	msg inapp.Message
	gen uint64
}

// NewCoordinator creates an idle coordinator with an empty queue. acker may be
// nil, in which case dismissals are never acknowledged remotely. A nil events
// bus gets a private one.
func NewCoordinator(presenter inapp.Presenter, acker inapp.Acknowledger, events *EventBus, logger *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	if events == nil {
		events = NewEventBus(logger)
	}
	c := &Coordinator{
		presenter:   presenter,
		acker:       acker,
		events:      events,
		clock:       clockwork.NewRealClock(),
		settleDelay: DefaultSettleDelay,
		dismissed:   make(map[string]int),
		logger:      logger.With("component", "Coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enqueue appends the messages whose ids are not already queued, displayed
// or dismissed this session, keeping their relative order, and presents the
// queue head if idle. It returns the number of messages accepted.
func (c *Coordinator) Enqueue(msgs []inapp.Message) int {
	c.mu.Lock()
	accepted := 0
	for _, m := range msgs {
		if m.ID == "" {
			c.logger.Warn("Skipping message without id", "title", m.Title)
			continue
		}
		if c.knownLocked(m.ID) {
			c.logger.Debug("Skipping duplicate message", "message_id", m.ID)
			continue
		}
		c.queue = append(c.queue, m)
		accepted++
	}
	p := c.advanceLocked()
	queued := len(c.queue)
	c.mu.Unlock()

	if accepted > 0 {
		c.logger.Debug("Messages enqueued", "accepted", accepted, "queued", queued)
	}
	c.present(p)
	return accepted
}

// ShowNow presents msg immediately when idle. While another message is on
// screen, or while the settle delay after a dismissal is still running, msg
// goes to the head of the queue and follows once the screen is free; the
// current display is never interrupted. A message already displayed is
// ignored and one already queued is moved to the head. Unlike Enqueue it
// also shows a message dismissed earlier in the session.
func (c *Coordinator) ShowNow(msg inapp.Message) {
	if msg.ID == "" {
		c.logger.Warn("Ignoring show request for message without id", "title", msg.Title)
		return
	}

	c.mu.Lock()
	if c.current != nil && c.current.ID == msg.ID {
		c.mu.Unlock()
		c.logger.Debug("Message already displayed", "message_id", msg.ID)
		return
	}
	c.removeQueuedLocked(msg.ID)
	c.queue = append([]inapp.Message{msg}, c.queue...)
	p := c.advanceLocked()
	c.mu.Unlock()

	c.present(p)
}

// Dismiss ends the presentation of messageID. It is a no-op returning false
// when messageID is not the displayed message. On success the message is
// acknowledged in the background and the next message follows after the
// settle delay.
func (c *Coordinator) Dismiss(messageID string, viaAction bool) bool {
	return c.complete(func(cur inapp.Message, _ uint64) bool { return cur.ID == messageID }, viaAction, "")
}

// Acknowledge marks messageID read on the remote source. Failures are
// logged and swallowed: the local flow never depends on the outcome.
func (c *Coordinator) Acknowledge(ctx context.Context, messageID string) {
	if c.acker == nil {
		return
	}
	if err := c.acker.MarkRead(ctx, messageID); err != nil {
		c.logger.Warn("Failed to acknowledge message", "message_id", messageID, "err", err)
		return
	}

	c.mu.Lock()
	if i, ok := c.dismissed[messageID]; ok {
		c.history[i].IsRead = true
	}
	c.mu.Unlock()
	c.logger.Debug("Message acknowledged", "message_id", messageID)
}

// Reset empties the queue, forgets the displayed message without
// acknowledging it and clears the session history. A pending advance is
// cancelled. In-flight acknowledgements are not affected.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	dropped := len(c.queue)
	hadCurrent := c.current != nil
	c.queue = nil
	c.current = nil
	c.history = nil
	c.dismissed = make(map[string]int)
	c.generation++
	c.cancelSettleLocked()
	c.mu.Unlock()

	c.logger.Info("Coordinator reset", "dropped_queued", dropped, "dropped_current", hadCurrent)
}

// Flush waits until every background acknowledgement has finished or ctx
// is done.
func (c *Coordinator) Flush(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.acksInFlight == 0 {
			c.mu.Unlock()
			return nil
		}
		done := c.acksDone
		c.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// State reports whether a message is displayed.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return StateDisplaying
	}
	return StateIdle
}

// Current returns the displayed message, if any.
func (c *Coordinator) Current() (inapp.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return inapp.Message{}, false
	}
	return *c.current, true
}

// History returns the messages dismissed since the last Reset, oldest
// first. IsRead is set once the server acknowledged the message.
func (c *Coordinator) History() []inapp.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]inapp.Message(nil), c.history...)
}

// Pending returns a copy of the queued messages in presentation order.
func (c *Coordinator) Pending() []inapp.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]inapp.Message(nil), c.queue...)
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		State:    StateIdle,
		Queue:    append([]inapp.Message(nil), c.queue...),
		Settling: c.settle != nil,
	}
	if c.current != nil {
		cur := *c.current
		s.State = StateDisplaying
		s.Current = &cur
	}
	return s
}

// complete finishes the current presentation if match accepts it.
func (c *Coordinator) complete(match func(cur inapp.Message, gen uint64) bool, viaAction bool, actionID string) bool {
	c.mu.Lock()
	if c.current == nil || !match(*c.current, c.generation) {
		c.mu.Unlock()
		return false
	}
	msg := *c.current
	c.current = nil
	c.recordDismissedLocked(msg)
	c.startSettleLocked()
	p := c.advanceLocked()
	c.beginAckLocked()
	c.mu.Unlock()

	go func() {
		defer c.endAck()
		c.Acknowledge(context.Background(), msg.ID)
	}()

	if actionID != "" {
		c.events.Publish(Event{Kind: EventMessageAction, Message: &msg, ActionID: actionID})
	}
	c.events.Publish(Event{Kind: EventMessageDismissed, Message: &msg, ViaAction: viaAction})
	c.logger.Info("Message dismissed", "message_id", msg.ID, "via_action", viaAction)

	c.present(p)
	return true
}

// abandon clears a presentation that never reached the user, without
// acknowledging it.
func (c *Coordinator) abandon(gen uint64) {
	c.mu.Lock()
	if c.current == nil || c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.startSettleLocked()
	p := c.advanceLocked()
	c.mu.Unlock()

	c.present(p)
}

func (c *Coordinator) present(p *presentation) {
	if p == nil {
		return
	}
	msg := p.msg
	c.logger.Info("Presenting message", "message_id", msg.ID, "actions", len(msg.Actions))
	c.events.Publish(Event{Kind: EventMessageShown, Message: &msg})

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Presenter panicked; skipping message", "message_id", msg.ID, "panic", r)
			c.abandon(p.gen)
		}
	}()
	c.presenter.Present(msg, &responder{coordinator: c, msg: msg, gen: p.gen})
}

// advanceLocked moves the queue head on screen when nothing is displayed
// and no settle delay is running.
func (c *Coordinator) advanceLocked() *presentation {
	if c.current != nil || c.settle != nil || len(c.queue) == 0 {
		return nil
	}
	next := c.queue[0]
	c.queue[0] = inapp.Message{}
	c.queue = c.queue[1:]
	c.current = &next
	c.generation++
	return &presentation{msg: next, gen: c.generation}
}

func (c *Coordinator) startSettleLocked() {
	if c.settleDelay <= 0 {
		return
	}
	c.cancelSettleLocked()
	seq := c.settleSeq
	c.settle = c.clock.AfterFunc(c.settleDelay, func() { c.onSettled(seq) })
}

func (c *Coordinator) cancelSettleLocked() {
	if c.settle != nil {
		c.settle.Stop()
		c.settle = nil
	}
	c.settleSeq++
}

func (c *Coordinator) onSettled(seq uint64) {
	c.mu.Lock()
	if seq != c.settleSeq {
		// Superseded by a reset or a newer dismissal.
		c.mu.Unlock()
		return
	}
	c.settle = nil
	p := c.advanceLocked()
	c.mu.Unlock()

	c.present(p)
}

func (c *Coordinator) knownLocked(id string) bool {
	if c.current != nil && c.current.ID == id {
		return true
	}
	if _, ok := c.dismissed[id]; ok {
		return true
	}
	for _, m := range c.queue {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (c *Coordinator) recordDismissedLocked(msg inapp.Message) {
	if i, ok := c.dismissed[msg.ID]; ok {
		c.history[i] = msg
		return
	}
	c.dismissed[msg.ID] = len(c.history)
	c.history = append(c.history, msg)
}

func (c *Coordinator) removeQueuedLocked(id string) {
	for i, m := range c.queue {
		if m.ID == id {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return
		}
	}
}

func (c *Coordinator) beginAckLocked() {
	if c.acksInFlight == 0 {
		c.acksDone = make(chan struct{})
	}
	c.acksInFlight++
}

func (c *Coordinator) endAck() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acksInFlight--
	if c.acksInFlight == 0 {
		close(c.acksDone)
	}
}

// responder is handed to the presenter for one presentation. Only its first
// callback counts, and only while that presentation is still current.
type responder struct {
	coordinator *Coordinator
	msg         inapp.Message
	gen         uint64
	once        sync.Once
}

func (r *responder) OnAction(actionID string) {
	r.once.Do(func() {
		if !r.msg.HasAction(actionID) {
			r.coordinator.logger.Warn("Presenter reported unknown action", "message_id", r.msg.ID, "action_id", actionID)
		}
		r.coordinator.complete(r.matches, true, actionID)
	})
}

func (r *responder) OnDismiss() {
	r.once.Do(func() {
		r.coordinator.complete(r.matches, false, "")
	})
}

func (r *responder) matches(_ inapp.Message, gen uint64) bool {
	return gen == r.gen
}
