package chatsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"campustrade/internal/domain/chat"
)

// DefaultQuietPeriod is how long after the last keystroke typing=false is announced.
const DefaultQuietPeriod = time.Second

type Options struct {
	Logger *slog.Logger
	Clock  Clock
	// QuietPeriod defaults to DefaultQuietPeriod.
	QuietPeriod time.Duration
	// Activity, when set, is used to read the peer's last-active timestamp.
	Activity ActivityReader
}

// Handle is one open conversation. All methods are safe for concurrent use.
type Handle struct {
	platform Platform
	conv     chat.Conversation
	self     chat.UserID
	logger   *slog.Logger
	clock    Clock
	quiet    time.Duration
	activity ActivityReader

	// announceMu orders presence announcements; never taken while mu is held.
	announceMu sync.Mutex

	mu             sync.Mutex
	closed         bool
	stop           chan struct{}
	changes        chan struct{}
	timeline       *timeline
	otherTyping    bool
	peerLastActive time.Time
	sub            Subscription
	presence       PresenceChannel
	liveErr        error
	presenceErr    error
	typingGen      uint64
	typingTimer    Timer
}

// Open loads the conversation, subscribes to its inserts, reads the history
// and joins its presence channel announcing typing=false.
//
// Only the conversation lookup and the history read are fatal. A failed insert
// subscription or presence join leaves a handle serving static history with
// LiveUpdates or PresenceAvailable reporting false.
func Open(ctx context.Context, platform Platform, conversationID string, self chat.UserID, opts Options) (*Handle, error) {
	if platform == nil {
		return nil, errors.New("chatsync: platform is required")
	}
	if self == "" {
		return nil, chat.ErrSenderRequired
	}
	conv, err := platform.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(self) {
		return nil, chat.ErrForbidden
	}

	h := newHandle(platform, conv, self, opts)

	// Subscribing before the read means an insert landing in between is seen
	// by at least one of them; merge drops the overlap.
	sub, err := platform.SubscribeInserts(ctx, conv.ID, h.onInsert)
	h.mu.Lock()
	if err != nil {
		h.liveErr = err
	} else {
		h.sub = sub
	}
	h.mu.Unlock()
	if err != nil {
		h.logWarn("insert subscription failed, serving static history", "error", err)
	} else {
		go h.watch(sub.Done(), h.onStreamLost)
	}

	history, err := platform.ListMessages(ctx, conv.ID)
	if err != nil {
		h.release(ctx)
		return nil, err
	}
	h.mu.Lock()
	h.timeline.mergeAll(history)
	h.mu.Unlock()

	h.joinPresence(ctx)

	if h.activity != nil {
		if err := h.RefreshPeerActivity(ctx); err != nil {
			h.logWarn("peer activity lookup failed", "error", err)
		}
	}
	return h, nil
}

func newHandle(platform Platform, conv chat.Conversation, self chat.UserID, opts Options) *Handle {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock
	}
	quiet := opts.QuietPeriod
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Handle{
		platform: platform,
		conv:     conv,
		self:     self,
		logger:   opts.Logger,
		clock:    clock,
		quiet:    quiet,
		activity: opts.Activity,
		stop:     make(chan struct{}),
		changes:  make(chan struct{}, 1),
		timeline: newTimeline(),
	}
}

func (h *Handle) joinPresence(ctx context.Context) {
	ch, err := h.platform.JoinPresence(ctx, h.conv.ID, h.self, h.onPresenceSync)
	if err != nil {
		h.logWarn("presence join failed, typing indicator disabled", "error", err)
		h.mu.Lock()
		h.presenceErr = err
		h.mu.Unlock()
		return
	}
	h.mu.Lock()
	h.presence = ch
	h.mu.Unlock()
	if err := ch.Track(ctx, PresenceState{Typing: false}); err != nil {
		h.logWarn("initial presence announcement failed", "error", err)
	}
	go h.watch(ch.Done(), h.onPresenceLost)
}

// release undoes a partially opened handle.
func (h *Handle) release(ctx context.Context) {
	h.mu.Lock()
	h.closed = true
	close(h.stop)
	sub := h.sub
	h.sub = nil
	h.mu.Unlock()
	if sub == nil {
		return
	}
	if err := sub.Unsubscribe(ctx); err != nil {
		h.logWarn("release insert subscription", "error", err)
	}
}

func (h *Handle) watch(done <-chan struct{}, lost func()) {
	if done == nil {
		return
	}
	select {
	case <-done:
		lost()
	case <-h.stop:
	}
}

func (h *Handle) onStreamLost() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.liveErr != nil {
		return
	}
	h.liveErr = ErrStreamLost
	h.notifyLocked()
	h.logWarn("live updates lost")
}

func (h *Handle) onPresenceLost() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.presenceErr != nil {
		return
	}
	h.presenceErr = ErrPresenceLost
	h.otherTyping = false
	h.notifyLocked()
	h.logWarn("presence lost")
}

func (h *Handle) onInsert(m chat.Message) {
	if m.ConversationID != h.conv.ID {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if h.timeline.merge(m) {
		h.notifyLocked()
	}
}

func (h *Handle) onPresenceSync(entries []PresenceEntry) {
	typing := othersTyping(entries, h.self)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.otherTyping == typing {
		return
	}
	h.otherTyping = typing
	h.notifyLocked()
}

// notifyLocked signals Changes without blocking; h.mu must be held.
func (h *Handle) notifyLocked() {
	if h.closed {
		return
	}
	select {
	case h.changes <- struct{}{}:
	default:
	}
}

// Send stores body as a new message. Nothing is added to Messages until the
// platform acknowledges the insert. A body that is empty after trimming is
// rejected without contacting the platform.
func (h *Handle) Send(ctx context.Context, body string) (chat.Message, error) {
	if h.isClosed() {
		return chat.Message{}, ErrClosed
	}
	draft, err := chat.NewDraft(h.conv.ID, h.self, body)
	if err != nil {
		return chat.Message{}, err
	}
	msg, err := h.platform.InsertMessage(ctx, draft)
	if err != nil {
		return chat.Message{}, err
	}
	h.onInsert(msg)
	return msg, nil
}

// SetTyping announces the caller's typing state. typing=true (re)arms the
// quiet-period timer which later announces typing=false once.
func (h *Handle) SetTyping(ctx context.Context, typing bool) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	if h.presence == nil || h.presenceErr != nil {
		h.mu.Unlock()
		return nil
	}
	h.typingGen++
	gen := h.typingGen
	if h.typingTimer != nil {
		h.typingTimer.Stop()
		h.typingTimer = nil
	}
	if typing {
		h.typingTimer = h.clock.AfterFunc(h.quiet, func() { h.typingExpired(gen) })
	}
	h.mu.Unlock()
	return h.announce(ctx, gen, typing)
}

func (h *Handle) typingExpired(gen uint64) {
	h.mu.Lock()
	if h.closed || gen != h.typingGen {
		h.mu.Unlock()
		return
	}
	// Bump the generation so a typing=true still waiting to be announced
	// for gen is dropped instead of landing after this typing=false.
	h.typingGen++
	next := h.typingGen
	h.typingTimer = nil
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.announce(ctx, next, false); err != nil {
		h.logWarn("typing timeout announcement failed", "error", err)
	}
}

// announce tracks the typing state if gen is still the latest generation.
func (h *Handle) announce(ctx context.Context, gen uint64, typing bool) error {
	h.announceMu.Lock()
	defer h.announceMu.Unlock()

	h.mu.Lock()
	ch := h.presence
	stale := h.closed || gen != h.typingGen
	h.mu.Unlock()
	if stale || ch == nil {
		return nil
	}
	return ch.Track(ctx, PresenceState{Typing: typing})
}

// Close releases the conversation. After Close begins no insert or presence
// callback changes the handle. Presence is untracked before the channel is
// left, then the insert subscription is released. Close is idempotent.
func (h *Handle) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.stop)
	close(h.changes)
	h.typingGen++
	timer := h.typingTimer
	h.typingTimer = nil
	presence := h.presence
	sub := h.sub
	h.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}

	var errs []error
	if presence != nil {
		// Waits out an announcement already on the wire so it cannot land after the untrack.
		h.announceMu.Lock()
		if err := presence.Untrack(ctx); err != nil {
			errs = append(errs, fmt.Errorf("untrack presence: %w", err))
		}
		h.announceMu.Unlock()
		if err := presence.Leave(ctx); err != nil {
			errs = append(errs, fmt.Errorf("leave presence: %w", err))
		}
	}
	if sub != nil {
		if err := sub.Unsubscribe(ctx); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe inserts: %w", err))
		}
	}
	return errors.Join(errs...)
}

// RefreshPeerActivity re-reads the other participant's last-active timestamp.
func (h *Handle) RefreshPeerActivity(ctx context.Context) error {
	if h.activity == nil {
		return ErrNoActivitySource
	}
	peer := h.conv.Peer(h.self)
	at, err := h.activity.LastActive(ctx, peer)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if !at.Equal(h.peerLastActive) {
		h.peerLastActive = at
		h.notifyLocked()
	}
	return nil
}

func (h *Handle) Conversation() chat.Conversation { return h.conv }

// Messages returns a copy of the history in display order.
func (h *Handle) Messages() []chat.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.timeline.snapshot()
}

// Changes delivers a signal whenever observable state changed. Signals
// coalesce; read the accessors after receiving one. Closed by Close.
func (h *Handle) Changes() <-chan struct{} { return h.changes }

func (h *Handle) OtherTyping() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.otherTyping
}

func (h *Handle) PeerLastActive() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peerLastActive
}

// LiveUpdates reports whether new messages still stream in.
func (h *Handle) LiveUpdates() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sub != nil && h.liveErr == nil && !h.closed
}

func (h *Handle) PresenceAvailable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.presence != nil && h.presenceErr == nil && !h.closed
}

// Err returns why live updates or presence degraded, or nil.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return errors.Join(h.liveErr, h.presenceErr)
}

func (h *Handle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Handle) logWarn(msg string, args ...any) {
	if h.logger == nil {
		return
	}
	args = append(args, "conversation_id", h.conv.ID, "user_id", string(h.self))
	h.logger.Warn(msg, args...)
}
