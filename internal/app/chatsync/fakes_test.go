package chatsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"campustrade/internal/domain/chat"
)

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func msgAt(id string, offset time.Duration) chat.Message {
	return chat.Message{ID: id, ConversationID: "conv-1", SenderID: "seller", Body: "body " + id, CreatedAt: base.Add(offset)}
}

type fakePlatform struct {
	mu sync.Mutex

	conv      chat.Conversation
	history   []chat.Message
	getErr    error
	listErr   error
	subErr    error
	joinErr   error
	insertErr error
	// echo delivers acknowledged inserts to the subscriber as well.
	echo bool
	// duringList runs inside ListMessages, after the subscription is active.
	duringList func(p *fakePlatform)

	calls       []string
	insertCalls int
	nextID      int
	onInsert    func(chat.Message)
	onSync      func([]PresenceEntry)
	sub         *fakeSubscription
	presence    *fakePresence
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		conv: chat.Conversation{ID: "conv-1", ListingID: "listing-1", BuyerID: "buyer", SellerID: "seller", CreatedAt: base},
	}
}

func (p *fakePlatform) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

func (p *fakePlatform) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePlatform) GetConversation(_ context.Context, id string) (chat.Conversation, error) {
	p.record("get")
	if p.getErr != nil {
		return chat.Conversation{}, p.getErr
	}
	if id != p.conv.ID {
		return chat.Conversation{}, chat.ErrNotFound
	}
	return p.conv, nil
}

func (p *fakePlatform) ListMessages(_ context.Context, _ string) ([]chat.Message, error) {
	p.record("list")
	if p.duringList != nil {
		p.duringList(p)
	}
	if p.listErr != nil {
		return nil, p.listErr
	}
	return append([]chat.Message(nil), p.history...), nil
}

func (p *fakePlatform) InsertMessage(_ context.Context, draft chat.Draft) (chat.Message, error) {
	p.mu.Lock()
	p.insertCalls++
	p.calls = append(p.calls, "insert")
	if p.insertErr != nil {
		p.mu.Unlock()
		return chat.Message{}, p.insertErr
	}
	p.nextID++
	msg := chat.Message{
		ID:             fmt.Sprintf("srv-%d", p.nextID),
		ConversationID: draft.ConversationID,
		SenderID:       draft.SenderID,
		Body:           draft.Body,
		CreatedAt:      base.Add(time.Hour + time.Duration(p.nextID)*time.Second),
	}
	deliver := p.onInsert
	echo := p.echo
	p.mu.Unlock()
	if echo && deliver != nil {
		deliver(msg)
	}
	return msg, nil
}

func (p *fakePlatform) SubscribeInserts(_ context.Context, _ string, fn func(chat.Message)) (Subscription, error) {
	p.record("subscribe")
	if p.subErr != nil {
		return nil, p.subErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onInsert = fn
	p.sub = &fakeSubscription{platform: p, done: make(chan struct{})}
	return p.sub, nil
}

func (p *fakePlatform) JoinPresence(_ context.Context, _ string, _ chat.UserID, onSync func([]PresenceEntry)) (PresenceChannel, error) {
	p.record("join")
	if p.joinErr != nil {
		return nil, p.joinErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSync = onSync
	p.presence = &fakePresence{platform: p, done: make(chan struct{})}
	return p.presence, nil
}

func (p *fakePlatform) deliver(m chat.Message) {
	p.mu.Lock()
	fn := p.onInsert
	p.mu.Unlock()
	fn(m)
}

func (p *fakePlatform) sync(entries ...PresenceEntry) {
	p.mu.Lock()
	fn := p.onSync
	p.mu.Unlock()
	fn(entries)
}

// tracks lists the typing flags announced so far.
func (p *fakePlatform) tracks() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.presence == nil {
		return nil
	}
	return append([]bool(nil), p.presence.tracked...)
}

type fakeSubscription struct {
	platform *fakePlatform
	done     chan struct{}
	err      error
}

func (s *fakeSubscription) Unsubscribe(context.Context) error {
	s.platform.record("unsubscribe")
	return s.err
}

func (s *fakeSubscription) Done() <-chan struct{} { return s.done }

type fakePresence struct {
	platform *fakePlatform
	done     chan struct{}
	tracked  []bool
	leaveErr error
}

func (c *fakePresence) Track(_ context.Context, state PresenceState) error {
	c.platform.mu.Lock()
	defer c.platform.mu.Unlock()
	c.tracked = append(c.tracked, state.Typing)
	c.platform.calls = append(c.platform.calls, fmt.Sprintf("track:%t", state.Typing))
	return nil
}

func (c *fakePresence) Untrack(context.Context) error {
	c.platform.record("untrack")
	return nil
}

func (c *fakePresence) Leave(context.Context) error {
	c.platform.record("leave")
	return c.leaveErr
}

func (c *fakePresence) Done() <-chan struct{} { return c.done }

type fakeActivity struct {
	at  map[chat.UserID]time.Time
	err error
}

func (a fakeActivity) LastActive(_ context.Context, user chat.UserID) (time.Time, error) {
	if a.err != nil {
		return time.Time{}, a.err
	}
	return a.at[user], nil
}

// fakeClock fires timers synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock { return &fakeClock{now: base} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
