package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"campustrade/internal/app/chatsync"
	"campustrade/internal/domain/chat"
	"campustrade/internal/infra/realtime"
)

const (
	writeWait = 10 * time.Second
	// The server pings well inside this window; silence past it means the link is gone.
	readWait = 75 * time.Second
)

// Realtime is one websocket to the gateway, multiplexing insert
// subscriptions and presence channels. Requests are matched to replies by ref.
type Realtime struct {
	ws     *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	nextRef  uint64
	pending  map[string]chan realtime.Frame
	inserts  map[string]map[*insertSubscription]struct{}
	presence map[string]*presenceChannel

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// Dial opens the realtime socket for the holder of token. baseURL is the
// server's http(s) address.
func Dial(ctx context.Context, baseURL, token string, logger *slog.Logger) (*Realtime, error) {
	endpoint, err := realtimeURL(baseURL, token)
	if err != nil {
		return nil, err
	}
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dial realtime: %w", ErrUnauthenticated)
		}
		return nil, fmt.Errorf("dial realtime: %w", err)
	}
	r := &Realtime{
		ws:       ws,
		logger:   logger,
		pending:  make(map[string]chan realtime.Frame),
		inserts:  make(map[string]map[*insertSubscription]struct{}),
		presence: make(map[string]*presenceChannel),
		done:     make(chan struct{}),
	}
	_ = ws.SetReadDeadline(time.Now().Add(readWait))
	ws.SetPingHandler(func(data string) error {
		_ = ws.SetReadDeadline(time.Now().Add(readWait))
		err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	go r.readLoop()
	return r, nil
}

func realtimeURL(baseURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/realtime"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

// Done is closed once the socket is gone.
func (r *Realtime) Done() <-chan struct{} { return r.done }

// Err reports why the socket closed, or nil while it is open.
func (r *Realtime) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Close sends a close frame and drops the socket. Pending requests fail with ErrDisconnected.
func (r *Realtime) Close() error {
	r.writeMu.Lock()
	_ = r.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	r.writeMu.Unlock()
	r.fail(ErrDisconnected)
	_ = r.ws.Close()
	return nil
}

func (r *Realtime) readLoop() {
	for {
		_, data, err := r.ws.ReadMessage()
		if err != nil {
			r.fail(err)
			return
		}
		f, err := realtime.DecodeFrame(data)
		if err != nil {
			r.logWarn("undecodable realtime frame", "error", err)
			continue
		}
		r.dispatch(f)
	}
}

func (r *Realtime) fail(err error) {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
		close(r.done)
		if !errors.Is(err, ErrDisconnected) {
			r.logWarn("realtime connection lost", "error", err)
		}
	})
}

func (r *Realtime) dispatch(f realtime.Frame) {
	switch f.Type {
	case realtime.FrameReply:
		r.mu.Lock()
		ch, ok := r.pending[f.Ref]
		r.mu.Unlock()
		if ok {
			ch <- f
		}
	case realtime.FrameInsert:
		if f.Message == nil {
			return
		}
		msg := f.Message.Domain()
		for _, sub := range r.insertSubscribers(f.Topic) {
			sub.fn(msg)
		}
	case realtime.FramePresenceSync:
		_, id, ok := realtime.ParseTopic(f.Topic)
		if !ok {
			return
		}
		r.mu.Lock()
		ch := r.presence[id]
		r.mu.Unlock()
		if ch != nil {
			ch.onSync(presenceEntries(f.Presence))
		}
	}
}

func (r *Realtime) insertSubscribers(topic string) []*insertSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := make([]*insertSubscription, 0, len(r.inserts[topic]))
	for sub := range r.inserts[topic] {
		subs = append(subs, sub)
	}
	return subs
}

func presenceEntries(state map[string][]realtime.PresenceMeta) []chatsync.PresenceEntry {
	entries := make([]chatsync.PresenceEntry, 0, len(state))
	for user, metas := range state {
		for _, meta := range metas {
			entries = append(entries, chatsync.PresenceEntry{
				UserID:   chat.UserID(user),
				Typing:   meta.Typing,
				OnlineAt: meta.OnlineAt,
			})
		}
	}
	slices.SortFunc(entries, func(a, b chatsync.PresenceEntry) int {
		if c := strings.Compare(string(a.UserID), string(b.UserID)); c != 0 {
			return c
		}
		return a.OnlineAt.Compare(b.OnlineAt)
	})
	return entries
}

// request sends f and waits for its reply.
func (r *Realtime) request(ctx context.Context, f realtime.Frame) error {
	reply := make(chan realtime.Frame, 1)
	r.mu.Lock()
	r.nextRef++
	f.Ref = strconv.FormatUint(r.nextRef, 10)
	r.pending[f.Ref] = reply
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, f.Ref)
		r.mu.Unlock()
	}()

	if err := r.write(f); err != nil {
		return err
	}
	select {
	case rep := <-reply:
		if rep.Status == realtime.StatusError {
			return &ReplyError{Type: f.Type, Topic: f.Topic, Reason: rep.Error}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrDisconnected
	}
}

func (r *Realtime) write(f realtime.Frame) error {
	select {
	case <-r.done:
		return ErrDisconnected
	default:
	}
	data, err := realtime.EncodeFrame(f)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", f.Type, err)
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = r.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := r.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		r.fail(err)
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return nil
}

func (r *Realtime) closed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// SubscribeInserts streams messages inserted into the conversation.
func (r *Realtime) SubscribeInserts(ctx context.Context, conversationID string, fn func(chat.Message)) (chatsync.Subscription, error) {
	if fn == nil {
		return nil, errors.New("platform: insert callback is required")
	}
	topic := realtime.MessagesTopic(conversationID)
	sub := &insertSubscription{rt: r, topic: topic, fn: fn}
	r.mu.Lock()
	if r.inserts[topic] == nil {
		r.inserts[topic] = make(map[*insertSubscription]struct{})
	}
	r.inserts[topic][sub] = struct{}{}
	r.mu.Unlock()

	if err := r.request(ctx, realtime.Frame{Type: realtime.FrameSubscribe, Topic: topic}); err != nil {
		r.removeInsert(sub)
		return nil, err
	}
	return sub, nil
}

// removeInsert forgets sub and reports whether it was the topic's last one.
func (r *Realtime) removeInsert(sub *insertSubscription) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := r.inserts[sub.topic]
	if _, ok := subs[sub]; !ok {
		return false
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(r.inserts, sub.topic)
		return true
	}
	return false
}

type insertSubscription struct {
	rt    *Realtime
	topic string
	fn    func(chat.Message)
}

// Unsubscribe is a no-op once the socket is gone; the server already dropped it.
func (s *insertSubscription) Unsubscribe(ctx context.Context) error {
	if !s.rt.removeInsert(s) || s.rt.closed() {
		return nil
	}
	err := s.rt.request(ctx, realtime.Frame{Type: realtime.FrameUnsubscribe, Topic: s.topic})
	if errors.Is(err, ErrDisconnected) {
		return nil
	}
	return err
}

func (s *insertSubscription) Done() <-chan struct{} { return s.rt.done }

// JoinPresence joins the conversation's presence channel. A connection joins
// a channel at most once.
func (r *Realtime) JoinPresence(ctx context.Context, channelID string, _ chat.UserID, onSync func([]chatsync.PresenceEntry)) (chatsync.PresenceChannel, error) {
	if onSync == nil {
		onSync = func([]chatsync.PresenceEntry) {}
	}
	ch := &presenceChannel{rt: r, id: channelID, topic: realtime.PresenceTopic(channelID), onSync: onSync}
	r.mu.Lock()
	if _, exists := r.presence[channelID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("platform: presence channel %s already joined", channelID)
	}
	r.presence[channelID] = ch
	r.mu.Unlock()

	if err := r.request(ctx, realtime.Frame{Type: realtime.FrameJoin, Topic: ch.topic}); err != nil {
		r.removePresence(ch)
		return nil, err
	}
	return ch, nil
}

func (r *Realtime) removePresence(ch *presenceChannel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.presence[ch.id] != ch {
		return false
	}
	delete(r.presence, ch.id)
	return true
}

type presenceChannel struct {
	rt     *Realtime
	id     string
	topic  string
	onSync func([]chatsync.PresenceEntry)
}

func (c *presenceChannel) Track(ctx context.Context, state chatsync.PresenceState) error {
	return c.rt.request(ctx, realtime.Frame{
		Type:  realtime.FrameTrack,
		Topic: c.topic,
		State: &realtime.TrackState{Typing: state.Typing},
	})
}

// Untrack and Leave are no-ops once the socket is gone; the server already
// released the connection's presence.
func (c *presenceChannel) Untrack(ctx context.Context) error {
	if c.rt.closed() {
		return nil
	}
	err := c.rt.request(ctx, realtime.Frame{Type: realtime.FrameUntrack, Topic: c.topic})
	if errors.Is(err, ErrDisconnected) {
		return nil
	}
	return err
}

func (c *presenceChannel) Leave(ctx context.Context) error {
	if !c.rt.removePresence(c) || c.rt.closed() {
		return nil
	}
	err := c.rt.request(ctx, realtime.Frame{Type: realtime.FrameLeave, Topic: c.topic})
	if errors.Is(err, ErrDisconnected) {
		return nil
	}
	return err
}

func (c *presenceChannel) Done() <-chan struct{} { return c.rt.done }

func (r *Realtime) logWarn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
