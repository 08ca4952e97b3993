package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"campustrade/internal/app/dto"
	domainchat "campustrade/internal/domain/chat"
)

// Authorizer decides whether a user may observe a conversation.
type Authorizer interface {
	Authorize(ctx context.Context, user domainchat.UserID, conversationID string) error
}

type GatewayConfig struct {
	Presence   PresenceStore
	Authorizer Authorizer
	Logger     *slog.Logger
	Now        func() time.Time
	// CheckOrigin defaults to allowing every origin.
	CheckOrigin func(r *http.Request) bool
}

// Gateway terminates client websockets and fans out inserts and presence.
type Gateway struct {
	hub      *Hub
	presence PresenceStore
	auth     Authorizer
	logger   *slog.Logger
	now      func() time.Time
	upgrader websocket.Upgrader
}

func NewGateway(cfg GatewayConfig) *Gateway {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	presence := cfg.Presence
	if presence == nil {
		presence = NewMemoryPresence()
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Gateway{
		hub:      NewHub(),
		presence: presence,
		auth:     cfg.Authorizer,
		logger:   cfg.Logger,
		now:      now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Run forwards presence change announcements to local subscribers until ctx ends.
func (g *Gateway) Run(ctx context.Context) error {
	err := g.presence.Listen(ctx, func(channel string) {
		g.broadcastPresence(ctx, channel)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Serve upgrades the request and runs the connection for an authenticated user.
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}
	c := newConn(g, ws, uuid.NewString(), userID)
	if g.logger != nil {
		g.logger.Info("realtime client connected", "conn_id", c.id, "user_id", userID)
	}
	go c.writePump()
	go c.readPump()
	return nil
}

// PublishInsert delivers a stored message to this instance's subscribers.
func (g *Gateway) PublishInsert(_ context.Context, msg domainchat.Message) error {
	g.DeliverInsert(msg)
	return nil
}

func (g *Gateway) DeliverInsert(msg domainchat.Message) {
	payload := dto.FromMessage(msg)
	data, err := EncodeFrame(Frame{Type: FrameInsert, Topic: MessagesTopic(msg.ConversationID), Message: &payload})
	if err != nil {
		g.logWarn("encode insert failed", "error", err)
		return
	}
	g.hub.Broadcast(MessagesTopic(msg.ConversationID), data)
}

// SweepPresence drops records whose connection stopped heartbeating before cutoff.
func (g *Gateway) SweepPresence(ctx context.Context, cutoff time.Time) (int, error) {
	channels, err := g.presence.Sweep(ctx, cutoff)
	for _, ch := range channels {
		if aerr := g.presence.Announce(ctx, ch); aerr != nil {
			g.logWarn("announce swept channel failed", "channel", ch, "error", aerr)
		}
	}
	return len(channels), err
}

func (g *Gateway) handle(c *Conn, f Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	kind, id, ok := ParseTopic(f.Topic)
	if !ok {
		c.reply(f.Ref, f.Topic, errors.New("invalid topic"))
		return
	}
	var err error
	switch f.Type {
	case FrameSubscribe:
		err = g.subscribe(ctx, c, kind, id)
	case FrameUnsubscribe:
		err = g.unsubscribe(c, kind, id)
	case FrameJoin:
		err = g.join(ctx, c, kind, id)
	case FrameTrack:
		typing := f.State != nil && f.State.Typing
		err = g.track(ctx, c, kind, id, typing)
	case FrameUntrack:
		err = g.untrack(ctx, c, kind, id)
	case FrameLeave:
		err = g.leave(ctx, c, kind, id)
	default:
		err = fmt.Errorf("unknown frame type %q", f.Type)
	}
	c.reply(f.Ref, f.Topic, err)
	if f.Type == FrameJoin && err == nil {
		g.syncConn(ctx, c, id)
	}
}

func (g *Gateway) authorize(ctx context.Context, c *Conn, conversationID string) error {
	if g.auth == nil {
		return nil
	}
	if err := g.auth.Authorize(ctx, domainchat.UserID(c.userID), conversationID); err != nil {
		switch {
		case errors.Is(err, domainchat.ErrForbidden):
			return errors.New(ReplyForbidden)
		case errors.Is(err, domainchat.ErrNotFound):
			return errors.New(ReplyNotFound)
		default:
			g.logWarn("authorize failed", "conn_id", c.id, "conversation_id", conversationID, "error", err)
			return errors.New(ReplyUnavailable)
		}
	}
	return nil
}

func (g *Gateway) subscribe(ctx context.Context, c *Conn, kind, id string) error {
	if kind != TopicMessages {
		return errors.New("subscribe expects a messages topic")
	}
	if err := g.authorize(ctx, c, id); err != nil {
		return err
	}
	g.hub.Subscribe(MessagesTopic(id), c)
	return nil
}

func (g *Gateway) unsubscribe(c *Conn, kind, id string) error {
	if kind != TopicMessages {
		return errors.New("unsubscribe expects a messages topic")
	}
	g.hub.Unsubscribe(MessagesTopic(id), c)
	return nil
}

func (g *Gateway) join(ctx context.Context, c *Conn, kind, id string) error {
	if kind != TopicPresence {
		return errors.New("join expects a presence topic")
	}
	if err := g.authorize(ctx, c, id); err != nil {
		return err
	}
	c.join(id)
	g.hub.Subscribe(PresenceTopic(id), c)
	return nil
}

func (g *Gateway) track(ctx context.Context, c *Conn, kind, id string, typing bool) error {
	if kind != TopicPresence {
		return errors.New("track expects a presence topic")
	}
	now := g.now()
	onlineAt, err := c.markTracked(id, now)
	if err != nil {
		return err
	}
	rec := PresenceRecord{ConnID: c.id, UserID: c.userID, Typing: typing, OnlineAt: onlineAt}
	if err := g.presence.Track(ctx, id, rec, now); err != nil {
		g.logWarn("presence track failed", "conn_id", c.id, "channel", id, "error", err)
		return errors.New("presence unavailable")
	}
	return g.presence.Announce(ctx, id)
}

func (g *Gateway) untrack(ctx context.Context, c *Conn, kind, id string) error {
	if kind != TopicPresence {
		return errors.New("untrack expects a presence topic")
	}
	if _, err := c.markUntracked(id); err != nil {
		return err
	}
	return g.dropPresence(ctx, c, id)
}

func (g *Gateway) leave(ctx context.Context, c *Conn, kind, id string) error {
	if kind != TopicPresence {
		return errors.New("leave expects a presence topic")
	}
	g.hub.Unsubscribe(PresenceTopic(id), c)
	if c.leave(id) {
		return g.dropPresence(ctx, c, id)
	}
	return nil
}

func (g *Gateway) dropPresence(ctx context.Context, c *Conn, channel string) error {
	if err := g.presence.Untrack(ctx, channel, c.id); err != nil {
		g.logWarn("presence untrack failed", "conn_id", c.id, "channel", channel, "error", err)
		return errors.New("presence unavailable")
	}
	return g.presence.Announce(ctx, channel)
}

// disconnect releases everything a closed socket held.
func (g *Gateway) disconnect(c *Conn) {
	g.hub.Drop(c)
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	for _, channel := range c.releaseAll() {
		if err := g.dropPresence(ctx, c, channel); err != nil {
			g.logWarn("presence cleanup on disconnect failed", "conn_id", c.id, "channel", channel, "error", err)
		}
	}
	if g.logger != nil {
		g.logger.Info("realtime client disconnected", "conn_id", c.id, "user_id", c.userID)
	}
}

func (g *Gateway) presenceFrame(ctx context.Context, channel string) ([]byte, error) {
	records, err := g.presence.List(ctx, channel)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(PresenceFrame(channel, records))
}

func (g *Gateway) broadcastPresence(ctx context.Context, channel string) {
	if g.hub.Subscribers(PresenceTopic(channel)) == 0 {
		return
	}
	data, err := g.presenceFrame(ctx, channel)
	if err != nil {
		g.logWarn("presence sync failed", "channel", channel, "error", err)
		return
	}
	g.hub.Broadcast(PresenceTopic(channel), data)
}

func (g *Gateway) syncConn(ctx context.Context, c *Conn, channel string) {
	data, err := g.presenceFrame(ctx, channel)
	if err != nil {
		g.logWarn("presence sync failed", "channel", channel, "error", err)
		return
	}
	c.deliver(data)
}

func (g *Gateway) logWarn(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Warn(msg, args...)
	}
}
