package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainchat "campustrade/internal/domain/chat"
)

type participants map[string][]string

func (p participants) Authorize(_ context.Context, user domainchat.UserID, conversationID string) error {
	members, ok := p[conversationID]
	if !ok {
		return domainchat.ErrNotFound
	}
	for _, m := range members {
		if m == string(user) {
			return nil
		}
	}
	return domainchat.ErrForbidden
}

type testGateway struct {
	gateway  *Gateway
	presence *MemoryPresence
	server   *httptest.Server
}

func startGateway(t *testing.T) *testGateway {
	t.Helper()
	presence := NewMemoryPresence()
	g := NewGateway(GatewayConfig{
		Presence:   presence,
		Authorizer: participants{"c1": {"buyer", "seller"}},
	})
	ctx, cancel := context.WithCancel(context.Background())
	go g.Run(ctx)
	require.Eventually(t, func() bool { return presence.listenerCount() == 1 }, time.Second, 5*time.Millisecond)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = g.Serve(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return &testGateway{gateway: g, presence: presence, server: server}
}

func (tg *testGateway) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(tg.server.URL, "http") + "/?user=" + user
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, f Frame) {
	t.Helper()
	data, err := EncodeFrame(f)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))
}

// await reads frames until match accepts one.
func await(t *testing.T, ws *websocket.Conn, match func(Frame) bool) Frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, ws.SetReadDeadline(deadline))
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		f, err := DecodeFrame(data)
		require.NoError(t, err)
		if match(f) {
			return f
		}
	}
}

func replyTo(ref string) func(Frame) bool {
	return func(f Frame) bool { return f.Type == FrameReply && f.Ref == ref }
}

func TestGateway_DeliversInsertsToSubscribers(t *testing.T) {
	tg := startGateway(t)
	ws := tg.dial(t, "buyer")

	send(t, ws, Frame{Type: FrameSubscribe, Ref: "1", Topic: MessagesTopic("c1")})
	reply := await(t, ws, replyTo("1"))
	require.Equal(t, StatusOK, reply.Status)

	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tg.gateway.DeliverInsert(domainchat.Message{ID: "m1", ConversationID: "c1", SenderID: "seller", Body: "hi", CreatedAt: created})
	tg.gateway.DeliverInsert(domainchat.Message{ID: "x", ConversationID: "other", SenderID: "seller", Body: "nope", CreatedAt: created})

	insert := await(t, ws, func(f Frame) bool { return f.Type == FrameInsert })
	require.NotNil(t, insert.Message)
	assert.Equal(t, "m1", insert.Message.ID)
	assert.Equal(t, "hi", insert.Message.Text)
	assert.True(t, created.Equal(insert.Message.CreatedAt))
}

func TestGateway_UnsubscribeRequiresMessagesTopic(t *testing.T) {
	tg := startGateway(t)
	ws := tg.dial(t, "buyer")

	send(t, ws, Frame{Type: FrameSubscribe, Ref: "1", Topic: MessagesTopic("c1")})
	require.Equal(t, StatusOK, await(t, ws, replyTo("1")).Status)

	send(t, ws, Frame{Type: FrameUnsubscribe, Ref: "2", Topic: PresenceTopic("c1")})
	reply := await(t, ws, replyTo("2"))
	assert.Equal(t, StatusError, reply.Status)
	assert.Equal(t, "unsubscribe expects a messages topic", reply.Error)
	assert.Equal(t, 1, tg.gateway.hub.Subscribers(MessagesTopic("c1")))

	tg.gateway.DeliverInsert(domainchat.Message{ID: "m1", ConversationID: "c1", SenderID: "seller", Body: "hi", CreatedAt: time.Now()})
	insert := await(t, ws, func(f Frame) bool { return f.Type == FrameInsert })
	assert.Equal(t, "m1", insert.Message.ID)

	send(t, ws, Frame{Type: FrameUnsubscribe, Ref: "3", Topic: MessagesTopic("c1")})
	require.Equal(t, StatusOK, await(t, ws, replyTo("3")).Status)
	assert.Zero(t, tg.gateway.hub.Subscribers(MessagesTopic("c1")))
}

func TestGateway_RejectsNonParticipants(t *testing.T) {
	tg := startGateway(t)
	ws := tg.dial(t, "stranger")

	send(t, ws, Frame{Type: FrameSubscribe, Ref: "1", Topic: MessagesTopic("c1")})
	reply := await(t, ws, replyTo("1"))
	assert.Equal(t, StatusError, reply.Status)
	assert.Equal(t, "forbidden", reply.Error)

	send(t, ws, Frame{Type: FrameJoin, Ref: "2", Topic: PresenceTopic("missing")})
	reply = await(t, ws, replyTo("2"))
	assert.Equal(t, "not found", reply.Error)

	send(t, ws, Frame{Type: FrameSubscribe, Ref: "3", Topic: "garbage"})
	reply = await(t, ws, replyTo("3"))
	assert.Equal(t, StatusError, reply.Status)
	assert.Zero(t, tg.gateway.hub.Subscribers(MessagesTopic("c1")))
}

func TestGateway_PresenceTrackAndDisconnect(t *testing.T) {
	tg := startGateway(t)
	buyer := tg.dial(t, "buyer")
	seller := tg.dial(t, "seller")

	send(t, buyer, Frame{Type: FrameJoin, Ref: "1", Topic: PresenceTopic("c1")})
	require.Equal(t, StatusOK, await(t, buyer, replyTo("1")).Status)

	send(t, seller, Frame{Type: FrameTrack, Ref: "1", Topic: PresenceTopic("c1"), State: &TrackState{Typing: true}})
	assert.Equal(t, errNotJoined.Error(), await(t, seller, replyTo("1")).Error)

	send(t, seller, Frame{Type: FrameJoin, Ref: "2", Topic: PresenceTopic("c1")})
	require.Equal(t, StatusOK, await(t, seller, replyTo("2")).Status)
	send(t, seller, Frame{Type: FrameTrack, Ref: "3", Topic: PresenceTopic("c1"), State: &TrackState{Typing: true}})
	require.Equal(t, StatusOK, await(t, seller, replyTo("3")).Status)

	sync := await(t, buyer, func(f Frame) bool {
		return f.Type == FramePresenceSync && len(f.Presence["seller"]) == 1
	})
	assert.True(t, sync.Presence["seller"][0].Typing)

	require.NoError(t, seller.Close())

	await(t, buyer, func(f Frame) bool {
		return f.Type == FramePresenceSync && len(f.Presence["seller"]) == 0
	})
	records, err := tg.presence.List(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestGateway_UntrackThenLeave(t *testing.T) {
	tg := startGateway(t)
	ws := tg.dial(t, "buyer")

	send(t, ws, Frame{Type: FrameJoin, Ref: "1", Topic: PresenceTopic("c1")})
	await(t, ws, replyTo("1"))
	send(t, ws, Frame{Type: FrameTrack, Ref: "2", Topic: PresenceTopic("c1"), State: &TrackState{}})
	await(t, ws, replyTo("2"))
	send(t, ws, Frame{Type: FrameUntrack, Ref: "3", Topic: PresenceTopic("c1")})
	require.Equal(t, StatusOK, await(t, ws, replyTo("3")).Status)

	records, err := tg.presence.List(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, records)

	send(t, ws, Frame{Type: FrameLeave, Ref: "4", Topic: PresenceTopic("c1")})
	require.Equal(t, StatusOK, await(t, ws, replyTo("4")).Status)
	assert.Zero(t, tg.gateway.hub.Subscribers(PresenceTopic("c1")))
}

func TestGateway_SweepPresence(t *testing.T) {
	presence := NewMemoryPresence()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	g := NewGateway(GatewayConfig{Presence: presence, Now: func() time.Time { return now }})
	ctx := context.Background()

	require.NoError(t, presence.Track(ctx, "c1", PresenceRecord{ConnID: "old", UserID: "u1"}, now.Add(-5*time.Minute)))
	require.NoError(t, presence.Track(ctx, "c1", PresenceRecord{ConnID: "fresh", UserID: "u2"}, now))
	require.NoError(t, presence.Track(ctx, "c2", PresenceRecord{ConnID: "fresh2", UserID: "u3"}, now))

	n, err := g.SweepPresence(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	records, err := presence.List(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "fresh", records[0].ConnID)

	sweeper := NewSweeper(g, time.Minute, nil)
	require.NoError(t, sweeper.Register("@every 30s"))
	sweeper.Run()
}
