package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size accepted from the peer.
	maxMessageSize = 16 << 10

	sendQueueSize = 256

	opTimeout = 5 * time.Second
)

var errNotJoined = errors.New("presence channel not joined")

// Conn is one websocket client. It is the middleman between the socket and the gateway.
type Conn struct {
	id      string
	userID  string
	ws      *websocket.Conn
	gateway *Gateway
	send    chan []byte
	done    chan struct{}
	once    sync.Once

	mu     sync.Mutex
	joined map[string]*joinState
}

type joinState struct {
	tracked  bool
	onlineAt time.Time
}

func newConn(g *Gateway, ws *websocket.Conn, id, userID string) *Conn {
	return &Conn{
		id:      id,
		userID:  userID,
		ws:      ws,
		gateway: g,
		send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
		joined:  make(map[string]*joinState),
	}
}

// deliver queues payload. A client that cannot keep up is disconnected.
func (c *Conn) deliver(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		c.gateway.logWarn("send queue full, dropping connection", "conn_id", c.id, "user_id", c.userID)
		c.shutdown()
		return false
	}
}

func (c *Conn) reply(ref, topic string, err error) {
	f := Frame{Type: FrameReply, Ref: ref, Topic: topic, Status: StatusOK}
	if err != nil {
		f.Status = StatusError
		f.Error = err.Error()
	}
	c.sendFrame(f)
}

func (c *Conn) sendFrame(f Frame) {
	payload, err := EncodeFrame(f)
	if err != nil {
		c.gateway.logWarn("encode frame failed", "error", err)
		return
	}
	c.deliver(payload)
}

func (c *Conn) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// readPump reads frames until the socket fails, then releases everything the connection held.
func (c *Conn) readPump() {
	defer func() {
		c.shutdown()
		c.gateway.disconnect(c)
		_ = c.ws.Close()
	}()
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.gateway.logWarn("websocket read failed", "conn_id", c.id, "error", err)
			}
			return
		}
		frame, err := DecodeFrame(data)
		if err != nil {
			c.reply("", "", errors.New("malformed frame"))
			continue
		}
		c.gateway.handle(c, frame)
	}
}

// writePump writes queued frames and pings. Each ping also refreshes the
// connection's presence records.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.shutdown()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
			c.heartbeat()
		}
	}
}

func (c *Conn) heartbeat() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	for _, channel := range c.trackedChannels() {
		if err := c.gateway.presence.Heartbeat(ctx, channel, c.id, c.gateway.now()); err != nil {
			c.gateway.logWarn("presence heartbeat failed", "conn_id", c.id, "channel", channel, "error", err)
		}
	}
}

func (c *Conn) join(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.joined[channel]; !ok {
		c.joined[channel] = &joinState{}
	}
}

// markTracked returns the first-track time for channel.
func (c *Conn) markTracked(channel string, now time.Time) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.joined[channel]
	if !ok {
		return time.Time{}, errNotJoined
	}
	if !st.tracked {
		st.tracked = true
		st.onlineAt = now
	}
	return st.onlineAt, nil
}

func (c *Conn) markUntracked(channel string) (wasTracked bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.joined[channel]
	if !ok {
		return false, errNotJoined
	}
	wasTracked = st.tracked
	st.tracked = false
	return wasTracked, nil
}

func (c *Conn) leave(channel string) (wasTracked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.joined[channel]
	if !ok {
		return false
	}
	delete(c.joined, channel)
	return st.tracked
}

func (c *Conn) trackedChannels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.joined))
	for ch, st := range c.joined {
		if st.tracked {
			out = append(out, ch)
		}
	}
	return out
}

// releaseAll forgets every joined channel and returns the tracked ones.
func (c *Conn) releaseAll() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var tracked []string
	for ch, st := range c.joined {
		if st.tracked {
			tracked = append(tracked, ch)
		}
	}
	c.joined = make(map[string]*joinState)
	return tracked
}
