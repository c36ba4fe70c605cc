package gateway

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

// Client is one WebSocket peer. A client without subscriptions receives
// nothing; "*" subscribes to every symbol.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	subMu sync.RWMutex
	subs  map[string]bool // symbol -> subscribed
}

// clientMsg is an inbound control message.
//
//	{"type":"subscribe","symbols":["BTCUSDT"]}
//	{"type":"unsubscribe","symbols":["BTCUSDT"]}
//	{"type":"ping","ping":1700000000000}
type clientMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
	Ping    int64    `json:"ping"`
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  h,
		subs: make(map[string]bool),
	}
}

// ID returns the client's connection id.
func (c *Client) ID() string { return c.id }

// subscribed reports whether channel belongs to a subscribed symbol.
func (c *Client) subscribed(channel string) bool {
	i := strings.IndexByte(channel, ':')
	if i < 0 {
		return false
	}
	sym := channel[i+1:]
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return c.subs["*"] || c.subs[sym]
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Coalesce queued messages into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply(map[string]any{"type": "error", "error": "invalid message"})
			continue
		}

		switch strings.ToLower(msg.Type) {
		case "subscribe":
			c.subMu.Lock()
			for _, s := range msg.Symbols {
				c.subs[s] = true
			}
			c.subMu.Unlock()
			c.reply(map[string]any{"type": "subscribed", "symbols": msg.Symbols})
			c.hub.sendLatest(c, latestChannels(msg.Symbols))
		case "unsubscribe":
			c.subMu.Lock()
			for _, s := range msg.Symbols {
				delete(c.subs, s)
			}
			c.subMu.Unlock()
			c.reply(map[string]any{"type": "unsubscribed", "symbols": msg.Symbols})
		case "ping":
			c.reply(map[string]any{"type": "pong", "ping": msg.Ping, "server_ts": time.Now().UnixMilli()})
		default:
			c.reply(map[string]any{"type": "error", "error": "unknown type " + msg.Type})
		}
	}
}

// reply queues a control response. Only called from readPump, before the
// client is removed.
func (c *Client) reply(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func latestChannels(symbols []string) []string {
	out := make([]string, 0, 2*len(symbols))
	for _, s := range symbols {
		if s == "*" {
			continue
		}
		out = append(out, SnapshotChannel(s), SignalChannel(s))
	}
	return out
}
