// Package gateway serves the engine over HTTP (echo) and WebSocket
// (gorilla/websocket): health, metrics, strategy and snapshot queries, and a
// live stream of snapshots and signals.
package gateway

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/metrics"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/orchestrator"
)

const replayDepth = 500

// SnapshotChannel is the WS channel carrying every snapshot of symbol.
func SnapshotChannel(symbol string) string { return "snapshot:" + symbol }

// SignalChannel is the WS channel carrying the chosen signals of symbol.
func SignalChannel(symbol string) string { return "signal:" + symbol }

// Hub tracks WebSocket clients and fans out engine results to them.
type Hub struct {
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	clients map[*Client]struct{}
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection.
	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates an empty hub. m may be nil.
func NewHub(log zerolog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		log:         log,
		metrics:     m,
		clients:     make(map[*Client]struct{}),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
	}
}

// Run broadcasts every result received on ch until ctx ends or ch closes.
func (h *Hub) Run(ctx context.Context, ch <-chan orchestrator.Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-ch:
			if !ok {
				return
			}
			h.PublishResult(res)
		}
	}
}

// PublishResult broadcasts the snapshot of res and, when present, its
// signal.
func (h *Hub) PublishResult(res orchestrator.Result) {
	if res.Snapshot == nil {
		return
	}
	sym := res.Snapshot.Symbol
	h.Broadcast(SnapshotChannel(sym), res.Snapshot.JSON())
	if res.Signal != nil {
		h.Broadcast(SignalChannel(sym), res.Signal.JSON())
	}
}

// Broadcast sends data on channel to every client subscribed to it and
// records it for replay.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	h.mu.Lock()
	h.channelSeqs[channel]++
	channelSeq := h.channelSeqs[channel]
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	h.seq++
	seq := h.seq
	rb, ok := h.replayBufs[channel]
	if !ok {
		rb = NewReplayBuffer(replayDepth)
		h.replayBufs[channel] = rb
	}
	h.mu.Unlock()

	buf := envelope(channel, data, now, seq, channelSeq)
	rb.Push(channelSeq, buf)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.subscribed(channel) {
			continue
		}
		select {
		case c.send <- buf:
		default:
			h.log.Debug().Str("client", c.id).Str("channel", channel).Msg("ws send buffer full, dropping")
		}
	}
}

// envelope hand-builds {"channel":..,"data":..,"ts":..,"seq":..,"channel_seq":..}.
// data must already be valid JSON.
func envelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	name, _ := json.Marshal(channel)
	buf := make([]byte, 0, len(name)+len(data)+160)
	buf = append(buf, `{"channel":`...)
	buf = append(buf, name...)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}

// Attach registers a new client on conn and starts its pumps.
func (h *Hub) Attach(conn *websocket.Conn) *Client {
	c := newClient(h, conn)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(n))
	}
	h.log.Info().Str("client", c.id).Int("clients", n).Msg("ws client connected")

	go c.writePump()
	go c.readPump()
	return c
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	n := len(h.clients)
	close(c.send)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(n))
	}
	h.log.Info().Str("client", c.id).Int("clients", n).Msg("ws client disconnected")
}

// Latest returns the last payload of channel.
func (h *Hub) Latest(channel string) (json.RawMessage, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.latest[channel]
	return e.Data, ok
}

// Replay returns the buffered envelopes of channel with channel_seq in
// [from, to].
func (h *Hub) Replay(channel string, from, to int64) [][]byte {
	h.mu.RLock()
	rb, ok := h.replayBufs[channel]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	entries := rb.Range(from, to)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

// ChannelSeq returns the current sequence number of channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// sendLatest queues the latest payload of each channel to c.
func (h *Hub) sendLatest(c *Client, channels []string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	for _, ch := range channels {
		e, ok := h.latest[ch]
		if !ok {
			continue
		}
		buf := envelope(ch, e.Data, e.TS, h.seq, e.Seq)
		select {
		case c.send <- buf:
		default:
		}
	}
}
