package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	minReconnectDelay = 1 * time.Second
	maxReconnectDelay = 30 * time.Second
	pingInterval      = 50 * time.Second
	pongWaitFeed      = 90 * time.Second
)

// RawFrame is an undecoded venue WS message tagged with its discriminator
// ("e" field) so downstream can route and, for unknown types, forward
// unchanged without ever driving state (spec §9 "dynamic typing at the edge").
type RawFrame struct {
	EventType string
	Symbol    string
	Payload   json.RawMessage
	ReceivedAtMs int64
}

type frameEnvelope struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
}

// Feed manages a single WebSocket connection to the venue's combined market
// stream, with auto-reconnect and typed-event dispatch by discriminator
// field, generalized from the teacher's internal/exchange/ws.go.
type Feed struct {
	url    string
	logger *slog.Logger

	framesCh chan RawFrame
}

// NewFeed creates a Feed bound to url (the venue's combined WS stream
// endpoint). Call Run in its own goroutine.
func NewFeed(url string, logger *slog.Logger) *Feed {
	return &Feed{
		url:      url,
		logger:   logger.With("component", "exchange-feed"),
		framesCh: make(chan RawFrame, 4096),
	}
}

// Frames returns the channel of decoded raw frames. Consumers dispatch by
// EventType ("aggTrade", "depthUpdate", "miniTicker", or forward-unknown).
func (f *Feed) Frames() <-chan RawFrame {
	return f.framesCh
}

// Run connects and reconnects with exponential backoff until ctx is
// cancelled. The delay doubles after every disconnect up to
// maxReconnectDelay; a successful connection does not reset it.
func (f *Feed) Run(ctx context.Context) {
	delay := minReconnectDelay
	for {
		select {
		case <-ctx.Done():
			close(f.framesCh)
			return
		default:
		}

		if err := f.connectAndRead(ctx); err != nil {
			f.logger.Warn("feed disconnected, reconnecting", "error", err, "delay", delay)
		}

		select {
		case <-ctx.Done():
			close(f.framesCh)
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *Feed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	f.logger.Info("feed connected", "url", f.url)

	conn.SetReadDeadline(time.Now().Add(pongWaitFeed))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWaitFeed))
		return nil
	})

	done := make(chan struct{})
	go f.pingLoop(ctx, conn, done)
	defer close(done)

	// Reads until the connection fails; the caller's reconnect delay is left
	// as it was before this connection.
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		f.dispatch(data)
	}
}

func (f *Feed) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *Feed) dispatch(data []byte) {
	var env frameEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		f.logger.Warn("unparseable frame, dropped", "error", err)
		return
	}

	frame := RawFrame{
		EventType:    env.EventType,
		Symbol:       env.Symbol,
		Payload:      json.RawMessage(data),
		ReceivedAtMs: time.Now().UnixMilli(),
	}

	select {
	case f.framesCh <- frame:
	default:
		f.logger.Warn("frame buffer full, dropping", "event_type", env.EventType, "symbol", env.Symbol)
	}
}
