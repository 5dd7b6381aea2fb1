package polymarket

import (
	"context"
	"encoding/json"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/almastelek/PredMrkt/internal/infra/metrics"
)

// RawEvent is one WS frame with its ingest timestamp, captured before any
// parsing so the event log keeps the venue's exact bytes.
type RawEvent struct {
	Payload  []byte
	IngestTS int64
}

type subscribeMsg struct {
	Type      string   `json:"type"`
	AssetsIDs []string `json:"assets_ids"`
}

// MarketStream subscribes to the CLOB market channel for a set of asset ids
// and pushes raw frames into a buffered channel. When the consumer falls
// behind, frames are dropped rather than blocking the read loop.
type MarketStream struct {
	url      string
	assetIDs []string
	out      chan RawEvent

	connects int
}

// NewMarketStream creates a stream for the given assets. bufSize bounds the
// in-flight frame queue.
func NewMarketStream(url string, assetIDs []string, bufSize int) *MarketStream {
	if bufSize <= 0 {
		bufSize = 4096
	}
	return &MarketStream{
		url:      url,
		assetIDs: assetIDs,
		out:      make(chan RawEvent, bufSize),
	}
}

// Events is the stream of raw frames.
func (s *MarketStream) Events() <-chan RawEvent { return s.out }

func (s *MarketStream) ID() string  { return "polymarket-market" }
func (s *MarketStream) URL() string { return s.url }

// OnConnect sends the market-channel subscription. Called on every
// (re)connect so the subscription survives reconnects.
func (s *MarketStream) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	if s.connects > 0 {
		metrics.WSReconnectsTotal.Inc()
	}
	s.connects++

	sub, err := json.Marshal(subscribeMsg{Type: "MARKET", AssetsIDs: s.assetIDs})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		return err
	}
	slog.Info("subscribed to market channel", "assets", len(s.assetIDs))
	return nil
}

func (s *MarketStream) OnMessage(ctx context.Context, msg []byte) {
	// The read loop reuses its buffer, keep our own copy.
	payload := make([]byte, len(msg))
	copy(payload, msg)

	ev := RawEvent{Payload: payload, IngestTS: time.Now().UnixMilli()}
	select {
	case s.out <- ev:
	default:
		metrics.DroppedMessagesTotal.Inc()
	}
}

func (s *MarketStream) OnPing(ctx context.Context, conn *websocket.Conn) error {
	return conn.WriteMessage(websocket.PingMessage, nil)
}
