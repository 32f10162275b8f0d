package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/herald/internal/messaging"
	"github.com/nfrund/herald/internal/topicmgr"
)

const streamBuffer = 64

// StreamSubscriber is the subset of messaging.Subscriber a stream needs.
type StreamSubscriber interface {
	Subscribe(ctx context.Context, topic string, handler messaging.Handler) error
	Close(ctx context.Context) error
}

// StreamFrame is one message forwarded to a websocket client.
type StreamFrame struct {
	Topic      string          `json:"topic"`
	Message    json.RawMessage `json:"message"`
	ReceivedAt time.Time       `json:"received_at"`
}

// StreamHandler forwards a topic's messages to websocket clients. Each
// connection gets its own subscriber so connections never collide on the
// one-subscription-per-topic rule.
type StreamHandler struct {
	newSubscriber func() StreamSubscriber
	logger        *slog.Logger
}

// NewStreamHandler creates a stream handler. newSubscriber is called once per
// connection.
func NewStreamHandler(newSubscriber func() StreamSubscriber, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		newSubscriber: newSubscriber,
		logger:        logger.With("component", "stream"),
	}
}

// ServeWS upgrades the request and streams the topic until the client leaves.
func (h *StreamHandler) ServeWS(c echo.Context) error {
	name, err := topicmgr.Normalize(c.Param("name"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_topic", err.Error())
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("Failed to upgrade stream WebSocket", "topic", name, "error", err)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	send := make(chan []byte, streamBuffer)
	sub := h.newSubscriber()
	err = sub.Subscribe(ctx, name, func(_ context.Context, msg messaging.Message) error {
		frame, err := json.Marshal(StreamFrame{Topic: msg.Topic, Message: msg.Raw, ReceivedAt: msg.ReceivedAt})
		if err != nil {
			return err
		}
		select {
		case send <- frame:
		default:
			h.logger.Warn("Stream client too slow, dropping message", "topic", msg.Topic)
		}
		return nil
	})
	if err != nil {
		h.logger.Error("Stream subscribe failed", "topic", name, "error", err)
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return nil
	}

	client := &streamClient{conn: conn, send: send, logger: h.logger.With("topic", name)}
	h.logger.Info("Stream client connected", "topic", name)

	go client.writePump(ctx)
	client.readPump(ctx)

	cancel()
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	if err := sub.Close(closeCtx); err != nil {
		h.logger.Warn("Stream unsubscribe failed", "topic", name, "error", err)
	}
	h.logger.Info("Stream client disconnected", "topic", name)
	return nil
}

type streamClient struct {
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
}

// readPump drains client frames until the connection closes. Inbound frames
// are ignored.
func (c *streamClient) readPump(ctx context.Context) {
	defer c.conn.Close(websocket.StatusNormalClosure, "")
	for {
		_, _, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				c.logger.Debug("Stream WebSocket closed normally")
			} else {
				c.logger.Debug("Stream readPump ended", "error", err)
			}
			return
		}
	}
}

func (c *streamClient) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := c.conn.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				c.logger.Error("Stream writePump error", "error", err)
				c.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}
