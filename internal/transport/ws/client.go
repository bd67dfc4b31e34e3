package ws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"colonycraft.ai/internal/protocol"
)

// Client is an observer connection subscribed to one colony.
type Client struct {
	conn *websocket.Conn
}

// CloseError is returned when the server ends the subscription with a
// protocol error code as the close reason.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("replication closed: %d %s", e.Code, e.Reason)
}

// Dial connects to url and subscribes to colonyID.
func Dial(ctx context.Context, url, colonyID string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	sub := protocol.SubscribeMsg{
		Type:            protocol.TypeSubscribe,
		ProtocolVersion: protocol.Version,
		ColonyID:        colonyID,
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send SUBSCRIBE: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Next blocks for the next citizen view snapshot.
func (c *Client) Next() (protocol.CitizenViewsMsg, error) {
	for {
		typ, b, err := c.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return protocol.CitizenViewsMsg{}, &CloseError{Code: ce.Code, Reason: ce.Text}
			}
			return protocol.CitizenViewsMsg{}, err
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		return protocol.DecodeCitizenViews(b)
	}
}

// Stream calls fn for every snapshot until ctx is done or the connection
// fails. Decode errors end the stream.
func (c *Client) Stream(ctx context.Context, fn func(protocol.CitizenViewsMsg)) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.conn.Close()
		case <-done:
		}
	}()
	for {
		msg, err := c.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		fn(msg)
	}
}

func (c *Client) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	return c.conn.Close()
}
