package websocket

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ikkim/delivery-tracker/pkg/logger"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second

	// must stay below pongWait so the peer's read deadline is refreshed in time
	pingPeriod = pongWait * 9 / 10

	// clients only send small watch requests
	maxMessageSize = 4 * 1024
)

// Conn is the transport behind a Client.
type Conn struct {
	*websocket.Conn
}

func (c *Conn) write(messageType int, payload []byte) error {
	c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteMessage(messageType, payload)
}

func (c *Conn) keepAlive() {
	c.SetReadDeadline(time.Now().Add(pongWait))
}

// ReadPump handles watch requests until the peer goes away, then unregisters
// the client. It must run in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.keepAlive()
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.keepAlive()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err == nil {
			c.Hub.HandleClientMessage(c, message)
			continue
		}

		fields := map[string]interface{}{"user_id": c.UserID}
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			fields["close_code"] = closeErr.Code
		}
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			logger.Warn("Status feed closed unexpectedly", fields)
		} else {
			logger.Debug("Status feed closed", fields)
		}
		return
	}
}

// WritePump forwards queued events to the peer, flushing everything already
// queued on each wakeup, and pings on an interval.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			if !ok {
				// hub dropped this client
				c.Conn.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"))
				return
			}
			if !c.flush(event) {
				return
			}

		case <-ticker.C:
			if err := c.Conn.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush writes first and whatever else is already buffered. Each event is its
// own text frame so clients can parse frames independently.
func (c *Client) flush(first []byte) bool {
	for event := first; ; {
		if err := c.Conn.write(websocket.TextMessage, event); err != nil {
			logger.Warn("Failed to write feed event", map[string]interface{}{
				"user_id": c.UserID,
				"error":   err.Error(),
			})
			return false
		}

		select {
		case next, ok := <-c.Send:
			if !ok {
				return false
			}
			event = next
		default:
			return true
		}
	}
}
