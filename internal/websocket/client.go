package websocket

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// A frame result carries up to a few full landmark sets.
	maxMessageSize = 512 * 1024
)

// Client is a middleman between the exam page's websocket connection and the hub.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	// AttemptID associated with this connection
	AttemptID string

	// Buffered channel of outbound messages.
	Send chan []byte
}

// readPump pumps signals from the page to the hub.
func (c *Client) readPump() {
	defer func() {
		c.Hub.logger.Debug("Client", "readPump exiting", map[string]interface{}{"attempt_id": c.AttemptID})
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("Client", "Unexpected close", map[string]interface{}{"attempt_id": c.AttemptID, "error": err.Error()})
			}
			break
		}
		c.Hub.inbound(c, message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
// Each message is its own frame so the page can parse it as one envelope.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Hub.logger.Debug("Client", "Ping failed", map[string]interface{}{"attempt_id": c.AttemptID, "error": err.Error()})
				return
			}
		}
	}
}
