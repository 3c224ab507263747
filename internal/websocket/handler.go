package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs binds the page's connection to its attempt and blocks until it closes.
func ServeWs(hub *Hub, c *websocket.Conn, attemptID string) {
	client := &Client{Hub: hub, Conn: c, AttemptID: attemptID, Send: make(chan []byte, 256)}
	client.Hub.register <- client

	go client.writePump()
	client.readPump()
}
