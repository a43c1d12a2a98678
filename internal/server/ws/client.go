package ws

import (
	"encoding/json"

	"github.com/gorilla/websocket"

	"github.com/peopledesk/peopledesk/internal/server/models"
)

type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID int
}

func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	for {
		_, msgBytes, err := c.Conn.ReadMessage()
		if err != nil {
			break
		}

		var inbound models.WSInbound
		if err := json.Unmarshal(msgBytes, &inbound); err != nil {
			// Tolerate non-JSON frames from clients.
			continue
		}

		c.ProcessMessage(inbound)
	}
}

func (c *Client) WritePump() {
	defer func() {
		c.Conn.Close()
	}()
	for msg := range c.Send {
		c.Conn.WriteMessage(websocket.TextMessage, msg)
	}
}

func (c *Client) ProcessMessage(inbound models.WSInbound) {
	switch {
	case inbound.Type == "ping":
		c.SendJSON(map[string]string{"type": "pong"})

	case inbound.ReceiverID > 0 && inbound.Content != "":
		msg, err := c.Hub.Store.SaveMessage(c.UserID, inbound.ReceiverID, inbound.Content)
		if err != nil {
			c.Hub.log.Errorw("save message", "sender", c.UserID, "err", err)
			return
		}

		// Push to the receiver and echo to the sender: the client
		// shows its own message only once it comes back.
		c.Hub.PushTo(inbound.ReceiverID, msg)
		if inbound.ReceiverID != c.UserID {
			c.Hub.PushTo(c.UserID, msg)
		}

		if !c.Hub.IsOnline(inbound.ReceiverID) {
			c.Hub.Store.AddNotification(inbound.ReceiverID, "messages")
		}
	}
}

func (c *Client) SendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}
