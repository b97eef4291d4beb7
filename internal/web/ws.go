package web

import (
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func (c *wsClient) writeLoop() {
	ping := time.NewTicker(10 * time.Second)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump(onDone func()) {
	defer onDone()
	c.conn.SetReadLimit(1 << 20)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// wsUpgrade は /ws 配下への通常の HTTP リクエストを拒否するミドルウェアです。
func (s *Server) wsUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// notifications は進捗通知用の WebSocket 接続を受け付けます。
// クライアント ID が省略された場合はサーバー側で採番します。
func (s *Server) notifications() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		clientID := strings.TrimSpace(conn.Params("id"))
		if clientID == "" {
			clientID = uuid.NewString()
		}

		client := &wsClient{
			id:   clientID,
			conn: conn,
			send: make(chan []byte, 32),
		}
		s.hub.Add(client)

		go client.writeLoop()
		client.readPump(func() {
			s.hub.Remove(clientID)
		})
	})
}
