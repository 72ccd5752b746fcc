package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// WSClient moves frames between a gorilla connection and a Session.
type WSClient struct {
	conn    *websocket.Conn
	session *Session
	gw      *Gateway
	log     zerolog.Logger
}

// ServeConn authorizes an upgraded connection and runs it until the client
// goes away. Rejections are sent as a close frame carrying the close code.
func ServeConn(ctx context.Context, gw *Gateway, conn *websocket.Conn, credential, roomID string) {
	session, err := gw.Connect(ctx, credential, roomID)
	if err != nil {
		code, reason := websocket.CloseInternalServerErr, "internal error"
		var rej *RejectError
		if errors.As(err, &rej) {
			code, reason = rej.Code, rej.Reason
		}
		msg := websocket.FormatCloseMessage(code, reason)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	c := &WSClient{
		conn:    conn,
		session: session,
		gw:      gw,
		log:     *gw.sessionLog(session),
	}
	c.Run(ctx)
}

// Run starts the write pump and blocks in the read pump. The session is
// disconnected before Run returns.
func (c *WSClient) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(ctx)
	}()

	c.readPump(ctx)

	c.gw.Disconnect(context.WithoutCancel(ctx), c.session)
	cancel()
	<-writerDone
}

func (c *WSClient) readPump(ctx context.Context) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Warn().Err(err).Msg("error reading message")
			}
			return
		}
		c.gw.Handle(ctx, c.session, message)
	}
}

// writePump is the only writer on the connection.
func (c *WSClient) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev := <-c.session.Outbound():
			out := c.gw.PrepareOutbound(ctx, c.session, ev)
			data, err := json.Marshal(out)
			if err != nil {
				c.log.Error().Err(err).Str("type", out.Type).Msg("error encoding event")
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.gw.KeepAlive(ctx, c.session)

		case <-c.session.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ctx.Done():
			return
		}
	}
}
