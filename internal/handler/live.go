package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"schooladmin/internal/apiclient"
	"schooladmin/internal/auth"
	"schooladmin/internal/httpmiddleware"
	"schooladmin/internal/resource"
	"schooladmin/internal/table"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 4096
)

// Live serves one mounted table over a WebSocket. The instance, and with it
// the table state, lives exactly as long as the connection.
func (h *Handler) Live(c *gin.Context) {
	sc, ok := h.screens[c.Param("table")]
	if !ok {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	s, ok := auth.Current(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	token := httpmiddleware.CSRFToken(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("live upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// The socket outlives token renewals of other requests, so it keeps the
	// access token it was opened with.
	creds := apiclient.CredentialsFunc(func(context.Context) (string, error) { return s.Access, nil })
	svc := resource.NewServices(h.api.WithCredentials(creds), h.query, s.User.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inst := sc.mount(ctx, svc, c.Request.URL.Query(), token)
	log := h.log.With(zap.String("table", c.Param("table")), zap.String("instance", inst.ID()), zap.String("user", s.User.ID))
	log.Debug("live table opened")

	done := make(chan struct{})
	go h.writeEvents(conn, inst, done, log)

	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg table.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Info("live table read failed", zap.Error(err))
			}
			break
		}
		if err := inst.Handle(msg); err != nil {
			if errors.Is(err, table.ErrUnknownMessage) {
				log.Debug("live table message ignored", zap.Error(err))
				continue
			}
			log.Warn("live table message rejected", zap.Error(err))
		}
	}

	inst.Close()
	<-done
	log.Debug("live table closed")
}

// writeEvents is the only writer on conn. It drains the instance's events
// until the instance closes, pinging in between.
func (h *Handler) writeEvents(conn *websocket.Conn, inst table.Live, done chan<- struct{}, log *zap.Logger) {
	defer close(done)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	failed := false
	for {
		select {
		case ev, ok := <-inst.Events():
			if !ok {
				if !failed {
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				}
				return
			}
			if failed {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.Info("live table write failed", zap.Error(err))
				failed = true
				// Unblock the reader so the instance gets closed.
				_ = conn.Close()
			}
		case <-ticker.C:
			if failed {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				failed = true
				_ = conn.Close()
			}
		}
	}
}
