package controllers

import (
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/meridian-courier/device-trust/identity"
	"github.com/meridian-courier/device-trust/models"
	"github.com/meridian-courier/device-trust/realtime"
)

type StreamController struct {
	broker realtime.Broker
	log    *logrus.Logger
}

func NewStreamController(broker realtime.Broker, log *logrus.Logger) *StreamController {
	return &StreamController{broker: broker, log: log}
}

// Stream upgrades to a websocket and relays registry change events. Each
// connection carries the session account's rows only, except for elevated
// roles, which additionally receive awaiting_verification events for any
// account (the moderation feed).
func (sc *StreamController) Stream(c *gin.Context) {
	acct, ok := accountFrom(c)
	if !ok {
		c.AbortWithStatus(401)
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		sc.log.WithError(err).Debug("stream: websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	// The client never sends; CloseRead surfaces disconnects as context
	// cancellation.
	ctx := conn.CloseRead(c.Request.Context())

	events, cancel, err := sc.broker.Subscribe(ctx)
	if err != nil {
		sc.log.WithError(err).Warn("stream: broker subscription failed")
		conn.Close(websocket.StatusInternalError, "subscription failed")
		return
	}
	defer cancel()

	for {
		select {
		case ev, open := <-events:
			if !open {
				conn.Close(websocket.StatusNormalClosure, "feed ended")
				return
			}
			if !visibleTo(acct, ev) {
				continue
			}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				return
			}
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client gone")
			return
		}
	}
}

func visibleTo(acct identity.Account, ev realtime.Event) bool {
	if ev.Device.AccountID == acct.ID {
		return true
	}
	return acct.Elevated() && ev.Device.Status == models.StatusAwaitingVerification
}
