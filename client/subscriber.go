package client

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/meridian-courier/device-trust/realtime"
)

// SubscribeRealtime opens the change-event stream and merges every event
// into the local cache. One subscription per loaded account; the returned
// cancel tears it down. There is no reconnect logic here: when the transport
// drops, reconciliation stalls until the gate's polling repairs the cache
// and a later subscription attempt succeeds.
func (c *Client) SubscribeRealtime(ctx context.Context) (func(), error) {
	header := http.Header{}
	if token := c.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.Dial(ctx, c.baseURL+"/api/v1/devices/stream", &websocket.DialOptions{
		HTTPClient: c.ws,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer conn.Close(websocket.StatusNormalClosure, "subscription closed")
		for {
			var ev realtime.Event
			if err := wsjson.Read(subCtx, conn, &ev); err != nil {
				if subCtx.Err() == nil {
					c.log.WithError(err).Debug("client: realtime stream ended")
				}
				return
			}
			c.store.Apply(ev)
		}
	}()

	return cancel, nil
}
