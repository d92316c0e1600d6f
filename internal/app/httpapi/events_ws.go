package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/R3E-Network/gas_vault/internal/events"
)

const (
	wsWriteTimeout  = 10 * time.Second
	wsPingInterval  = 30 * time.Second
	wsFeedBuffer    = 64
	wsBacklogEvents = 25
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin filtering happens in the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// streamEvents upgrades the connection and pushes vault events as JSON
// messages. The recent backlog is replayed first, oldest to newest, then live
// events follow. An address query parameter narrows the feed to one account.
func (h *handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	var filter events.EventFilter
	if address := strings.TrimSpace(r.URL.Query().Get("address")); address != "" {
		filter = func(e events.Event) bool { return strings.EqualFold(e.Address, address) }
	}

	feed := make(chan events.Event, wsFeedBuffer)
	push := func(e events.Event) {
		select {
		case feed <- e:
		default:
			// Slow consumer; drop rather than block the publisher.
		}
	}
	var unsubscribe func()
	if filter != nil {
		unsubscribe = h.events.SubscribeFiltered(filter, push)
	} else {
		unsubscribe = h.events.Subscribe(push)
	}
	defer unsubscribe()

	backlog := h.events.Recent(wsBacklogEvents)
	for i := len(backlog) - 1; i >= 0; i-- {
		if filter != nil && !filter(backlog[i]) {
			continue
		}
		if err := writeEvent(conn, backlog[i]); err != nil {
			return
		}
	}

	// The read pump exists to notice the peer going away; inbound payloads
	// are not part of the protocol.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case event := <-feed:
			if err := writeEvent(conn, event); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, event events.Event) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(event)
}
