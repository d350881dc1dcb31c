package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"phobos.org.uk/sajtmaskin/internal/session"
)

const (
	wsWriteWait = 10 * time.Second

	// wsStatePoll bounds how long a subscriber that missed the terminal
	// event waits before the final view is sent.
	wsStatePoll = time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleStreamEvents upgrades to a websocket, sends the current view of the
// stream as its first message and then forwards live events until the
// stream ends. The connection is closed after the terminal event.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	log := s.log.WithStream(sess.ID)

	// Subscribe before reading the view so no event falls between them.
	events, unsubscribe := s.hub.Subscribe(sess.ID, s.config.Streams.SubscriberBuffer)
	defer unsubscribe()

	view := sess.View()
	if err := writeEvent(conn, viewEvent(view)); err != nil {
		return
	}
	if view.State.IsTerminal() {
		closeNormal(conn, string(view.State))
		return
	}
	log.Debug("subscriber attached", map[string]any{"seq": view.Seq})

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsStatePoll)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Chunk != nil && ev.Seq <= view.Seq {
				continue
			}
			if err := writeEvent(conn, ev); err != nil {
				return
			}
			if ev.State.IsTerminal() {
				closeNormal(conn, string(ev.State))
				return
			}
		case <-ticker.C:
			if v := sess.View(); v.State.IsTerminal() {
				if err := writeEvent(conn, viewEvent(v)); err == nil {
					closeNormal(conn, string(v.State))
				}
				return
			}
		case <-gone:
			log.Debug("subscriber detached")
			return
		case <-s.shutdown:
			closeNormal(conn, "shutting down")
			return
		}
	}
}

func viewEvent(v session.View) session.Event {
	snap := v.Snapshot
	return session.Event{
		StreamID: v.ID,
		Seq:      v.Seq,
		State:    v.State,
		Snapshot: &snap,
		Error:    v.Error,
	}
}

func writeEvent(conn *websocket.Conn, ev session.Event) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(ev)
}

func closeNormal(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
