package relay

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/ledger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// handleStream upgrades to a websocket and streams events. With ?after=N
// the journal tail after N is sent first; live events already covered by
// the tail are skipped. The connection is closed when the subscriber falls
// behind, and the client resumes with after set to the last sequence it saw.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "event stream not configured", Kind: string(domain.KindInternal)})
		return
	}
	after, err := queryUint(r, "after", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	backfill := r.URL.Query().Has("after")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe()
	defer sub.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	covered := uint64(0)
	if backfill {
		covered, err = s.sendBacklog(r, conn, after)
		if err != nil {
			s.logger.Debug().Err(err).Msg("stream backlog aborted")
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case e, ok := <-sub.Events():
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber lagging"))
				return
			}
			if e.Seq <= covered {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendBacklog writes journal events after seq and returns the last
// sequence written.
func (s *Server) sendBacklog(r *http.Request, conn *websocket.Conn, after uint64) (uint64, error) {
	for {
		entries, err := s.journal.List(r.Context(), after, defaultEventsPage)
		if err != nil {
			return after, err
		}
		if len(entries) == 0 {
			return after, nil
		}
		for _, e := range entries {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ledger.EventFromEntry(e)); err != nil {
				return after, err
			}
			after = e.Seq
		}
	}
}
