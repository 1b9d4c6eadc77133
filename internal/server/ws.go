package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/clinscribe/clinscribe/internal/broker"
	"github.com/clinscribe/clinscribe/internal/session"
)

// EventSource hands out per-session event subscriptions. Implemented by
// [broker.Broker].
type EventSource interface {
	Subscribe(sessionID string) *broker.Subscription
}

// handleStream upgrades to a WebSocket carrying one session's live traffic:
// binary frames in are audio, text frames out are broker events as JSON.
//
// Closing the socket does not end the session; a client may reconnect and
// keep dictating. Sessions end through the REST stop and delete routes.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.orch.Status(id); err != nil {
		s.writeOrchestratorError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept", "session_id", id, "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	var dec FrameDecoder
	if s.newDecoder != nil {
		dec, err = s.newDecoder()
		if err != nil {
			s.log.Error("creating audio decoder", "session_id", id, "error", err)
			conn.Close(websocket.StatusInternalError, "audio decoder unavailable")
			return
		}
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := s.events.Subscribe(id)
	defer sub.Close()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		s.writeEvents(ctx, conn, sub)
	}()

	s.readAudio(ctx, conn, id, dec)

	cancel()
	<-writeDone
	conn.Close(websocket.StatusNormalClosure, "")
}

// writeEvents forwards the session's event feed until the subscription
// closes, the socket fails, or ctx is cancelled.
func (s *Server) writeEvents(ctx context.Context, conn *websocket.Conn, sub *broker.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				return
			}
		}
	}
}

// readAudio pumps binary frames into the orchestrator until the socket
// closes or the session goes away.
func (s *Server) readAudio(ctx context.Context, conn *websocket.Conn, id string, dec FrameDecoder) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageBinary {
			s.log.Debug("ignoring non-binary frame", "session_id", id)
			continue
		}

		chunk := data
		if dec != nil {
			chunk, err = dec.Decode(data)
			if err != nil {
				s.log.Warn("decoding audio frame", "session_id", id, "error", err)
				continue
			}
		}

		if err := s.orch.ProcessAudio(id, chunk); err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return
			}
			// Other failures are already on the event feed; the client
			// decides whether to pause, resume, or stop.
			continue
		}
	}
}
