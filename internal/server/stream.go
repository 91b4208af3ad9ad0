package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/neopilot-ai/neopilot/internal/contract"
	"github.com/neopilot-ai/neopilot/internal/log"
	"github.com/neopilot-ai/neopilot/internal/session"
	"github.com/neopilot-ai/neopilot/internal/token"
)

const writeWait = 10 * time.Second

// upgrader configures the websocket handshake.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; auth is handled at the HTTP layer.
	},
}

// streamError is the outbound error envelope used before and alongside the
// action stream.
type streamError struct {
	Error string `json:"error"`
}

// handleExecute upgrades the connection and runs one workflow session over
// it. The first message must be a startRequest; everything after follows the
// client event envelope.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	claims, err := s.bearerClaims(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.ErrorErr(log.CatServer, "Websocket upgrade failed", err)
		return
	}
	conn.SetReadLimit(s.cfg.MaxMessageBytes)

	st := &stream{
		server: s,
		conn:   conn,
		claims: claims,
		send:   make(chan any, 16),
	}
	st.run()
}

// stream is one websocket connection bound to one session.
type stream struct {
	server *Server
	conn   *websocket.Conn
	claims *token.Claims
	sess   *session.Session

	// send carries out-of-band messages to the single writer goroutine.
	send chan any
}

func (st *stream) run() {
	defer st.conn.Close()

	start, ok := st.awaitStart()
	if !ok {
		return
	}

	if st.claims != nil && start.WorkflowID != "" && !st.claims.AllowsWorkflow(start.WorkflowID) {
		st.writeDirect(streamError{Error: "execution token does not permit this workflow"})
		return
	}

	sess, err := st.server.manager.Start(context.Background(), start)
	if err != nil {
		st.writeDirect(streamError{Error: err.Error()})
		return
	}
	st.sess = sess

	writerDone := make(chan struct{})
	log.SafeGo("server.writePump", func() {
		defer close(writerDone)
		st.writePump()
	})

	if st.server.planner != nil {
		planner := st.server.planner(sess)
		log.SafeGo("server.sessionRun", func() {
			sess.Run(context.Background(), planner)
		})
	}

	st.readPump()

	// The read side is gone. A terminal session closed its own queue; an
	// abandoned one is stopped so the write pump can drain and exit.
	sess.Stop("connection_closed")
	<-writerDone
}

// awaitStart reads the opening message and requires it to be a startRequest.
func (st *stream) awaitStart() (*contract.StartRequest, bool) {
	_, raw, err := st.conn.ReadMessage()
	if err != nil {
		return nil, false
	}

	var event contract.ClientEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		st.writeDirect(streamError{Error: "invalid JSON: " + err.Error()})
		return nil, false
	}

	start, ok := event.Payload.(*contract.StartRequest)
	if !ok {
		st.writeDirect(streamError{Error: "first event must be startRequest"})
		return nil, false
	}
	return start, true
}

// readPump dispatches inbound events until the connection drops.
func (st *stream) readPump() {
	for {
		_, raw, err := st.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
			) {
				log.Debug(log.CatServer, "Stream read ended",
					"session", st.sess.ID(), "error", err.Error())
			}
			return
		}

		var event contract.ClientEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			st.report(streamError{Error: "invalid JSON: " + err.Error()})
			continue
		}

		switch p := event.Payload.(type) {
		case *contract.StartRequest:
			// One session per stream. A second start is a protocol
			// violation that ends the connection.
			st.report(streamError{Error: "session already started on this stream"})
			return
		case *contract.ActionResponse:
			st.sess.SubmitResponse(*p)
		case *contract.Heartbeat:
			st.sess.Heartbeat()
		case *contract.StopWorkflow:
			reason := p.Reason
			if reason == "" {
				reason = "client_stop"
			}
			st.sess.Stop(reason)
		}
	}
}

// writePump is the sole writer after the handshake. It drains the session's
// action queue and out-of-band errors until the queue closes.
func (st *stream) writePump() {
	actions := st.sess.Actions()
	for {
		select {
		case action, ok := <-actions:
			if !ok {
				deadline := time.Now().Add(writeWait)
				_ = st.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				return
			}
			if st.claims != nil && !st.claims.Allows(string(action.Payload.ActionVariant())) {
				log.Warn(log.CatServer, "Action variant not permitted by execution token",
					"session", st.sess.ID(),
					"requestID", action.RequestID,
					"variant", string(action.Payload.ActionVariant()))
				st.sess.SubmitResponse(contract.ActionResponse{
					RequestID: action.RequestID,
					PlainTextResponse: &contract.PlainTextResponse{
						Error: "action variant not permitted by execution token",
					},
				})
				continue
			}
			if !st.write(action) {
				return
			}
		case msg := <-st.send:
			if !st.write(msg) {
				return
			}
		}
	}
}

// report hands an error to the writer without blocking. Errors are dropped
// once the writer has exited.
func (st *stream) report(msg streamError) {
	select {
	case st.send <- msg:
	default:
	}
}

func (st *stream) write(msg any) bool {
	_ = st.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := st.conn.WriteJSON(msg); err != nil {
		log.Debug(log.CatServer, "Stream write failed",
			"session", st.sess.ID(), "error", err.Error())
		return false
	}
	return true
}

// writeDirect writes before the write pump exists.
func (st *stream) writeDirect(msg any) {
	_ = st.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = st.conn.WriteJSON(msg)
}
