package httpledger

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"github.com/hamzazf/shieldwallet/internal/ledger"
	"github.com/hamzazf/shieldwallet/internal/logger"
)

// MaxBodyBytes bounds the size of one request envelope.
const MaxBodyBytes = 32 << 20

// Server exposes a ledger.Connection over HTTP.
type Server struct {
	backend ledger.Connection
	router  *httprouter.Router
	log     zerolog.Logger
}

// NewServer wraps backend.
func NewServer(backend ledger.Connection) *Server {
	s := &Server{
		backend: backend,
		router:  httprouter.New(),
		log:     logger.Logger().With().Str("component", "httpledger").Logger(),
	}
	s.router.POST("/message", s.handleMessage)
	s.router.GET("/health", s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var msg Message
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&msg); err != nil {
		s.log.Debug().Err(err).Msg("bad request body")
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	log := s.log.With().Str("type", msg.Type).Str("request_id", msg.RequestID).Logger()
	log.Debug().Msg("message received")

	ctx := r.Context()
	switch msg.Type {
	case TypePull, TypeInitialPull:
		var p PullPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid %s payload: %w", msg.Type, err))
			return
		}
		var (
			resp interface{}
			err  error
		)
		if msg.Type == TypePull {
			resp, err = s.backend.Pull(ctx, p.Checkpoint)
		} else {
			resp, err = s.backend.InitialPull(ctx, p.Checkpoint)
		}
		if err != nil {
			log.Warn().Err(err).Msg("backend failed")
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)

	case TypePush:
		var p PushPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid push payload: %w", err))
			return
		}
		resp, err := s.backend.Push(ctx, p.Posts)
		if err != nil {
			log.Warn().Err(err).Msg("backend failed")
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		log.Info().Bool("accepted", resp.Accepted).Str("code", resp.Code).Int("posts", len(p.Posts)).Msg("push handled")
		writeJSON(w, http.StatusOK, resp)

	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown message type %q", msg.Type))
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorBody{Error: err.Error()})
}
