package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"paperback-server/internal/engine"
	"paperback-server/internal/message"
	"paperback-server/internal/model"
	"paperback-server/internal/store"
)

// Auth headers for the function endpoint.
const (
	HeaderSessionToken = "X-Session-Token"
	HeaderMasterKey    = "X-Master-Key"
)

// scriptError is the outer failure code: every function error travels as a
// script failure wrapping the engine's own numeric code.
const scriptError = 141

// params is the union of every function's arguments; each function reads
// only the fields it knows.
type params struct {
	DisplayName string               `json:"displayName"`
	GameID      string               `json:"gameId"`
	GameIDs     []string             `json:"gameIds"`
	UserID      string               `json:"userId"`
	Save        string               `json:"save"`
	Final       bool                 `json:"final"`
	Limit       int                  `json:"limit"`
	Skip        int                  `json:"skip"`
	Slots       []engine.SlotRequest `json:"slots"`
	FameCards   map[string]int       `json:"fameCards"`
	TurnMaxSec  int                  `json:"turnMaxSec"`
}

func (p *params) page() store.Page {
	return store.Page{Limit: p.Limit, Skip: p.Skip}
}

func (s *Server) functionHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if !s.limiter.Allow(callerKey(r)) {
		s.writeFailure(w, message.NewError(message.ErrUnknown))
		return
	}

	var p params
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		s.writeFailure(w, message.NewError(message.ErrInvalidParameter))
		return
	}

	payload, err := s.dispatch(r, name, &p)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeResult(w, payload)
}

func (s *Server) dispatch(r *http.Request, name string, p *params) (any, error) {
	ctx := r.Context()

	switch name {
	case "checkNameFree":
		return s.engine.CheckNameFree(ctx, p.DisplayName)

	case "createGame":
		user, err := s.caller(r)
		if err != nil {
			return nil, err
		}
		return s.engine.CreateGame(ctx, user, &engine.ConfigRequest{
			Slots:      p.Slots,
			FameCards:  p.FameCards,
			TurnMaxSec: p.TurnMaxSec,
		})

	case "joinGame":
		user, gameID, err := s.callerAndGame(r, p)
		if err != nil {
			return nil, err
		}
		return s.engine.JoinGame(ctx, user, gameID)

	case "leaveGame":
		user, gameID, err := s.callerAndGame(r, p)
		if err != nil {
			return nil, err
		}
		return s.engine.LeaveGame(ctx, user, gameID)

	case "startGame":
		user, gameID, err := s.callerAndGame(r, p)
		if err != nil {
			return nil, err
		}
		return s.engine.StartGame(ctx, user, gameID)

	case "gameTurn":
		user, gameID, err := s.callerAndGame(r, p)
		if err != nil {
			return nil, err
		}
		return s.engine.GameTurn(ctx, user, gameID, p.Save, p.Final)

	case "getInvite":
		user, gameID, err := s.callerAndGame(r, p)
		if err != nil {
			return nil, err
		}
		return s.engine.GetInvite(ctx, user, gameID)

	case "declineInvite":
		user, gameID, err := s.callerAndGame(r, p)
		if err != nil {
			return nil, err
		}
		return s.engine.DeclineInvite(ctx, user, gameID)

	case "findGames":
		user, err := s.caller(r)
		if err != nil {
			return nil, err
		}
		return s.engine.FindGames(ctx, user, p.page())

	case "listGames":
		user, err := s.caller(r)
		if err != nil {
			return nil, err
		}
		ids := make([]uuid.UUID, 0, len(p.GameIDs))
		for _, raw := range p.GameIDs {
			id, perr := uuid.Parse(raw)
			if perr != nil {
				return nil, message.NewError(message.ErrInvalidParameter)
			}
			ids = append(ids, id)
		}
		return s.engine.ListGames(ctx, user, ids, p.page())

	case "listTurns":
		user, gameID, err := s.callerAndGame(r, p)
		if err != nil {
			return nil, err
		}
		return s.engine.ListTurns(ctx, user, gameID, p.page())

	case "listFriends":
		user, err := s.caller(r)
		if err != nil {
			return nil, err
		}
		return s.engine.ListFriends(ctx, user, p.page())

	case "deleteFriend":
		user, err := s.caller(r)
		if err != nil {
			return nil, err
		}
		contactID, perr := uuid.Parse(p.UserID)
		if perr != nil {
			return nil, message.NewError(message.ErrInvalidParameter)
		}
		return s.engine.DeleteFriend(ctx, user, contactID)

	case "debugGame":
		gameID, err := s.masterGame(r, p)
		if err != nil {
			return nil, err
		}
		return s.engine.DebugGame(ctx, gameID)

	case "destroyGame":
		gameID, err := s.masterGame(r, p)
		if err != nil {
			return nil, err
		}
		if err := s.engine.DestroyGame(ctx, gameID); err != nil {
			return nil, err
		}
		return map[string]bool{"destroyed": true}, nil

	case "purgeRandomGames":
		if err := s.requireMaster(r); err != nil {
			return nil, err
		}
		return s.engine.PurgeRandomGames(ctx)

	case "purgeContacts":
		if err := s.requireMaster(r); err != nil {
			return nil, err
		}
		return s.engine.PurgeContacts(ctx)

	default:
		return nil, message.NewError(message.ErrInvalidParameter)
	}
}

// caller resolves the session token to a user.
func (s *Server) caller(r *http.Request) (*model.User, error) {
	token := r.Header.Get(HeaderSessionToken)
	if token == "" {
		return nil, message.NewError(message.ErrUserNotFound)
	}
	userID, err := s.store.Sessions.UserID(r.Context(), token)
	if err != nil {
		return nil, message.NewError(message.ErrUserNotFound)
	}
	user, err := s.store.Users.Get(r.Context(), userID)
	if err != nil {
		return nil, message.NewError(message.ErrUserNotFound)
	}
	return user, nil
}

func (s *Server) callerAndGame(r *http.Request, p *params) (*model.User, uuid.UUID, error) {
	user, err := s.caller(r)
	if err != nil {
		return nil, uuid.Nil, err
	}
	gameID, perr := uuid.Parse(p.GameID)
	if perr != nil {
		return nil, uuid.Nil, message.NewError(message.ErrGameNotFound)
	}
	return user, gameID, nil
}

func (s *Server) requireMaster(r *http.Request) error {
	if s.cfg.MasterKey == "" || r.Header.Get(HeaderMasterKey) != s.cfg.MasterKey {
		return message.NewError(message.ErrUserNotFound)
	}
	return nil
}

func (s *Server) masterGame(r *http.Request, p *params) (uuid.UUID, error) {
	if err := s.requireMaster(r); err != nil {
		return uuid.Nil, err
	}
	gameID, perr := uuid.Parse(p.GameID)
	if perr != nil {
		return uuid.Nil, message.NewError(message.ErrGameNotFound)
	}
	return gameID, nil
}

// writeResult wraps a function payload in the success envelope.
func (s *Server) writeResult(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"result": payload}); err != nil {
		s.log.WithError(err).Warn("failed to write result")
	}
}

// writeFailure wraps a coded error in the failure envelope. The outer code
// marks a script failure; the inner one carries the real reason.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	merr := message.AsError(err)
	if cause := merr.Unwrap(); cause != nil {
		s.log.WithError(cause).WithField("code", int(merr.Code)).Warn("function failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	body := map[string]any{
		"code": scriptError,
		"error": map[string]any{
			"code":    int(merr.Code),
			"message": merr.Message(),
		},
	}
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		s.log.WithError(encErr).Warn("failed to write error")
	}
}

// callerKey buckets rate limiting per session when present, per address
// otherwise.
func callerKey(r *http.Request) string {
	if token := r.Header.Get(HeaderSessionToken); token != "" {
		return token
	}
	return r.RemoteAddr
}
