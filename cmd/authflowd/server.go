package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/internal/logging"
	"github.com/MrEthical07/authflow/middleware"
)

// authenticatedKinds take the account from the session instead of the body.
var authenticatedKinds = map[authflow.RequestKind]bool{
	authflow.RequestEnroll:                true,
	authflow.RequestVerifyEnrollment:      true,
	authflow.RequestDisableSecondFactor:   true,
	authflow.RequestStatus:                true,
	authflow.RequestRegenerateBackupCodes: true,
}

type server struct {
	engine       *authflow.Engine
	log          logging.Logger
	maxBodyBytes int64
}

func newHandler(engine *authflow.Engine, log logging.Logger, maxBodyBytes int64, metrics http.Handler) http.Handler {
	s := &server{engine: engine, log: log, maxBodyBytes: maxBodyBytes}
	requireSession := middleware.RequireSession(engine)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	mux.HandleFunc("POST /v1/logout", s.logout)
	mux.HandleFunc("POST /v1/{kind}", func(w http.ResponseWriter, r *http.Request) {
		kind := authflow.RequestKind(r.PathValue("kind"))
		if authenticatedKinds[kind] {
			requireSession(http.HandlerFunc(s.handle)).ServeHTTP(w, r)
			return
		}
		s.handle(w, r)
	})

	return middleware.ClientInfo(mux)
}

func (s *server) handle(w http.ResponseWriter, r *http.Request) {
	kind := authflow.RequestKind(r.PathValue("kind"))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		writeError(w, authflow.ErrInvalidInput)
		return
	}

	req, err := authflow.DecodeRequest(kind, body)
	if err != nil {
		if errors.Is(err, authflow.ErrUnknownRequest) {
			http.NotFound(w, r)
			return
		}
		writeError(w, err)
		return
	}

	if authed, ok := req.(authflow.Authenticated); ok {
		principal, ok := middleware.PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, authflow.ErrSessionInvalid)
			return
		}
		authed.SetAccountID(principal.AccountID)
	}

	resp, err := s.engine.Handle(r.Context(), req)
	if err != nil {
		if authflow.KindOf(err) == authflow.KindInternalFailure {
			s.log.Error(r.Context(), "request failed", "kind", kind, "error", err)
		}
		writeError(w, err)
		return
	}

	status := http.StatusOK
	switch kind {
	case authflow.RequestRegister, authflow.RequestPasswordReset:
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		writeError(w, authflow.ErrSessionInvalid)
		return
	}
	if err := s.engine.Logout(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusFor(kind authflow.ErrorKind) int {
	switch kind {
	case authflow.KindInvalidInput:
		return http.StatusBadRequest
	case authflow.KindRateLimited:
		return http.StatusTooManyRequests
	case authflow.KindAuthenticationFailed:
		return http.StatusUnauthorized
	case authflow.KindUnverifiedEmail:
		return http.StatusForbidden
	case authflow.KindNotEnrolled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error   authflow.ErrorKind `json:"error"`
	Message string             `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	kind := authflow.KindOf(err)
	writeJSON(w, statusFor(kind), errorBody{Error: kind, Message: authflow.PublicMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
