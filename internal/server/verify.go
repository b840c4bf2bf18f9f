package server

import (
	"errors"
	"net/http"

	"github.com/capx-fi/finvest-miniapp/pkg/initdata"
	"github.com/capx-fi/finvest-miniapp/pkg/userapi"
)

const (
	msgMissingHash     = "Hash parameter is missing"
	msgInvalidInitData = "Invalid InitData"
	msgExpiredInitData = "InitData expired"
)

type initDataRequest struct {
	InitData string `json:"initData"`
}

type verifyResponse struct {
	Success  bool   `json:"success"`
	InitData string `json:"initData,omitempty"`
	Message  string `json:"message,omitempty"`
}

type authResponse struct {
	Success  bool              `json:"success"`
	User     *userapi.User     `json:"user,omitempty"`
	SignupTx *userapi.SignupTx `json:"signupTx,omitempty"`
	Message  string            `json:"message,omitempty"`
}

// relay runs the signature relay and writes the failure response itself when
// it returns false.
func (s *Server) relay(w http.ResponseWriter, r *http.Request) (string, bool) {
	log := s.requestLogger(r)

	var req initDataRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.metrics.relayOutcomes.WithLabelValues("bad_request").Inc()
		writeFailure(w, http.StatusBadRequest, err.Error())
		return "", false
	}

	relayed, err := s.relayer.Relay(req.InitData)
	switch {
	case err == nil:
		s.metrics.relayOutcomes.WithLabelValues("relayed").Inc()
		return relayed, true
	case errors.Is(err, initdata.ErrMissingSignature):
		s.metrics.relayOutcomes.WithLabelValues("missing_signature").Inc()
		writeFailure(w, http.StatusUnauthorized, msgMissingHash)
	case errors.Is(err, initdata.ErrInvalidSignature):
		s.metrics.relayOutcomes.WithLabelValues("invalid_signature").Inc()
		writeFailure(w, http.StatusUnauthorized, msgInvalidInitData)
	case errors.Is(err, initdata.ErrExpired):
		s.metrics.relayOutcomes.WithLabelValues("expired").Inc()
		writeFailure(w, http.StatusUnauthorized, msgExpiredInitData)
	default:
		s.metrics.relayOutcomes.WithLabelValues("error").Inc()
		log.Errorw("Failed to relay init data", "error", err)
		writeFailure(w, http.StatusInternalServerError, err.Error())
	}
	return "", false
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	relayed, ok := s.relay(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{Success: true, InitData: relayed})
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	if s.users == nil {
		writeFailure(w, http.StatusServiceUnavailable, "user service is not configured")
		return
	}
	relayed, ok := s.relay(w, r)
	if !ok {
		return
	}

	session, err := s.users.Authenticate(r.Context(), relayed)
	if err != nil {
		s.writeUpstreamError(w, r, "Failed to create user", err)
		return
	}
	setSessionCookies(w, r, session.AccessToken, session.RefreshToken)

	s.requestLogger(r).Infow("User authenticated", "user_id", session.User.ID, "version", session.User.Version)
	writeJSON(w, http.StatusOK, authResponse{
		Success:  true,
		User:     &session.User,
		SignupTx: signupTxOrNil(session.SignupTx),
	})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	if s.users == nil {
		writeFailure(w, http.StatusServiceUnavailable, "user service is not configured")
		return
	}
	session, _, ok := s.currentSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, authResponse{
		Success:  true,
		User:     &session.User,
		SignupTx: signupTxOrNil(session.SignupTx),
	})
}

func (s *Server) writeUpstreamError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, userapi.ErrUnauthorized) {
		writeFailure(w, http.StatusUnauthorized, msg)
		return
	}
	s.requestLogger(r).Errorw(msg, "error", err)
	writeFailure(w, http.StatusBadGateway, msg)
}

func signupTxOrNil(tx *userapi.SignupTx) *userapi.SignupTx {
	if tx.Empty() {
		return nil
	}
	return tx
}
