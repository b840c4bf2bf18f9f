package server

import (
	"errors"
	"net/http"

	"github.com/capx-fi/finvest-miniapp/pkg/profile"
	"github.com/capx-fi/finvest-miniapp/pkg/userapi"
)

type prepareResponse struct {
	Success     bool                       `json:"success"`
	Call        *profile.CreateProfileCall `json:"call,omitempty"`
	InputParams *userapi.InputParams       `json:"inputParams,omitempty"`
	Message     string                     `json:"message,omitempty"`
}

type confirmRequest struct {
	TxHash string `json:"txHash"`
}

type confirmResponse struct {
	Success     bool          `json:"success"`
	BlockNumber uint64        `json:"blockNumber,omitempty"`
	User        *userapi.User `json:"user,omitempty"`
	Message     string        `json:"message,omitempty"`
}

func (s *Server) profilesReady(w http.ResponseWriter) bool {
	if s.users == nil || s.profiles == nil {
		writeFailure(w, http.StatusServiceUnavailable, "profile provisioning is not configured")
		return false
	}
	return true
}

// handleProfilePrepare funds the caller's wallet and returns the createProfile
// call for the wallet to sign.
func (s *Server) handleProfilePrepare(w http.ResponseWriter, r *http.Request) {
	if !s.profilesReady(w) {
		return
	}
	session, accessToken, ok := s.currentSession(w, r)
	if !ok {
		return
	}
	if !session.User.NeedsProfile() {
		writeFailure(w, http.StatusConflict, "Profile already minted")
		return
	}

	call, err := s.profiles.Prepare(session.SignupTx)
	switch {
	case errors.Is(err, profile.ErrNoSignupTx):
		writeFailure(w, http.StatusConflict, "No pending signup transaction")
		return
	case err != nil:
		s.requestLogger(r).Errorw("Invalid signup transaction", "user_id", session.User.ID, "error", err)
		writeFailure(w, http.StatusBadGateway, "Invalid signup transaction")
		return
	}

	if err := s.users.RequestFaucet(r.Context(), accessToken); err != nil {
		s.writeUpstreamError(w, r, "Failed to request faucet", err)
		return
	}

	writeJSON(w, http.StatusOK, prepareResponse{
		Success:     true,
		Call:        call,
		InputParams: &session.SignupTx.InputParams,
	})
}

// handleProfileConfirm waits for the wallet's createProfile transaction and
// returns the refreshed user.
func (s *Server) handleProfileConfirm(w http.ResponseWriter, r *http.Request) {
	if !s.profilesReady(w) {
		return
	}
	var req confirmRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := profile.ParseTxHash(req.TxHash)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := s.profiles.WaitForReceipt(r.Context(), hash)
	switch {
	case errors.Is(err, profile.ErrTransactionFailed):
		writeFailure(w, http.StatusUnprocessableEntity, "Profile transaction reverted")
		return
	case err != nil:
		s.requestLogger(r).Warnw("Profile transaction not confirmed", "tx", hash.Hex(), "error", err)
		writeFailure(w, http.StatusGatewayTimeout, "Profile transaction not confirmed")
		return
	}

	session, _, ok := s.currentSession(w, r)
	if !ok {
		return
	}
	resp := confirmResponse{Success: true, User: &session.User}
	if receipt.BlockNumber != nil {
		resp.BlockNumber = receipt.BlockNumber.Uint64()
	}
	writeJSON(w, http.StatusOK, resp)
}
