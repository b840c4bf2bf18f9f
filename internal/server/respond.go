package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const maxJSONBodyBytes = 64 << 10 // 64 KiB

var errBodyTooLarge = errors.New("body too large")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusResponse is the {success, message} shape shared by the auth routes.
type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, statusResponse{Success: false, Message: msg})
}

func readBodyLimited(r io.Reader, max int64) ([]byte, error) {
	lr := io.LimitReader(r, max+1)
	b, err := io.ReadAll(lr)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(b)) > max {
		return nil, fmt.Errorf("%w (max %d bytes)", errBodyTooLarge, max)
	}
	return b, nil
}

func decodeJSONBody(r *http.Request, v any) error {
	body, err := readBodyLimited(r.Body, maxJSONBodyBytes)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
