package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/capx-fi/finvest-miniapp/pkg/userapi"
)

const (
	accessTokenCookie  = "access_token"
	refreshTokenCookie = "refresh_token"

	refreshSkew = 30 * time.Second
)

func setSessionCookies(w http.ResponseWriter, r *http.Request, accessToken, refreshToken string) {
	secure := r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
	set := func(name, value string) {
		if value == "" {
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	set(accessTokenCookie, accessToken)
	set(refreshTokenCookie, refreshToken)
}

// clearSessionCookies expires both session cookies.
func clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func accessTokenFrom(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return cookieValue(r, accessTokenCookie)
}

// currentSession fetches the caller's user record. An access token that is
// about to expire, or that the user service rejects, is refreshed once with
// the refresh_token cookie. A failed refresh expires both cookies. On failure
// the response has been written.
func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) (*userapi.Session, string, bool) {
	ctx := r.Context()
	accessToken := accessTokenFrom(r)
	refreshToken := cookieValue(r, refreshTokenCookie)

	if accessToken == "" && refreshToken == "" {
		writeFailure(w, http.StatusUnauthorized, "Not authenticated")
		return nil, "", false
	}

	refreshed := false
	refresh := func() bool {
		token, err := s.users.RefreshAccessToken(ctx, refreshToken)
		if err != nil {
			clearSessionCookies(w)
			s.writeUpstreamError(w, r, "Failed to refresh session", err)
			return false
		}
		accessToken = token
		refreshed = true
		setSessionCookies(w, r, accessToken, "")
		return true
	}

	if refreshToken != "" && userapi.NeedsRefresh(accessToken, s.now(), refreshSkew) {
		if !refresh() {
			return nil, "", false
		}
	}

	session, err := s.users.GetUser(ctx, accessToken)
	if errors.Is(err, userapi.ErrUnauthorized) && refreshToken != "" && !refreshed {
		if !refresh() {
			return nil, "", false
		}
		session, err = s.users.GetUser(ctx, accessToken)
	}
	if err != nil {
		s.writeUpstreamError(w, r, "Failed to get user details", err)
		return nil, "", false
	}
	return session, accessToken, true
}
