package initdata

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// User is the Telegram user embedded in launch data as JSON.
type User struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
	PhotoURL     string `json:"photo_url,omitempty"`
}

// LaunchData is the typed view of the fields Telegram puts in initData.
type LaunchData struct {
	AuthDate     time.Time
	QueryID      string
	StartParam   string
	ChatType     string
	ChatInstance string
	User         *User
	Hash         string
}

// ParseLaunchData decodes the well-known fields of p. It does not verify the
// signature; call Verify first.
func ParseLaunchData(p Params) (*LaunchData, error) {
	ld := &LaunchData{}
	ld.QueryID, _ = p.Get("query_id")
	ld.StartParam, _ = p.Get("start_param")
	ld.ChatType, _ = p.Get("chat_type")
	ld.ChatInstance, _ = p.Get("chat_instance")
	ld.Hash, _ = p.Get(HashKey)

	authDate, ok, err := parseAuthDate(p)
	if err != nil {
		return nil, err
	}
	if ok {
		ld.AuthDate = authDate
	}

	if raw, ok := p.Get("user"); ok && raw != "" {
		var u User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			return nil, fmt.Errorf("failed to decode user: %w", err)
		}
		ld.User = &u
	}
	return ld, nil
}

func parseAuthDate(p Params) (time.Time, bool, error) {
	raw, ok := p.Get("auth_date")
	if !ok || raw == "" {
		return time.Time{}, false, nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid auth_date %q", raw)
	}
	return time.Unix(secs, 0), true, nil
}
