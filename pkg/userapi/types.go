package userapi

import "encoding/json"

// ProfileVersion is the user record version at which the on-chain profile has
// been minted.
const ProfileVersion = 3

type User struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
	// Extra keeps the rest of the record as returned by the service.
	Extra map[string]json.RawMessage `json:"-"`
}

func (u *User) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	type plain User
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	delete(raw, "id")
	delete(raw, "version")
	*u = User(p)
	u.Extra = raw
	return nil
}

func (u User) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(u.Extra)+2)
	for k, v := range u.Extra {
		out[k] = v
	}
	out["id"] = u.ID
	out["version"] = u.Version
	return json.Marshal(out)
}

// NeedsProfile reports whether the user still has to mint the on-chain profile.
func (u User) NeedsProfile() bool {
	return u.Version < ProfileVersion
}

// SignupTx describes the createProfile call the user's wallet has to send.
type SignupTx struct {
	ContractAddress string          `json:"contract_address"`
	ContractABI     json.RawMessage `json:"contract_abi"`
	InputParams     InputParams     `json:"input_params"`
}

type InputParams struct {
	ProfileParams []json.RawMessage `json:"_profileParams"`
	ProfileData   []json.RawMessage `json:"_profileData"`
}

// Session is the result of authenticating or fetching the current user.
type Session struct {
	User         User      `json:"user"`
	SignupTx     *SignupTx `json:"signup_tx,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
}

type envelope[T any] struct {
	Result T `json:"result"`
}

type refreshResult struct {
	AccessToken string `json:"access_token"`
}

// Empty reports whether the service returned no pending transaction.
func (tx *SignupTx) Empty() bool {
	return tx == nil || tx.ContractAddress == ""
}
