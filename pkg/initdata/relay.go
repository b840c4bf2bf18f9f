package initdata

import (
	"fmt"
	"time"
)

// Config holds the secrets used to verify and re-sign launch data.
type Config struct {
	// BotSecret signs the launch data the client received from Telegram.
	BotSecret string
	// ClientID is appended to relayed payloads.
	ClientID string
	// ClientSecret signs relayed payloads for the user service.
	ClientSecret string
	// MaxAge rejects payloads whose auth_date is older than this. Zero disables the check.
	MaxAge time.Duration
}

func (c Config) Validate() error {
	if c.BotSecret == "" {
		return fmt.Errorf("%w: bot secret is empty", ErrConfiguration)
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("%w: client id or client secret is empty", ErrConfiguration)
	}
	if c.MaxAge < 0 {
		return fmt.Errorf("%w: max age must not be negative", ErrConfiguration)
	}
	return nil
}

// Verify checks that payload carries a hash produced with botSecret.
func Verify(payload Params, botSecret []byte) error {
	if len(botSecret) == 0 {
		return fmt.Errorf("%w: bot secret is empty", ErrConfiguration)
	}
	supplied, ok := payload.Get(HashKey)
	if !ok || supplied == "" {
		return ErrMissingSignature
	}
	if !signatureMatches(Sign(payload, botSecret), supplied) {
		return ErrInvalidSignature
	}
	return nil
}

// Relay verifies payload against botSecret and returns it re-signed for the
// user service: the original fields in their original order, then client_id,
// then the new hash.
func Relay(payload Params, botSecret []byte, clientID string, clientSecret []byte) (Params, error) {
	if len(botSecret) == 0 || clientID == "" || len(clientSecret) == 0 {
		return Params{}, fmt.Errorf("%w: bot secret, client id and client secret are required", ErrConfiguration)
	}
	if err := Verify(payload, botSecret); err != nil {
		return Params{}, err
	}

	relayed := payload.Without(HashKey).With(ClientIDKey, clientID)
	return relayed.With(HashKey, Sign(relayed, clientSecret)), nil
}

// Relayer relays raw launch data with secrets fixed at construction.
type Relayer struct {
	cfg Config
	now func() time.Time
}

func NewRelayer(cfg Config) (*Relayer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Relayer{cfg: cfg, now: time.Now}, nil
}

func (r *Relayer) ClientID() string {
	return r.cfg.ClientID
}

// Verify checks a parsed payload against the bot secret and, when configured,
// its age.
func (r *Relayer) Verify(p Params) error {
	if r == nil {
		return fmt.Errorf("%w: nil relayer", ErrConfiguration)
	}
	if err := Verify(p, []byte(r.cfg.BotSecret)); err != nil {
		return err
	}
	return r.checkAge(p)
}

// Relay parses raw, verifies it and returns the re-signed, encoded payload.
func (r *Relayer) Relay(raw string) (string, error) {
	if r == nil {
		return "", fmt.Errorf("%w: nil relayer", ErrConfiguration)
	}
	p := ParseParams(raw)
	relayed, err := Relay(p, []byte(r.cfg.BotSecret), r.cfg.ClientID, []byte(r.cfg.ClientSecret))
	if err != nil {
		return "", err
	}
	if err := r.checkAge(p); err != nil {
		return "", err
	}
	return relayed.Encode(), nil
}

func (r *Relayer) checkAge(p Params) error {
	if r.cfg.MaxAge <= 0 {
		return nil
	}
	authDate, ok, err := parseAuthDate(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExpired, err)
	}
	if !ok {
		return nil
	}
	if r.now().Sub(authDate) > r.cfg.MaxAge {
		return ErrExpired
	}
	return nil
}
