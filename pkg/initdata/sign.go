package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

const (
	// HashKey is the field carrying the hex signature.
	HashKey = "hash"
	// ClientIDKey is appended when launch data is relayed to the user service.
	ClientIDKey = "client_id"

	webAppDataLabel = "WebAppData"
)

// DeriveKey returns HMAC-SHA256 keyed by "WebAppData" over secret. The raw
// secret is never used to sign directly.
func DeriveKey(secret []byte) []byte {
	mac := hmac.New(sha256.New, []byte(webAppDataLabel))
	mac.Write(secret)
	return mac.Sum(nil)
}

// Sign returns the lowercase hex signature of p under secret. Any hash field
// already present in p is ignored.
func Sign(p Params, secret []byte) string {
	mac := hmac.New(sha256.New, DeriveKey(secret))
	mac.Write([]byte(p.Without(HashKey).DataCheckString()))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignParams returns p with its hash field replaced by a fresh signature.
func SignParams(p Params, secret []byte) Params {
	unsigned := p.Without(HashKey)
	return unsigned.With(HashKey, Sign(unsigned, secret))
}

func signatureMatches(expected, supplied string) bool {
	return hmac.Equal([]byte(expected), []byte(supplied))
}
