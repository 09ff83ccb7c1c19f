package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Header names sent on every signed backend request.
const (
	HeaderAPIKey    = "X-Vault-Api-Key"
	HeaderTimestamp = "X-Vault-Timestamp"
	HeaderSignature = "X-Vault-Signature"
	HeaderAgent     = "X-Vault-Agent"
	HeaderAgentSig  = "X-Vault-Agent-Signature"
)

// HMACAuth holds the credentials for HMAC-authenticated backend requests.
type HMACAuth struct {
	Key    string // API key
	Secret string // shared secret, raw bytes
}

// Headers returns the HTTP headers for a backend request. The signature is
// HMAC-SHA256(secret, timestamp+method+path+body) encoded as base64.
func (h *HMACAuth) Headers(method, path, body string) map[string]string {
	return h.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp.
func (h *HMACAuth) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderAPIKey:    h.Key,
		HeaderTimestamp: ts,
		HeaderSignature: h.Sign(ts + method + path + body),
	}
}

// Sign returns the base64 HMAC-SHA256 of message under the secret.
func (h *HMACAuth) Sign(message string) string {
	return hmacSHA256Base64([]byte(h.Secret), message)
}

// Verify reports whether sig is the signature of the request described by
// the arguments, compared in constant time.
func (h *HMACAuth) Verify(method, path, body, ts, sig string) bool {
	want := h.Sign(ts + method + path + body)
	return hmac.Equal([]byte(want), []byte(sig))
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
