package circleci

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

const (
	// SignatureHeader carries the webhook signature set by CircleCI.
	SignatureHeader = "circleci-signature"
	// SignatureVersion is the signature scheme accepted by VerifySignature.
	SignatureVersion = "v1"
)

// VerifySignature reports whether body was signed with secret.
//
// The header holds comma-separated key=value pairs; only the v1 value is
// checked. Missing or malformed headers fail closed.
func VerifySignature(secret string, headers http.Header, body []byte) bool {
	if secret == "" || headers == nil {
		return false
	}
	signature, ok := ExtractSignature(headers.Get(SignatureHeader), SignatureVersion)
	if !ok {
		return false
	}
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// ExtractSignature returns the value for version from a signature header.
func ExtractSignature(header, version string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		if strings.TrimSpace(key) != version {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return "", false
		}
		return value, true
	}
	return "", false
}

// Sign returns the hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeaderValue formats a v1 header value for body.
func SignatureHeaderValue(secret string, body []byte) string {
	return SignatureVersion + "=" + Sign(secret, body)
}
