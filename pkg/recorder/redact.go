package recorder

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// sensitiveKeys are parameter key fragments whose values are never stored.
var sensitiveKeys = []string{"api_key", "apikey", "token", "secret", "password", "authorization"}

// RedactSecret hashes a secret with SHA-256 so the ledger can show which
// credential was used without storing it.
//
// Returns an empty string if the secret is empty.
func RedactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(secret))
	return "sha256:" + hex.EncodeToString(hash[:])
}

// TruncateString truncates s to maxLen bytes, appending "..." when cut.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// sanitizeParameters returns a copy of params with secrets hashed and long
// strings truncated. Nested maps are walked; other values are kept as is.
func sanitizeParameters(params map[string]any, maxLen int) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		switch val := v.(type) {
		case string:
			if isSensitive(k) {
				out[k] = RedactSecret(val)
			} else {
				out[k] = TruncateString(val, maxLen)
			}
		case map[string]any:
			out[k] = sanitizeParameters(val, maxLen)
		default:
			if isSensitive(k) {
				out[k] = "[REDACTED]"
			} else {
				out[k] = v
			}
		}
	}
	return out
}
