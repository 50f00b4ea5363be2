package common

// MaskSecret masks sensitive strings for safe logging.
// Shows first 4 and last 4 characters for strings longer than 8 chars,
// "***" for short strings and "<not set>" for empty strings.
func MaskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

// Truncate shortens s to at most n bytes, appending an ellipsis marker when
// truncation happened. Used for response body excerpts in delivery rows.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
