package webhook

import (
	"strings"
)

// Failure categories.
const (
	CategoryCertificate      = "certificate"
	CategoryPermanentNetwork = "permanent-network"
	CategoryTimeout          = "timeout"
	CategoryTemporaryNetwork = "temporary-network"
	CategoryClientError      = "client-error"
	CategoryUnknown          = "unknown"
	CategoryHTTP             = "http"
)

// Classify decides whether a failed attempt is worth retrying. Transport
// errors are classified by message first; only when the call produced a
// response does the HTTP status decide.
//
// Certificate and hard network failures (DNS miss, refused, reset) never
// recover on their own, so they are terminal. Timeouts and transient network
// conditions retry. Anything unrecognized retries conservatively.
func Classify(err error, statusCode int) (category string, retry bool) {
	if err != nil {
		msg := strings.ToLower(err.Error())

		switch {
		case containsAny(msg, "cert_", "certificate", "tls", "certerror"):
			return CategoryCertificate, false
		case containsAny(msg, "no such host", "connection refused", "connection reset"):
			return CategoryPermanentNetwork, false
		case containsAny(msg, "etimedout", "timeout", "timeouterror", "deadline exceeded"):
			return CategoryTimeout, true
		case containsAny(msg, "socket hangup", "broken pipe", "unexpected eof",
			"host is unreachable", "no route to host", "network is unreachable",
			"temporary failure in name resolution", "server misbehaving"):
			return CategoryTemporaryNetwork, true
		case containsAny(msg, "400", "401", "403", "404"):
			return CategoryClientError, false
		default:
			return CategoryUnknown, true
		}
	}

	if statusCode >= 500 || statusCode == 408 || statusCode == 429 {
		return CategoryHTTP, true
	}
	return CategoryHTTP, false
}

func containsAny(s string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
