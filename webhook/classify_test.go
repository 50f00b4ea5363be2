package webhook

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestClassifyTransportErrors tests the message-based classification table
func TestClassifyTransportErrors(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantCategory string
		wantRetry    bool
	}{
		{name: "CertificateExpired", err: errors.New("x509: certificate has expired"), wantCategory: CategoryCertificate, wantRetry: false},
		{name: "TLSHandshake", err: errors.New("tls: handshake failure"), wantCategory: CategoryCertificate, wantRetry: false},
		{name: "CertError", err: errors.New("CERT_HAS_EXPIRED certerror"), wantCategory: CategoryCertificate, wantRetry: false},
		{name: "DNSNotFound", err: errors.New("dial tcp: lookup nowhere.invalid: no such host"), wantCategory: CategoryPermanentNetwork, wantRetry: false},
		{name: "ConnectionRefused", err: errors.New("dial tcp 127.0.0.1:99: connect: connection refused"), wantCategory: CategoryPermanentNetwork, wantRetry: false},
		{name: "ConnectionReset", err: errors.New("read tcp: connection reset by peer"), wantCategory: CategoryPermanentNetwork, wantRetry: false},
		{name: "Etimedout", err: errors.New("ETIMEDOUT"), wantCategory: CategoryTimeout, wantRetry: true},
		{name: "ClientTimeout", err: errors.New("context deadline exceeded (Client.Timeout exceeded while awaiting headers)"), wantCategory: CategoryTimeout, wantRetry: true},
		{name: "SocketHangup", err: errors.New("socket hangup"), wantCategory: CategoryTemporaryNetwork, wantRetry: true},
		{name: "HostUnreachable", err: errors.New("connect: no route to host"), wantCategory: CategoryTemporaryNetwork, wantRetry: true},
		{name: "NetworkUnreachable", err: errors.New("connect: network is unreachable"), wantCategory: CategoryTemporaryNetwork, wantRetry: true},
		{name: "TransientDNS", err: errors.New("lookup example.com: temporary failure in name resolution"), wantCategory: CategoryTemporaryNetwork, wantRetry: true},
		{name: "Client400", err: errors.New("unexpected response 400"), wantCategory: CategoryClientError, wantRetry: false},
		{name: "Client404", err: errors.New("endpoint returned 404"), wantCategory: CategoryClientError, wantRetry: false},
		{name: "Unknown", err: errors.New("something odd happened"), wantCategory: CategoryUnknown, wantRetry: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			category, retry := Classify(tt.err, 0)
			assert.Equal(t, tt.wantCategory, category)
			assert.Equal(t, tt.wantRetry, retry)
		})
	}
}

// TestClassifyHTTPStatus tests the status-based fallback
func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status    int
		wantRetry bool
	}{
		{status: 200, wantRetry: false},
		{status: 301, wantRetry: false},
		{status: 400, wantRetry: false},
		{status: 404, wantRetry: false},
		{status: 408, wantRetry: true},
		{status: 429, wantRetry: true},
		{status: 500, wantRetry: true},
		{status: 503, wantRetry: true},
	}

	for _, tt := range tests {
		category, retry := Classify(nil, tt.status)
		assert.Equal(t, CategoryHTTP, category, "status %d", tt.status)
		assert.Equal(t, tt.wantRetry, retry, "status %d", tt.status)
	}
}

// TestSignAndVerify tests the HMAC signature scheme
func TestSignAndVerify(t *testing.T) {
	body := []byte(`{"event":"content:afterCreate","timestamp":1724572800,"data":{}}`)

	sig := Sign("topsecret", body)
	assert.Contains(t, sig, "sha256=")
	assert.True(t, VerifySignature("topsecret", body, sig))
	assert.False(t, VerifySignature("wrong", body, sig))
	assert.False(t, VerifySignature("topsecret", []byte("tampered"), sig))

	// deterministic for fixed inputs
	assert.Equal(t, sig, Sign("topsecret", body))
}
