// Package signer produces the signed-request header proving an outbound call
// originates from the trusted gateway. The internal service recomputes the
// same canonical string with the shared secret and compares digests in
// constant time; Verify implements that side of the contract for services
// built from this module.
//
// Canonical signature base string:
//
//	"<lowercased method> <path>\ncontent-type: <contentType>"
//
// Header value:
//
//	HMAC {"username":"<clientID>","algorithm":"hmac-sha256","headers":"@request-target,content-type","signature":"<base64 digest>"}
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Header is the request header carrying the gateway signature.
const Header = "X-HMAC-Auth"

const (
	algorithm      = "hmac-sha256"
	coveredHeaders = "@request-target,content-type"
	schemePrefix   = "HMAC "

	defaultContentType = "application/json"
)

// payload is the JSON document inside the header value.
type payload struct {
	Username  string `json:"username"`
	Algorithm string `json:"algorithm"`
	Headers   string `json:"headers"`
	Signature string `json:"signature"`
}

// Signer computes signed-request headers for outbound calls.
type Signer struct {
	secret   []byte
	clientID string
	logger   *slog.Logger
}

// Option configures a Signer.
type Option func(*Signer)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Signer) {
		s.logger = logger
	}
}

// New constructs a Signer. An empty secret disables signing: Sign returns ""
// and a startup warning is logged, a deliberately permissive fallback for
// environments that have not provisioned the secret yet.
func New(secret, clientID string, opts ...Option) *Signer {
	s := &Signer{
		secret:   []byte(secret),
		clientID: clientID,
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.secret) == 0 && s.logger != nil {
		s.logger.Warn("gateway HMAC secret not configured, outbound request signing disabled")
	}
	return s
}

// Enabled reports whether a shared secret is configured.
func (s *Signer) Enabled() bool {
	return len(s.secret) > 0
}

// Sign builds the signed-request header value for a call, or "" when signing
// is disabled.
func (s *Signer) Sign(method, path, contentType string) string {
	if !s.Enabled() {
		return ""
	}
	if contentType == "" {
		contentType = defaultContentType
	}

	digest := s.digest(method, path, contentType)

	body, _ := json.Marshal(payload{
		Username:  s.clientID,
		Algorithm: algorithm,
		Headers:   coveredHeaders,
		Signature: digest,
	})
	return schemePrefix + string(body)
}

// SignGraphQLRequest signs a POST to the path of targetURL. A signature header
// is strictly additive, so on URL parse failure this signs "POST /graphql"
// defensively instead of returning an error: a verifier that cannot match the
// header simply rejects as unauthenticated, which is the safe failure mode.
func (s *Signer) SignGraphQLRequest(targetURL string) string {
	path := "/graphql"
	if parsed, err := url.Parse(targetURL); err == nil && parsed.Path != "" {
		path = parsed.Path
	} else if err != nil && s.logger != nil {
		s.logger.Warn("failed to parse downstream URL for signing, falling back to /graphql",
			"url", targetURL,
			"error", err,
		)
	}
	return s.Sign("POST", path, defaultContentType)
}

// Verify checks a header value produced by Sign for the given request shape.
// The digest comparison is constant time.
func (s *Signer) Verify(headerValue, method, path, contentType string) bool {
	if !s.Enabled() {
		return false
	}
	if contentType == "" {
		contentType = defaultContentType
	}

	raw, ok := strings.CutPrefix(headerValue, schemePrefix)
	if !ok {
		return false
	}
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return false
	}
	if p.Algorithm != algorithm || p.Headers != coveredHeaders {
		return false
	}

	expected := s.digest(method, path, contentType)
	return hmac.Equal([]byte(expected), []byte(p.Signature))
}

func (s *Signer) digest(method, path, contentType string) string {
	base := fmt.Sprintf("%s %s\ncontent-type: %s", strings.ToLower(method), path, contentType)
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
