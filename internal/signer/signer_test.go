package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

type SignerSuite struct {
	suite.Suite
	signer *Signer
}

func TestSignerSuite(t *testing.T) {
	suite.Run(t, new(SignerSuite))
}

func (s *SignerSuite) SetupTest() {
	s.signer = New("shared-secret", "civicgate")
}

func (s *SignerSuite) TestSign() {
	s.Run("produces the HMAC scheme with a JSON payload", func() {
		value := s.signer.Sign("POST", "/graphql", "application/json")

		s.True(strings.HasPrefix(value, "HMAC "))

		var p struct {
			Username  string `json:"username"`
			Algorithm string `json:"algorithm"`
			Headers   string `json:"headers"`
			Signature string `json:"signature"`
		}
		s.Require().NoError(json.Unmarshal([]byte(strings.TrimPrefix(value, "HMAC ")), &p))
		s.Equal("civicgate", p.Username)
		s.Equal("hmac-sha256", p.Algorithm)
		s.Equal("@request-target,content-type", p.Headers)
		s.NotEmpty(p.Signature)
	})

	s.Run("signature matches an independent HMAC computation", func() {
		value := s.signer.Sign("POST", "/graphql", "application/json")

		mac := hmac.New(sha256.New, []byte("shared-secret"))
		mac.Write([]byte("post /graphql\ncontent-type: application/json"))
		want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

		s.Contains(value, want)
	})

	s.Run("is deterministic for identical inputs", func() {
		first := s.signer.Sign("POST", "/graphql", "application/json")
		second := s.signer.Sign("POST", "/graphql", "application/json")
		s.Equal(first, second)
	})

	s.Run("method casing does not change the signature", func() {
		s.Equal(
			s.signer.Sign("POST", "/graphql", "application/json"),
			s.signer.Sign("post", "/graphql", "application/json"),
		)
	})

	s.Run("different path or content type changes the signature", func() {
		base := s.signer.Sign("POST", "/graphql", "application/json")
		s.NotEqual(base, s.signer.Sign("POST", "/other", "application/json"))
		s.NotEqual(base, s.signer.Sign("POST", "/graphql", "text/plain"))
	})

	s.Run("different secret changes the signature", func() {
		other := New("other-secret", "civicgate")
		s.NotEqual(
			s.signer.Sign("POST", "/graphql", "application/json"),
			other.Sign("POST", "/graphql", "application/json"),
		)
	})

	s.Run("empty content type defaults to application/json", func() {
		s.Equal(
			s.signer.Sign("POST", "/graphql", "application/json"),
			s.signer.Sign("POST", "/graphql", ""),
		)
	})
}

func (s *SignerSuite) TestDisabled() {
	disabled := New("", "civicgate")

	s.False(disabled.Enabled())
	s.Empty(disabled.Sign("POST", "/graphql", "application/json"))
	s.Empty(disabled.SignGraphQLRequest("http://records.internal/graphql"))
	s.False(disabled.Verify("HMAC {}", "POST", "/graphql", "application/json"))
}

func (s *SignerSuite) TestSignGraphQLRequest() {
	s.Run("signs the path of the target URL", func() {
		s.Equal(
			s.signer.Sign("POST", "/api/graphql", "application/json"),
			s.signer.SignGraphQLRequest("http://records.internal:8080/api/graphql"),
		)
	})

	s.Run("falls back to /graphql when the URL has no path", func() {
		s.Equal(
			s.signer.Sign("POST", "/graphql", "application/json"),
			s.signer.SignGraphQLRequest("http://records.internal"),
		)
	})

	s.Run("falls back to /graphql on an unparsable URL", func() {
		s.Equal(
			s.signer.Sign("POST", "/graphql", "application/json"),
			s.signer.SignGraphQLRequest("http://bad url with spaces"),
		)
	})
}

func (s *SignerSuite) TestVerify() {
	s.Run("accepts a header produced by Sign", func() {
		value := s.signer.Sign("POST", "/graphql", "application/json")
		s.True(s.signer.Verify(value, "POST", "/graphql", "application/json"))
	})

	s.Run("rejects a different request shape", func() {
		value := s.signer.Sign("POST", "/graphql", "application/json")
		s.False(s.signer.Verify(value, "POST", "/other", "application/json"))
		s.False(s.signer.Verify(value, "GET", "/graphql", "application/json"))
	})

	s.Run("rejects a header signed with another secret", func() {
		other := New("other-secret", "civicgate")
		value := other.Sign("POST", "/graphql", "application/json")
		s.False(s.signer.Verify(value, "POST", "/graphql", "application/json"))
	})

	s.Run("rejects malformed header values", func() {
		s.False(s.signer.Verify("", "POST", "/graphql", "application/json"))
		s.False(s.signer.Verify("Bearer abc", "POST", "/graphql", "application/json"))
		s.False(s.signer.Verify("HMAC not-json", "POST", "/graphql", "application/json"))
	})

	s.Run("rejects an unexpected algorithm", func() {
		s.False(s.signer.Verify(
			`HMAC {"username":"civicgate","algorithm":"hmac-md5","headers":"@request-target,content-type","signature":"x"}`,
			"POST", "/graphql", "application/json",
		))
	})
}
