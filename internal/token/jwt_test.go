package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "civicgate/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.service = NewService("test-signing-key", "civicgate")
}

func (s *ServiceSuite) TestIssueAndValidate() {
	s.Run("round trip preserves claims", func() {
		signed, err := s.service.Issue("user-1", "Chrome on Mac OS X", time.Now(), time.Hour)
		s.Require().NoError(err)

		claims, err := s.service.Validate(signed)
		s.Require().NoError(err)
		s.Equal("user-1", claims.Subject)
		s.Equal("Chrome on Mac OS X", claims.Device)
		s.Equal("civicgate", claims.Issuer)
		s.NotEmpty(claims.ID)
	})

	s.Run("each token gets a unique id", func() {
		first, err := s.service.Issue("user-1", "", time.Now(), time.Hour)
		s.Require().NoError(err)
		second, err := s.service.Issue("user-1", "", time.Now(), time.Hour)
		s.Require().NoError(err)
		s.NotEqual(first, second)
	})
}

func (s *ServiceSuite) TestValidate() {
	s.Run("expired token is rejected with a distinct message", func() {
		signed, err := s.service.Issue("user-1", "", time.Now().Add(-2*time.Hour), time.Hour)
		s.Require().NoError(err)

		_, err = s.service.Validate(signed)
		s.Require().Error(err)
		s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))
		s.Contains(err.Error(), "expired")
	})

	s.Run("token signed with another key is rejected", func() {
		signed, err := NewService("other-key", "civicgate").Issue("user-1", "", time.Now(), time.Hour)
		s.Require().NoError(err)

		_, err = s.service.Validate(signed)
		s.Require().Error(err)
		s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))
	})

	s.Run("garbage input is rejected", func() {
		_, err := s.service.Validate("not.a.jwt")
		s.Require().Error(err)
		s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))
	})
}
