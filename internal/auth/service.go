package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"civicgate/internal/audit"
	"civicgate/internal/lockout"
	"civicgate/internal/token"
	dErrors "civicgate/pkg/domain-errors"
	"civicgate/pkg/platform/privacy"
	"civicgate/pkg/requestcontext"
)

const accessTokenTTL = time.Hour

// LoginResult is returned on successful authentication.
type LoginResult struct {
	AccessToken string
	ExpiresIn   int
	Device      string
}

// Service authenticates users, consulting the lockout tracker before and
// after every credential check.
type Service struct {
	users          UserStore
	tracker        *lockout.Tracker
	tokens         *token.Service
	logger         *slog.Logger
	auditPublisher audit.Publisher
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithAuditPublisher sets the security audit sink.
func WithAuditPublisher(pub audit.Publisher) Option {
	return func(s *Service) {
		s.auditPublisher = pub
	}
}

// New constructs the login service.
func New(users UserStore, tracker *lockout.Tracker, tokens *token.Service, opts ...Option) (*Service, error) {
	if users == nil || tracker == nil || tokens == nil {
		return nil, errors.New("user store, lockout tracker, and token service are required")
	}
	s := &Service{
		users:   users,
		tracker: tracker,
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Login verifies credentials. A locked identifier is rejected before the
// credential check so a lockout also blocks password guessing against the
// hash. Failures are recorded against the identifier whether or not the
// account exists, keeping unknown and known identifiers indistinguishable.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	locked, err := s.tracker.IsLocked(ctx, email)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, s.lockedError(ctx, email)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}

	hash := dummyHash
	if user != nil {
		hash = user.PasswordHash
	}
	credentialsOK := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil && user != nil

	if !credentialsOK {
		nowLocked, recordErr := s.tracker.RecordFailedAttempt(ctx, email, requestcontext.ClientIP(ctx))
		if recordErr != nil {
			return nil, recordErr
		}
		audit.Emit(ctx, s.logger, s.auditPublisher, audit.ActionLoginFailed, map[string]string{
			"identifier": privacy.MaskIdentifier(lockout.Normalize(email)),
			"source":     privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
			"device":     ParseUserAgent(requestcontext.UserAgent(ctx)),
		})
		if nowLocked {
			return nil, s.lockedError(ctx, email)
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}

	if err := s.tracker.Clear(ctx, email); err != nil {
		return nil, err
	}

	device := ParseUserAgent(requestcontext.UserAgent(ctx))
	accessToken, err := s.tokens.Issue(user.ID, device, requestcontext.Now(ctx), accessTokenTTL)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken: accessToken,
		ExpiresIn:   int(accessTokenTTL.Seconds()),
		Device:      device,
	}, nil
}

// lockedError builds the client-facing denial with a remaining-time hint.
func (s *Service) lockedError(ctx context.Context, email string) error {
	remaining, err := s.tracker.RemainingLockout(ctx, email)
	if err != nil {
		return err
	}
	minutes := int(remaining.Round(time.Minute).Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return dErrors.New(dErrors.CodeRateLimited,
		fmt.Sprintf("account temporarily locked, try again in %d minute(s)", minutes))
}

// dummyHash keeps the bcrypt comparison on the unknown-user path so response
// timing does not reveal whether an email exists.
var dummyHash = func() string {
	h, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	return string(h)
}()
