package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"civicgate/pkg/requestcontext"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
}

func (s *InMemoryStoreSuite) TestGet() {
	ctx := context.Background()

	s.Run("missing identifier returns nil without error", func() {
		record, err := s.store.Get(ctx, "unknown-id")
		s.NoError(err)
		s.Nil(record)
	})

	s.Run("existing record is returned without sharing memory", func() {
		fixedTime := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
		ctx := requestcontext.WithTime(context.Background(), fixedTime)
		identifier := "clerk@example.gov"

		_, err := s.store.RecordFailure(ctx, identifier)
		s.NoError(err)

		record, err := s.store.Get(ctx, identifier)
		s.NoError(err)
		s.NotNil(record)
		s.Equal(identifier, record.Identifier)
		s.Equal(1, record.FailedAttempts)
		s.Equal(fixedTime, record.LastAttemptAt)

		// Mutating the returned record must not touch the stored one.
		record.FailedAttempts = 99
		again, err := s.store.Get(ctx, identifier)
		s.NoError(err)
		s.Equal(1, again.FailedAttempts)
	})
}

func (s *InMemoryStoreSuite) TestRecordFailure() {
	s.Run("first failure creates record with counter at 1", func() {
		fixedTime := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
		ctx := requestcontext.WithTime(context.Background(), fixedTime)

		record, err := s.store.RecordFailure(ctx, "new-user")
		s.NoError(err)
		s.NotNil(record)
		s.Equal("new-user", record.Identifier)
		s.Equal(1, record.FailedAttempts)
		s.Equal(fixedTime, record.LastAttemptAt)
		s.Nil(record.LockedUntil)
	})

	s.Run("subsequent failures increment counter and stamp latest time", func() {
		firstTime := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
		secondTime := firstTime.Add(time.Minute)
		identifier := "repeat-offender"

		record1, err := s.store.RecordFailure(requestcontext.WithTime(context.Background(), firstTime), identifier)
		s.NoError(err)
		s.Equal(1, record1.FailedAttempts)

		record2, err := s.store.RecordFailure(requestcontext.WithTime(context.Background(), secondTime), identifier)
		s.NoError(err)
		s.Equal(2, record2.FailedAttempts)
		s.Equal(secondTime, record2.LastAttemptAt)
	})
}

func (s *InMemoryStoreSuite) TestUpdate() {
	ctx := context.Background()

	s.Run("update persists an applied lock", func() {
		identifier := "locked-user"
		_, err := s.store.RecordFailure(ctx, identifier)
		s.NoError(err)

		record, err := s.store.Get(ctx, identifier)
		s.NoError(err)
		until := time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC)
		record.LockedUntil = &until

		s.NoError(s.store.Update(ctx, record))

		stored, err := s.store.Get(ctx, identifier)
		s.NoError(err)
		s.NotNil(stored.LockedUntil)
		s.Equal(until, *stored.LockedUntil)
	})
}

func (s *InMemoryStoreSuite) TestClear() {
	ctx := context.Background()

	s.Run("clearing existing record removes it", func() {
		identifier := "to-be-cleared"
		_, err := s.store.RecordFailure(ctx, identifier)
		s.NoError(err)

		s.NoError(s.store.Clear(ctx, identifier))

		record, err := s.store.Get(ctx, identifier)
		s.NoError(err)
		s.Nil(record)
	})

	s.Run("clearing missing record is a no-op", func() {
		s.NoError(s.store.Clear(ctx, "never-existed"))
	})
}

func (s *InMemoryStoreSuite) TestDeleteStale() {
	baseTime := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	s.Run("removes records older than the cutoff, keeps the rest", func() {
		staleCtx := requestcontext.WithTime(context.Background(), baseTime.Add(-time.Hour))
		freshCtx := requestcontext.WithTime(context.Background(), baseTime)

		_, err := s.store.RecordFailure(staleCtx, "stale-user")
		s.NoError(err)
		_, err = s.store.RecordFailure(freshCtx, "fresh-user")
		s.NoError(err)

		removed, err := s.store.DeleteStale(context.Background(), baseTime.Add(-30*time.Minute))
		s.NoError(err)
		s.Equal(1, removed)

		record, err := s.store.Get(context.Background(), "stale-user")
		s.NoError(err)
		s.Nil(record)

		record, err = s.store.Get(context.Background(), "fresh-user")
		s.NoError(err)
		s.NotNil(record)
	})

	s.Run("empty store removes nothing", func() {
		removed, err := NewInMemoryStore().DeleteStale(context.Background(), baseTime)
		s.NoError(err)
		s.Zero(removed)
	})
}
