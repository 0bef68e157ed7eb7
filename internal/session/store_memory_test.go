package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "authgate/pkg/domain"
	"authgate/pkg/platform/sentinel"
)

type SessionStoreSuite struct {
	suite.Suite
	store *InMemoryStore
}

func (s *SessionStoreSuite) SetupTest() {
	s.store = NewInMemory()
}

func TestSessionStoreSuite(t *testing.T) {
	suite.Run(t, new(SessionStoreSuite))
}

func makeSession() *Session {
	now := time.Now()
	return &Session{
		ID:            id.NewSessionID(),
		UserID:        id.NewUserID(),
		CreatedAt:     now,
		ExpiresAt:     now.Add(time.Hour),
		Sliding:       true,
		RemoteIP:      "10.0.0.7",
		LastUpdatedAt: now,
	}
}

func (s *SessionStoreSuite) TestLookup() {
	s.Run("returns stored session when found", func() {
		sess := makeSession()
		s.Require().NoError(s.store.Create(context.Background(), sess))

		found, err := s.store.FindByID(context.Background(), sess.ID)
		s.Require().NoError(err)
		s.Equal(sess, found)
	})

	s.Run("returns ErrNotFound when session does not exist", func() {
		_, err := s.store.FindByID(context.Background(), id.NewSessionID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("reads are copies, not aliases", func() {
		sess := makeSession()
		s.Require().NoError(s.store.Create(context.Background(), sess))

		first, err := s.store.FindByID(context.Background(), sess.ID)
		s.Require().NoError(err)
		first.ExpiresAt = first.ExpiresAt.Add(time.Hour)

		second, err := s.store.FindByID(context.Background(), sess.ID)
		s.Require().NoError(err)
		s.NotEqual(first.ExpiresAt, second.ExpiresAt)
	})
}

func (s *SessionStoreSuite) TestCreate() {
	s.Run("rejects duplicate IDs", func() {
		sess := makeSession()
		s.Require().NoError(s.store.Create(context.Background(), sess))
		s.Require().ErrorIs(s.store.Create(context.Background(), sess), sentinel.ErrConflict)
	})
}

func (s *SessionStoreSuite) TestSave() {
	s.Run("overwrites an existing session", func() {
		sess := makeSession()
		s.Require().NoError(s.store.Create(context.Background(), sess))

		sess.ExpiresAt = sess.ExpiresAt.Add(30 * time.Minute)
		s.Require().NoError(s.store.Save(context.Background(), sess))

		found, err := s.store.FindByID(context.Background(), sess.ID)
		s.Require().NoError(err)
		s.Equal(sess.ExpiresAt, found.ExpiresAt)
	})

	s.Run("save on non-existent session returns ErrNotFound", func() {
		s.Require().ErrorIs(s.store.Save(context.Background(), makeSession()), sentinel.ErrNotFound)
	})
}

func (s *SessionStoreSuite) TestDelete() {
	s.Run("deletes and is idempotent", func() {
		sess := makeSession()
		s.Require().NoError(s.store.Create(context.Background(), sess))

		s.Require().NoError(s.store.Delete(context.Background(), sess.ID))
		_, err := s.store.FindByID(context.Background(), sess.ID)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)

		// Second delete from another sign-out path must not error.
		s.Require().NoError(s.store.Delete(context.Background(), sess.ID))
	})
}

func (s *SessionStoreSuite) TestModelBehavior() {
	s.Run("Extend never shortens expiry", func() {
		sess := makeSession()
		far := sess.ExpiresAt
		sess.Extend(sess.CreatedAt, time.Minute) // would land before current expiry
		s.Equal(far, sess.ExpiresAt)

		sess.Extend(far, time.Hour)
		s.Equal(far.Add(time.Hour), sess.ExpiresAt)
	})

	s.Run("WriteDue honors the coalescing window", func() {
		sess := makeSession()
		s.False(sess.WriteDue(sess.LastUpdatedAt.Add(30*time.Second), time.Minute))
		s.True(sess.WriteDue(sess.LastUpdatedAt.Add(2*time.Minute), time.Minute))
	})

	s.Run("DeviceLabel renders browser and OS", func() {
		label := DeviceLabel("Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0")
		s.Contains(label, "Firefox")
		s.Empty(DeviceLabel(""))
	})
}
