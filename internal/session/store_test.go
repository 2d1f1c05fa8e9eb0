package session

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/pixeldraft/internal/domain"
)

func newTestStore(ttl time.Duration) (*Store, *time.Time) {
	clock := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	s := NewStore(ttl, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return clock }
	return s, &clock
}

func TestStore_CreateGet(t *testing.T) {
	s, _ := newTestStore(time.Hour)
	sess := s.Create("acct")

	got, ok := s.Get(sess.Token)
	require.True(t, ok)
	assert.Equal(t, "acct", got.AccountID)
	assert.Equal(t, domain.Tier(""), got.Override)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestStore_OverridePersists(t *testing.T) {
	s, _ := newTestStore(time.Hour)
	sess := s.Create("acct")

	require.True(t, s.SetOverride(sess.Token, domain.TierBusiness))
	got, ok := s.Get(sess.Token)
	require.True(t, ok)
	assert.Equal(t, domain.TierBusiness, got.Override)

	assert.False(t, s.SetOverride("missing", domain.TierPro))
}

func TestStore_Expiry(t *testing.T) {
	s, clock := newTestStore(time.Hour)
	a := s.Create("a")
	*clock = clock.Add(30 * time.Minute)
	b := s.Create("b")

	*clock = clock.Add(45 * time.Minute)
	_, ok := s.Get(a.Token)
	assert.False(t, ok)
	assert.False(t, s.SetOverride(a.Token, domain.TierPro))

	_, ok = s.Get(b.Token)
	assert.True(t, ok)

	*clock = clock.Add(time.Hour)
	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 0, s.Sweep())
}

func TestStore_Delete(t *testing.T) {
	s, _ := newTestStore(0)
	assert.Equal(t, DefaultTTL, s.TTL())

	sess := s.Create("acct")
	s.Delete(sess.Token)
	_, ok := s.Get(sess.Token)
	assert.False(t, ok)
}

func TestStore_CookieFollowsTTL(t *testing.T) {
	tests := []struct {
		name   string
		ttl    time.Duration
		maxAge int
	}{
		{"configured", 30 * time.Minute, 1800},
		{"default", 0, 86400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(tt.ttl)
			rec := httptest.NewRecorder()
			s.SetCookie(rec, "tok", true)

			cookies := rec.Result().Cookies()
			require.Len(t, cookies, 1)
			assert.Equal(t, CookieName, cookies[0].Name)
			assert.Equal(t, tt.maxAge, cookies[0].MaxAge)
			assert.True(t, cookies[0].HttpOnly)
			assert.True(t, cookies[0].Secure)
		})
	}
}

func TestStore_Len(t *testing.T) {
	s, _ := newTestStore(time.Hour)
	assert.Equal(t, 0, s.Len())
	s.Create("a")
	s.Create("b")
	assert.Equal(t, 2, s.Len())
}
