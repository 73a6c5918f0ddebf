package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"atlas-air/internal/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorize(t *testing.T) {
	admin := Identity{CustomerID: 1, Role: RoleAdmin}
	owner := Identity{CustomerID: 7, Role: RoleCustomer}
	other := Identity{CustomerID: 8, Role: RoleCustomer}

	assert.True(t, Authorize(admin, 7))
	assert.True(t, Authorize(owner, 7))
	assert.False(t, Authorize(other, 7))
	assert.False(t, Authorize(Identity{}, 0))
	assert.False(t, Authorize(Identity{Role: "pilot", CustomerID: 7}, 7))
}

func TestIssuer_RoundTrip(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)

	raw, id, exp, err := iss.Issue(Identity{CustomerID: 42, Name: "Ana", Role: RoleCustomer})
	require.NoError(t, err)
	assert.NotEmpty(t, id.SessionID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	got, err := iss.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestIssuer_Rejects(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	raw, _, _, err := iss.Issue(Identity{CustomerID: 42, Role: RoleAdmin})
	require.NoError(t, err)

	_, err = NewIssuer("other-secret", time.Hour).Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = iss.Verify(raw + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewIssuer("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _, _, err := expired.Issue(Identity{CustomerID: 1, Role: RoleCustomer})
	require.NoError(t, err)
	_, err = iss.Verify(old)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "hunter2"))
	assert.False(t, VerifyPassword(hash, "hunter3"))
}

type stubSessions struct {
	live map[string]bool
	err  error
}

func (s stubSessions) Exists(_ context.Context, sid string) (bool, error) {
	return s.live[sid], s.err
}

func identityEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		if !ok {
			w.Write([]byte("anonymous"))
			return
		}
		w.Write([]byte(string(id.Role) + ":" + id.Name))
	})
}

func TestAuthenticate(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	raw, id, _, err := iss.Issue(Identity{CustomerID: 5, Name: "Rui", Role: RoleCustomer})
	require.NoError(t, err)
	log := logger.NewTestLogger(nil)

	tests := []struct {
		name     string
		sessions SessionChecker
		setup    func(r *http.Request)
		want     string
	}{
		{"no token", nil, func(r *http.Request) {}, "anonymous"},
		{"cookie", nil, func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "atlas_session", Value: raw}) }, "customer:Rui"},
		{"bearer", nil, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+raw) }, "customer:Rui"},
		{"garbage", nil, func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, "anonymous"},
		{"live session", stubSessions{live: map[string]bool{id.SessionID: true}}, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+raw) }, "customer:Rui"},
		{"revoked session", stubSessions{live: map[string]bool{}}, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+raw) }, "anonymous"},
		{"session store down", stubSessions{err: errors.New("down")}, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+raw) }, "anonymous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Authenticate(iss, tt.sessions, "atlas_session", log)(identityEcho())
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Body.String())
		})
	}
}

func TestRequire_RedirectsWithReturnURL(t *testing.T) {
	deny := RedirectToLogin("/Account/Login", nil)
	h := Require(AdminOnly, deny)(identityEcho())

	req := httptest.NewRequest(http.MethodGet, "/Reservation/Details/3?tab=seat", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/Account/Login?returnUrl=%2FReservation%2FDetails%2F3%3Ftab%3Dseat", rr.Header().Get("Location"))

	req = httptest.NewRequest(http.MethodGet, "/Reservation/Details/3", nil)
	req = req.WithContext(WithIdentity(req.Context(), Identity{CustomerID: 2, Role: RoleCustomer}))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusFound, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/Reservation/Details/3", nil)
	req = req.WithContext(WithIdentity(req.Context(), Identity{CustomerID: 1, Name: "Ops", Role: RoleAdmin}))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "admin:Ops", rr.Body.String())
}

func TestPolicies(t *testing.T) {
	cust := Identity{CustomerID: 3, Role: RoleCustomer}
	admin := Identity{CustomerID: 1, Role: RoleAdmin}

	assert.False(t, Authenticated(Identity{}, false))
	assert.True(t, Authenticated(cust, true))
	assert.True(t, CustomerOnly(cust, true))
	assert.False(t, CustomerOnly(admin, true))
	assert.True(t, AdminOnly(admin, true))
	assert.False(t, AdminOnly(cust, true))
}

func TestRedisSessionStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "sid-1", 9, time.Minute))
	ok, err := store.Exists(ctx, "sid-1")
	require.NoError(t, err)
	assert.True(t, ok)
	stored, err := mr.Get("session:sid-1")
	require.NoError(t, err)
	assert.Equal(t, "9", stored)

	require.NoError(t, store.Revoke(ctx, "sid-1"))
	ok, err = store.Exists(ctx, "sid-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, "sid-2", 9, time.Minute))
	mr.FastForward(2 * time.Minute)
	ok, err = store.Exists(ctx, "sid-2")
	require.NoError(t, err)
	assert.False(t, ok)
}
