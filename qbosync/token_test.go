package qbosync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bitbucket.org/onpointdev/ops_backend/models"
)

type fakeConnStore struct {
	conn    *models.QboConnection
	upserts int
}

func (s *fakeConnStore) Latest(ctx context.Context) (*models.QboConnection, error) {
	return s.conn, nil
}

func (s *fakeConnStore) Upsert(ctx context.Context, conn *models.QboConnection) error {
	s.upserts++
	s.conn = conn
	return nil
}

func newTestTokenManager(store *fakeConnStore, tokenURL string, now time.Time) *TokenManager {
	return &TokenManager{
		store: store,
		http:  http.DefaultClient,
		cfg: oauthConfig{
			clientID:     "cid",
			clientSecret: "secret",
			redirectURI:  "https://app.example/qbo/callback",
			tokenURL:     tokenURL,
		},
		now: func() time.Time { return now },
	}
}

func TestGetValidToken_NoConnection(t *testing.T) {
	m := newTestTokenManager(&fakeConnStore{}, "http://unused", time.Now())
	_, _, err := m.GetValidToken(context.Background())
	if !errors.Is(err, ErrNoConnection) {
		t.Fatalf("want ErrNoConnection, got %v", err)
	}
}

func TestGetValidToken_FreshTokenSkipsRefresh(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeConnStore{conn: &models.QboConnection{
		RealmId:     "realm1",
		AccessToken: "fresh",
		ExpiresAt:   now.Add(30 * time.Minute),
	}}
	m := newTestTokenManager(store, server.URL, now)

	realm, token, err := m.GetValidToken(context.Background())
	if err != nil {
		t.Fatalf("GetValidToken: %v", err)
	}
	if realm != "realm1" || token != "fresh" {
		t.Errorf("got %q/%q", realm, token)
	}
	if calls != 0 {
		t.Errorf("fresh token must not refresh, got %d calls", calls)
	}
	if store.upserts != 0 {
		t.Errorf("fresh token must not persist, got %d upserts", store.upserts)
	}
}

func TestGetValidToken_ExpiredTokenRefreshesOnce(t *testing.T) {
	calls := 0
	var gotGrant, gotRefresh string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotGrant = r.PostForm.Get("grant_type")
		gotRefresh = r.PostForm.Get("refresh_token")
		user, pass, ok := r.BasicAuth()
		if !ok || user != "cid" || pass != "secret" {
			t.Errorf("basic auth = %q/%q", user, pass)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "new-at", "refresh_token": "new-rt", "expires_in": 3600}`))
	}))
	defer server.Close()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeConnStore{conn: &models.QboConnection{
		RealmId:      "realm1",
		AccessToken:  "stale",
		RefreshToken: "old-rt",
		ExpiresAt:    now.Add(-time.Minute),
	}}
	m := newTestTokenManager(store, server.URL, now)

	realm, token, err := m.GetValidToken(context.Background())
	if err != nil {
		t.Fatalf("GetValidToken: %v", err)
	}
	if realm != "realm1" || token != "new-at" {
		t.Errorf("got %q/%q", realm, token)
	}
	if calls != 1 {
		t.Errorf("want exactly one refresh call, got %d", calls)
	}
	if gotGrant != "refresh_token" || gotRefresh != "old-rt" {
		t.Errorf("refresh form: grant=%q refresh=%q", gotGrant, gotRefresh)
	}
	if store.upserts != 1 {
		t.Fatalf("refreshed pair must be persisted once, got %d upserts", store.upserts)
	}
	// Expiry is provider lifetime minus the safety skew.
	wantExpiry := now.Add(3600*time.Second - expirySkew)
	if !store.conn.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("persisted expiry = %v, want %v", store.conn.ExpiresAt, wantExpiry)
	}
	if store.conn.RefreshToken != "new-rt" {
		t.Errorf("persisted refresh token = %q", store.conn.RefreshToken)
	}
}

func TestGetValidToken_MissingCredentials(t *testing.T) {
	now := time.Now()
	store := &fakeConnStore{conn: &models.QboConnection{
		RealmId:   "realm1",
		ExpiresAt: now.Add(-time.Minute),
	}}
	m := newTestTokenManager(store, "http://unused", now)
	m.cfg.clientSecret = ""

	_, _, err := m.GetValidToken(context.Background())
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("want ErrMissingCredentials, got %v", err)
	}
}

func TestGetValidToken_RefreshRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid_grant"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	now := time.Now()
	store := &fakeConnStore{conn: &models.QboConnection{
		RealmId:      "realm1",
		RefreshToken: "revoked",
		ExpiresAt:    now.Add(-time.Minute),
	}}
	m := newTestTokenManager(store, server.URL, now)

	if _, _, err := m.GetValidToken(context.Background()); err == nil {
		t.Fatal("rejected refresh must surface an error")
	}
	if store.upserts != 0 {
		t.Errorf("rejected refresh must not persist, got %d upserts", store.upserts)
	}
}

func TestExchangeCode_PersistsPair(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "authorization_code" || r.PostForm.Get("code") != "auth-code" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "at", "refresh_token": "rt", "expires_in": 3600}`))
	}))
	defer server.Close()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeConnStore{}
	m := newTestTokenManager(store, server.URL, now)

	if err := m.ExchangeCode(context.Background(), "auth-code", "realm9"); err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if store.conn == nil || store.conn.RealmId != "realm9" || store.conn.AccessToken != "at" {
		t.Fatalf("persisted connection = %+v", store.conn)
	}
}
