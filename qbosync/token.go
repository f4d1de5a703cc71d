package qbosync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/onpointdev/ops_backend/models"
)

// expirySkew is subtracted from the provider-reported token lifetime so a
// token is refreshed slightly before it actually expires.
const expirySkew = 60 * time.Second

type connectionStore interface {
	Latest(ctx context.Context) (*models.QboConnection, error)
	Upsert(ctx context.Context, conn *models.QboConnection) error
}

type gormConnectionStore struct {
	db *gorm.DB
}

func (s gormConnectionStore) Latest(ctx context.Context) (*models.QboConnection, error) {
	var conn models.QboConnection
	err := s.db.WithContext(ctx).Order("id DESC").Take(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (s gormConnectionStore) Upsert(ctx context.Context, conn *models.QboConnection) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "realm_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "expires_at", "updated_at"}),
	}).Create(conn).Error
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// TokenManager owns the stored OAuth token pair: it hands out a valid
// access token, refreshing and persisting it when the stored one has
// expired, and it performs the initial authorization-code exchange.
type TokenManager struct {
	store connectionStore
	http  *http.Client
	cfg   oauthConfig
	now   func() time.Time
}

func NewTokenManager(db *gorm.DB) *TokenManager {
	return &TokenManager{
		store: gormConnectionStore{db: db},
		http:  &http.Client{Timeout: 30 * time.Second},
		cfg:   loadOAuthConfig(),
		now:   time.Now,
	}
}

// GetValidToken returns the realm id and a usable access token, refreshing
// the stored pair first when it has expired.
func (m *TokenManager) GetValidToken(ctx context.Context) (realmId string, accessToken string, err error) {
	conn, err := m.store.Latest(ctx)
	if err != nil {
		return "", "", err
	}
	if conn == nil {
		return "", "", ErrNoConnection
	}
	if m.now().Before(conn.ExpiresAt) {
		return conn.RealmId, conn.AccessToken, nil
	}
	if err := m.cfg.validate(); err != nil {
		return "", "", err
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", conn.RefreshToken)
	tok, err := m.requestToken(ctx, form)
	if err != nil {
		return "", "", fmt.Errorf("refresh token: %w", err)
	}
	if err := m.saveToken(ctx, conn.RealmId, tok); err != nil {
		return "", "", err
	}
	return conn.RealmId, tok.AccessToken, nil
}

// ExchangeCode trades an authorization code from the OAuth callback for a
// token pair and persists it against the realm.
func (m *TokenManager) ExchangeCode(ctx context.Context, code string, realmId string) error {
	if err := m.cfg.validate(); err != nil {
		return err
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", m.cfg.redirectURI)
	tok, err := m.requestToken(ctx, form)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	return m.saveToken(ctx, realmId, tok)
}

func (m *TokenManager) requestToken(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(m.cfg.clientID, m.cfg.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	res, err := m.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access_token")
	}
	if tok.ExpiresIn == 0 {
		tok.ExpiresIn = 3600
	}
	return &tok, nil
}

func (m *TokenManager) saveToken(ctx context.Context, realmId string, tok *tokenResponse) error {
	conn := &models.QboConnection{
		RealmId:      realmId,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    m.now().Add(time.Duration(tok.ExpiresIn)*time.Second - expirySkew),
	}
	return m.store.Upsert(ctx, conn)
}
