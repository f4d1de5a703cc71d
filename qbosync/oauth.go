package qbosync

import (
	"net/url"
	"os"

	"github.com/google/uuid"
)

const (
	defaultAuthURL  = "https://appcenter.intuit.com/connect/oauth2"
	defaultTokenURL = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	defaultApiBase  = "https://quickbooks.api.intuit.com"
)

type oauthConfig struct {
	clientID     string
	clientSecret string
	redirectURI  string
	authURL      string
	tokenURL     string
}

func loadOAuthConfig() oauthConfig {
	cfg := oauthConfig{
		clientID:     os.Getenv("QBO_CLIENT_ID"),
		clientSecret: os.Getenv("QBO_CLIENT_SECRET"),
		redirectURI:  os.Getenv("QBO_REDIRECT_URI"),
		authURL:      os.Getenv("QBO_AUTH_URL"),
		tokenURL:     os.Getenv("QBO_TOKEN_URL"),
	}
	if cfg.authURL == "" {
		cfg.authURL = defaultAuthURL
	}
	if cfg.tokenURL == "" {
		cfg.tokenURL = defaultTokenURL
	}
	return cfg
}

func (c oauthConfig) validate() error {
	if c.clientID == "" || c.clientSecret == "" || c.redirectURI == "" {
		return ErrMissingCredentials
	}
	return nil
}

// BuildAuthURL returns the Intuit consent page URL plus the random state
// value the callback must echo back.
func BuildAuthURL() (authURL string, state string, err error) {
	cfg := loadOAuthConfig()
	if err := cfg.validate(); err != nil {
		return "", "", err
	}
	state = uuid.NewString()
	q := url.Values{}
	q.Set("client_id", cfg.clientID)
	q.Set("response_type", "code")
	q.Set("scope", "com.intuit.quickbooks.accounting")
	q.Set("redirect_uri", cfg.redirectURI)
	q.Set("state", state)
	return cfg.authURL + "?" + q.Encode(), state, nil
}
