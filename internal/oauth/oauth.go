// Package oauth owns the token lifecycle: the browser auth-code flow and
// refresh of expired access tokens. Refresh goes through the shared retrying
// HTTP client so the token endpoint gets the same transient-failure handling
// as the device API.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/gleadbet/nest/internal/httpx"
	"github.com/gleadbet/nest/internal/logger"
	"github.com/gleadbet/nest/internal/session"
)

// ErrRefreshFailed means the provider refused the refresh-token grant. There
// is no recovery short of a full re-login.
var ErrRefreshFailed = errors.New(session.RefreshErrorValue)

// Google endpoints used unless the config overrides them.
const (
	DefaultAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
)

// DefaultScopes grants device access only.
var DefaultScopes = []string{"https://www.googleapis.com/auth/sdm.service"}

// expirySkew treats tokens about to expire as already expired so an upstream
// call never races the deadline.
const expirySkew = 30 * time.Second

// Config carries the provider endpoints and client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	Scopes       []string
}

// Authenticator implements the auth-code flow and token refresh.
type Authenticator struct {
	oauth    *oauth2.Config
	tokenURL string
	http     *httpx.Client
	log      *logger.Logger
}

func New(cfg Config, hc *httpx.Client, log *logger.Logger) *Authenticator {
	return &Authenticator{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		tokenURL: cfg.TokenURL,
		http:     hc,
		log:      log,
	}
}

// LoginURL builds the provider consent URL. Offline access is required to
// obtain a refresh token; prompt=consent forces a full re-grant so a fresh
// refresh token is always issued.
func (a *Authenticator) LoginURL(state string) string {
	return a.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades the callback code for a credential.
func (a *Authenticator) Exchange(ctx context.Context, code string) (*session.Credential, error) {
	tok, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	return &session.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}, nil
}

// Valid reports whether the access token can still be used at instant now.
func (a *Authenticator) Valid(cred *session.Credential, now time.Time) bool {
	return cred != nil && cred.AccessToken != "" && now.Add(expirySkew).Before(cred.ExpiresAt)
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Refresh exchanges the refresh token for a new access token. The refresh
// token itself is retained; the provider does not rotate it on this grant.
func (a *Authenticator) Refresh(ctx context.Context, cred *session.Credential) (*session.Credential, error) {
	if cred == nil || cred.RefreshToken == "" {
		return nil, ErrRefreshFailed
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {cred.RefreshToken},
		"client_id":     {a.oauth.ClientID},
		"client_secret": {a.oauth.ClientSecret},
	}
	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.http.Do(ctx, http.MethodPost, a.tokenURL, header, []byte(form.Encode()))
	if err != nil {
		if a.log != nil {
			a.log.Errorw("token_refresh_failed", "err", err)
		}
		return nil, ErrRefreshFailed
	}
	if resp.Status < 200 || resp.Status > 299 {
		if a.log != nil {
			a.log.Errorw("token_refresh_rejected", "status", resp.Status)
		}
		return nil, ErrRefreshFailed
	}

	var tok refreshResponse
	if err := json.Unmarshal(resp.Body, &tok); err != nil || tok.AccessToken == "" {
		return nil, ErrRefreshFailed
	}
	return &session.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: cred.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}, nil
}
