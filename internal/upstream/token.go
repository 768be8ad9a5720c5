package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Domenick1991/flightsync/internal/domain"
	"github.com/Domenick1991/flightsync/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Exchanger trades configured credentials for a fresh token.
type Exchanger interface {
	Exchange(ctx context.Context) (domain.Token, error)
}

// TokenStore keeps one live token per api name. Concurrent refreshes of the
// same api collapse into a single exchange.
type TokenStore struct {
	mu         sync.RWMutex
	tokens     map[string]domain.Token
	exchangers map[string]Exchanger
	sf         singleflight.Group

	margin time.Duration
	now    func() time.Time
	log    *zap.Logger
}

func NewTokenStore(margin time.Duration, log *zap.Logger) *TokenStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenStore{
		tokens:     make(map[string]domain.Token),
		exchangers: make(map[string]Exchanger),
		margin:     margin,
		now:        time.Now,
		log:        log,
	}
}

func (s *TokenStore) Register(apiName string, ex Exchanger) {
	s.mu.Lock()
	s.exchangers[apiName] = ex
	s.mu.Unlock()
}

func (s *TokenStore) cached(apiName string) (domain.Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[apiName]
	if !ok || !tok.ValidAt(s.now(), s.margin) {
		return domain.Token{}, false
	}
	return tok, true
}

// Get returns a token that stays valid for at least the safety margin.
// Failures are reported as *domain.AuthError.
func (s *TokenStore) Get(ctx context.Context, apiName string) (domain.Token, error) {
	if tok, ok := s.cached(apiName); ok {
		return tok, nil
	}

	s.mu.RLock()
	ex, ok := s.exchangers[apiName]
	s.mu.RUnlock()
	if !ok {
		return domain.Token{}, &domain.AuthError{API: apiName, Err: errors.New("no credentials registered")}
	}

	ch := s.sf.DoChan(apiName, func() (any, error) {
		if tok, ok := s.cached(apiName); ok {
			return tok, nil
		}

		// Waiters share this exchange, so one caller's cancellation must not fail the rest.
		tok, err := ex.Exchange(context.WithoutCancel(ctx))
		if err != nil {
			metrics.TokenRefreshes.WithLabelValues(apiName, "error").Inc()
			return nil, err
		}
		tok.APIName = apiName

		s.mu.Lock()
		s.tokens[apiName] = tok
		s.mu.Unlock()

		metrics.TokenRefreshes.WithLabelValues(apiName, "ok").Inc()
		s.log.Info("token refreshed", zap.String("api", apiName), zap.Time("expires_at", tok.ExpiresAt))
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return domain.Token{}, &domain.AuthError{API: apiName, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			var ae *domain.AuthError
			if errors.As(res.Err, &ae) {
				return domain.Token{}, ae
			}
			return domain.Token{}, &domain.AuthError{API: apiName, Err: res.Err}
		}
		return res.Val.(domain.Token), nil
	}
}

// Invalidate drops the cached token, e.g. after the upstream answered 401.
func (s *TokenStore) Invalidate(apiName string) {
	s.mu.Lock()
	delete(s.tokens, apiName)
	s.mu.Unlock()
}

// ClientCredentials is an OAuth2 client_credentials grant.
type ClientCredentials struct {
	Client       *Client
	TokenURL     string
	ClientID     string
	ClientSecret string
	Now          func() time.Time
}

type oauthTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

const defaultTokenLifetime = 1800 * time.Second

func (c *ClientCredentials) Exchange(ctx context.Context) (domain.Token, error) {
	if c.ClientID == "" || c.ClientSecret == "" {
		return domain.Token{}, &domain.AuthError{API: c.Client.API(), Err: errors.New("missing client credentials")}
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)

	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.Client.Do(ctx, Request{
		Method: http.MethodPost,
		URL:    c.TokenURL,
		Header: header,
		Body:   []byte(form.Encode()),
	})
	if err != nil {
		return domain.Token{}, &domain.AuthError{API: c.Client.API(), Err: err}
	}

	var body oauthTokenResponse
	if err := resp.Decode(&body); err != nil {
		return domain.Token{}, &domain.AuthError{API: c.Client.API(), Err: err}
	}
	if strings.TrimSpace(body.AccessToken) == "" {
		return domain.Token{}, &domain.AuthError{API: c.Client.API(), Err: errors.New("empty access_token")}
	}

	lifetime := defaultTokenLifetime
	if body.ExpiresIn > 0 {
		lifetime = time.Duration(body.ExpiresIn) * time.Second
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	issued := now()
	return domain.Token{Value: body.AccessToken, IssuedAt: issued, ExpiresAt: issued.Add(lifetime)}, nil
}

// AppKey wraps static application credentials that are sent on every request.
// The issued token carries the key and expires after Lifetime. Key is fixed at
// construction, so a rotated key needs a new AppKey registered.
type AppKey struct {
	API      string
	AppID    string
	Key      string
	Lifetime time.Duration
	Now      func() time.Time
}

const defaultAppKeyLifetime = 30 * 24 * time.Hour

func (a *AppKey) Exchange(context.Context) (domain.Token, error) {
	if a.AppID == "" || a.Key == "" {
		return domain.Token{}, &domain.AuthError{API: a.API, Err: fmt.Errorf("missing app id or key")}
	}
	lifetime := a.Lifetime
	if lifetime <= 0 {
		lifetime = defaultAppKeyLifetime
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	issued := now()
	return domain.Token{Value: a.Key, IssuedAt: issued, ExpiresAt: issued.Add(lifetime)}, nil
}
