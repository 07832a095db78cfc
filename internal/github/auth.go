package github

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// MaxJWTDuration is the longest lifetime GitHub accepts for an App JWT.
const MaxJWTDuration = 10 * time.Minute

// TokenRefreshBuffer is how long before expiry an installation token is
// considered stale.
const TokenRefreshBuffer = 5 * time.Minute

// TokenSource supplies the bearer token sent with every API request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a personal access token that never changes.
type StaticToken string

// Token returns the token itself.
func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// installationToken is the response body of the access_tokens endpoint.
type installationToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AppTokenSource authenticates as a GitHub App installation. It signs a
// short-lived JWT with the App's private key, exchanges it for an
// installation token and caches that token until shortly before it expires.
type AppTokenSource struct {
	mu sync.Mutex

	appID          string
	installationID int64
	key            *rsa.PrivateKey

	baseURL    string
	httpClient *http.Client
	now        func() time.Time

	token     string
	expiresAt time.Time
}

// AppOption configures an AppTokenSource.
type AppOption func(*AppTokenSource)

// WithAppBaseURL points the token exchange at a different API host.
func WithAppBaseURL(url string) AppOption {
	return func(s *AppTokenSource) {
		s.baseURL = url
	}
}

// WithAppHTTPClient sets the HTTP client used for the token exchange.
func WithAppHTTPClient(client *http.Client) AppOption {
	return func(s *AppTokenSource) {
		s.httpClient = client
	}
}

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(fn func() time.Time) AppOption {
	return func(s *AppTokenSource) {
		s.now = fn
	}
}

// NewAppTokenSource validates the App credentials and returns a source that
// fetches installation tokens lazily.
func NewAppTokenSource(appID, installationID int64, privateKeyPEM []byte, opts ...AppOption) (*AppTokenSource, error) {
	if appID <= 0 {
		return nil, fmt.Errorf("app ID must be positive")
	}
	if installationID <= 0 {
		return nil, fmt.Errorf("installation ID must be positive")
	}
	key, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	s := &AppTokenSource{
		appID:          strconv.FormatInt(appID, 10),
		installationID: installationID,
		key:            key,
		baseURL:        DefaultAPIEndpoint,
		httpClient:     &http.Client{Timeout: DefaultTimeout},
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Token returns a cached installation token, refreshing it when it is
// missing or about to expire.
func (s *AppTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.expiresAt.After(s.now().Add(TokenRefreshBuffer)) {
		return s.token, nil
	}

	signed, err := s.signJWT(MaxJWTDuration)
	if err != nil {
		return "", err
	}
	tok, err := s.exchange(ctx, signed)
	if err != nil {
		return "", err
	}
	s.token = tok.Token
	s.expiresAt = tok.ExpiresAt
	return s.token, nil
}

// ExpiresAt returns the expiry of the cached token, or the zero time.
func (s *AppTokenSource) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

func (s *AppTokenSource) signJWT(lifetime time.Duration) (string, error) {
	if lifetime <= 0 || lifetime > MaxJWTDuration {
		return "", fmt.Errorf("JWT lifetime %v outside (0, %v]", lifetime, MaxJWTDuration)
	}
	// Backdate issued-at to absorb clock drift between us and GitHub.
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(lifetime - time.Minute)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, nil
}

func (s *AppTokenSource) exchange(ctx context.Context, signed string) (*installationToken, error) {
	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", s.baseURL, s.installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+signed)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange installation token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, parseAPIError(resp.StatusCode, body)
	}

	var tok installationToken
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tok.Token == "" {
		return nil, fmt.Errorf("token response did not include a token")
	}
	return &tok, nil
}

// parsePrivateKey accepts PKCS#1 and PKCS#8 encoded RSA keys.
func parsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	if block.Type == "RSA PRIVATE KEY" {
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, nil
}
