package github

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func generateTestKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	pemData := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	return key, pemData
}

func TestStaticToken(t *testing.T) {
	tok, err := StaticToken("ghp_abc").Token(context.Background())
	if err != nil || tok != "ghp_abc" {
		t.Errorf("Token() = %q, %v", tok, err)
	}
}

func TestNewAppTokenSource_Validation(t *testing.T) {
	_, pemData := generateTestKey(t)

	tests := []struct {
		name           string
		appID          int64
		installationID int64
		key            []byte
		errContain     string
	}{
		{"zero app id", 0, 1, pemData, "app ID must be positive"},
		{"zero installation id", 1, 0, pemData, "installation ID must be positive"},
		{"bad pem", 1, 1, []byte("not a key"), "failed to decode PEM block"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAppTokenSource(tt.appID, tt.installationID, tt.key)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errContain) {
				t.Errorf("error = %q, want containing %q", err.Error(), tt.errContain)
			}
		})
	}
}

func TestParsePrivateKey_PKCS8(t *testing.T) {
	key, _ := generateTestKey(t)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey() error: %v", err)
	}
	pemData := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	parsed, err := parsePrivateKey(pemData)
	if err != nil {
		t.Fatalf("parsePrivateKey() error: %v", err)
	}
	if !parsed.Equal(key) {
		t.Error("parsed key does not match")
	}
}

func TestAppTokenSource_ExchangesAndCaches(t *testing.T) {
	key, pemData := generateTestKey(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/app/installations/99/access_tokens" {
			t.Errorf("path = %s", r.URL.Path)
		}

		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims := &jwt.RegisteredClaims{}
		parser := jwt.Parser{SkipClaimsValidation: true}
		if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
			return &key.PublicKey, nil
		}); err != nil {
			t.Errorf("JWT did not verify: %v", err)
		}
		if claims.Issuer != "7" {
			t.Errorf("issuer = %q, want 7", claims.Issuer)
		}

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":      "ghs_installation",
			"expires_at": now.Add(time.Hour).Format(time.RFC3339),
		})
	}))
	defer server.Close()

	src, err := NewAppTokenSource(7, 99, pemData,
		WithAppBaseURL(server.URL),
		WithNowFunc(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewAppTokenSource() error: %v", err)
	}

	for i := 0; i < 3; i++ {
		tok, err := src.Token(context.Background())
		if err != nil {
			t.Fatalf("Token() error: %v", err)
		}
		if tok != "ghs_installation" {
			t.Errorf("Token() = %q", tok)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("exchange calls = %d, want 1", got)
	}
	if !src.ExpiresAt().Equal(now.Add(time.Hour)) {
		t.Errorf("ExpiresAt() = %v", src.ExpiresAt())
	}
}

func TestAppTokenSource_RefreshesNearExpiry(t *testing.T) {
	_, pemData := generateTestKey(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":      "ghs_short",
			"expires_at": now.Add(TokenRefreshBuffer - time.Minute).Format(time.RFC3339),
		})
	}))
	defer server.Close()

	src, err := NewAppTokenSource(7, 99, pemData,
		WithAppBaseURL(server.URL),
		WithNowFunc(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewAppTokenSource() error: %v", err)
	}

	_, _ = src.Token(context.Background())
	_, _ = src.Token(context.Background())
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("exchange calls = %d, want 2", got)
	}
}

func TestAppTokenSource_APIError(t *testing.T) {
	_, pemData := generateTestKey(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message": "A JSON web token could not be decoded"}`))
	}))
	defer server.Close()

	src, err := NewAppTokenSource(7, 99, pemData, WithAppBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewAppTokenSource() error: %v", err)
	}
	if _, err := src.Token(context.Background()); err == nil || !strings.Contains(err.Error(), "unauthorized") {
		t.Errorf("Token() error = %v, want unauthorized", err)
	}
}
