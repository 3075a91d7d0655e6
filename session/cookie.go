package session

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"
)

// minSigningKeyLen is the shortest accepted HMAC signing key in bytes.
const minSigningKeyLen = 32

// cookieEnv holds raw env values before post-parse validation.
type cookieEnv struct {
	SigningKey string        `env:"LOOM_SESSION_SIGNING_KEY"`
	CookieName string        `env:"LOOM_SESSION_COOKIE" envDefault:"loom_session"`
	TTL        time.Duration `env:"LOOM_SESSION_TTL" envDefault:"720h"`
}

// CookieConfig defines how session cookies are signed and written.
type CookieConfig struct {
	// Name is the cookie name.
	Name string
	// SigningKey is the HMAC key for session tokens, at least 32 bytes.
	SigningKey []byte
	// TTL bounds how long a written cookie stays valid.
	TTL time.Duration
	// TrustForwardedProto must be explicitly enabled for X-Forwarded-Proto
	// to influence the Secure cookie attribute. Keeping this explicit avoids
	// trusting headers from untrusted clients.
	TrustForwardedProto bool
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// LoadCookieConfigFromEnv reads session cookie configuration.
func LoadCookieConfigFromEnv() (CookieConfig, error) {
	var raw cookieEnv
	if err := env.Parse(&raw); err != nil {
		return CookieConfig{}, fmt.Errorf("parse session cookie env: %w", err)
	}
	signingKey := strings.TrimSpace(raw.SigningKey)
	if signingKey == "" {
		return CookieConfig{}, fmt.Errorf("LOOM_SESSION_SIGNING_KEY is required")
	}
	key, err := hex.DecodeString(signingKey)
	if err != nil {
		return CookieConfig{}, fmt.Errorf("decode session signing key: %w", err)
	}
	return CookieConfig{
		Name:       strings.TrimSpace(raw.CookieName),
		SigningKey: key,
		TTL:        raw.TTL,
	}, nil
}

// CookieCodec moves signed session identifiers between cookie and server.
//
// The identifier travels as an HS256 token. Tampered, expired, or malformed
// cookies read as absent so the caller starts a fresh session.
type CookieCodec struct {
	name                string
	key                 []byte
	ttl                 time.Duration
	trustForwardedProto bool
	now                 func() time.Time
}

// NewCookieCodec validates the config and builds a codec.
func NewCookieCodec(cfg CookieConfig) (*CookieCodec, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("session cookie name is required")
	}
	if len(cfg.SigningKey) < minSigningKeyLen {
		return nil, fmt.Errorf("session signing key must be at least %d bytes", minSigningKeyLen)
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("session cookie TTL must be positive")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &CookieCodec{
		name:                cfg.Name,
		key:                 cfg.SigningKey,
		ttl:                 cfg.TTL,
		trustForwardedProto: cfg.TrustForwardedProto,
		now:                 now,
	}, nil
}

// Name returns the cookie name the codec reads and writes.
func (c *CookieCodec) Name() string {
	return c.name
}

// Read returns the verified session ID carried by the request cookie.
func (c *CookieCodec) Read(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	cookie, err := r.Cookie(c.name)
	if err != nil || cookie == nil {
		return "", false
	}
	token := strings.TrimSpace(cookie.Value)
	if token == "" {
		return "", false
	}

	var claims jwt.RegisteredClaims
	_, err = jwt.ParseWithClaims(token, &claims, func(token *jwt.Token) (any, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return "", false
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return "", false
	}
	if !claims.ExpiresAt.Time.After(c.now()) {
		return "", false
	}
	return claims.Subject, true
}

// Write sets the session cookie for the current request context.
func (c *CookieCodec) Write(w http.ResponseWriter, r *http.Request, sessionID string) error {
	if w == nil {
		return fmt.Errorf("response writer is required")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	now := c.now()
	claims := jwt.RegisteredClaims{
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return fmt.Errorf("sign session cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.isHTTPS(r),
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear expires the session cookie for the current request context.
func (c *CookieCodec) Clear(w http.ResponseWriter, r *http.Request) {
	if w == nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   c.isHTTPS(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// isHTTPS reports whether a request should be treated as HTTPS.
func (c *CookieCodec) isHTTPS(r *http.Request) bool {
	if r == nil {
		return false
	}
	if c.trustForwardedProto {
		if forwarded := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto"))); forwarded == "https" {
			return true
		}
	}
	return r.TLS != nil
}
