package rpc

import (
	"context"
	"crypto/rsa"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chronoplan/chronoplan/config"
)

const devSecretHeader = "X-A2A-Dev-Secret"

// jwksCacheTTL bounds how long fetched signing keys are reused.
const jwksCacheTTL = 15 * time.Minute

// Authenticator validates requests on /a2a/rpc. Two schemes are
// accepted: the shared dev secret header and an OIDC bearer token.
type Authenticator struct {
	devSecret string
	oidc      config.OIDCConfig
	audience  string

	httpClient *http.Client

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewAuthenticator builds an authenticator from server config. The OIDC
// audience defaults to the agent ID.
func NewAuthenticator(cfg *config.Config) *Authenticator {
	aud := cfg.Server.OIDC.Audience
	if aud == "" {
		aud = cfg.Agent.ID
	}
	return &Authenticator{
		devSecret:  cfg.Server.DevSecret,
		oidc:       cfg.Server.OIDC,
		audience:   aud,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Authenticate checks the request against the enabled schemes.
func (a *Authenticator) Authenticate(r *http.Request) error {
	if a.devSecret != "" {
		if secret := r.Header.Get(devSecretHeader); secret != "" {
			if subtle.ConstantTimeCompare([]byte(secret), []byte(a.devSecret)) == 1 {
				return nil
			}
			return fmt.Errorf("invalid shared secret")
		}
	}

	if a.oidc.Issuer != "" {
		authz := r.Header.Get("Authorization")
		if token, ok := strings.CutPrefix(authz, "Bearer "); ok {
			return a.validateBearer(r.Context(), token)
		}
	}

	return fmt.Errorf("missing credentials")
}

// validateBearer verifies an RS256 token against the issuer's JWKS:
// signature, exp, iat, iss, and aud must all check out.
func (a *Authenticator) validateBearer(ctx context.Context, raw string) error {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return a.signingKey(ctx, kid)
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(a.oidc.Issuer),
		jwt.WithAudience(a.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return fmt.Errorf("invalid bearer token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("invalid bearer token")
	}
	return nil
}

// signingKey returns the RSA key for kid, refreshing the JWKS cache
// when the key is unknown or stale.
func (a *Authenticator) signingKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	a.mu.RLock()
	key, ok := a.keys[kid]
	fresh := time.Since(a.fetchedAt) < jwksCacheTTL
	a.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	if err := a.refreshJWKS(ctx); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	key, ok = a.keys[kid]
	if !ok {
		return nil, fmt.Errorf("no signing key %q in JWKS", kid)
	}
	return key, nil
}

type jwksDocument struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		Use string `json:"use"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (a *Authenticator) refreshJWKS(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.oidc.JWKSURL, nil)
	if err != nil {
		return fmt.Errorf("building JWKS request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching JWKS: status %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("parsing JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := rsaKeyFromJWK(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return fmt.Errorf("JWKS at %s contains no usable RSA keys", a.oidc.JWKSURL)
	}

	a.mu.Lock()
	a.keys = keys
	a.fetchedAt = time.Now()
	a.mu.Unlock()
	return nil
}

func rsaKeyFromJWK(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(new(big.Int).SetBytes(eb).Int64()),
	}, nil
}
