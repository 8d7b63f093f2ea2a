package scim

import (
	"crypto/hmac"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/scimgate/scimgate/internal/common/config"
)

// Authenticator guards the SCIM surface. Two modes are supported: a
// static bearer token compared in constant time, or JWT validation
// against a JWKS endpoint when one is configured.
type Authenticator struct {
	cfg    config.SCIMConfig
	logger *zap.Logger
	jwks   *jwksCache
}

// NewAuthenticator creates an authenticator from the SCIM config.
func NewAuthenticator(cfg config.SCIMConfig, logger *zap.Logger) *Authenticator {
	a := &Authenticator{cfg: cfg, logger: logger}
	if cfg.JWKSURL != "" {
		a.jwks = newJWKSCache(cfg.JWKSURL)
	}
	return a
}

// Middleware enforces the enablement gate and bearer authentication on
// every SCIM request.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.cfg.Enabled {
			abortWithError(c, ErrForbidden("SCIM provisioning is disabled"))
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			abortWithError(c, ErrUnauthorized("authorization header required"))
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			abortWithError(c, ErrUnauthorized("bearer token required"))
			return
		}

		if a.jwks != nil {
			if err := a.validateJWT(token); err != nil {
				a.logger.Debug("rejected SCIM token", zap.Error(err))
				abortWithError(c, ErrUnauthorized("invalid token"))
				return
			}
		} else if !hmac.Equal([]byte(token), []byte(a.cfg.Token)) {
			abortWithError(c, ErrUnauthorized("invalid token"))
			return
		}

		c.Next()
	}
}

func (a *Authenticator) validateJWT(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwks.publicKey()
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("token is not valid")
	}

	if a.cfg.Issuer != "" {
		issuer, err := token.Claims.GetIssuer()
		if err != nil || issuer != a.cfg.Issuer {
			return fmt.Errorf("unexpected issuer")
		}
	}
	return nil
}

// jwksCache caches the RSA public key fetched from a JWKS endpoint.
type jwksCache struct {
	url string

	mu        sync.RWMutex
	key       *rsa.PublicKey
	fetchedAt time.Time
}

const jwksCacheTTL = 5 * time.Minute

func newJWKSCache(url string) *jwksCache {
	return &jwksCache{url: url}
}

// publicKey returns the cached signing key, refreshing it when the cache
// entry is older than the TTL.
func (j *jwksCache) publicKey() (*rsa.PublicKey, error) {
	j.mu.RLock()
	if j.key != nil && time.Since(j.fetchedAt) < jwksCacheTTL {
		key := j.key
		j.mu.RUnlock()
		return key, nil
	}
	j.mu.RUnlock()

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.key != nil && time.Since(j.fetchedAt) < jwksCacheTTL {
		return j.key, nil
	}

	key, err := fetchJWKS(j.url)
	if err != nil {
		// Serve a stale key over failing the request outright.
		if j.key != nil {
			return j.key, nil
		}
		return nil, err
	}

	j.key = key
	j.fetchedAt = time.Now()
	return key, nil
}

type jwksDocument struct {
	Keys []struct {
		Kty string `json:"kty"`
		Use string `json:"use"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func fetchJWKS(url string) (*rsa.PublicKey, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		return parseRSAPublicKey(k.N, k.E)
	}
	return nil, fmt.Errorf("no RSA signing key in JWKS")
}

// parseRSAPublicKey builds a public key from base64url modulus and
// exponent components.
func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}
