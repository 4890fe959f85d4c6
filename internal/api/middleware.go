/**
 * @description
 * Authentication and authorization middleware for the buyer-service.
 * AuthMiddleware validates RS256 JWTs against the identity provider's JWKS
 * endpoint and injects the resolved Caller into the request context.
 * RequireSuperadmin gates the admin routes behind the injected capability
 * checker.
 */
package api

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sokoyetu/buyer-service/internal/domain"
)

type contextKey string

const callerContextKey = contextKey("caller")

// AuthMiddleware validates bearer JWTs and injects the caller identity
// into context. Audience and issuer checks apply when non-empty.
func AuthMiddleware(logger *slog.Logger, jwksURL, audience, issuer string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, logger, r, domain.UnauthorizedError("Authorization header required"))
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				respondError(w, logger, r, domain.UnauthorizedError("invalid Authorization header format"))
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}

				kid, ok := token.Header["kid"].(string)
				if !ok {
					return nil, fmt.Errorf("kid not found in token header")
				}

				publicKey, err := getPublicKeyFromJWKS(jwksURL, kid)
				if err != nil {
					return nil, fmt.Errorf("failed to get public key: %w", err)
				}

				return publicKey, nil
			})
			if err != nil || !token.Valid {
				respondError(w, logger, r, domain.UnauthorizedError("invalid token"))
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				respondError(w, logger, r, domain.UnauthorizedError("invalid token claims"))
				return
			}

			if audience != "" {
				if aud, ok := claims["aud"].(string); !ok || aud != audience {
					respondError(w, logger, r, domain.UnauthorizedError("invalid audience"))
					return
				}
			}
			if issuer != "" {
				if iss, ok := claims["iss"].(string); !ok || iss != issuer {
					respondError(w, logger, r, domain.UnauthorizedError("invalid issuer"))
					return
				}
			}

			uid, ok := claims["sub"].(string)
			if !ok || uid == "" {
				respondError(w, logger, r, domain.UnauthorizedError("user ID not found in token"))
				return
			}
			email, _ := claims["email"].(string)

			ctx := ContextWithCaller(r.Context(), domain.Caller{UID: uid, Email: email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSuperadmin gates a route group behind the superadmin capability.
// It must run after AuthMiddleware.
func RequireSuperadmin(logger *slog.Logger, checker CapabilityChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFromContext(r.Context())
			if !ok {
				respondError(w, logger, r, domain.UnauthorizedError("caller identity missing"))
				return
			}
			if !checker.HasCapability(caller, CapabilitySuperadmin) {
				respondError(w, logger, r, domain.ForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ContextWithCaller returns a context carrying the caller identity.
func ContextWithCaller(ctx context.Context, caller domain.Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

// CallerFromContext retrieves the caller identity from the request context.
func CallerFromContext(ctx context.Context) (domain.Caller, bool) {
	caller, ok := ctx.Value(callerContextKey).(domain.Caller)
	return caller, ok
}

// getPublicKeyFromJWKS fetches the signing key for a kid from the JWKS
// endpoint.
func getPublicKeyFromJWKS(jwksURL, kid string) (interface{}, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(jwksURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, err
	}

	for _, key := range jwks.Keys {
		if key.Kid == kid {
			return parseRSAPublicKey(key.N, key.E)
		}
	}

	return nil, fmt.Errorf("key with kid %s not found", kid)
}

func parseRSAPublicKey(n, e string) (interface{}, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var exp uint64
	if len(eb) == 3 {
		exp = uint64(eb[0])<<16 | uint64(eb[1])<<8 | uint64(eb[2])
	} else {
		for _, b := range eb {
			exp = (exp << 8) | uint64(b)
		}
	}

	nInt := new(big.Int).SetBytes(nb)
	pub := &rsa.PublicKey{N: nInt, E: int(exp)}
	return pub, nil
}
