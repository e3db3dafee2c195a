package matrixhub

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jarkius/agent-orchestra/pkg/store"
)

// hubClaims carries the matrix id through a signed JWT, giving the token
// issuance scheme spec §4.5 describes ("deterministic hash of matrix_id +
// hub_secret") a standard, verifiable envelope rather than a bare hash.
type hubClaims struct {
	MatrixID string `json:"matrix_id"`
	jwt.RegisteredClaims
}

// IssueToken mints a JWT for matrixID, valid for expiry, and persists it to
// the Store so ValidToken / the reconnect grace window (§4.5) can consult
// it even across hub restarts.
func IssueToken(ctx context.Context, st *store.Store, secret, matrixID string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := hubClaims{
		MatrixID: matrixID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			Subject:   deterministicSubject(matrixID, secret),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	if err := st.IssueToken(ctx, signed, matrixID, now.Add(expiry)); err != nil {
		return "", fmt.Errorf("persist token: %w", err)
	}
	return signed, nil
}

// deterministicSubject implements the literal "deterministic hash of
// matrix_id + hub_secret" spec §4.5 names, embedded as the JWT subject so
// two tokens minted for the same matrix+secret pair are recognizably
// linked without leaking the secret itself.
func deterministicSubject(matrixID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(matrixID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyToken parses and validates a JWT against secret, then confirms the
// token is still on record in the Store (so revocation/grace-window purges
// take effect immediately). Returns the matrix id on success.
func VerifyToken(ctx context.Context, st *store.Store, secret, tokenString string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &hubClaims{}, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := parsed.Claims.(*hubClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	if _, err := st.ValidToken(ctx, tokenString); err != nil {
		return "", fmt.Errorf("token not recognized (expired, purged, or revoked): %w", err)
	}
	return claims.MatrixID, nil
}

// ReissueAndPurge issues a fresh token then purges any token for matrixID
// older than the reconnect grace window, leaving the just-issued token and
// the immediately-preceding one (still within grace) valid (spec §4.5:
// "only older tokens for the same matrix are purged on reissue").
func ReissueAndPurge(ctx context.Context, st *store.Store, secret, matrixID string, expiry, grace time.Duration) (string, error) {
	tok, err := IssueToken(ctx, st, secret, matrixID, expiry)
	if err != nil {
		return "", err
	}
	if err := st.PurgeOldTokens(ctx, matrixID, time.Now().Add(-grace)); err != nil {
		return "", fmt.Errorf("purge old tokens: %w", err)
	}
	return tok, nil
}
