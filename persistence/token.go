package persistence

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTamperedCheckpoint is returned by CheckpointSigner.Verify when a
// checkpoint's state bytes do not hash to the value embedded in its
// token — the persisted file or row was edited, corrupted, or swapped
// out from under the store between save and load.
var ErrTamperedCheckpoint = errors.New("persistence: checkpoint state does not match its signed hash")

// checkpointClaims binds a signed token to one checkpoint: which session
// it belongs to and a hash of the state blob at signing time. The token
// never carries the state itself — checkpoints can be arbitrarily large,
// and a JWT is not a storage format — only an integrity attestation over
// whatever a Store returns for LoadCheckpoint.
type checkpointClaims struct {
	SessionID string `json:"session_id"`
	StateHash string `json:"state_hash"`
	jwt.RegisteredClaims
}

// CheckpointSigner issues and verifies tamper-evident tokens for
// PersistedCheckpoint.State, the way the reference stack's JWTService
// signs user session tokens — same HMAC-over-claims shape, different
// subject.
type CheckpointSigner struct {
	secret []byte
	expiry time.Duration
}

// NewCheckpointSigner builds a signer. expiry <= 0 means tokens never
// expire — appropriate for a rollback checkpoint, which must remain
// verifiable for as long as the checkpoint itself is retained.
func NewCheckpointSigner(secret string, expiry time.Duration) *CheckpointSigner {
	return &CheckpointSigner{secret: []byte(secret), expiry: expiry}
}

// Sign issues a token binding checkpointID to sessionID and a hash of
// state. Store the token alongside the checkpoint (e.g. in its
// Description or a sibling field) and pass it back to Verify on load.
func (s *CheckpointSigner) Sign(checkpointID, sessionID string, state []byte) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", errors.New("persistence: checkpoint signing disabled (no secret configured)")
	}
	claims := checkpointClaims{
		SessionID: sessionID,
		StateHash: hashState(state),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  checkpointID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if s.expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(s.expiry))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses token, checks its signature and expiry, and confirms
// state still hashes to the value embedded at signing time. It returns
// the checkpoint and session ids the token attests to.
func (s *CheckpointSigner) Verify(token string, state []byte) (checkpointID, sessionID string, err error) {
	if s == nil || len(s.secret) == 0 {
		return "", "", errors.New("persistence: checkpoint signing disabled (no secret configured)")
	}
	parsed, err := jwt.ParseWithClaims(token, &checkpointClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("persistence: unexpected checkpoint token signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", "", err
	}
	claims, ok := parsed.Claims.(*checkpointClaims)
	if !ok || !parsed.Valid {
		return "", "", errors.New("persistence: invalid checkpoint token")
	}
	if claims.StateHash != hashState(state) {
		return "", "", ErrTamperedCheckpoint
	}
	return claims.Subject, claims.SessionID, nil
}

func hashState(state []byte) string {
	sum := sha256.Sum256(state)
	return hex.EncodeToString(sum[:])
}
