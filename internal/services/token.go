package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/siteops-app/apiserver/internal/store"
	"github.com/siteops-app/apiserver/types"
)

// Token failure classes. Callers must distinguish expiry (silent refresh is
// worth attempting) from invalidity (re-login) from revocation (replay or
// logged-out session); the HTTP boundary collapses all three into 401.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenRevoked = errors.New("token revoked")
)

const (
	tokenUseAccess  = "access"
	tokenUseRefresh = "refresh"
)

// Claims is the JWT payload carried by both access and refresh tokens.
// Use separates the two so a refresh token can never pass an access check.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	Use   string `json:"use"`
	jwt.RegisteredClaims
}

// RefreshTokenStore is the persistence surface the token service needs.
type RefreshTokenStore interface {
	Replace(ctx context.Context, token types.RefreshToken) error
	Rotate(ctx context.Context, oldHash string, next types.RefreshToken) error
	GetByHash(ctx context.Context, hash string) (types.RefreshToken, error)
	DeleteForUser(ctx context.Context, userID int, deviceID string) error
}

// UserGetter resolves user records during refresh, so rotated access tokens
// always carry the current role and a deactivated user cannot refresh.
type UserGetter interface {
	GetByID(ctx context.Context, id int) (types.User, error)
}

// TokenService issues, verifies, rotates, and revokes token pairs.
// It writes no activity log entries; audit policy belongs to callers.
type TokenService struct {
	tokens     RefreshTokenStore
	users      UserGetter
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenService(tokens RefreshTokenStore, users UserGetter, secret, issuer string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		tokens:     tokens,
		users:      users,
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Issue creates a fresh token pair for the user and persists the refresh
// half. A prior refresh token for the same (user, device) pair is replaced.
func (s *TokenService) Issue(ctx context.Context, user types.User, deviceID string) (types.TokenPair, error) {
	now := time.Now().UTC()

	accessToken, err := s.sign(user, tokenUseAccess, now, s.accessTTL)
	if err != nil {
		return types.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refreshToken, err := s.sign(user, tokenUseRefresh, now, s.refreshTTL)
	if err != nil {
		return types.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	record := types.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashToken(refreshToken),
		DeviceID:  deviceID,
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	if err := s.tokens.Replace(ctx, record); err != nil {
		return types.TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return types.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

// VerifyAccess validates an access token and returns the identity it
// asserts. Fails with ErrTokenExpired or ErrTokenInvalid.
func (s *TokenService) VerifyAccess(token string) (types.SessionIdentity, error) {
	claims, err := s.parse(token, tokenUseAccess)
	if err != nil {
		return types.SessionIdentity{}, err
	}
	id, err := strconv.Atoi(claims.Subject)
	if err != nil || id < 1 {
		return types.SessionIdentity{}, ErrTokenInvalid
	}
	return types.SessionIdentity{ID: id, Email: claims.Email, Role: claims.Role}, nil
}

// Refresh rotates a refresh token: the presented token is atomically
// invalidated and a new pair issued. A token that is valid by signature but
// no longer persisted fails with ErrTokenRevoked, which covers both replay
// after rotation and use after logout.
func (s *TokenService) Refresh(ctx context.Context, refreshToken, deviceID string) (types.TokenPair, error) {
	claims, err := s.parse(refreshToken, tokenUseRefresh)
	if err != nil {
		return types.TokenPair{}, err
	}

	oldHash := hashToken(refreshToken)
	record, err := s.tokens.GetByHash(ctx, oldHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.TokenPair{}, ErrTokenRevoked
		}
		return types.TokenPair{}, err
	}
	if deviceID == "" {
		deviceID = record.DeviceID
	}

	userID, err := strconv.Atoi(claims.Subject)
	if err != nil || userID != record.UserID {
		return types.TokenPair{}, ErrTokenInvalid
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.TokenPair{}, ErrTokenRevoked
		}
		return types.TokenPair{}, err
	}
	if !user.IsActive {
		return types.TokenPair{}, ErrTokenRevoked
	}

	now := time.Now().UTC()
	accessToken, err := s.sign(user, tokenUseAccess, now, s.accessTTL)
	if err != nil {
		return types.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	nextRefresh, err := s.sign(user, tokenUseRefresh, now, s.refreshTTL)
	if err != nil {
		return types.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	next := types.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashToken(nextRefresh),
		DeviceID:  deviceID,
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	if err := s.tokens.Rotate(ctx, oldHash, next); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Lost the race against a concurrent rotation of the same token.
			return types.TokenPair{}, ErrTokenRevoked
		}
		return types.TokenPair{}, err
	}

	return types.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: nextRefresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

// Revoke deletes persisted refresh tokens for the user. An empty deviceID
// revokes every device. Revoking nothing is not an error.
func (s *TokenService) Revoke(ctx context.Context, userID int, deviceID string) error {
	return s.tokens.DeleteForUser(ctx, userID, deviceID)
}

func (s *TokenService) sign(user types.User, use string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		Email: user.Email,
		Role:  user.Role,
		Use:   use,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.Itoa(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *TokenService) parse(tokenString, use string) (Claims, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if !token.Valid || claims.Use != use {
		return Claims{}, ErrTokenInvalid
	}
	return claims, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
