package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// トークン種別
const (
	TokenTypeUser  = "user"
	TokenTypeAdmin = "admin"
)

const issuer = "touristguard"

// ErrInvalidToken はトークンが不正または期限切れであることを表す。
var ErrInvalidToken = errors.New("invalid token")

// Claims はアクセストークンのクレーム。
type Claims struct {
	Type     string `json:"typ"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Token は発行したアクセストークン。
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// TokenService はHS256で署名したアクセストークンの発行と検証を行う。
type TokenService struct {
	signingKey []byte
	userTTL    time.Duration
	adminTTL   time.Duration
	now        func() time.Time
}

// NewTokenService はTokenServiceを生成する。
func NewTokenService(secret string, userTTL, adminTTL time.Duration) *TokenService {
	return &TokenService{
		signingKey: []byte(secret),
		userTTL:    userTTL,
		adminTTL:   adminTTL,
		now:        time.Now,
	}
}

// IssueUserToken は旅行者向けのトークンを発行する。
func (s *TokenService) IssueUserToken(userID, email string) (*Token, error) {
	return s.issue(userID, TokenTypeUser, email, s.userTTL)
}

// IssueAdminToken は管理者向けのトークンを発行する。
func (s *TokenService) IssueAdminToken(adminID, username string) (*Token, error) {
	return s.issue(adminID, TokenTypeAdmin, username, s.adminTTL)
}

func (s *TokenService) issue(subject, typ, username string, ttl time.Duration) (*Token, error) {
	now := s.now()
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Type:     typ,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Token{Value: signed, ExpiresAt: expiresAt}, nil
}

// Validate はトークンを検証し、クレームを返す。
// 署名不正、期限切れ、HMAC以外のアルゴリズムは全てErrInvalidTokenになる。
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token has expired", ErrInvalidToken)
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if claims.Type != TokenTypeUser && claims.Type != TokenTypeAdmin {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
