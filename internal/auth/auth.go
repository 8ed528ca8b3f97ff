package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidToken       = errors.New("invalid token")
)

type Claims struct {
	Client string `json:"client"`
	jwt.RegisteredClaims
}

// Service mints and validates bearer tokens for write access. Clients obtain
// a token by presenting the ingest API key, whose bcrypt hash is held in
// configuration; the key itself is never stored.
type Service struct {
	secret        []byte
	duration      time.Duration
	ingestKeyHash string
}

func NewService(secret, ingestKeyHash string, duration time.Duration) *Service {
	return &Service{
		secret:        []byte(secret),
		duration:      duration,
		ingestKeyHash: ingestKeyHash,
	}
}

// VerifyIngestKey checks a presented API key against the configured hash.
func (s *Service) VerifyIngestKey(key string) error {
	if s.ingestKeyHash == "" || key == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.ingestKeyHash), []byte(key)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashIngestKey produces the bcrypt hash to place in configuration.
func HashIngestKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *Service) GenerateToken(client string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Client: client,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.duration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
