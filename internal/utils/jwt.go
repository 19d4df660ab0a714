package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

type JWTUtil struct {
	secret string
	ttl    time.Duration
}

// Claims is the decoded identity carried by an access token.
type Claims struct {
	UserID    string
	Role      string
	JTI       string
	ExpiresAt time.Time
}

func NewJWTUtil(secret string, ttl time.Duration) *JWTUtil {
	return &JWTUtil{secret: secret, ttl: ttl}
}

func (j *JWTUtil) GenerateToken(userID, role string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":     userID,
		"user_id": userID,
		"role":    role,
		"exp":     now.Add(j.ttl).Unix(),
		"iat":     now.Unix(),
		"jti":     uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.secret))
}

func (j *JWTUtil) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(j.secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, _ := mc["user_id"].(string)
	role, _ := mc["role"].(string)
	jti, _ := mc["jti"].(string)
	exp, _ := mc["exp"].(float64)
	if userID == "" || role == "" {
		return nil, ErrInvalidToken
	}

	return &Claims{
		UserID:    userID,
		Role:      role,
		JTI:       jti,
		ExpiresAt: time.Unix(int64(exp), 0),
	}, nil
}

func BlacklistKey(jti string) string {
	return "blacklist:" + jti
}
