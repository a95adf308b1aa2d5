package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-gatehouse/gatehouse/pkg/log"
	"github.com/golang-jwt/jwt/v5"
)

type AuthClaims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

func (a *AuthClaims) Valid() error {
	return nil
}

var (
	issUser = "gatehouse"
)

// GenToken issues an access token for an operator of the admin endpoints
func GenToken(operator string, secretKey []byte, accessExpired time.Duration) (aToken string, err error) {

	aClaims := &AuthClaims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issUser,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(accessExpired * time.Minute)),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}
	aToken, aErr := jwt.NewWithClaims(jwt.SigningMethodHS256, aClaims).SignedString(secretKey)
	if aErr != nil {
		log.Errorw("jwt.NewWithClaims err", "error", aErr)
		return "", aErr
	}

	return aToken, nil
}

// ParseToken validates an access token
func ParseToken(aToken, secretKey string) (claims *AuthClaims, err error) {
	claims = new(AuthClaims)
	token, err := jwt.ParseWithClaims(aToken, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, jwt.ErrTokenExpired
		}
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}
