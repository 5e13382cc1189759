// internal/utils/jwt.go
package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// JWTClaims are issued by the external identity provider. Role is operator or admin.
type JWTClaims struct {
	UserID          string `json:"user_id"`
	Username        string `json:"username"`
	Role            string `json:"role"`
	TransporterCNPJ string `json:"transporter_cnpj,omitempty"`
	jwt.RegisteredClaims
}

var (
	jwtSecret = []byte("your-secret-key-change-in-production")
	jwtIssuer = "aet-identity"
)

func SetJWTSecret(secret string) {
	jwtSecret = []byte(secret)
}

func SetJWTIssuer(issuer string) {
	jwtIssuer = issuer
}

// GenerateJWT signs a token the way the identity provider does. The service
// itself only uses it in tests and tooling.
func GenerateJWT(userID uuid.UUID, username, role, transporterCNPJ string, ttlHours int) (string, error) {
	claims := JWTClaims{
		UserID:          userID.String(),
		Username:        username,
		Role:            role,
		TransporterCNPJ: transporterCNPJ,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(ttlHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    jwtIssuer,
			Subject:   userID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

func ValidateJWT(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if !claims.VerifyIssuer(jwtIssuer, true) {
		return nil, errors.New("unexpected token issuer")
	}
	return claims, nil
}
