package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/softsdn/network-service/internal/domain"
)

// ServiceClaims is carried by pre-shared-key service-to-service
// tokens, which are granted the same trust as an authenticated agent.
type ServiceClaims struct {
	ServiceName string `json:"service"`
	jwt.RegisteredClaims
}

// ValidateServiceToken parses and validates a pre-shared-key JWT signed
// with the given network secret, returning the agent-trust principal
// it authorizes.
func ValidateServiceToken(tokenString string, secret []byte) (domain.Principal, error) {
	if len(secret) == 0 {
		return domain.Principal{}, errors.New("identity: network secret not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return domain.Principal{}, err
	}
	claims, ok := token.Claims.(*ServiceClaims)
	if !ok || !token.Valid || claims.ServiceName == "" {
		return domain.Principal{}, errors.New("identity: invalid service token")
	}
	return PreSharedKeyPrincipal(claims.ServiceName), nil
}
