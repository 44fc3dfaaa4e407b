package utils

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/harborcrm/crm-import-orchestrator/config"
)

func ExtractToken(c *gin.Context) string {
	if token, err := c.Cookie("access_token"); err == nil && token != "" {
		return token
	}
	authHeader := c.GetHeader("Authorization")
	parts := strings.Fields(authHeader)
	if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
		return parts[1]
	}
	return ""
}

func ParseToken(tokenString string, config *config.EnvConfig) (*jwt.Token, error) {
	secret := []byte(config.JWT.SecretKey)
	return jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
}

// InjectClaimsToContext validates the identity claims and stores them on the
// request context. Every downstream query is scoped by organization_id.
func InjectClaimsToContext(c *gin.Context, claims jwt.MapClaims) error {
	userIDStr, ok := claims["user_id"].(string)
	if !ok {
		return errors.New("invalid user_id claim")
	}
	if _, err := uuid.Parse(userIDStr); err != nil {
		return errors.New("invalid user_id claim")
	}
	c.Set("user_id", userIDStr)

	orgIDStr, ok := claims["organization_id"].(string)
	if !ok {
		return errors.New("invalid organization_id claim")
	}
	if _, err := uuid.Parse(orgIDStr); err != nil {
		return errors.New("invalid organization_id claim")
	}
	c.Set("organization_id", orgIDStr)

	if role, ok := claims["role"].(string); ok {
		c.Set("role", role)
	} else {
		c.Set("role", "")
	}
	return nil
}
