package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// Context key holding the authenticated user or collector id.
	ctxUserID = "user_id"

	headerCollectorID = "X-Collector-Id"
	mockCollectorID   = "collector-dev"

	// Browsers cannot set headers on a websocket upgrade, so the token may
	// also come as a query parameter.
	queryAccessToken = "access_token"
	queryCollectorID = "collector_id"
)

var errNoSecret = errors.New("token secret is not configured")

// ValidateToken checks an HS256 bearer token and returns the id it was
// issued to. The id is read from the user_id claim, falling back to sub.
func ValidateToken(tokenString string, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", errNoSecret
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	if tokenType, _ := claims["type"].(string); tokenType == "refresh" {
		return "", errors.New("cannot use refresh token for authentication")
	}
	if userID, _ := claims["user_id"].(string); userID != "" {
		return userID, nil
	}
	if sub, _ := claims["sub"].(string); sub != "" {
		return sub, nil
	}
	return "", errors.New("invalid user id in token")
}

// AuthMiddleware resolves the caller identity. With mock auth enabled the
// X-Collector-Id header (or collector_id query parameter) is trusted and a
// development id is used without it.
func AuthMiddleware(secret string, mockAuth bool) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if token := c.Query(queryAccessToken); authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		if mockAuth && authHeader == "" {
			id := c.GetHeader(headerCollectorID)
			if id == "" {
				id = c.Query(queryCollectorID)
			}
			if id == "" {
				id = mockCollectorID
			}
			c.Set(ctxUserID, id)
			c.Next()
			return
		}

		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			c.Abort()
			return
		}
		tokenString := extractToken(authHeader)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			c.Abort()
			return
		}

		userID, err := ValidateToken(tokenString, key)
		if err != nil {
			if errors.Is(err, errNoSecret) {
				log.Error("Rejecting bearer token: JWT_SECRET is empty")
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(ctxUserID, userID)
		c.Next()
	}
}

func extractToken(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

func currentUser(c *gin.Context) string {
	return c.GetString(ctxUserID)
}
