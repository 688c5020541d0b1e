package middleware

import (
	"strings"

	"volunteer-coordination/internal/apperrors"
	"volunteer-coordination/internal/models"
	"volunteer-coordination/pkg/auth"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ContextUserID    = "user_id"
	ContextUserEmail = "user_email"
	ContextRole      = "role"
)

func AuthMiddleware(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			AbortWithError(c, apperrors.New(apperrors.CodeUnauthorized, "Authorization header is required"))
			return
		}

		// Проверяем формат "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			AbortWithError(c, apperrors.New(apperrors.CodeUnauthorized, "Invalid authorization header format"))
			return
		}

		claims, err := jwtManager.ValidateToken(parts[1])
		if err != nil {
			AbortWithError(c, apperrors.New(apperrors.CodeUnauthorized, "Invalid token"))
			return
		}

		// Добавляем информацию о пользователе в контекст
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserEmail, claims.Email)
		c.Set(ContextRole, claims.Role)

		c.Next()
	}
}

// CurrentUser returns the identity AuthMiddleware stored on the context.
func CurrentUser(c *gin.Context) (primitive.ObjectID, models.UserRole, bool) {
	id, ok := c.Get(ContextUserID)
	if !ok {
		return primitive.NilObjectID, "", false
	}
	role, _ := c.Get(ContextRole)
	userID, ok1 := id.(primitive.ObjectID)
	userRole, ok2 := role.(models.UserRole)
	return userID, userRole, ok1 && ok2
}
