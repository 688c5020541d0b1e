// internal/middleware/permissions.go

package middleware

import (
	"fmt"
	"net/http"

	"volunteer-coordination/internal/apperrors"
	"volunteer-coordination/internal/models"

	"github.com/gin-gonic/gin"
)

// RequireRole створює middleware для перевірки мінімальної ролі
func RequireRole(minRole models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, userRole, ok := CurrentUser(c)
		if !ok {
			AbortWithError(c, apperrors.New(apperrors.CodeUnauthorized, "User not authenticated"))
			return
		}

		// Перевіряємо чи роль користувача вища або рівна необхідній
		if !userRole.IsHigherOrEqual(minRole) {
			AbortWithError(c, apperrors.New(apperrors.CodeForbidden,
				fmt.Sprintf("%s access required", minRole)))
			return
		}

		c.Next()
	}
}

// RequireAnyRole створює middleware для перевірки однієї з можливих ролей
func RequireAnyRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, userRole, ok := CurrentUser(c)
		if !ok {
			AbortWithError(c, apperrors.New(apperrors.CodeUnauthorized, "User not authenticated"))
			return
		}

		for _, allowed := range roles {
			if userRole == allowed {
				c.Next()
				return
			}
		}
		AbortWithError(c, apperrors.New(apperrors.CodeForbidden, "Insufficient permissions"))
	}
}

// WriteError writes err as {"error", "code", "fields"} with the status of
// its code.
func WriteError(c *gin.Context, err error) {
	appErr := apperrors.From(err)
	body := gin.H{
		"error": appErr.Message,
		"code":  appErr.Code,
	}
	if len(appErr.Fields) > 0 {
		body["fields"] = appErr.Fields
	}
	status := appErr.Code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		c.Error(err)
	}
	c.JSON(status, body)
}

// AbortWithError writes err and stops the handler chain.
func AbortWithError(c *gin.Context, err error) {
	WriteError(c, err)
	c.Abort()
}
