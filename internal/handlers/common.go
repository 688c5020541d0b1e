package handlers

import (
	"context"
	"time"

	"volunteer-coordination/internal/apperrors"
	"volunteer-coordination/internal/middleware"
	"volunteer-coordination/pkg/validator"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const requestTimeout = 10 * time.Second

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// pathID parses an ObjectID path parameter. On failure the response is
// already written.
func pathID(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		middleware.WriteError(c, apperrors.Validation("invalid id", apperrors.FieldError{
			Field: name, Tag: "objectid", Message: name + " must be a valid id",
		}))
		return primitive.NilObjectID, false
	}
	return id, true
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.WriteError(c, validator.Translate(err))
		return false
	}
	return true
}

func bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		middleware.WriteError(c, validator.Translate(err))
		return false
	}
	return true
}

// mustObjectID is used after the objectid binding tag has accepted s.
func mustObjectID(s string) primitive.ObjectID {
	id, _ := primitive.ObjectIDFromHex(s)
	return id
}
