package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/yukikurage/day-planner-api/internal/constants"
	apierrors "github.com/yukikurage/day-planner-api/internal/errors"
	"github.com/yukikurage/day-planner-api/internal/timeutil"
)

// RequireDateKey checks that the :date URL parameter is a YYYY-MM-DD date
func RequireDateKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		dateKey := c.Param("date")
		if !timeutil.IsDateKey(dateKey) {
			apierrors.InvalidFormat(c, "Date must be formatted as YYYY-MM-DD")
			c.Abort()
			return
		}

		c.Set(constants.ContextKeyDateKey, dateKey)
		c.Next()
	}
}

// GetDateKey retrieves the validated date-key from context
func GetDateKey(c *gin.Context) string {
	return c.GetString(constants.ContextKeyDateKey)
}
