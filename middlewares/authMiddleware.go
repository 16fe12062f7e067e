package middlewares

import (
	"net/http"

	"bitbucket.org/mmdatafocus/contracts_backend/utils"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates the bearer token (when present) and copies the
// claim identities into the request context for the models layer.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")

		if auth == "" {
			c.Next()
			return
		}

		bearer := "Bearer "
		if len(auth) <= len(bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		auth = auth[len(bearer):]

		validate, err := utils.JwtValidate(auth)
		if err != nil || !validate.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		claim, _ := validate.Claims.(*utils.JwtCustomClaim)

		ctx := c.Request.Context()
		ctx = utils.SetTokenInContext(ctx, auth)
		ctx = utils.SetUserIdInContext(ctx, claim.ID)
		if claim.BusinessId != "" {
			ctx = utils.SetBusinessIdInContext(ctx, claim.BusinessId)
		}
		if claim.Role == "admin" {
			ctx = utils.SetIsAdminInContext(ctx, true)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
