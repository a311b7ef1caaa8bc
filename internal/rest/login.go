package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/modelgate/modelgate/internal/backend"
)

// Login performs primary login with form credentials and returns the new
// session. It is the only route that consumes a password; every other
// route verifies a session token instead.
func Login(b backend.Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := c.Param("tenant")
		ctx := c.Request.Context()

		if err := b.Init(ctx, tenant); err != nil {
			log.Error().Err(err).Str("tenant", tenant).Msg("tenant init failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		sess, err := b.Authenticate(ctx, tenant, c.PostForm("login"), c.PostForm("password"))
		if err != nil {
			log.Error().Err(err).Str("tenant", tenant).Msg("login failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if sess == nil {
			c.String(http.StatusForbidden, "Bad Username or Password")
			return
		}
		c.JSON(http.StatusOK, sess)
	}
}
