package auth

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/modelgate/modelgate/internal/backend"
)

// SessionRequired validates the session credential carried as
// Authorization: Basic base64(user-id:token) against the tenant named in
// the request path. On success the user id lands in the gin context; on
// failure the response is a 401 carrying a Basic challenge with the
// tenant as realm, so clients know to prompt for credentials.
func SessionRequired(b backend.Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := c.Param("tenant")

		userID, token, ok := sessionCredentials(c)
		if ok && b.CheckSession(c.Request.Context(), tenant, userID, token) {
			c.Set(CtxUserID, userID)
			c.Next()
			return
		}

		c.Header("WWW-Authenticate", `Basic realm="`+tenant+`"`)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

// sessionCredentials parses the Basic authorization header into the
// (user id, session token) pair.
func sessionCredentials(c *gin.Context) (int64, string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Basic ") {
		return 0, "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(header[len("Basic "):])
	if err != nil {
		return 0, "", false
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return 0, "", false
	}
	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || userID <= 0 || parts[1] == "" {
		return 0, "", false
	}
	return userID, parts[1], true
}
