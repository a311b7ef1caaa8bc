package auth

import "github.com/gin-gonic/gin"

const (
	// CtxUserID is the gin context key the session middleware stores the
	// authenticated user id under.
	CtxUserID = "auth_user_id"
)

// UserID extracts the authenticated user id from the gin context. It is
// set by SessionRequired; zero means no authenticated user.
func UserID(c *gin.Context) int64 {
	return c.GetInt64(CtxUserID)
}
