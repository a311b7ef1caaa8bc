package bootstrap

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	httpapi "github.com/modelgate/modelgate/internal/api/http"
	"github.com/modelgate/modelgate/internal/api/http/middleware"
	"github.com/modelgate/modelgate/internal/backend"
	"github.com/modelgate/modelgate/internal/rest"
	"github.com/modelgate/modelgate/internal/txn"
)

type RouterDeps struct {
	ServiceName string
	Version     string
	Backend     backend.Backend
	Wrapper     *txn.Wrapper
	Redis       *redis.Client
	CORSOrigins []string
	RateRPS     float64
	RateBurst   int
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	if len(dep.CORSOrigins) == 1 && dep.CORSOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = dep.CORSOrigins
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	r.Use(cors.New(corsCfg))

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, dep.Redis)
	healthHandler.RegisterRoutes(r)

	rest.Register(r, dep.Backend, dep.Wrapper,
		middleware.RequestIDMiddleware(),
		middleware.RateLimit(dep.RateRPS, dep.RateBurst),
	)

	return r
}
