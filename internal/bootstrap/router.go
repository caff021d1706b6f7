package bootstrap

import (
	"database/sql"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	httpapi "github.com/buildtrix/mvp-studio-backend/internal/api/http"
	"github.com/buildtrix/mvp-studio-backend/internal/api/http/middleware"
	"github.com/buildtrix/mvp-studio-backend/internal/auth"
	"github.com/buildtrix/mvp-studio-backend/internal/genlog"
	"github.com/buildtrix/mvp-studio-backend/internal/llm"
	"github.com/buildtrix/mvp-studio-backend/internal/mvp"
	mvphttp "github.com/buildtrix/mvp-studio-backend/internal/mvp/http"
	"github.com/buildtrix/mvp-studio-backend/internal/mvp/service"
	"github.com/buildtrix/mvp-studio-backend/internal/prompt"
	"github.com/buildtrix/mvp-studio-backend/internal/quota"
	"github.com/buildtrix/mvp-studio-backend/internal/users"
	"github.com/buildtrix/mvp-studio-backend/internal/wizard"
)

type RouterDeps struct {
	ServiceName string
	Version     string
	DB          *pgxpool.Pool
	Redis       *redis.Client
	LogDB       *sql.DB
	AuthClient  *fbauth.Client
	LLM         *llm.Client
	QuotaLimit  int
	QuotaWindow time.Duration
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.Default()
	r.Use(cors.Default())

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, dep.DB, dep.Redis)
	healthHandler.RegisterRoutes(r)

	api := r.Group("/api/v1")
	api.Use(middleware.RequestIDMiddleware())
	api.Use(auth.VerifyToken(dep.AuthClient))

	userRepo := users.NewRepo(dep.DB)
	api.Use(auth.WithUser(userRepo))

	mvpRepo := mvp.NewRepo(dep.DB)
	sessionRepo := wizard.NewSessionRepo(dep.DB)
	promptRepo := prompt.NewRepo(dep.DB)
	logRepo := genlog.NewRepo(dep.LogDB)

	counter := quota.NewStore(dep.Redis)
	reconciler := quota.NewReconciler(counter, mvpRepo, dep.QuotaLimit, dep.QuotaWindow)

	gen := service.NewGenerateService(mvpRepo, promptRepo, logRepo, reconciler, dep.LLM, sessionRepo)

	quota.Register(api, reconciler)

	mvps := api.Group("/mvps")
	mvps.Use(middleware.BurstLimit(rate.Every(time.Second), 5))
	mvphttp.Register(mvps, mvpRepo, gen)

	sessions := api.Group("/sessions")
	mvphttp.RegisterSessions(sessions, sessionRepo, gen)

	prompts := api.Group("/prompts")
	prompt.RegisterRoutes(prompts, promptRepo)

	return r
}
