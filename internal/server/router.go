package server

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/faciam-dev/gcdisk/internal/api/handler"
	"github.com/faciam-dev/gcdisk/internal/audit"
	"github.com/faciam-dev/gcdisk/internal/auth"
	"github.com/faciam-dev/gcdisk/internal/config"
	"github.com/faciam-dev/gcdisk/internal/disk"
	"github.com/faciam-dev/gcdisk/internal/logger"
	"github.com/faciam-dev/gcdisk/internal/rbac"
	"github.com/faciam-dev/gcdisk/internal/server/middleware"
	"github.com/faciam-dev/gcdisk/pkg/crypto"
	"github.com/faciam-dev/gcdisk/pkg/util"
)

// App is the assembled API together with the components background jobs
// share with it.
type App struct {
	API      huma.API
	Disks    *disk.Service
	DiskRepo *disk.Repo
	Cache    *disk.SchemaCache
	Gate     *rbac.Gate
}

// New builds the HTTP API. Login and refresh stay public; every other
// operation requires a token and, when it declares one, a permission.
func New(ctx context.Context, db *sql.DB, cfg config.Config) (*App, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is not set")
	}
	secrets, err := crypto.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	dialect := util.DialectFromDriver(cfg.Driver)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	api := humachi.New(r, huma.DefaultConfig("Disk API", "1.0.0"))
	setupMetrics(api, r)

	gate, err := rbac.NewGate(ctx, db, cfg.TablePrefix)
	if err != nil {
		return nil, fmt.Errorf("load rbac: %w", err)
	}

	if err := initEvents(db, cfg); err != nil {
		return nil, err
	}

	roles := &rbac.RoleRepo{DB: db, Driver: cfg.Driver, Dialect: dialect, TablePrefix: cfg.TablePrefix}
	jwtHandler := auth.NewJWT(cfg.JWTSecret, 15*time.Minute)
	authHandler := &auth.Handler{
		Users: &auth.UserRepo{DB: db, Driver: cfg.Driver, TablePrefix: cfg.TablePrefix},
		Roles: roles,
		Perms: gate,
		JWT:   jwtHandler,
	}

	// login and refresh are registered before the auth middleware so that
	// they remain publicly accessible.
	auth.Register(api, authHandler)
	api.UseMiddleware(auth.Middleware(api, jwtHandler))
	auth.RegisterAuthenticated(api, authHandler)
	api.UseMiddleware(middleware.RBAC(api, gate))

	rec := &audit.Recorder{DB: db, Driver: cfg.Driver, TablePrefix: cfg.TablePrefix}
	repo := &disk.Repo{DB: db, Driver: cfg.Driver, Dialect: dialect, TablePrefix: cfg.TablePrefix}
	cache := disk.NewSchemaCache(logger.Zap(cfg.LogLevel))
	svc := &disk.Service{Store: repo, Cache: cache, Audit: rec, Secrets: secrets}

	handler.RegisterDisk(api, &handler.DiskHandler{Service: svc})
	handler.RegisterRBAC(api, &handler.RBACHandler{Roles: roles, Gate: gate, Audit: rec})
	handler.RegisterAudit(api, &handler.AuditHandler{
		Logs: &audit.Repo{DB: db, Driver: cfg.Driver, Dialect: dialect, TablePrefix: cfg.TablePrefix},
	})

	return &App{API: api, Disks: svc, DiskRepo: repo, Cache: cache, Gate: gate}, nil
}
