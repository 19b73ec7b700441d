package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/siteops-app/apiserver/config"
	"github.com/siteops-app/apiserver/internal/db"
	"github.com/siteops-app/apiserver/internal/handlers"
	"github.com/siteops-app/apiserver/internal/middleware"
	"github.com/siteops-app/apiserver/internal/mq"
	"github.com/siteops-app/apiserver/internal/services"
	"github.com/siteops-app/apiserver/internal/storage"
	"github.com/siteops-app/apiserver/internal/store"
	"github.com/siteops-app/apiserver/types"
)

// Server wraps the HTTP server, router, and background worker lifecycle.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	bus        *mq.Bus
	worker     *services.SyncWorker
	log        *slog.Logger

	workerCancel context.CancelFunc
}

// New constructs a fully wired Server.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	log := newLogger(cfg.Env)

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	bus, err := mq.New(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	photos, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if photos != nil {
		if err := photos.EnsureBucket(ctx); err != nil {
			_ = dbConn.Close()
			return nil, err
		}
	}

	userRepo := store.NewUserRepository(dbConn)
	tokenRepo := store.NewRefreshTokenRepository(dbConn)
	sessionRepo := store.NewWebSessionRepository(dbConn)
	activityRepo := store.NewActivityRepository(dbConn)
	syncRepo := store.NewSyncQueueRepository(dbConn)
	projectRepo := store.NewProjectRepository(dbConn)
	taskRepo := store.NewTaskRepository(dbConn)
	deliveryRepo := store.NewDeliveryRepository(dbConn)
	equipmentRepo := store.NewEquipmentRepository(dbConn)

	userService := services.NewUserService(userRepo)
	tokenService := services.NewTokenService(
		tokenRepo, userRepo,
		cfg.Auth.JWTSecret, cfg.Auth.Issuer,
		cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL,
	)
	sessionAdapter := services.NewSessionAdapter(
		sessionRepo, tokenService,
		cfg.Auth.SessionCookie, cfg.Auth.SessionTTL, cfg.Auth.SecureCookies,
	)
	activityLogger := services.NewActivityLogger(activityRepo, bus, log)
	syncQueue := services.NewSyncQueue(syncRepo, bus, log)
	reconciler := services.NewReconciler(
		syncRepo, log,
		services.NewProjectSource(projectRepo),
		services.NewTaskSource(taskRepo),
		services.NewDeliverySource(deliveryRepo),
		services.NewEquipmentSource(equipmentRepo),
	)
	projectService := services.NewProjectService(projectRepo, syncQueue)
	taskService := services.NewTaskService(taskRepo, syncQueue)
	deliveryService := services.NewDeliveryService(deliveryRepo, photos, syncQueue)
	equipmentService := services.NewEquipmentService(equipmentRepo, syncQueue)

	worker := services.NewSyncWorker(syncRepo, bus, reconciler.Entities(), log, tokenRepo, sessionRepo)

	authHandler := handlers.NewAuthHandler(userService, tokenService, sessionAdapter, activityLogger)
	syncHandler := handlers.NewSyncHandler(reconciler, activityLogger)
	projectHandler := handlers.NewProjectHandler(projectService)
	taskHandler := handlers.NewTaskHandler(taskService)
	deliveryHandler := handlers.NewDeliveryHandler(deliveryService)
	equipmentHandler := handlers.NewEquipmentHandler(equipmentService)
	activityHandler := handlers.NewActivityHandler(activityLogger)
	healthHandler := handlers.NewHealthHandler(dbConn)

	auth := authHandler.RequireAuth
	manage := authHandler.RequireRole(types.CanManage)
	admin := authHandler.RequireRole(func(role string) bool { return role == types.RoleAdmin })

	router := chi.NewRouter()
	router.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Logger,
		chimw.Timeout(60*time.Second),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)
	router.Get("/healthz", healthHandler.Healthz)
	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, authHandler)
		})
		r.Route("/projects", func(r chi.Router) {
			handlers.ProjectRouter(r, projectHandler, auth, manage)
		})
		r.Route("/tasks", func(r chi.Router) {
			handlers.TaskRouter(r, taskHandler, auth, manage)
		})
		r.Route("/deliveries", func(r chi.Router) {
			handlers.DeliveryRouter(r, deliveryHandler, auth, manage)
		})
		r.Route("/equipment", func(r chi.Router) {
			handlers.EquipmentRouter(r, equipmentHandler, auth, manage)
		})
		r.Route("/activity", func(r chi.Router) {
			handlers.ActivityRouter(r, activityHandler, admin)
		})
	})
	router.Route("/mobile/v1/sync", func(r chi.Router) {
		handlers.SyncRouter(r, syncHandler, auth)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		bus:        bus,
		worker:     worker,
		log:        log,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the sync worker and the HTTP server. It blocks until the
// server stops.
func (s *Server) Start() error {
	workerCtx, cancel := context.WithCancel(context.Background())
	s.workerCancel = cancel
	go s.worker.Run(workerCtx)

	s.log.Info("server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the worker, drains in-flight requests, and closes the
// database and bus.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.workerCancel != nil {
		s.workerCancel()
	}

	err := s.httpServer.Shutdown(ctx)

	if s.bus != nil {
		_ = s.bus.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}

func newLogger(env string) *slog.Logger {
	if env == "dev" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
