// Package web serves the sync HTTP API.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/conorfennell/vocabsync/internal/storage"
	"github.com/conorfennell/vocabsync/internal/token"
)

// Store is the persistence the handlers need. *storage.DB implements it.
type Store interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (int64, error)
	FindUserByEmail(ctx context.Context, email string) (*storage.User, error)
	FindUserByUsername(ctx context.Context, username string) (*storage.User, error)
	FindUserByID(ctx context.Context, id int64) (*storage.User, error)
	Upsert(ctx context.Context, userID int64, key, value string) error
	UpsertMany(ctx context.Context, userID int64, entries map[string]string) error
	GetAll(ctx context.Context, userID int64) ([]storage.Entry, error)
	DeleteByKey(ctx context.Context, userID int64, key string) error
	DeleteAll(ctx context.Context, userID int64) error
}

// Options tune the server.
type Options struct {
	// AllowedOrigins for CORS. Empty or "*" allows any origin.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server holds the dependencies for the HTTP server.
// Routes that touch the database answer 503 until a Store is attached.
type Server struct {
	router *gin.Engine
	tokens *token.Manager
	logger *slog.Logger

	mu    sync.RWMutex
	store Store
}

// NewServer creates and configures a new server.
func NewServer(tokens *token.Manager, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router: gin.New(),
		tokens: tokens,
		logger: logger,
	}
	// Keys may contain escaped slashes.
	s.router.UseRawPath = true
	s.router.Use(s.requestLogger(), gin.Recovery(), cors.New(corsConfig(opts.AllowedOrigins)))
	s.routes()
	return s
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

// Attach hands the server its Store and marks it ready.
func (s *Server) Attach(store Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = store
}

// Ready reports whether a Store is attached.
func (s *Server) Ready() bool {
	return s.db() != nil
}

func (s *Server) db() Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	api := s.router.Group("/api")
	api.GET("/health", s.handleHealth())

	authRoutes := api.Group("/auth")
	authRoutes.POST("/register", s.requireReady(), s.handleRegister())
	authRoutes.POST("/login", s.requireReady(), s.handleLogin())
	authRoutes.GET("/me", s.requireAuth(), s.requireReady(), s.handleMe())

	syncRoutes := api.Group("/sync", s.requireAuth(), s.requireReady())
	syncRoutes.POST("/upload", s.handleUpload())
	syncRoutes.GET("/download", s.handleDownload())
	syncRoutes.POST("/item", s.handlePutItem())
	syncRoutes.DELETE("/item/:key", s.handleDeleteItem())
	syncRoutes.DELETE("/all", s.handleDeleteAll())
}
