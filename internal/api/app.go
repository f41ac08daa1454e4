package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/codemind/reviewhub/internal/analysis"
	"github.com/codemind/reviewhub/internal/config"
	"github.com/codemind/reviewhub/internal/database"
	"github.com/codemind/reviewhub/internal/server"
	"github.com/codemind/reviewhub/internal/service"
	"github.com/codemind/reviewhub/internal/stats"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
)

type ReviewHubApp struct {
	log            *log.Logger
	db             database.ReviewRepository
	svc            *service.CollabService
	analyzer       *analysis.Client
	cs             *server.CollabServer
	stats          stats.StatsProvider
	mux            *http.Server
	validate       *validator.Validate
	signingKey     []byte
	allowedOrigins []string
}

func NewReviewHubApp(logger *log.Logger, cs *server.CollabServer, svc *service.CollabService,
	analyzer *analysis.Client, db database.ReviewRepository, sp stats.StatsProvider,
	mux *http.ServeMux, cfg *config.Config) *ReviewHubApp {
	s := &ReviewHubApp{
		log:            logger,
		db:             db,
		svc:            svc,
		analyzer:       analyzer,
		cs:             cs,
		stats:          sp,
		validate:       validator.New(),
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))

	mux.HandleFunc("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.HandleFunc("GET /api/rooms", s.authMiddleware(s.listRooms))
	mux.HandleFunc("GET /api/rooms/{id}", s.authMiddleware(s.getRoom))
	mux.HandleFunc("POST /api/rooms/{id}/participants", s.authMiddleware(s.addParticipant))
	mux.HandleFunc("POST /api/rooms/{id}/threads", s.authMiddleware(s.createThread))
	mux.HandleFunc("GET /api/rooms/{id}/threads", s.authMiddleware(s.listThreads))
	mux.HandleFunc("POST /api/rooms/{id}/threads/{threadId}/comments", s.authMiddleware(s.createComment))
	mux.HandleFunc("GET /api/rooms/{id}/threads/{threadId}/comments", s.authMiddleware(s.listComments))

	mux.HandleFunc("GET /api/notifications", s.authMiddleware(s.listNotifications))
	mux.HandleFunc("POST /api/notifications/{id}/read", s.authMiddleware(s.markNotificationRead))

	mux.HandleFunc("POST /api/analyze", s.authMiddleware(s.analyze))
	mux.HandleFunc("GET /api/reports", s.authMiddleware(s.listReports))
	mux.HandleFunc("GET /api/analytics", s.authMiddleware(s.analytics))
	mux.HandleFunc("GET /api/integrations", s.authMiddleware(s.listIntegrations))

	mux.HandleFunc("GET /api/healthz", s.healthz)
	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *ReviewHubApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ReviewHubApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
