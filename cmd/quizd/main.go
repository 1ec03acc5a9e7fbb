package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	api "github.com/mind-engage/mindengage-quiz/internal/api/http"
	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/config"
	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/gradebook"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	rbac "github.com/mind-engage/mindengage-quiz/internal/rbac"
	"github.com/mind-engage/mindengage-quiz/internal/session"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[CONFIG] .env: %v", err)
	}
	cfg := config.FromEnv()

	policy, err := session.ParseSubmitPolicy(cfg.SubmitPolicy)
	if err != nil {
		log.Fatalf("SUBMIT_POLICY: %v", err)
	}

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer dbh.Close()
	store := quiz.NewSQLStore(dbh, cfg.DBDriver)

	// --- Auth ---
	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

	// --- Sessions ---
	logger := log.Default()
	registry := session.NewRegistry(logger)
	sessionOpts := []session.Option{
		session.WithLogger(logger),
		session.WithSubmitPolicy(policy),
		session.WithLedgerRetry(cfg.LedgerRetries, cfg.LedgerRetryBackoff),
		session.WithWriteTimeout(cfg.LedgerWriteTimeout),
		session.WithSubmittedHook(func(res session.SubmitResult) {
			log.Printf("[QUIZ] attempt %d quiz=%s learner=%s %d%% passed=%v trigger=%s",
				res.Record.AttemptNumber, res.Record.QuizID, res.Record.LearnerID,
				res.Verdict.Percent, res.Verdict.Passed, res.Trigger)
		}),
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Grade passback (optional) ---
	var syncer *gradebook.Syncer
	gbStore := gradebook.NewSQLStore(dbh)
	if cfg.EnableGradebook {
		ags := gradebook.NewClient(runCtx, gradebook.ClientConfig{
			TokenURL:     cfg.AGSTokenURL,
			ClientID:     cfg.AGSClientID,
			ClientSecret: cfg.AGSClientSecret,
			Timeout:      15 * time.Second,
		})
		syncer = gradebook.New(gbStore, ags, cfg.AGSLineItemsURL, time.Now)
		syncer.MaxRetries = cfg.GradebookMaxRetries
		syncer.Logger = logger
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(corsOptions(cfg.CORSOrigins())))

	// Local login (enabled in offline mode by default; can be enabled online via env)
	if cfg.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(authSvc, auth.Credentials{
			AdminUser:     cfg.AdminUser,
			AdminPassHash: cfg.AdminPassHash,
			DB:            dbh,
		}))
	}

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.AttachRoleFromDB(dbh, cfg.Mode == config.ModeOffline))

		api.MountSessions(pr, &api.SessionAPI{
			Bank:     store,
			Ledger:   store,
			Registry: registry,
			Options:  sessionOpts,
			Logger:   logger,
		})

		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts", api.ListAttemptsHandler(store))

		// Instructor: import quiz
		pr.With(rbac.Require("quiz:create")).
			Post("/quizzes", api.ImportQuizHandler(store))

		pr.With(rbac.Require("learners:bulk_upsert")).
			Post("/learners/bulk", api.BulkUpsertLearnersHandler(dbh))
		pr.With(rbac.Require("learners:list")).
			Get("/learners", api.ListLearnersHandler(dbh))
		pr.With(rbac.Require("learner:change_password")).
			Post("/learners/change-password", api.ChangePasswordHandler(dbh))

		if syncer != nil {
			pr.With(rbac.Require("gradebook:sync")).
				Post("/gradebook/resync", api.GradebookResyncHandler(syncer))
			pr.With(rbac.Require("gradebook:sync")).
				Put("/gradebook/user-map", api.GradebookUserMapHandler(gbStore))
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go registry.RunSweeper(runCtx, time.Minute, cfg.SessionIdleTTL)
	if syncer != nil {
		go syncer.Run(runCtx, cfg.GradebookInterval)
	}

	go func() {
		log.Printf("listening on %s (mode=%s, db=%s, submit=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver, policy)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	<-runCtx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	registry.CloseAll()
}

// corsOptions covers every method the router serves, PUT included for the
// gradebook user map.
func corsOptions(origins []string) cors.Options {
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}
