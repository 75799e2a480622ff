package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"friendMeshAPI/handlers"
	"friendMeshAPI/internal/kvstore"
	"friendMeshAPI/internal/relationship"
	"friendMeshAPI/middleware"
	"friendMeshAPI/services"
)

var (
	dbPool           *pgxpool.Pool
	friendService    *services.FriendService
	directoryService *services.DirectoryService
)

func init() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	clerkSecretKey := os.Getenv("CLERK_SECRET_KEY")
	if clerkSecretKey == "" {
		logrus.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(clerkSecretKey)
	logrus.Info("Clerk initialized successfully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var store relationship.Store
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		// Instance-local store: fine for a single instance, loses writes
		// across several. Set DATABASE_URL for anything beyond local runs.
		logrus.Warn("DATABASE_URL not set, using the in-memory relationship store")
		store = relationship.NewMemoryStore()
	} else {
		poolConfig, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to parse database URL")
		}

		poolConfig.MaxConns = 25
		poolConfig.MinConns = 5
		poolConfig.MaxConnLifetime = time.Hour
		poolConfig.MaxConnIdleTime = 30 * time.Minute
		poolConfig.HealthCheckPeriod = time.Minute

		dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to create connection pool")
		}

		if err := dbPool.Ping(ctx); err != nil {
			logrus.WithError(err).Fatal("Failed to ping database")
		}

		pgStore := kvstore.NewPostgresStore(dbPool)
		if err := pgStore.Migrate(ctx); err != nil {
			logrus.WithError(err).Fatal("Failed to migrate relationship records table")
		}
		store = pgStore
		logrus.Info("Successfully connected to Postgres")
	}

	controller := relationship.NewController(store)
	controller.OnConflict = func(cmd relationship.Command) {
		middleware.RecordRelationshipConflict(string(cmd))
	}

	directoryService = services.NewDirectoryService()
	friendService = services.NewFriendService(controller, directoryService)

	middleware.InitPrometheus()
}

func main() {
	defer func() {
		if dbPool != nil {
			logrus.Info("Closing database connection pool...")
			dbPool.Close()
		}
	}()

	friendsHandler := handlers.NewFriendsHandler(friendService)
	userHandler := handlers.NewUserHandler(directoryService, friendService)
	webhookHandler := handlers.NewWebhookHandler(friendService)

	r := mux.NewRouter()

	go middleware.CleanupVisitors()

	r.Use(middleware.RateLimitMiddleware)
	r.Use(middleware.RequestLogMiddleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if dbPool != nil {
			if err := dbPool.Ping(ctx); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "friendMesh-api"}`))
	}).Methods("GET")

	r.HandleFunc("/webhooks/clerk", webhookHandler.HandleClerkWebhook).Methods("POST")

	api := r.PathPrefix("/api/v1").Subrouter()

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware)

	protected.HandleFunc("/friends/requests/send", friendsHandler.SendRequest).Methods("POST")
	protected.HandleFunc("/friends/requests/accept", friendsHandler.AcceptRequest).Methods("POST")
	protected.HandleFunc("/friends/requests/ignore", friendsHandler.IgnoreRequest).Methods("POST")
	protected.HandleFunc("/friends/requests/cancel", friendsHandler.CancelRequest).Methods("POST")
	protected.HandleFunc("/friends/remove", friendsHandler.RemoveFriend).Methods("POST")
	protected.HandleFunc("/friends/list", friendsHandler.ListFriends).Methods("GET")
	protected.HandleFunc("/friends/requests/in/list", friendsHandler.ListIncoming).Methods("GET")
	protected.HandleFunc("/friends/requests/out/list", friendsHandler.ListOutgoing).Methods("GET")

	protected.HandleFunc("/user", userHandler.GetProfile).Methods("GET")
	protected.HandleFunc("/user/search", userHandler.SearchUsers).Methods("GET")
	protected.HandleFunc("/user/delete-account", userHandler.DeleteAccount).Methods("DELETE")

	corsHandler := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins([]string{"*"}),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		gorillaHandlers.ExposedHeaders([]string{"Content-Length", "X-Request-ID"}),
		gorillaHandlers.AllowCredentials(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logrus.WithField("port", port).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Error starting server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	logrus.WithField("signal", sig.String()).Info("Got signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server shutdown error")
	}

	logrus.Info("Server shutdown complete")
}
