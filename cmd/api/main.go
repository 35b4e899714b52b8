package main

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/safar/go-order-backend/internal/auth"
	"github.com/safar/go-order-backend/internal/config"
	"github.com/safar/go-order-backend/internal/database"
	"github.com/safar/go-order-backend/internal/orders"
	"github.com/safar/go-order-backend/internal/store"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("connect to database")
	}
	defer db.Close()

	log.Info("connected to database")

	productStore := store.NewProducts(db)
	orderStore := store.NewOrders()
	userStore := store.NewUsers(db)
	tokenStore := store.NewTokens(db)

	engine := orders.NewEngine(db, productStore, orderStore)
	authService := auth.NewService(cfg.Auth, userStore, tokenStore)

	if err := seedAdmin(cfg.Admin, userStore, authService); err != nil {
		log.WithError(err).Fatal("seed admin user")
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/authentication/login", handleLogin(authService))
	mux.HandleFunc("/authentication/refresh-token", handleRefreshToken(authService))
	mux.HandleFunc("/authentication/logout", handleLogout(authService))
	mux.HandleFunc("/users", handleUsers(userStore, authService))
	mux.HandleFunc("/users/", handleUserByID(userStore, authService))
	mux.HandleFunc("/products", handleProducts(productStore, authService))
	mux.HandleFunc("/products/", handleProductByID(productStore, authService))
	mux.HandleFunc("/orders", handleOrders(engine, authService))
	mux.HandleFunc("/orders/", handleOrderByID(engine, authService))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      logRequests(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.WithField("port", cfg.Server.Port).Info("server starting")
	if err := server.ListenAndServe(); err != nil {
		log.WithError(err).Fatal("server error")
	}
}

// seedAdmin creates a first user when admin credentials are configured and
// the email is not registered yet.
func seedAdmin(cfg config.AdminConfig, users *store.Users, authService *auth.Service) error {
	if cfg.Email == "" || cfg.Password == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := users.EmailExists(ctx, cfg.Email)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	hash, err := authService.HashPassword(cfg.Password)
	if err != nil {
		return err
	}

	if _, err := users.Create(ctx, cfg.Name, cfg.Email, hash); err != nil {
		return err
	}

	log.WithField("email", cfg.Email).Info("seeded admin user")
	return nil
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Info("request")
	})
}
