package main

import (
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/peopledesk/peopledesk/internal/server/handlers"
	"github.com/peopledesk/peopledesk/internal/server/ratelimit"
	"github.com/peopledesk/peopledesk/internal/server/storage"
	"github.com/peopledesk/peopledesk/internal/server/token"
	"github.com/peopledesk/peopledesk/internal/server/ws"
)

// seedDemoUsers creates two accounts to chat between when the database
// is fresh. Password is "password" for both.
func seedDemoUsers(store *storage.Store, log *zap.SugaredLogger) {
	users := []struct {
		name, email, role string
	}{
		{"Dana Reyes", "dana@example.com", "hr"},
		{"Priya Nair", "priya@example.com", "manager"},
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		log.Errorw("hash demo password", "err", err)
		return
	}

	for _, u := range users {
		if existing, err := store.GetUserByEmail(u.email); err == nil && existing != nil {
			continue
		}
		id, err := store.CreateUser(u.name, u.email, string(hash), u.role)
		if err != nil {
			log.Errorw("seed user", "email", u.email, "err", err)
			continue
		}
		log.Infow("seeded demo user", "id", id, "email", u.email)
	}
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	store, err := storage.New(os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatalw("connect to database", "err", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(); err != nil {
		log.Fatalw("ensure schema", "err", err)
	}

	if os.Getenv("PEOPLEDESK_SEED_DEMO") != "" {
		seedDemoUsers(store, log)
	}

	secret := os.Getenv("PEOPLEDESK_JWT_SECRET")
	if secret == "" {
		secret = "dev-secret-change-me"
		log.Warnw("PEOPLEDESK_JWT_SECRET not set, using development secret")
	}

	limiter := ratelimit.New(ratelimit.Limits{})
	defer limiter.Stop()

	srv := &handlers.Server{
		Store:   store,
		Tokens:  token.NewManager(secret, 12*time.Hour),
		Hub:     ws.NewHub(store, log),
		Limiter: limiter,
		Log:     log,
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Infow("peopledesk dev server listening", "port", port)
	if err := http.ListenAndServe(":"+port, srv.Router()); err != nil {
		log.Fatalw("server stopped", "err", err)
	}
}
