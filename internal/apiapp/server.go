package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/delivery"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/envutil"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/logger"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/middleware"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/models"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/publish"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/security"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/shiftimage"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/store"
)

const (
	defaultMaxUploadBytes = 10 << 20
	dateLayout            = "2006-01-02"
)

type Config struct {
	Addr           string
	DBPath         string
	IdentitySecret string
	WebhookURL     string
	WorkbookPath   string
	FontPath       string
	AdminEmails    []string
	MaxUploadBytes int64
}

type server struct {
	store     *store.Store
	verifier  *security.Verifier
	publisher *publish.Service
	maxUpload int64
	now       func() time.Time
}

func DefaultConfigFromEnv() (Config, error) {
	secret, err := envutil.Secret("IDENTITY_SECRET", "IDENTITY_SECRET_B64")
	if err != nil {
		return Config{}, err
	}
	var admins []string
	for _, email := range strings.Split(os.Getenv("ADMIN_EMAILS"), ",") {
		if email = strings.TrimSpace(email); email != "" {
			admins = append(admins, email)
		}
	}
	return Config{
		Addr:           envOrDefault("API_ADDR", ":8080"),
		DBPath:         envOrDefault("DB_PATH", "data/kotomoshi.db"),
		IdentitySecret: secret,
		WebhookURL:     strings.TrimSpace(os.Getenv("WEBHOOK_URL")),
		WorkbookPath:   strings.TrimSpace(os.Getenv("WORKBOOK_PATH")),
		FontPath:       strings.TrimSpace(os.Getenv("FONT_PATH")),
		AdminEmails:    admins,
		MaxUploadBytes: defaultMaxUploadBytes,
	}, nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// Wire opens the store and builds the publisher described by cfg. The
// caller owns the returned store.
func Wire(ctx context.Context, cfg Config) (*store.Store, *publish.Service, error) {
	renderer := shiftimage.NewRenderer(nil)
	if cfg.FontPath != "" {
		f, err := shiftimage.LoadFont(cfg.FontPath)
		if err != nil {
			return nil, nil, fmt.Errorf("FONT_PATH: %w", err)
		}
		renderer = shiftimage.NewRenderer(f)
		logger.Info("schedule font loaded", "path", cfg.FontPath)
	}

	st, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	for _, email := range cfg.AdminEmails {
		if err := ensureAdmin(ctx, st, email); err != nil {
			_ = st.Close()
			return nil, nil, fmt.Errorf("ensure admin %s: %w", email, err)
		}
	}
	var image publish.ImageSink
	if cfg.WebhookURL != "" {
		image = delivery.NewWebhook(cfg.WebhookURL)
	}
	var sheet publish.SheetSink
	if cfg.WorkbookPath != "" {
		sheet = delivery.NewWorkbook(cfg.WorkbookPath)
	}
	publisher := publish.NewService(st, image, sheet)
	publisher.UseRenderer(renderer)
	return st, publisher, nil
}

// ensureAdmin grants admin rights to email, keeping the display name of an
// existing allowed user.
func ensureAdmin(ctx context.Context, st *store.Store, email string) error {
	_, err := st.GetAllowedUser(ctx, email)
	switch {
	case err == nil:
		return st.SetAdmin(ctx, email, true)
	case errors.Is(err, store.ErrNotFound):
		return st.PutAllowedUser(ctx, models.AllowedUser{Email: email, IsAdmin: true})
	default:
		return err
	}
}

func Run(ctx context.Context, cfg Config) error {
	verifier, err := security.NewVerifier(cfg.IdentitySecret)
	if err != nil {
		return fmt.Errorf("IDENTITY_SECRET or IDENTITY_SECRET_B64 is required: %w", err)
	}

	st, publisher, err := Wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	s := newServer(st, verifier, publisher)
	if cfg.MaxUploadBytes > 0 {
		s.maxUpload = cfg.MaxUploadBytes
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          logger.Standard(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", "addr", cfg.Addr, "db", cfg.DBPath)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func newServer(st *store.Store, verifier *security.Verifier, publisher *publish.Service) *server {
	return &server{
		store:     st,
		verifier:  verifier,
		publisher: publisher,
		maxUpload: defaultMaxUploadBytes,
		now:       time.Now,
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/health", http.HandlerFunc(s.health))
	mux.Handle("/api/me", middleware.Chain(http.HandlerFunc(s.me), s.requireUser))
	mux.Handle("/api/shifts", middleware.Chain(http.HandlerFunc(s.shiftsHandler), s.requireUser))
	mux.Handle("/api/shifts/", middleware.Chain(http.HandlerFunc(s.shiftByIDHandler), s.requireUser))
	mux.Handle("/api/final-shifts", middleware.Chain(http.HandlerFunc(s.finalShiftsHandler), s.requireUser))
	mux.Handle("/api/final-shifts/image", middleware.Chain(http.HandlerFunc(s.finalShiftImage), s.requireUser))
	mux.Handle("/api/final-shifts/send-webhook", middleware.Chain(http.HandlerFunc(s.sendWebhook), s.requireUser, s.requireAdmin))
	mux.Handle("/api/final-shifts/send-sheet", middleware.Chain(http.HandlerFunc(s.sendSheet), s.requireUser, s.requireAdmin))
	mux.Handle("/api/final-shifts/", middleware.Chain(http.HandlerFunc(s.finalShiftByIDHandler), s.requireUser, s.requireAdmin))
	mux.Handle("/api/requested-shifts", middleware.Chain(http.HandlerFunc(s.requestedShiftsHandler), s.requireUser))
	mux.Handle("/api/requested-shifts/snapshot", middleware.Chain(http.HandlerFunc(s.snapshotRequests), s.requireUser, s.requireAdmin))
	mux.Handle("/api/requested-shifts/", middleware.Chain(http.HandlerFunc(s.requestedShiftByIDHandler), s.requireUser))
	mux.Handle("/api/admin/users", middleware.Chain(http.HandlerFunc(s.usersHandler), s.requireUser, s.requireAdmin))
	mux.Handle("/api/admin/users/import", middleware.Chain(http.HandlerFunc(s.importUsers), s.requireUser, s.requireAdmin))

	return middleware.Chain(
		mux,
		middleware.Recover,
		middleware.RequestLogger,
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'"}),
	)
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) today() string {
	return s.now().Format(dateLayout)
}
