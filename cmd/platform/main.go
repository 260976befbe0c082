package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/telecare/platform/internal/adapters/ehr"
	processor "github.com/telecare/platform/internal/adapters/payment"
	"github.com/telecare/platform/internal/adapters/transcribe"
	"github.com/telecare/platform/internal/adapters/video"
	"github.com/telecare/platform/internal/audit"
	"github.com/telecare/platform/internal/chat"
	"github.com/telecare/platform/internal/consultation"
	"github.com/telecare/platform/internal/payment"
	"github.com/telecare/platform/internal/phi"
	"github.com/telecare/platform/internal/principal"
	"github.com/telecare/platform/internal/shared/auth"
	"github.com/telecare/platform/internal/shared/config"
	"github.com/telecare/platform/internal/shared/database"
	"github.com/telecare/platform/internal/shared/events"
	"github.com/telecare/platform/internal/shared/metrics"
	secmiddleware "github.com/telecare/platform/internal/shared/middleware"
	"github.com/telecare/platform/internal/transcript"
)

// App holds the application dependencies
type App struct {
	cfg      *config.Config
	db       *database.DB
	bus      *events.Bus
	importer *ehr.Importer
	router   chi.Router
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer app.close()

	// No WriteTimeout: the chat stream holds its response open until the
	// client disconnects
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           app.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		fmt.Printf("Telecare platform listening on port %d (env: %s)\n", cfg.Server.Port, cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{cfg: cfg}

	// Postgres is required; everything persists through it
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db

	if err := database.Migrate(ctx, db.Pool); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	codec, err := newCodec(cfg)
	if err != nil {
		return nil, err
	}

	// EventStore is optional; without it the platform runs but emits no
	// events and the audit trail stays empty
	bus, err := events.NewBus(ctx, cfg.EventStore)
	if err != nil {
		fmt.Printf("Warning: event store not available: %v\n", err)
		bus = nil
	}
	app.bus = bus

	videoClient := video.NewClient(cfg.Video)
	if !videoClient.Configured() {
		fmt.Println("Warning: video provider not configured; consultations will be chat-only")
	}

	processorClient := processor.NewClient(cfg.Payment)
	if !processorClient.Configured() {
		fmt.Println("Warning: payment processor not configured; payment checks are waived")
	}

	transcribeProvider := transcribe.NewProvider(cfg.Transcription)

	importer := ehr.New(cfg.EHR)
	if importer.Enabled() {
		if err := importer.Start(ctx); err != nil {
			fmt.Printf("Warning: ehr importer failed to start: %v\n", err)
		} else {
			app.importer = importer
		}
	}

	principalRepo := principal.NewRepository(db.Pool)
	consultationRepo := consultation.NewRepository(db.Pool)
	paymentRepo := payment.NewRepository(db.Pool)
	chatRepo := chat.NewRepository(db.Pool)
	auditRepo := audit.NewRepository(db.Pool)

	gate := payment.NewGate(paymentRepo, processorClient)
	hub := chat.NewHub()

	principalHandler := principal.NewHandler(principalRepo, codec, cfg.Auth, app.importer)
	consultationHandler := consultation.NewHandler(consultationRepo, videoClient, gate, codec, bus)
	paymentHandler := payment.NewHandler(paymentRepo, consultationRepo, processorClient, bus)
	chatHandler := chat.NewHandler(chatRepo, consultationRepo, codec, hub, bus)
	transcriptHandler := transcript.NewHandler(consultationRepo, codec, transcribeProvider)
	auditHandler := audit.NewHandler(auditRepo)

	if bus != nil {
		subscriber := audit.NewSubscriber(auditRepo)
		if err := subscriber.Start(ctx, bus); err != nil {
			fmt.Printf("Warning: audit subscriber failed to start: %v\n", err)
		}
	}

	authenticated := auth.Middleware(cfg.Auth, principalRepo)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.BodyLimit)
	r.Use(secmiddleware.CORS(secmiddleware.DefaultCORSConfig()))
	r.Use(secmiddleware.NewIPRateLimiter(50, 100).Middleware)
	r.Use(metrics.Middleware)

	r.Get("/health", app.healthHandler)
	r.Get("/ready", app.readyHandler)
	r.Handle("/metrics", metrics.Handler())

	// Bounded requests get a deadline; the chat stream is exempt since it
	// stays open until the client hangs up
	requestTimeout := chimiddleware.Timeout(60 * time.Second)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(requestTimeout).Mount("/auth", principalHandler.AuthRoutes())

		r.Route("/patients", func(r chi.Router) {
			r.Use(requestTimeout)
			r.Use(authenticated)
			r.Mount("/", principalHandler.PatientRoutes())
		})

		r.Route("/doctors", func(r chi.Router) {
			r.Use(requestTimeout)
			r.Post("/register", principalHandler.RegisterDoctor)
			r.Post("/login", principalHandler.LoginDoctor)

			r.Group(func(r chi.Router) {
				r.Use(authenticated)
				r.Use(auth.RequireRole(auth.RoleDoctor))
				r.Get("/me", principalHandler.GetDoctorProfile)
				r.Patch("/availability", principalHandler.SetAvailability)
				r.Get("/stats", principalHandler.GetDoctorStats)
				r.Mount("/consultations", consultationHandler.DoctorRoutes())
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requestTimeout)
			r.Post("/login", principalHandler.LoginAdmin)

			r.Group(func(r chi.Router) {
				r.Use(authenticated)
				r.Use(auth.RequireRole(auth.RoleAdmin))
				r.Get("/stats", principalHandler.GetPlatformStats)
				r.Get("/patients", principalHandler.ListPatients)
				r.Get("/doctors", principalHandler.ListDoctors)
				r.Post("/patients/{patientID}/import-history", principalHandler.ImportMedicalHistory)
				r.Mount("/consultations", consultationHandler.AdminRoutes())
				r.Mount("/payments", paymentHandler.AdminRoutes())
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticated)

			r.Group(func(r chi.Router) {
				r.Use(requestTimeout)
				r.Mount("/consultations", consultationHandler.Routes())
				r.Mount("/payments", paymentHandler.Routes())
				r.Mount("/transcription", transcriptHandler.Routes())
				r.Mount("/audit", auditHandler.Routes())
			})

			r.Mount("/chat", chatHandler.Routes())
		})
	})

	app.router = r
	return app, nil
}

// newCodec builds the PHI codec. A missing key gets an ephemeral one so
// development still works; anything encrypted with it is unreadable after
// restart, so production must set PHI_ENCRYPTION_KEY.
func newCodec(cfg *config.Config) (*phi.Codec, error) {
	if cfg.PHI.KeyHex != "" {
		codec, err := phi.NewCodecFromHex(cfg.PHI.KeyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid PHI_ENCRYPTION_KEY: %w", err)
		}
		return codec, nil
	}

	if cfg.Server.Env == "production" {
		return nil, fmt.Errorf("PHI_ENCRYPTION_KEY is required in production")
	}

	fmt.Println("Warning: PHI_ENCRYPTION_KEY not set; using an ephemeral key")
	key := make([]byte, phi.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	return phi.NewCodec(key)
}

func (a *App) close() {
	if a.importer != nil {
		a.importer.Stop()
	}
	if a.bus != nil {
		a.bus.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok"}`)
}

func (a *App) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	if err := a.db.Health(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, `{"status":"unavailable","reason":"database"}`)
		return
	}

	// A down event store degrades auditing but does not block traffic
	eventStore := "disabled"
	if a.bus != nil {
		eventStore = "ok"
		if err := a.bus.Health(); err != nil {
			eventStore = "unavailable"
		}
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ready","eventStore":%q}`, eventStore)
}
