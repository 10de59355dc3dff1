// cmd/server/main.go
package main

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/unclebandit/coursetrack-backend/internal/auth"
	"github.com/unclebandit/coursetrack-backend/internal/controller"
	"github.com/unclebandit/coursetrack-backend/internal/db"
	"github.com/unclebandit/coursetrack-backend/internal/model"
	"github.com/unclebandit/coursetrack-backend/internal/queue"
	"github.com/unclebandit/coursetrack-backend/internal/repository"
	"github.com/unclebandit/coursetrack-backend/internal/sender"
	"github.com/unclebandit/coursetrack-backend/internal/service"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, relying on OS environment variables")
	}

	pool, err := db.Connect()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	var jobRepo repository.JobRepositoryInterface
	var instructorRepo repository.InstructorRepositoryInterface
	if pool != nil {
		jobRepo = &repository.JobRepository{DB: pool}
		instructorRepo = &repository.InstructorRepository{DB: pool}
		log.Info().Msg("using postgres job store")
	} else {
		jobRepo = repository.NewInMemoryJobRepository()
		instructorRepo = &repository.InMemoryInstructorRepository{Instructors: devInstructors()}
		log.Warn().Msg("no database configured, using in-memory job store")
	}

	mailSender := &sender.SimulatedSender{
		ThrottleRate: envFloat("SIM_THROTTLE_RATE", 0),
		Log:          log,
	}

	dispatchCfg := service.DispatchConfig{
		PaceInterval: envDuration("PACE_INTERVAL", 10*time.Second),
		MaxAttempts:  envInt("MAX_SEND_ATTEMPTS", 3),
		BackoffBase:  envDuration("RETRY_BACKOFF_BASE", 5*time.Second),
	}

	worker := &service.DispatchWorker{
		Jobs:   jobRepo,
		Sender: mailSender,
		Config: dispatchCfg,
		Log:    log,
	}

	// RATE_LIMIT_SHARED switches pacing from per-job to a single
	// process-wide limiter; which one the provider expects is still an
	// open product question.
	if os.Getenv("RATE_LIMIT_SHARED") == "true" {
		worker.Limiter = rate.NewLimiter(rate.Every(dispatchCfg.PaceInterval), 1)
	}

	var dispatcher service.Dispatcher
	if mode := os.Getenv("DISPATCH_MODE"); mode == "amqp" {
		amqpDispatcher, err := queue.NewAMQPDispatcher(os.Getenv("AMQP_URL"), log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer amqpDispatcher.Close()
		dispatcher = amqpDispatcher
		log.Info().Msg("dispatch mode: amqp")
	} else {
		dispatcher = &service.GoDispatcher{Worker: worker}
		log.Info().Msg("dispatch mode: inline")
	}

	jobService := &service.JobService{
		Jobs:       jobRepo,
		Resolver:   &service.RecipientResolver{Instructors: instructorRepo},
		Dispatcher: dispatcher,
		Log:        log,
	}

	bulkEmail := &controller.BulkEmailController{
		JobService: jobService,
		Log:        log,
	}

	r := chi.NewRouter()
	r.Route("/bulk-email", func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Post("/send-instructor-reminders", bulkEmail.SendInstructorReminders)
		r.Get("/job-status/{job_id}", bulkEmail.JobStatus)
		r.Get("/recent-jobs", bulkEmail.RecentJobs)
	})

	addr := ":" + envString("PORT", "8080")
	log.Info().Str("addr", addr).Msg("server running")
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// devInstructors backs the directory when no database is configured.
func devInstructors() map[string]*model.Instructor {
	return map[string]*model.Instructor{
		"inst-1": {ID: "inst-1", Email: "alice@university.edu", DisplayName: "Alice Smith", ScopeTag: "prog-cs"},
		"inst-2": {ID: "inst-2", Email: "bob@university.edu", DisplayName: "Bob Jones", ScopeTag: "prog-cs"},
		"inst-3": {ID: "inst-3", Email: "carol@university.edu", DisplayName: "Carol White", ScopeTag: "prog-ee"},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
