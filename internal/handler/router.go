package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unclebandit/mailcampaign-backend/internal/controller"
	"github.com/unclebandit/mailcampaign-backend/internal/logger"
)

// RouterDeps are the controllers and settings the HTTP surface is built from.
type RouterDeps struct {
	Campaigns   *controller.CampaignController
	Datasets    *controller.DatasetController
	SMTP        *controller.SMTPController
	Auth        *Authenticator
	CORSOrigins []string
	Logger      *zap.Logger
}

// NewRouter mounts health, metrics and the authenticated API.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger.OrNop(d.Logger)))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(d.Auth.Middleware)

		// Campaign routes
		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", d.Campaigns.CreateCampaign)
			r.Post("/parse-csv", d.Campaigns.ParseCSV)
			r.Get("/", d.Campaigns.ListCampaigns)
			r.Get("/stats", d.Campaigns.GetStats)
			r.Get("/{id}", d.Campaigns.GetCampaignDetails)
			r.Get("/{id}/export", d.Campaigns.ExportResults)
			r.Post("/{id}/send", d.Campaigns.SendCampaign)
			r.Post("/{id}/resend", d.Campaigns.ResendCampaign)
		})

		// Saved recipient datasets
		r.Route("/databases", func(r chi.Router) {
			r.Post("/", d.Datasets.CreateDataset)
			r.Get("/", d.Datasets.ListDatasets)
			r.Get("/{id}", d.Datasets.GetDataset)
			r.Put("/{id}", d.Datasets.UpdateDataset)
			r.Delete("/{id}", d.Datasets.DeleteDataset)
		})

		// SMTP settings
		r.Route("/smtp", func(r chi.Router) {
			r.Get("/", d.SMTP.GetConfig)
			r.Put("/", d.SMTP.SaveConfig)
			r.Post("/test", d.SMTP.TestConfig)
			r.Get("/provider", d.SMTP.GetProvider)
			r.Put("/provider", d.SMTP.SetProvider)
		})
	})

	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
