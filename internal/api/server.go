package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/bartek5186/pricebridge/internal/apperr"
	"github.com/bartek5186/pricebridge/internal/db"
	"github.com/bartek5186/pricebridge/internal/draft"
	"github.com/bartek5186/pricebridge/internal/importer"
	"github.com/bartek5186/pricebridge/internal/queue"
)

// Batches to odczyt batchy i ich śladu audytowego (*store.Store).
type Batches interface {
	ListBatches(ctx context.Context, userID string, limit int) ([]db.ImportBatch, error)
	GetBatch(ctx context.Context, id string) (*db.ImportBatch, error)
	ChangeLogs(ctx context.Context, batchID string) ([]db.ChangeLog, error)
}

type Processor interface {
	Run(ctx context.Context, m queue.Message) (*importer.Outcome, error)
}

type Options struct {
	AllowedOrigins    []string
	MaxUploadBytes    int64
	MaxReportedErrors int
	JWTSecret         string
	WebhookSecret     string
}

type Server struct {
	opt Options
	log zerolog.Logger

	batches    Batches
	planner    *importer.Planner
	apply      importer.Executor
	applyAsync importer.Executor
	processor  Processor
	replacer   *importer.Replacer
	drafts     draft.Store
}

type Deps struct {
	Batches    Batches
	Planner    *importer.Planner
	Apply      importer.Executor
	ApplyAsync importer.Executor // nil: brak ścieżki odroczonej
	Processor  Processor
	Replacer   *importer.Replacer
	Drafts     draft.Store
}

func NewServer(opt Options, d Deps, log zerolog.Logger) *Server {
	if opt.MaxUploadBytes <= 0 {
		opt.MaxUploadBytes = 20 << 20
	}
	if opt.MaxReportedErrors <= 0 {
		opt.MaxReportedErrors = 10
	}
	return &Server{
		opt:        opt,
		log:        log.With().Str("component", "http").Logger(),
		batches:    d.Batches,
		planner:    d.Planner,
		apply:      d.Apply,
		applyAsync: d.ApplyAsync,
		processor:  d.Processor,
		replacer:   d.Replacer,
		drafts:     d.Drafts,
	}
}

// Router składa middleware i trasy.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(s.log))
	if len(s.opt.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.opt.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition", RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(apperr.ErrorMiddleware())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	v1 := r.Group("/api/v1", Auth(s.opt.JWTSecret))
	{
		v1.GET("/datasets", s.listDatasets)
		v1.GET("/datasets/:type", s.getDataset)

		imp := v1.Group("/imports/:type")
		imp.POST("/inspect", s.inspect)
		imp.POST("/plan", s.plan)
		imp.POST("/apply", s.applyImport)
		imp.POST("/apply-async", s.applyImportAsync)

		v1.GET("/batches", s.listBatches)
		v1.GET("/batches/:id", s.getBatch)
		v1.GET("/batches/:id/changes", s.batchChanges)

		v1.GET("/drafts/:type", s.loadDraft)
		v1.PUT("/drafts/:type", s.saveDraft)
		v1.DELETE("/drafts/:type", s.clearDraft)
	}

	fn := r.Group("/functions", WebhookSecret(s.opt.WebhookSecret))
	{
		fn.POST("/process-import", s.processImport)
		admin := fn.Group("", Auth(s.opt.JWTSecret), AdminOnly())
		admin.POST("/import-cir-classifications", s.replaceClassifications)
		admin.POST("/import-cir-segments", s.replaceSegments)
	}
	return r
}
