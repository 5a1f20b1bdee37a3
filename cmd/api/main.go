package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attendance-export/internal/analytics"
	"attendance-export/internal/attendance"
	"attendance-export/internal/auth"
	"attendance-export/internal/config"
	"attendance-export/internal/export"
	"attendance-export/internal/exportjob"
	"attendance-export/internal/httpmiddleware"
	"attendance-export/internal/logging"
	"attendance-export/internal/queue"
	"attendance-export/internal/store"
	syncpkg "attendance-export/internal/sync"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.Component("api")

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		log.WithError(err).Fatal("api server failed")
	}
}

func run(cfg config.App) error {
	log := logging.Component("api")

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.MigrateUp(); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "exports:jobs")
	}

	records := attendance.NewRepository(db.Client)
	jobs := exportjob.NewRepository(db.Client)
	renderer := export.NewRenderer(records)
	mgr := exportjob.NewManager(jobs, q, renderer, exportjob.RealClock{}, exportjob.UUIDGenerator{}, cfg.StorageRoot, cfg.RetentionDays)

	upstream := syncpkg.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamTimeout)
	syncStatus := syncpkg.NewStatusRepository(db.Client)
	engine := syncpkg.NewEngine(upstream, records, syncStatus, syncpkg.RealClock{}, cfg.SyncBatchSize)

	stats := analytics.NewService(db.Client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// With the in-memory queue the consumer has to live in this process.
	if cfg.QueueBackend == "memory" {
		worker := exportjob.NewWorker(q, mgr, cfg.WorkerConcurrency)
		go func() {
			if err := worker.Run(ctx); err != nil {
				log.WithError(err).Error("in-process worker stopped")
			}
		}()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := cfg.QueueBackend == "memory" || redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	api := r.Group("/api", auth.RequireAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	api.POST("/exports", func(c *gin.Context) {
		var req struct {
			StudentID string `json:"studentId" binding:"required"`
			Format    string `json:"format" binding:"required"`
			StartDate string `json:"startDate"`
			EndDate   string `json:"endDate"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		start, err := parseDate(req.StartDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid startDate"})
			return
		}
		end, err := parseDate(req.EndDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid endDate"})
			return
		}

		job, err := mgr.CreateJob(c.Request.Context(), auth.UserID(c), req.StudentID, req.Format, start, end)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, job)
	})

	api.GET("/exports", func(c *gin.Context) {
		list, err := mgr.ListJobs(c.Request.Context(), auth.UserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"exports": list})
	})

	api.GET("/exports/status/:jobId", func(c *gin.Context) {
		job, err := mgr.GetJob(c.Request.Context(), c.Param("jobId"))
		if err != nil {
			jobError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	})

	api.POST("/exports/download/:jobId", func(c *gin.Context) {
		job, err := mgr.GetJob(c.Request.Context(), c.Param("jobId"))
		if err != nil {
			jobError(c, err)
			return
		}
		switch job.Status {
		case exportjob.StatusCompleted:
		case exportjob.StatusFailed:
			c.JSON(http.StatusGone, gin.H{"error": "export failed", "details": job.ErrorMessage})
			return
		default:
			c.JSON(http.StatusConflict, gin.H{"error": "export not ready", "status": job.Status})
			return
		}
		if _, err := os.Stat(job.ArtifactPath); err != nil {
			c.JSON(http.StatusGone, gin.H{"error": "export file no longer available"})
			return
		}

		if err := mgr.TrackDownload(c.Request.Context(), job.JobID); err != nil {
			log.WithError(err).WithField("job_id", job.JobID).Warn("download tracking failed")
		}
		c.Header("Content-Type", export.ContentType(job.Format))
		c.FileAttachment(job.ArtifactPath, filepath.Base(job.ArtifactPath))
	})

	api.POST("/exports/cleanup", func(c *gin.Context) {
		removed, err := mgr.CleanupExpired(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": removed})
	})

	api.GET("/analytics/:studentId/summary", func(c *gin.Context) {
		summary, err := stats.GetStudentSummary(c.Request.Context(), c.Param("studentId"), c.Query("startDate"), c.Query("endDate"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	api.GET("/analytics/:studentId/trends", func(c *gin.Context) {
		trends, err := stats.GetAttendanceTrends(c.Request.Context(), c.Param("studentId"), c.Query("startDate"), c.Query("endDate"), c.DefaultQuery("interval", "day"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"trends": trends})
	})

	api.GET("/analytics/:studentId/insights", func(c *gin.Context) {
		insights, err := stats.GetAttendanceInsights(c.Request.Context(), c.Param("studentId"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, insights)
	})

	api.POST("/sync/full", func(c *gin.Context) {
		res, err := engine.FullSync(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	})

	api.POST("/sync/incremental", func(c *gin.Context) {
		res, err := engine.IncrementalSync(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	})

	api.GET("/sync/stats", func(c *gin.Context) {
		s, err := engine.GetSyncStats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, s)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.HTTPPort).Info("starting api server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server forced shutdown")
	}
	log.Info("server exited")
	return nil
}

func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func jobError(c *gin.Context, err error) {
	if errors.Is(err, exportjob.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "export job not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
