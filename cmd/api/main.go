package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/auth"
	"rollcall/internal/cache"
	"rollcall/internal/config"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/queue"
	"rollcall/internal/refdata"
	"rollcall/internal/roll"
	"rollcall/internal/session"
	"rollcall/internal/store"
)

var (
	sessionsActivated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_sessions_activated_total",
		Help: "Sessions successfully activated.",
	})
	sessionsEnded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_sessions_ended_total",
		Help: "Sessions successfully ended.",
	})
	checkinsQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_checkins_queued_total",
		Help: "Raw check-ins accepted for ingestion.",
	})
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	docs, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	redisClient := store.NewRedis(cfg.RedisAddr)
	profileCache := cache.New(redisClient.Client, cfg.CacheTTL)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:checkins")
	}

	ledger := session.NewLedger(docs)
	manager := session.NewManager(docs, ledger)
	matcher := roll.NewMatcher(docs)
	ref := refdata.NewService(docs, profileCache)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "store": cfg.StoreBackend})
	})

	r.POST("/v1/teachers/login", func(c *gin.Context) {
		var req struct {
			TeacherID   string `json:"teacher_id" binding:"required"`
			Name        string `json:"name"`
			Designation string `json:"designation"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		tokens, err := auth.Issue(req.TeacherID, "teacher", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		if _, err := profileCache.Profile(c.Request.Context(), req.TeacherID); errors.Is(err, cache.ErrMiss) {
			_ = profileCache.SaveProfile(c.Request.Context(), cache.Profile{
				TeacherID:   req.TeacherID,
				Name:        req.Name,
				Designation: req.Designation,
			})
		}

		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.TeacherAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.GET("/profile", func(c *gin.Context) {
		p, err := profileCache.Profile(c.Request.Context(), teacherID(c))
		if errors.Is(err, cache.ErrMiss) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "profile load failed"})
			return
		}
		c.JSON(http.StatusOK, p)
	})

	authGroup.PUT("/profile", func(c *gin.Context) {
		var p cache.Profile
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p.TeacherID = teacherID(c)
		if err := profileCache.SaveProfile(c.Request.Context(), p); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "profile save failed"})
			return
		}
		c.JSON(http.StatusOK, p)
	})

	authGroup.POST("/profile/subjects", addToProfile(profileCache, func(p *cache.Profile) *[]string { return &p.Subjects }))
	authGroup.POST("/profile/classes", addToProfile(profileCache, func(p *cache.Profile) *[]string { return &p.Classes }))

	authGroup.GET("/refdata/subjects", listHandler(ref.Subjects))
	authGroup.GET("/refdata/classes", listHandler(ref.ClassGroups))
	authGroup.GET("/refdata/rooms", listHandler(ref.Rooms))

	authGroup.GET("/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, manager.Snapshot())
	})

	authGroup.POST("/session", func(c *gin.Context) {
		var req struct {
			ClassGroups []string `json:"classGroups"`
			Subject     string   `json:"subject"`
			Room        string   `json:"room"`
			Type        string   `json:"type"`
			IsExtra     bool     `json:"isExtra"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		form := session.Form{
			ClassGroups: req.ClassGroups,
			Subject:     req.Subject,
			Room:        req.Room,
			Type:        session.Type(req.Type),
			IsExtra:     req.IsExtra,
		}
		if form.Type == "" {
			form.Type = session.TypeLecture
		}

		d, err := manager.Activate(c.Request.Context(), form)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		sessionsActivated.Inc()
		c.JSON(http.StatusCreated, d)
	})

	authGroup.DELETE("/session", func(c *gin.Context) {
		if err := manager.End(c.Request.Context()); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		sessionsEnded.Inc()
		c.JSON(http.StatusOK, manager.Snapshot())
	})

	authGroup.POST("/session/restart", func(c *gin.Context) {
		err := manager.Restart()
		if errors.Is(err, session.ErrAlreadyActive) {
			c.JSON(http.StatusConflict, gin.H{"message": "Session is already active for the selected classes."})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": session.ErrNoActiveSession.Error()})
	})

	authGroup.GET("/attendance", func(c *gin.Context) {
		snap := manager.Snapshot()
		if snap.Session == nil {
			c.JSON(http.StatusConflict, gin.H{"error": session.ErrNoActiveSession.Error()})
			return
		}
		entries, err := matcher.Roll(c.Request.Context(), snap.Session)
		if err != nil {
			log.Printf("attendance roll failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "store unavailable"})
			return
		}
		out := make([]gin.H, 0, len(entries))
		for _, e := range entries {
			out = append(out, gin.H{
				"rollNumber": e.RollNumber,
				"group":      e.ClassGroup,
				"timestamp":  e.Timestamp,
				"time":       roll.ClockTime(e.Timestamp),
			})
		}
		c.JSON(http.StatusOK, gin.H{"session": snap.Session, "entries": out})
	})

	authGroup.POST("/checkins", func(c *gin.Context) {
		var checkin roll.CheckIn
		if err := c.ShouldBindJSON(&checkin); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		checkin.Normalize(time.Now())

		body, err := json.Marshal(checkin)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "encode failed"})
			return
		}
		if err := q.Publish(c.Request.Context(), queue.Message{Type: "checkin", Body: body}); err != nil {
			log.Printf("queue publish failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ingest unavailable"})
			return
		}
		checkinsQueued.Inc()
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	// An active session must not be silently dropped on shutdown.
	manager.EndOnShutdown(cfg.ShutdownEndTimeout)

	log.Println("Server exited")
	return nil
}

// openStore picks the document store backend the same way the queue backend
// is picked: by config.
func openStore(cfg config.App) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case "postgres":
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() { _ = pg.Close() }, nil
	case "memory":
		return store.NewMemory(), func() {}, nil
	default:
		mg, err := store.NewMongo(context.Background(), cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return mg, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mg.Close(ctx)
		}, nil
	}
}

func teacherID(c *gin.Context) string {
	claimsAny, _ := c.Get("claims")
	claims, _ := claimsAny.(auth.Claims)
	return claims.Subject
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrIncompleteForm), errors.Is(err, session.ErrInvalidType):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrAlreadyActive), errors.Is(err, session.ErrNoActiveSession):
		return http.StatusConflict
	default:
		var transport *store.TransportError
		if errors.As(err, &transport) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}

func addToProfile(c *cache.Cache, field func(*cache.Profile) *[]string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p, err := c.Profile(ctx.Request.Context(), teacherID(ctx))
		if err != nil && !errors.Is(err, cache.ErrMiss) {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "profile load failed"})
			return
		}
		p.TeacherID = teacherID(ctx)

		list := field(&p)
		for _, existing := range *list {
			if existing == req.Name {
				ctx.JSON(http.StatusOK, p)
				return
			}
		}
		*list = append(*list, req.Name)

		if err := c.SaveProfile(ctx.Request.Context(), p); err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "profile save failed"})
			return
		}
		ctx.JSON(http.StatusOK, p)
	}
}

func listHandler(fetch func(context.Context) ([]string, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := fetch(c.Request.Context())
		if err != nil {
			log.Printf("refdata fetch failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "store unavailable"})
			return
		}
		if items == nil {
			items = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

// CORS middleware for browser requests
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

// Security headers middleware
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
