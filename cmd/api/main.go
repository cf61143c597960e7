package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"patroltrack/internal/auth"
	"patroltrack/internal/checkpoint"
	"patroltrack/internal/company"
	"patroltrack/internal/config"
	"patroltrack/internal/geo"
	"patroltrack/internal/httpmiddleware"
	"patroltrack/internal/metrics"
	"patroltrack/internal/notify"
	"patroltrack/internal/queue"
	"patroltrack/internal/store"
	"patroltrack/internal/verification"
)

func main() {
	godotenv.Load()
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Printf("warning: db not reachable: %v", err)
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "patrol:expand")
	}

	checkpoints := checkpoint.NewRepository(db.Client)
	verifications := verification.NewRepository(db.Client)
	companies := company.NewRepository(db.Client)
	users := auth.NewUserRepository(db.Client)
	verifier := verification.NewService(verifications, cfg.CheckpointRadiusMeters)
	notifier := notify.New(redisClient.Client)
	horizon := time.Duration(cfg.HorizonHours) * time.Hour

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db != nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/auth/register", func(c *gin.Context) {
		var req struct {
			Email     string `json:"email" binding:"required"`
			Password  string `json:"password" binding:"required"`
			Name      string `json:"name"`
			Role      string `json:"role" binding:"required"`
			CompanyID string `json:"company_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		u, err := users.Register(c.Request.Context(), req.Email, req.Password, req.Name, req.Role, req.CompanyID)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, auth.ErrEmailTaken) {
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		tokens, err := auth.Issue(u.ID, u.Role, u.CompanyID, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		_ = users.SaveRefreshToken(c.Request.Context(), u.ID, tokens.RefreshToken, tokens.RefreshExp)

		c.JSON(http.StatusCreated, gin.H{
			"user":          u,
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	r.POST("/v1/auth/login", func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		u, err := users.Authenticate(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		tokens, err := auth.Issue(u.ID, u.Role, u.CompanyID, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		_ = users.SaveRefreshToken(c.Request.Context(), u.ID, tokens.RefreshToken, tokens.RefreshExp)

		c.JSON(http.StatusOK, gin.H{
			"user":          u,
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authed := r.Group("/v1", auth.UserAuth(cfg.JWTSigningKey, cfg.JWTIssuer))
	admin := authed.Group("", auth.RequireRole(auth.RoleAdmin))
	guard := authed.Group("", auth.RequireRole(auth.RoleGuard))

	authed.GET("/auth/me", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		u, err := users.Get(c.Request.Context(), claims.Subject)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if u == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": u})
	})

	authed.POST("/auth/logout", func(c *gin.Context) {
		var req struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := users.RevokeRefreshToken(c.Request.Context(), req.RefreshToken); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"revoked": true})
	})

	admin.POST("/checkpoints", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		var req struct {
			Name           string    `json:"name" binding:"required"`
			Latitude       float64   `json:"latitude"`
			Longitude      float64   `json:"longitude"`
			StartTime      time.Time `json:"start_time" binding:"required"`
			EndTime        time.Time `json:"end_time" binding:"required"`
			RecurringHours int       `json:"recurring_hours"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		pos := geo.Position{Latitude: req.Latitude, Longitude: req.Longitude}
		if err := pos.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.RecurringHours < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "recurrence hours must be non-negative"})
			return
		}

		now := time.Now().UTC()
		cp := checkpoint.Checkpoint{
			ID:             checkpoint.NewID(now),
			CompanyID:      claims.CompanyID,
			CreatorID:      claims.Subject,
			Name:           req.Name,
			Latitude:       req.Latitude,
			Longitude:      req.Longitude,
			StartTime:      req.StartTime.UTC(),
			EndTime:        req.EndTime.UTC(),
			IsRecurring:    req.RecurringHours > 0,
			RecurringHours: req.RecurringHours,
			Lifecycle:      checkpoint.LifecycleActive,
		}
		if err := cp.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := checkpoints.Insert(c.Request.Context(), cp); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		// Pre-materialization of future occurrences runs on the worker.
		if cp.IsRecurring {
			if err := q.Publish(c.Request.Context(), queue.Message{Type: queue.TypeExpand, Body: []byte(cp.ID)}); err != nil {
				log.Printf("queue publish failed: %v", err)
			}
		}
		notifier.Publish(c.Request.Context(), notify.Event{
			Collection: "checkpoints", ID: cp.ID, CompanyID: cp.CompanyID, Kind: "created",
		})

		c.JSON(http.StatusCreated, cp)
	})

	admin.GET("/checkpoints", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		list, err := checkpoints.ListByCompany(c.Request.Context(), claims.CompanyID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"checkpoints": list})
	})

	admin.DELETE("/checkpoints/:id", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		id := c.Param("id")
		if err := checkpoints.Delete(c.Request.Context(), id, claims.CompanyID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		notifier.Publish(c.Request.Context(), notify.Event{
			Collection: "checkpoints", ID: id, CompanyID: claims.CompanyID, Kind: "deleted",
		})
		c.JSON(http.StatusOK, gin.H{"deleted": id})
	})

	admin.PUT("/companies/settings", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		var req struct {
			LateWindowMinutes int `json:"late_window_minutes"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := companies.SetLateWindow(c.Request.Context(), claims.CompanyID, req.LateWindowMinutes); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"late_window_minutes": req.LateWindowMinutes})
	})

	admin.GET("/guards/activity", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		limit := 50
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		records, err := verifications.ListByCompany(c.Request.Context(), claims.CompanyID, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"verifications": records})
	})

	guard.GET("/rounds", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		ctx := c.Request.Context()

		all, err := checkpoints.ListByCompany(ctx, claims.CompanyID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		recordsByCP, err := verifications.MapForGuard(ctx, claims.CompanyID, claims.Subject)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		lateWindow, err := companies.LateWindow(ctx, claims.CompanyID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var active []checkpoint.Checkpoint
		for _, cp := range all {
			if cp.Lifecycle == checkpoint.LifecycleActive {
				active = append(active, cp)
			}
		}

		// One now snapshot for the whole evaluation pass so every occurrence
		// in this response is classified consistently.
		now := time.Now().UTC()
		visible := checkpoint.FilterVisible(active, now, horizon)

		type roundView struct {
			checkpoint.Checkpoint
			Status           checkpoint.Status `json:"status"`
			TimeRemainingSec *int64            `json:"time_remaining_seconds,omitempty"`
			LateRemainingSec *int64            `json:"late_window_remaining_seconds,omitempty"`
		}
		views := make([]roundView, 0, len(visible))
		for _, occ := range visible {
			var info *checkpoint.VerifiedInfo
			if rec, ok := recordsByCP[occ.ID]; ok {
				info = rec.Info()
			}
			v := roundView{Checkpoint: occ, Status: checkpoint.Classify(occ, lateWindow, info, now)}
			switch v.Status {
			case checkpoint.StatusUpcoming:
				secs := int64(occ.StartTime.Sub(now).Seconds())
				v.TimeRemainingSec = &secs
			case checkpoint.StatusActive:
				secs := int64(occ.EndTime.Sub(now).Seconds())
				v.TimeRemainingSec = &secs
			case checkpoint.StatusLateVerifiable:
				secs := int64(occ.LateWindowEnd(lateWindow).Sub(now).Seconds())
				v.LateRemainingSec = &secs
			}
			views = append(views, v)
		}

		c.JSON(http.StatusOK, gin.H{"rounds": views, "evaluated_at": now})
	})

	guard.POST("/rounds/:id/location", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		occ, ok := loadOccurrence(c, checkpoints, claims.CompanyID)
		if !ok {
			return
		}
		pos, ok := bindPosition(c)
		if !ok {
			return
		}

		d, in, err := verifier.Distance(*occ, pos)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"distance_meters": d,
			"within_range":    in,
			"required_meters": verifier.RadiusMeters(),
		})
	})

	guard.POST("/rounds/:id/verify", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		ctx := c.Request.Context()
		occ, ok := loadOccurrence(c, checkpoints, claims.CompanyID)
		if !ok {
			return
		}
		pos, ok := bindPosition(c)
		if !ok {
			return
		}

		lateWindow, err := companies.LateWindow(ctx, claims.CompanyID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		now := time.Now().UTC()
		rec, err := verifier.Verify(ctx, *occ, claims.Subject, pos, now, lateWindow)
		if err != nil {
			writeVerifyError(c, err)
			return
		}

		metrics.VerificationsCommitted.WithLabelValues(string(rec.Status)).Inc()
		notifier.Publish(ctx, notify.Event{
			Collection: "checkpoint_verifications", ID: rec.ID, CompanyID: rec.CompanyID, Kind: "created",
		})
		c.JSON(http.StatusCreated, rec)
	})

	authed.GET("/stream", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		events, cancel := notifier.Subscribe(c.Request.Context(), claims.CompanyID)
		defer cancel()

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Stream(func(w io.Writer) bool {
			evt, ok := <-events
			if !ok {
				return false
			}
			c.SSEvent("change", evt)
			return true
		})
	})

	// Graceful shutdown
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

	log.Println("Server exited")
	return nil
}

// loadOccurrence fetches a checkpoint scoped to the caller's company and
// writes the error response itself when that fails.
func loadOccurrence(c *gin.Context, repo *checkpoint.Repository, companyID string) (*checkpoint.Checkpoint, bool) {
	occ, err := repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if occ == nil || occ.CompanyID != companyID {
		c.JSON(http.StatusNotFound, gin.H{"error": "checkpoint not found"})
		return nil, false
	}
	if occ.Lifecycle != checkpoint.LifecycleActive {
		c.JSON(http.StatusConflict, gin.H{"error": "checkpoint disabled"})
		return nil, false
	}
	return occ, true
}

func bindPosition(c *gin.Context) (geo.Position, bool) {
	var req struct {
		Latitude  *float64 `json:"latitude" binding:"required"`
		Longitude *float64 `json:"longitude" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return geo.Position{}, false
	}
	pos := geo.Position{Latitude: *req.Latitude, Longitude: *req.Longitude}
	if err := pos.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return geo.Position{}, false
	}
	return pos, true
}

// writeVerifyError maps commit protocol failures to responses carrying the
// specific reason for the guard.
func writeVerifyError(c *gin.Context, err error) {
	var oor *verification.OutOfRangeError
	switch {
	case errors.As(err, &oor):
		metrics.VerificationFailures.WithLabelValues("out_of_range").Inc()
		c.JSON(http.StatusForbidden, gin.H{
			"error":           "out_of_range",
			"distance_meters": oor.DistanceMeters,
			"required_meters": oor.RequiredMeters,
		})
	case errors.Is(err, verification.ErrTooEarly):
		metrics.VerificationFailures.WithLabelValues("too_early").Inc()
		c.JSON(http.StatusConflict, gin.H{"error": "too_early"})
	case errors.Is(err, verification.ErrWindowExpired):
		metrics.VerificationFailures.WithLabelValues("window_expired").Inc()
		c.JSON(http.StatusConflict, gin.H{"error": "window_expired"})
	case errors.Is(err, verification.ErrAlreadyVerified):
		metrics.VerificationFailures.WithLabelValues("already_verified").Inc()
		c.JSON(http.StatusConflict, gin.H{"error": "already_verified"})
	case errors.Is(err, verification.ErrCommitUnconfirmed):
		// Ambiguous durability: the record may exist. The client must
		// re-query the occurrence state, never retry the write blindly.
		metrics.VerificationFailures.WithLabelValues("commit_unconfirmed").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "commit_unconfirmed", "action": "requery"})
	case errors.Is(err, geo.ErrInvalidCoordinate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
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
