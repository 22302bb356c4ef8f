package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bodul/loto/recognition"
)

// rateLimiter is a simple per-IP token bucket rate limiter.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*bucket
	rate     int           // tokens per interval
	interval time.Duration // refill interval
	now      func() time.Time
}

type bucket struct {
	tokens   int
	lastSeen time.Time
}

func newRateLimiter(rate int, interval time.Duration) *rateLimiter {
	return &rateLimiter{
		visitors: make(map[string]*bucket),
		rate:     rate,
		interval: interval,
		now:      time.Now,
	}
}

// run drops stale visitors every minute until ctx is done.
func (rl *rateLimiter) run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.sweep(5 * time.Minute)
		}
	}
}

func (rl *rateLimiter) sweep(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for ip, b := range rl.visitors {
		if now.Sub(b.lastSeen) > maxIdle {
			delete(rl.visitors, ip)
		}
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.visitors[ip]
	if !ok {
		rl.visitors[ip] = &bucket{tokens: rl.rate - 1, lastSeen: now}
		return true
	}

	// Refill tokens based on elapsed time.
	refill := int(now.Sub(b.lastSeen) / rl.interval)
	if refill > 0 {
		b.tokens = min(b.tokens+refill*rl.rate, rl.rate)
		b.lastSeen = now
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// limit rejects requests over the client's budget.
func (rl *rateLimiter) limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			jsonError(c, "too many requests, try again later", http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}

// Server is the ticket recognition service.
type Server struct {
	engine    *gin.Engine
	store     ScanStore
	reader    TicketReader
	uploadRL  *rateLimiter
	maxUpload int64
	logger    *zap.Logger
}

// NewServer creates the recognition service. A nil reader answers scans
// with 503.
func NewServer(cfg ServerConfig, store ScanStore, reader TicketReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:    newEngine(logger),
		store:     store,
		reader:    reader,
		uploadRL:  newRateLimiter(cfg.UploadsPerMinute, time.Minute),
		maxUpload: cfg.MaxUploadMB << 20,
		logger:    logger,
	}
	s.engine.MaxMultipartMemory = s.maxUpload
	s.engine.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type"},
	}))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api/v1")
	api.POST("/scan-ticket", s.uploadRL.limit(), s.handleScanTicket)
	api.GET("/scan-history", s.handleScanHistory)
	api.GET("/scans/:id", s.handleGetScan)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// GET /health
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// POST /api/v1/scan-ticket: read an uploaded ticket photo and record the
// scan.
func (s *Server) handleScanTicket(c *gin.Context) {
	if s.reader == nil {
		jsonError(c, "ticket recognition not configured", http.StatusServiceUnavailable)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload+1<<20)
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(c, fmt.Sprintf("image too large (max %d MB)", s.maxUpload>>20), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(c, "image file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxUpload+1))
	if err != nil {
		jsonError(c, "could not read the image", http.StatusBadRequest)
		return
	}
	if int64(len(data)) > s.maxUpload {
		jsonError(c, fmt.Sprintf("image too large (max %d MB)", s.maxUpload>>20), http.StatusRequestEntityTooLarge)
		return
	}

	mimeType := mimetype.Detect(data).String()
	if !allowedMIME[mimeType] {
		jsonError(c, "only JPEG and PNG images are accepted", http.StatusBadRequest)
		return
	}

	reading, err := s.reader.Read(c.Request.Context(), data, mimeType)
	if err != nil {
		s.logger.Error("scan failed", zap.String("filename", header.Filename), zap.Error(err))
		jsonError(c, "AI scan failed", http.StatusInternalServerError)
		return
	}

	numbers, status, err := validateReading(reading)
	if err != nil {
		s.logger.Warn("scan rejected", zap.Float64("confidence", reading.Confidence), zap.Error(err))
		c.JSON(http.StatusOK, recognition.ScanResponse{
			LotteryType: reading.LotteryType,
			AllNumbers:  []int{},
			Confidence:  reading.Confidence,
			Status:      status,
			Notes:       err.Error(),
		})
		return
	}

	rec := &ScanRecord{
		UserID:      c.PostForm("user_id"),
		ImageName:   header.Filename,
		LotteryType: reading.LotteryType,
		Blocks:      reading.Blocks,
		Numbers:     numbers,
		TicketID:    reading.TicketID,
		Confidence:  reading.Confidence,
		Status:      status,
	}
	if err := s.store.SaveScan(c.Request.Context(), rec); err != nil {
		s.logger.Error("failed to save scan", zap.Error(err))
		jsonError(c, "failed to save scan", http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, recognition.ScanResponse{
		ScanID:      rec.ID,
		LotteryType: reading.LotteryType,
		Blocks:      reading.Blocks,
		AllNumbers:  numbers,
		TicketID:    reading.TicketID,
		Confidence:  reading.Confidence,
		Status:      status,
		Notes:       reading.Notes,
	})
}

// GET /api/v1/scan-history?user_id=: the user's latest scans.
func (s *Server) handleScanHistory(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		jsonError(c, "user_id is required", http.StatusBadRequest)
		return
	}

	history, err := s.store.ScansByUser(c.Request.Context(), userID)
	if err != nil {
		s.logger.Error("failed to get scan history", zap.Error(err))
		jsonError(c, "failed to get scan history", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []ScanHistoryItem{}
	}
	c.JSON(http.StatusOK, gin.H{"scans": history})
}

// GET /api/v1/scans/:id
func (s *Server) handleGetScan(c *gin.Context) {
	rec, err := s.store.Scan(c.Request.Context(), c.Param("id"))
	if errors.Is(err, errScanNotFound) {
		jsonError(c, "scan not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("failed to get scan", zap.Error(err))
		jsonError(c, "failed to get scan", http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// --- Helpers ---

// newEngine returns a gin engine with recovery, request logging and the
// security headers shared by both HTTP surfaces.
func newEngine(logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.SetTrustedProxies(nil)
	engine.Use(gin.Recovery(), requestLogger(logger), securityHeaders())
	return engine
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func jsonError(c *gin.Context, msg string, code int) {
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}
