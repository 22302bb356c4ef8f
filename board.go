package main

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bodul/loto/recognition"
	"github.com/bodul/loto/scan"
)

const maxBoardUpload = 20 << 20

// Board is the HTTP and SSE surface over one scan session, for
// renderers that draw the ticket themselves.
type Board struct {
	engine *gin.Engine
	orch   *scan.Orchestrator
	sse    *Broadcaster
	logger *zap.Logger

	// Uploaded images are kept in dir until replaced.
	dir        string
	mu         sync.Mutex
	lastUpload string
}

// NewBoard serves orch. Uploaded images are written to dir. The
// orchestrator's events are relayed to SSE clients through sse until the
// orchestrator is closed.
func NewBoard(orch *scan.Orchestrator, sse *Broadcaster, dir string, logger *zap.Logger) *Board {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Board{
		engine: newEngine(logger),
		orch:   orch,
		sse:    sse,
		logger: logger,
		dir:    dir,
	}
	b.routes()
	go sse.Relay(orch.Subscribe())
	return b
}

func (b *Board) routes() {
	api := b.engine.Group("/api/session")
	api.GET("", b.handleSession)
	api.POST("/image", b.handleSelectImage)
	api.POST("/scan", b.handleScan)
	api.POST("/cancel", b.handleCancel)
	api.POST("/toggle", b.handleToggle)
	api.POST("/clear", b.handleClear)
	api.POST("/rescan", b.handleRescan)
	api.GET("/events", b.handleEvents)
}

func (b *Board) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.engine.ServeHTTP(w, r)
}

// GET /api/session
func (b *Board) handleSession(c *gin.Context) {
	c.JSON(http.StatusOK, newSessionView(b.orch.Snapshot()))
}

// POST /api/session/image: a multipart "image" upload, or JSON
// {"uri": ...} naming a local file or an http(s) URL.
func (b *Board) handleSelectImage(c *gin.Context) {
	var err error
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		err = b.selectUpload(c)
	} else {
		var req struct {
			URI string `json:"uri"`
		}
		if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
			jsonError(c, "expected a multipart image or {\"uri\": ...}", http.StatusBadRequest)
			return
		}
		err = b.selectURI(c, req.URI)
	}
	if err != nil {
		b.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionView(b.orch.Snapshot()))
}

func (b *Board) selectUpload(c *gin.Context) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBoardUpload)
	fh, err := c.FormFile("image")
	if err != nil {
		return scan.ErrNoImage
	}
	name := filepath.Base(fh.Filename)
	dst, err := os.CreateTemp(b.dir, "ticket-*"+filepath.Ext(name))
	if err != nil {
		return err
	}
	dst.Close()
	if err := c.SaveUploadedFile(fh, dst.Name()); err != nil {
		os.Remove(dst.Name())
		return err
	}

	if err := b.orch.SelectImage(recognition.Image{URI: dst.Name(), Name: name}); err != nil {
		os.Remove(dst.Name())
		return err
	}
	b.replaceUpload(dst.Name())
	return nil
}

func (b *Board) selectURI(c *gin.Context, uri string) error {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return b.orch.SelectImage(recognition.Image{URI: uri})
	}
	return b.orch.SelectFrom(c.Request.Context(), scan.FileSource{Path: strings.TrimPrefix(uri, "file://")})
}

// replaceUpload forgets the previous upload, deleting its file.
func (b *Board) replaceUpload(path string) {
	b.mu.Lock()
	prev := b.lastUpload
	b.lastUpload = path
	b.mu.Unlock()
	if prev != "" {
		os.Remove(prev)
	}
}

// POST /api/session/scan
func (b *Board) handleScan(c *gin.Context) {
	b.respond(c, b.orch.RequestScan())
}

// POST /api/session/cancel
func (b *Board) handleCancel(c *gin.Context) {
	b.respond(c, b.orch.Cancel())
}

// POST /api/session/toggle: {"number": n}
func (b *Board) handleToggle(c *gin.Context) {
	var req struct {
		Number *int `json:"number"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Number == nil {
		jsonError(c, "field 'number' is required", http.StatusBadRequest)
		return
	}
	won, err := b.orch.Toggle(*req.Number)
	if err != nil {
		b.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"won":     won,
		"session": newSessionView(b.orch.Snapshot()),
	})
}

// POST /api/session/clear: {"confirm": true} is required when marks
// would be lost.
func (b *Board) handleClear(c *gin.Context) {
	if !b.confirmed(c) {
		return
	}
	b.respond(c, b.orch.ClearMatches())
}

// POST /api/session/rescan: {"confirm": true} is required when marks
// would be lost.
func (b *Board) handleRescan(c *gin.Context) {
	if !b.confirmed(c) {
		return
	}
	b.respond(c, b.orch.Rescan())
}

// confirmed answers 409 and returns false for an unconfirmed
// destructive action.
func (b *Board) confirmed(c *gin.Context) bool {
	var req struct {
		Confirm bool `json:"confirm"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		jsonError(c, "invalid request body", http.StatusBadRequest)
		return false
	}
	if b.orch.IsDestructive() && !req.Confirm {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":            "this discards your marked numbers; send confirm to proceed",
			"confirm_required": true,
		})
		return false
	}
	return true
}

// GET /api/session/events: SSE stream, starting with the current state.
func (b *Board) handleEvents(c *gin.Context) {
	b.sse.ServeSSE(c.Writer, c.Request, func(cl *client) {
		cl.ch <- encodeEvent(scan.Event{Kind: scan.EventStateChanged, State: b.orch.Snapshot()})
	})
}

// Close removes the last uploaded image.
func (b *Board) Close() {
	b.replaceUpload("")
}

func (b *Board) respond(c *gin.Context, err error) {
	if err != nil {
		b.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionView(b.orch.Snapshot()))
}

func (b *Board) sessionError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, scan.ErrNoImage), errors.Is(err, scan.ErrPickCancelled):
		code = http.StatusBadRequest
	case errors.Is(err, scan.ErrPermissionDenied):
		code = http.StatusForbidden
	case errors.Is(err, scan.ErrNoTicket), errors.Is(err, scan.ErrBusy), errors.Is(err, scan.ErrNotScanning):
		code = http.StatusConflict
	case errors.Is(err, scan.ErrClosed):
		code = http.StatusServiceUnavailable
	case errors.Is(err, os.ErrNotExist):
		code = http.StatusNotFound
	}
	if code == http.StatusInternalServerError {
		b.logger.Error("board request failed", zap.Error(err))
	}
	jsonError(c, scan.UserMessage(err), code)
}
