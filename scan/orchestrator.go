package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bodul/loto/clock"
	"github.com/bodul/loto/recognition"
	"github.com/bodul/loto/ticket"
)

// Recognizer extracts a ticket from an image. *recognition.Client is
// the production implementation.
type Recognizer interface {
	Recognize(ctx context.Context, img recognition.Image) (*recognition.ScanResponse, error)
}

// Default timings of a scan.
const (
	DefaultStage1Offset = 4 * time.Second
	DefaultStage2Offset = 14 * time.Second
	DefaultTimeout      = 90 * time.Second
)

// Config tunes an Orchestrator. Zero fields take their defaults.
type Config struct {
	// StageOffsets are measured from scan start; offset i advances the
	// progress stage to i+1.
	StageOffsets []time.Duration
	Timeout      time.Duration

	Clock            clock.Clock
	Logger           *zap.Logger
	Effects          EffectsFunc
	SubscriberBuffer int
}

func (c *Config) withDefaults() {
	if c.StageOffsets == nil {
		c.StageOffsets = []time.Duration{DefaultStage1Offset, DefaultStage2Offset}
	}
	if len(c.StageOffsets) > stageCount-1 {
		c.StageOffsets = c.StageOffsets[:stageCount-1]
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = defaultSubscriberBuffer
	}
}

// Orchestrator owns one scan session. All methods are safe for
// concurrent use; transitions are serialized and each runs to
// completion, including event publication, before the next starts.
type Orchestrator struct {
	cfg        Config
	recognizer Recognizer
	logger     *zap.Logger

	mu     sync.Mutex
	state  State
	closed bool

	// episode identifies the current Scanning period. Timers and
	// responses carrying an older value are ignored.
	episode uint64
	timers  []*clock.Timer
	cancel  context.CancelFunc

	effects Effects
	subs    map[<-chan Event]chan Event

	inflight sync.WaitGroup
}

// New returns an idle orchestrator.
func New(recognizer Recognizer, cfg Config) *Orchestrator {
	cfg.withDefaults()
	return &Orchestrator{
		cfg:        cfg,
		recognizer: recognizer,
		logger:     cfg.Logger,
		subs:       make(map[<-chan Event]chan Event),
	}
}

// Snapshot returns a copy of the session state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// SelectImage starts a new session on img. A running scan is abandoned
// and any ticket and marks are discarded.
func (o *Orchestrator) SelectImage(img recognition.Image) error {
	if img.URI == "" {
		return ErrNoImage
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}

	if o.state.Phase == PhaseScanning {
		o.logger.Info("new image selected during scan, abandoning request")
	}
	o.endEpisodeLocked()
	o.releaseEffectsLocked()
	o.state = State{Phase: PhaseImageSelected, Image: &img}
	o.publishLocked(EventStateChanged, nil)
	return nil
}

// SelectFrom picks an image from src and selects it. A denied or
// cancelled pick is published as a notice and leaves the state alone.
func (o *Orchestrator) SelectFrom(ctx context.Context, src ImageSource) error {
	img, err := src.Pick(ctx)
	if err != nil {
		o.notice(err)
		return err
	}
	return o.SelectImage(img)
}

func (o *Orchestrator) notice(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.logger.Info("image source", zap.Error(err))
	o.publishLocked(EventNotice, err)
}

// RequestScan uploads the selected image. It is accepted while an image
// is selected, including after a rejection or failure.
func (o *Orchestrator) RequestScan() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}
	switch o.state.Phase {
	case PhaseImageSelected, PhaseRejected, PhaseFailed:
	case PhaseScanning, PhaseCompleted:
		return ErrBusy
	default:
		return ErrNoImage
	}
	if o.state.Image == nil {
		return ErrNoImage
	}

	o.episode++
	ep := o.episode
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel

	img := *o.state.Image
	o.state = State{
		Phase:         PhaseScanning,
		Stage:         StageOCR,
		Image:         &img,
		ScanStartedAt: o.cfg.Clock.Now(),
	}

	for i, offset := range o.cfg.StageOffsets {
		stage := i + 1
		o.timers = append(o.timers, o.cfg.Clock.AfterFunc(offset, func() {
			o.advanceStage(ep, stage)
		}))
	}
	o.timers = append(o.timers, o.cfg.Clock.AfterFunc(o.cfg.Timeout, func() {
		o.expire(ep)
	}))

	o.logger.Info("scan started", zap.String("image", img.URI), zap.Uint64("episode", ep))
	o.publishLocked(EventStateChanged, nil)

	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		resp, err := o.recognizer.Recognize(ctx, img)
		o.finish(ep, resp, err)
	}()
	return nil
}

// currentLocked reports whether ep is the live Scanning episode.
func (o *Orchestrator) currentLocked(ep uint64) bool {
	return !o.closed && ep == o.episode && o.state.Phase == PhaseScanning
}

func (o *Orchestrator) advanceStage(ep uint64, stage int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.currentLocked(ep) {
		return
	}
	o.state.Stage = stage
	o.publishLocked(EventStateChanged, nil)
}

func (o *Orchestrator) expire(ep uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.currentLocked(ep) {
		return
	}
	o.endEpisodeLocked()

	err := fmt.Errorf("%w: no response within %s: %w", ErrTransport, o.cfg.Timeout, ErrTimeout)
	o.logger.Warn("scan timed out", zap.Duration("timeout", o.cfg.Timeout))
	o.state = State{Phase: PhaseFailed, Image: o.state.Image, Err: err}
	o.publishLocked(EventStateChanged, nil)
}

func (o *Orchestrator) finish(ep uint64, resp *recognition.ScanResponse, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.currentLocked(ep) {
		o.logger.Debug("ignoring stale scan response", zap.Uint64("episode", ep))
		return
	}
	o.endEpisodeLocked()

	img := o.state.Image
	if err == nil && resp == nil {
		err = errors.New("empty response")
	}
	if err != nil {
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		o.logger.Warn("scan failed", zap.Error(err))
		o.state = State{Phase: PhaseFailed, Image: img, Err: err}
		o.publishLocked(EventStateChanged, nil)
		return
	}

	next := State{
		Image:       img,
		ScanID:      resp.ScanID,
		TicketID:    resp.TicketID,
		LotteryType: resp.LotteryType,
		Confidence:  resp.Confidence,
		Notes:       resp.Notes,
	}
	switch {
	case resp.Rejected():
		o.logger.Info("scan rejected", zap.Float64("confidence", resp.Confidence), zap.String("notes", resp.Notes))
		next.Phase = PhaseRejected
		next.Err = ErrRejected
	case !resp.Usable():
		o.logger.Info("scan returned no blocks", zap.Error(ErrIncomplete), zap.String("status", resp.Status))
		next = State{Phase: PhaseImageSelected, Image: img}
	default:
		next.Phase = PhaseCompleted
		next.Ticket = ticket.FromBlocks(resp.Blocks)
		o.acquireEffectsLocked()
		o.logger.Info("scan completed",
			zap.Int("blocks", len(resp.Blocks)),
			zap.String("status", resp.Status),
			zap.Float64("confidence", resp.Confidence),
		)
	}
	o.state = next
	o.publishLocked(EventStateChanged, nil)
}

// Cancel abandons the running scan and returns to the selected image.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.state.Phase != PhaseScanning {
		return ErrNotScanning
	}
	o.endEpisodeLocked()
	o.state = State{Phase: PhaseImageSelected, Image: o.state.Image}
	o.logger.Info("scan cancelled")
	o.publishLocked(EventStateChanged, nil)
	return nil
}

// Toggle flips n in the marks and reports whether the toggle completed
// a row that was not already complete. Subscribers receive the state
// change and then, for a win, the win event.
func (o *Orchestrator) Toggle(n int) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false, ErrClosed
	}
	if o.state.Ticket == nil {
		return false, ErrNoTicket
	}

	before := o.state.Marks
	after := ticket.Toggle(before, n)
	o.state.Marks = after
	won := ticket.WinTriggered(o.state.Ticket, before, after)

	o.publishLocked(EventStateChanged, nil)
	if won {
		o.logger.Info("row completed", zap.Int("number", n))
		o.publishLocked(EventWin, nil)
		if o.effects != nil {
			o.effects.Celebrate(o.state.clone())
		}
	}
	return won, nil
}

// IsDestructive reports whether ClearMatches or Rescan would discard
// marks. Callers confirm with the player before committing when true.
func (o *Orchestrator) IsDestructive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Destructive()
}

// ClearMatches empties the marks.
func (o *Orchestrator) ClearMatches() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.state.Ticket == nil {
		return ErrNoTicket
	}
	o.state.Marks = ticket.Marks{}
	o.publishLocked(EventStateChanged, nil)
	return nil
}

// Rescan discards the whole session and returns to Idle.
func (o *Orchestrator) Rescan() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	o.endEpisodeLocked()
	o.releaseEffectsLocked()
	o.state = State{Phase: PhaseIdle}
	o.publishLocked(EventStateChanged, nil)
	return nil
}

// Close ends the session: timers are stopped, the in-flight request is
// cancelled, effects are released and subscriber channels closed. It
// waits for the request goroutine to return.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.endEpisodeLocked()
	o.releaseEffectsLocked()
	o.closed = true
	for key, ch := range o.subs {
		delete(o.subs, key)
		close(ch)
	}
	o.mu.Unlock()

	o.inflight.Wait()
	return nil
}

// endEpisodeLocked stops the stage and timeout timers and cancels the
// request. Anything the old episode delivers afterwards is stale.
func (o *Orchestrator) endEpisodeLocked() {
	for _, t := range o.timers {
		t.Stop()
	}
	o.timers = nil
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.episode++
}
