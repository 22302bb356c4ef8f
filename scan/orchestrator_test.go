package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bodul/loto/clock"
	"github.com/bodul/loto/recognition"
	"github.com/bodul/loto/ticket"
)

type reply struct {
	resp *recognition.ScanResponse
	err  error
}

// stubRecognizer blocks each request until the test sends a reply.
type stubRecognizer struct {
	started      chan recognition.Image
	replies      chan reply
	ignoreCancel bool
}

func newStub() *stubRecognizer {
	return &stubRecognizer{
		started: make(chan recognition.Image, 8),
		replies: make(chan reply),
	}
}

func (s *stubRecognizer) Recognize(ctx context.Context, img recognition.Image) (*recognition.ScanResponse, error) {
	s.started <- img
	if s.ignoreCancel {
		r := <-s.replies
		return r.resp, r.err
	}
	select {
	case r := <-s.replies:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type recordingEffects struct {
	mu         sync.Mutex
	celebrated int
	closed     int
}

func (e *recordingEffects) Celebrate(State) {
	e.mu.Lock()
	e.celebrated++
	e.mu.Unlock()
}

func (e *recordingEffects) Close() error {
	e.mu.Lock()
	e.closed++
	e.mu.Unlock()
	return nil
}

func (e *recordingEffects) counts() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.celebrated, e.closed
}

var (
	epoch    = time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	testImg  = recognition.Image{URI: "/photos/ticket.jpg"}
	winRow   = ticket.Row{1, 12, 23, 34, 45}
	okTicket = &recognition.ScanResponse{
		ScanID:      "s-1",
		LotteryType: recognition.LotteryLoto,
		Blocks:      []ticket.Block{{Row1: winRow, Row2: ticket.Row{6, 17, 28, 59, 90}, Row3: ticket.Row{2, 33, 47, 68, 71}}},
		TicketID:    "LT-042",
		Confidence:  0.95,
		Status:      recognition.StatusOK,
	}
)

type harness struct {
	orch    *Orchestrator
	clk     *clock.FakeClock
	rec     *stubRecognizer
	events  <-chan Event
	effects *recordingEffects
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clk:     clock.Fake(epoch),
		rec:     newStub(),
		effects: &recordingEffects{},
	}
	h.orch = New(h.rec, Config{
		Clock:   h.clk,
		Effects: func() (Effects, error) { return h.effects, nil },
	})
	h.events = h.orch.Subscribe()
	t.Cleanup(func() { h.orch.Close() })
	return h
}

// waitPhase reads events until one reports phase.
func (h *harness) waitPhase(t *testing.T, phase Phase) State {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-h.events:
			if !ok {
				t.Fatalf("event channel closed waiting for %s", phase)
			}
			if ev.Kind == EventStateChanged && ev.State.Phase == phase {
				return ev.State
			}
		case <-deadline:
			t.Fatalf("timed out waiting for phase %s (now %s)", phase, h.orch.Snapshot().Phase)
		}
	}
}

// drain discards queued events.
func (h *harness) drain() {
	for {
		select {
		case <-h.events:
		default:
			return
		}
	}
}

// startScan selects the test image and requests a scan, returning once
// the request reached the recognizer.
func (h *harness) startScan(t *testing.T) {
	t.Helper()
	if err := h.orch.SelectImage(testImg); err != nil {
		t.Fatalf("select image: %v", err)
	}
	if err := h.orch.RequestScan(); err != nil {
		t.Fatalf("request scan: %v", err)
	}
	select {
	case <-h.rec.started:
	case <-time.After(2 * time.Second):
		t.Fatal("recognizer never called")
	}
}

func (h *harness) complete(t *testing.T) State {
	t.Helper()
	h.startScan(t)
	h.rec.replies <- reply{resp: okTicket}
	return h.waitPhase(t, PhaseCompleted)
}

func TestScanStagesThenCompleted(t *testing.T) {
	h := newHarness(t)
	h.startScan(t)

	if s := h.orch.Snapshot(); s.Phase != PhaseScanning || s.Stage != StageOCR {
		t.Fatalf("at 0ms: phase %s stage %d", s.Phase, s.Stage)
	}
	if got := h.clk.PendingCount(); got != 3 {
		t.Fatalf("expected 2 stage timers and a timeout, got %d pending", got)
	}

	h.clk.Advance(4000 * time.Millisecond)
	if s := h.orch.Snapshot(); s.Stage != StageAI {
		t.Fatalf("at 4000ms: stage %d", s.Stage)
	}

	h.clk.Advance(10000 * time.Millisecond)
	if s := h.orch.Snapshot(); s.Stage != StageReconcile {
		t.Fatalf("at 14000ms: stage %d", s.Stage)
	}

	h.clk.Advance(6000 * time.Millisecond)
	if s := h.orch.Snapshot(); s.Phase != PhaseScanning || s.Stage != StageReconcile {
		t.Fatalf("at 20000ms before reply: phase %s stage %d", s.Phase, s.Stage)
	}

	h.rec.replies <- reply{resp: okTicket}
	s := h.waitPhase(t, PhaseCompleted)

	if !s.Scanned() || len(s.Ticket.Blocks) != 1 {
		t.Fatalf("expected a one-block ticket, got %+v", s.Ticket)
	}
	if !s.Marks.Empty() {
		t.Fatalf("marks not empty after scan: %v", s.Marks.Sorted())
	}
	if s.TicketID != "LT-042" || s.ScanID != "s-1" {
		t.Fatalf("response metadata not recorded: %+v", s)
	}
	if got := h.clk.PendingCount(); got != 0 {
		t.Fatalf("timers still pending after completion: %d", got)
	}
}

func TestScanRejected(t *testing.T) {
	h := newHarness(t)
	h.startScan(t)

	// Blocks in a rejected answer are ignored.
	rejected := *okTicket
	rejected.Status = recognition.StatusRejected
	rejected.Confidence = 0.3
	h.rec.replies <- reply{resp: &rejected}

	s := h.waitPhase(t, PhaseRejected)
	if s.Ticket != nil {
		t.Fatal("rejected scan must not build a ticket")
	}
	if !s.Marks.Empty() {
		t.Fatal("rejected scan must leave marks empty")
	}
	if !errors.Is(s.Err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", s.Err)
	}
	if h.clk.PendingCount() != 0 {
		t.Fatal("timers pending after rejection")
	}
	if _, err := h.orch.Toggle(1); !errors.Is(err, ErrNoTicket) {
		t.Fatalf("toggle without ticket: %v", err)
	}

	// The image is kept so the player can retry.
	if err := h.orch.RequestScan(); err != nil {
		t.Fatalf("retry after rejection: %v", err)
	}
}

func TestScanTimeoutIgnoresLateResponse(t *testing.T) {
	h := newHarness(t)
	h.rec.ignoreCancel = true
	h.startScan(t)

	h.clk.Advance(DefaultTimeout)
	s := h.waitPhase(t, PhaseFailed)

	if !errors.Is(s.Err, ErrTimeout) || !errors.Is(s.Err, ErrTransport) {
		t.Fatalf("expected timeout transport error, got %v", s.Err)
	}
	if h.clk.PendingCount() != 0 {
		t.Fatal("stage timers pending after timeout")
	}

	h.rec.replies <- reply{resp: okTicket}
	h.orch.inflight.Wait()

	after := h.orch.Snapshot()
	if after.Phase != PhaseFailed || after.Ticket != nil {
		t.Fatalf("late response changed the state: %s", after.Phase)
	}
	select {
	case ev := <-h.events:
		t.Fatalf("late response published %s event (phase %s)", ev.Kind, ev.State.Phase)
	default:
	}
}

func TestScanTimeoutCancelsRequest(t *testing.T) {
	h := newHarness(t)
	h.startScan(t)

	h.clk.Advance(DefaultTimeout)
	h.waitPhase(t, PhaseFailed)

	// The request context was cancelled, so the goroutine returns on its own.
	done := make(chan struct{})
	go func() {
		h.orch.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("request was not cancelled on timeout")
	}
}

func TestScanTransportFailure(t *testing.T) {
	h := newHarness(t)
	h.startScan(t)

	h.rec.replies <- reply{err: errors.New("connection refused")}
	s := h.waitPhase(t, PhaseFailed)

	if !errors.Is(s.Err, ErrTransport) || errors.Is(s.Err, ErrTimeout) {
		t.Fatalf("expected plain transport error, got %v", s.Err)
	}
	if s.Image == nil || s.Image.URI != testImg.URI {
		t.Fatal("failed scan must keep the image")
	}
	if UserMessage(s.Err) == "" {
		t.Fatal("transport failure needs a user message")
	}
}

func TestScanIncompleteResult(t *testing.T) {
	h := newHarness(t)
	h.startScan(t)
	h.drain()

	empty := &recognition.ScanResponse{Status: recognition.StatusOK, Confidence: 0.9}
	h.rec.replies <- reply{resp: empty}
	s := h.waitPhase(t, PhaseImageSelected)

	if s.Ticket != nil || s.Err != nil {
		t.Fatalf("incomplete result must be silent: ticket=%v err=%v", s.Ticket, s.Err)
	}
	if h.clk.PendingCount() != 0 {
		t.Fatal("timers pending after incomplete result")
	}
}

func TestCancelStopsTimersAndIgnoresResponse(t *testing.T) {
	h := newHarness(t)
	h.rec.ignoreCancel = true
	h.startScan(t)

	if err := h.orch.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if s := h.orch.Snapshot(); s.Phase != PhaseImageSelected {
		t.Fatalf("cancel left phase %s", s.Phase)
	}
	if h.clk.PendingCount() != 0 {
		t.Fatal("timers pending after cancel")
	}

	h.clk.Advance(time.Minute)
	h.rec.replies <- reply{resp: okTicket}
	h.orch.inflight.Wait()

	if s := h.orch.Snapshot(); s.Phase != PhaseImageSelected || s.Stage != 0 {
		t.Fatalf("cancelled episode leaked into state: %s stage %d", s.Phase, s.Stage)
	}
	if err := h.orch.Cancel(); !errors.Is(err, ErrNotScanning) {
		t.Fatalf("second cancel: %v", err)
	}
}

func TestSelectImageDuringScanAbandonsEpisode(t *testing.T) {
	h := newHarness(t)
	h.startScan(t)

	next := recognition.Image{URI: "/photos/other.png"}
	if err := h.orch.SelectImage(next); err != nil {
		t.Fatalf("select: %v", err)
	}
	if h.clk.PendingCount() != 0 {
		t.Fatal("old episode timers still pending")
	}

	s := h.orch.Snapshot()
	if s.Phase != PhaseImageSelected || s.Image.URI != next.URI {
		t.Fatalf("unexpected state %s %v", s.Phase, s.Image)
	}
}

func TestRequestScanGuards(t *testing.T) {
	h := newHarness(t)

	if err := h.orch.RequestScan(); !errors.Is(err, ErrNoImage) {
		t.Fatalf("scan from idle: %v", err)
	}
	if err := h.orch.SelectImage(recognition.Image{}); !errors.Is(err, ErrNoImage) {
		t.Fatalf("empty image: %v", err)
	}

	h.startScan(t)
	if err := h.orch.RequestScan(); !errors.Is(err, ErrBusy) {
		t.Fatalf("double scan: %v", err)
	}
}

func TestToggleFiresWinOnce(t *testing.T) {
	h := newHarness(t)
	h.complete(t)
	h.drain()

	var wins int
	for i, n := range winRow {
		won, err := h.orch.Toggle(n)
		if err != nil {
			t.Fatalf("toggle %d: %v", n, err)
		}
		if won {
			wins++
			if i != len(winRow)-1 {
				t.Fatalf("win fired early at toggle %d", i+1)
			}
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one win, got %d", wins)
	}

	// Unrelated number while the row stays complete.
	if won, _ := h.orch.Toggle(6); won {
		t.Fatal("win re-fired on unrelated toggle")
	}

	// Un-mark then re-mark the last number.
	h.orch.Toggle(45)
	if won, _ := h.orch.Toggle(45); !won {
		t.Fatal("re-completing the row should fire again")
	}

	celebrated, _ := h.effects.counts()
	if celebrated != 2 {
		t.Fatalf("expected 2 celebrations, got %d", celebrated)
	}
}

func TestToggleEventsAreAtomic(t *testing.T) {
	h := newHarness(t)
	h.complete(t)
	for _, n := range winRow[:4] {
		h.orch.Toggle(n)
	}
	h.drain()

	h.orch.Toggle(winRow[4])

	first := <-h.events
	second := <-h.events
	if first.Kind != EventStateChanged || !first.State.Marks.Has(winRow[4]) {
		t.Fatalf("first event should carry the new marks, got %s", first.Kind)
	}
	if second.Kind != EventWin || second.State.Marks.Len() != 5 {
		t.Fatalf("second event should be the win, got %s", second.Kind)
	}
}

func TestClearMatchesAndRescan(t *testing.T) {
	h := newHarness(t)
	h.complete(t)

	if h.orch.IsDestructive() {
		t.Fatal("fresh ticket should not be destructive")
	}
	h.orch.Toggle(12)
	if !h.orch.IsDestructive() {
		t.Fatal("marked ticket should be destructive")
	}

	if err := h.orch.ClearMatches(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	s := h.orch.Snapshot()
	if !s.Marks.Empty() || !s.Scanned() {
		t.Fatal("clear must keep the ticket and drop the marks")
	}

	h.orch.Toggle(12)
	if err := h.orch.Rescan(); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	s = h.orch.Snapshot()
	if s.Phase != PhaseIdle || s.Ticket != nil || s.Image != nil || !s.Marks.Empty() {
		t.Fatalf("rescan must discard the session, got %+v", s)
	}
	if _, closed := h.effects.counts(); closed != 1 {
		t.Fatalf("effects not released on rescan: %d", closed)
	}
	if err := h.orch.ClearMatches(); !errors.Is(err, ErrNoTicket) {
		t.Fatalf("clear without ticket: %v", err)
	}
}

func TestSelectImageClearsMarks(t *testing.T) {
	h := newHarness(t)
	h.complete(t)
	h.orch.Toggle(1)

	if err := h.orch.SelectImage(recognition.Image{URI: "/photos/next.jpg"}); err != nil {
		t.Fatalf("select: %v", err)
	}
	s := h.orch.Snapshot()
	if s.Ticket != nil || !s.Marks.Empty() {
		t.Fatal("new image must discard ticket and marks")
	}
}

func TestSelectFromPermissionDenied(t *testing.T) {
	h := newHarness(t)
	h.drain()

	denied := ImageSourceFunc(func(context.Context) (recognition.Image, error) {
		return recognition.Image{}, ErrPermissionDenied
	})
	if err := h.orch.SelectFrom(context.Background(), denied); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if s := h.orch.Snapshot(); s.Phase != PhaseIdle {
		t.Fatalf("denied pick changed the phase to %s", s.Phase)
	}

	ev := <-h.events
	if ev.Kind != EventNotice || !errors.Is(ev.Err, ErrPermissionDenied) {
		t.Fatalf("expected a notice, got %s %v", ev.Kind, ev.Err)
	}
}

func TestSelectFromFileSource(t *testing.T) {
	h := newHarness(t)

	if err := h.orch.SelectFrom(context.Background(), FileSource{}); !errors.Is(err, ErrPickCancelled) {
		t.Fatalf("empty path: %v", err)
	}

	p := filepath.Join(t.TempDir(), "ticket.jpg")
	if err := os.WriteFile(p, []byte{0xff, 0xd8, 0xff}, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := h.orch.SelectFrom(context.Background(), FileSource{Path: p}); err != nil {
		t.Fatalf("select from file: %v", err)
	}
	if s := h.orch.Snapshot(); s.Phase != PhaseImageSelected || s.Image.URI != p {
		t.Fatalf("unexpected state %s", s.Phase)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	h := newHarness(t)
	h.complete(t)
	h.orch.SelectImage(testImg)
	h.orch.RequestScan()
	<-h.rec.started

	if err := h.orch.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if h.clk.PendingCount() != 0 {
		t.Fatal("timers pending after close")
	}
	if _, closed := h.effects.counts(); closed != 1 {
		t.Fatalf("effects closed %d times", closed)
	}

	for range h.events {
	}
	if err := h.orch.SelectImage(testImg); !errors.Is(err, ErrClosed) {
		t.Fatalf("select after close: %v", err)
	}
	if err := h.orch.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	clk := clock.Fake(epoch)
	orch := New(newStub(), Config{Clock: clk, SubscriberBuffer: 1})
	defer orch.Close()

	slow := orch.Subscribe()
	for i := 0; i < 5; i++ {
		if err := orch.SelectImage(testImg); err != nil {
			t.Fatal(err)
		}
	}
	if len(slow) != 1 {
		t.Fatalf("expected buffer of 1, got %d", len(slow))
	}

	orch.Unsubscribe(slow)
	<-slow
	if _, ok := <-slow; ok {
		t.Fatal("channel should be closed after Unsubscribe")
	}
}

func TestUserMessage(t *testing.T) {
	timeout := errors.Join(ErrTransport, ErrTimeout)
	status := &recognition.StatusError{Code: 429, Message: "Too many requests, please try again later"}

	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrIncomplete, ""},
		{ErrPickCancelled, ""},
		{timeout, "The scan took too long. Check your connection and try again."},
		{errors.Join(ErrTransport, status), "Could not scan the ticket: Too many requests, please try again later"},
		{ErrRejected, "That does not look like a Lô Tô ticket. Try a clearer photo."},
	}
	for _, tt := range tests {
		if got := UserMessage(tt.err); got != tt.want {
			t.Errorf("UserMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
