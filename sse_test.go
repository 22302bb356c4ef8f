package main

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bodul/loto/scan"
	"github.com/bodul/loto/ticket"
)

func receive(t *testing.T, c *client) string {
	t.Helper()
	select {
	case msg := <-c.ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("client did not receive message")
		return ""
	}
}

func TestBroadcasterRegisterUnregister(t *testing.T) {
	b := NewBroadcaster()

	c1 := b.Register()
	c2 := b.Register()
	if b.ClientCount() != 2 {
		t.Fatalf("expected 2 clients, got %d", b.ClientCount())
	}

	b.Unregister(c1)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", b.ClientCount())
	}
	b.Unregister(c2)
	b.Unregister(c2) // should not panic
	if b.ClientCount() != 0 {
		t.Fatal("expected 0 clients after full unregister")
	}
}

func TestBroadcast(t *testing.T) {
	b := NewBroadcaster()
	c1 := b.Register()
	c2 := b.Register()
	defer b.Unregister(c1)
	defer b.Unregister(c2)

	b.Broadcast("hello")
	if msg := receive(t, c1); msg != "hello" {
		t.Fatalf("c1 expected 'hello', got %q", msg)
	}
	if msg := receive(t, c2); msg != "hello" {
		t.Fatalf("c2 expected 'hello', got %q", msg)
	}
}

func TestBroadcastSkipsFullChannel(t *testing.T) {
	b := NewBroadcaster()
	c := b.Register()

	// Fill the channel.
	for range sseChannelBuffer {
		b.Broadcast("fill")
	}

	// This should not block.
	b.Broadcast("overflow")
	b.Unregister(c)
}

func TestBroadcasterConcurrent(t *testing.T) {
	b := NewBroadcaster()
	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := b.Register()
			b.Broadcast("msg")
			b.ClientCount()
			b.Unregister(c)
		}()
	}
	wg.Wait()

	if b.ClientCount() != 0 {
		t.Fatal("expected 0 clients after concurrent test")
	}
}

func TestRelay(t *testing.T) {
	b := NewBroadcaster()
	c := b.Register()
	defer b.Unregister(c)

	events := make(chan scan.Event, 2)
	events <- scan.Event{Kind: scan.EventStateChanged, State: scan.State{Phase: scan.PhaseIdle}}
	events <- scan.Event{Kind: scan.EventNotice, Err: scan.ErrPermissionDenied}
	close(events)
	b.Relay(events)

	var ev boardEvent
	json.Unmarshal([]byte(receive(t, c)), &ev)
	if ev.Type != "state" || ev.Session == nil || ev.Session.Phase != scan.PhaseIdle {
		t.Fatalf("unexpected state event %+v", ev)
	}
	json.Unmarshal([]byte(receive(t, c)), &ev)
	if ev.Type != "notice" || ev.Message != scan.UserMessage(scan.ErrPermissionDenied) {
		t.Fatalf("unexpected notice %+v", ev)
	}
}

func TestSSEEffects(t *testing.T) {
	b := NewBroadcaster()
	c := b.Register()
	defer b.Unregister(c)

	fx, err := newSSEEffects(b)()
	if err != nil {
		t.Fatal(err)
	}
	if msg := receive(t, c); msg != `{"type":"effects_ready"}` {
		t.Fatalf("unexpected acquire message %q", msg)
	}

	tk := ticket.FromBlocks([]ticket.Block{{Row1: ticket.Row{1, 12, 23, 34, 45}}})
	fx.Celebrate(scan.State{Phase: scan.PhaseCompleted, Ticket: tk, Marks: ticket.NewMarks(1, 12, 23, 34, 45)})
	var ev boardEvent
	json.Unmarshal([]byte(receive(t, c)), &ev)
	if ev.Type != "celebrate" || !ev.Session.Blocks[0].Rows[0].Complete {
		t.Fatalf("unexpected celebration %+v", ev)
	}

	if err := fx.Close(); err != nil {
		t.Fatal(err)
	}
	if msg := receive(t, c); msg != `{"type":"effects_released"}` {
		t.Fatalf("unexpected release message %q", msg)
	}
}

func TestSessionView(t *testing.T) {
	tk := ticket.FromBlocks([]ticket.Block{{
		Row1: ticket.Row{5, 12, 27, 48, 90},
		Row2: ticket.Row{1, 2},
		Row3: ticket.Row{},
	}})
	st := scan.State{
		Phase:  scan.PhaseCompleted,
		Ticket: tk,
		Marks:  ticket.NewMarks(5, 12, 27, 48, 90, 77),
		Err:    errors.New("ignored"),
	}
	v := newSessionView(st)

	if len(v.Blocks) != 1 || len(v.Blocks[0].Rows) != 3 {
		t.Fatalf("unexpected layout %+v", v.Blocks)
	}
	row1 := v.Blocks[0].Rows[0]
	if !row1.Complete || len(row1.Cells) != ticket.Columns {
		t.Fatalf("row1 should be complete with 9 cells: %+v", row1)
	}
	if c := row1.Cells[8]; c.Number != 90 || !c.Marked {
		t.Fatalf("90 belongs in the last column, marked: %+v", c)
	}
	if row1.Cells[3].Filled {
		t.Fatal("column 3 should be empty")
	}
	// Row2 has a collision: 2 overwrites 1 in column 0.
	if c := v.Blocks[0].Rows[1].Cells[0]; c.Number != 2 || c.Marked {
		t.Fatalf("unexpected collision cell %+v", c)
	}
	if !v.Destructive || len(v.Marks) != 6 {
		t.Fatalf("marks not reported: %+v", v.Marks)
	}

	idle := newSessionView(scan.State{})
	if idle.Blocks == nil || idle.Marks == nil || idle.Destructive {
		t.Fatalf("idle view should have empty lists: %+v", idle)
	}
	scanning := newSessionView(scan.State{Phase: scan.PhaseScanning, Stage: scan.StageAI})
	if scanning.StageLabel != scan.StageLabel(scan.StageAI) {
		t.Fatalf("unexpected stage label %q", scanning.StageLabel)
	}
}
