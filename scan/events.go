package scan

// EventKind distinguishes orchestrator notifications.
type EventKind int

const (
	// EventStateChanged follows every transition and every marks change.
	EventStateChanged EventKind = iota

	// EventWin follows the EventStateChanged of the toggle that
	// completed a row.
	EventWin

	// EventNotice carries an error that did not change the state, such
	// as a denied image source.
	EventNotice
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state"
	case EventWin:
		return "win"
	case EventNotice:
		return "notice"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers. State is the snapshot taken when
// the event was published.
type Event struct {
	Kind  EventKind
	State State
	Err   error // EventNotice only
}

const defaultSubscriberBuffer = 32

// Subscribe returns a channel receiving every event published from now
// on. Events are dropped for a subscriber whose buffer is full. The
// channel is closed by Unsubscribe or Close.
func (o *Orchestrator) Subscribe() <-chan Event {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan Event, o.cfg.SubscriberBuffer)
	if o.closed {
		close(ch)
		return ch
	}
	o.subs[ch] = ch
	return ch
}

// Unsubscribe stops delivery to ch and closes it.
func (o *Orchestrator) Unsubscribe(ch <-chan Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if c, ok := o.subs[ch]; ok {
		delete(o.subs, ch)
		close(c)
	}
}

// publishLocked fans ev out without blocking. Must hold o.mu.
func (o *Orchestrator) publishLocked(kind EventKind, err error) {
	ev := Event{Kind: kind, State: o.state.clone(), Err: err}
	for _, ch := range o.subs {
		select {
		case ch <- ev:
		default:
			o.logger.Debug("dropping event for slow subscriber")
		}
	}
}
