// Package tui is the terminal board: it shows the scanned ticket on its
// decade grid and lets the player mark called numbers.
package tui

import (
	"context"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bodul/loto/scan"
)

// BannerDuration is how long the win banner stays up.
const BannerDuration = 3 * time.Second

// Session is the part of *scan.Orchestrator the board drives.
type Session interface {
	Snapshot() scan.State
	Subscribe() <-chan scan.Event
	SelectFrom(ctx context.Context, src scan.ImageSource) error
	RequestScan() error
	Cancel() error
	Toggle(n int) (bool, error)
	IsDestructive() bool
	ClearMatches() error
	Rescan() error
}

type mode int

const (
	modeBoard mode = iota
	modeOpen       // typing an image path
	modeConfirm    // waiting for y/n on a destructive action
)

// Model is the bubbletea model of the board.
type Model struct {
	session Session
	events  <-chan scan.Event
	state   scan.State

	keys   KeyMap
	help   help.Model
	styles Styles

	mode    mode
	input   string // number or path being typed
	confirm func() error
	prompt  string
	notice  string

	banner   bool
	bannerID int
	width    int
}

// New subscribes to session. The subscription lives as long as the
// session.
func New(session Session) Model {
	return Model{
		session: session,
		events:  session.Subscribe(),
		state:   session.Snapshot(),
		keys:    DefaultKeyMap,
		help:    help.New(),
		styles:  DefaultStyles,
	}
}

type sessionEventMsg struct {
	event scan.Event
}

type sessionClosedMsg struct{}

type bannerExpiredMsg struct {
	id int
}

func (model Model) Init() tea.Cmd {
	return listenForSessionEvent(model.events)
}

// listenForSessionEvent waits for the next orchestrator event.
func listenForSessionEvent(channel <-chan scan.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-channel
		if !ok {
			return sessionClosedMsg{}
		}
		return sessionEventMsg{event: event}
	}
}

func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.width = message.Width
		model.help.Width = message.Width
		return model, nil

	case sessionEventMsg:
		return model.handleEvent(message.event)

	case sessionClosedMsg:
		return model, tea.Quit

	case bannerExpiredMsg:
		if message.id == model.bannerID {
			model.banner = false
		}
		return model, nil

	case tea.KeyMsg:
		switch model.mode {
		case modeOpen:
			return model.handleOpenKey(message)
		case modeConfirm:
			return model.handleConfirmKey(message)
		default:
			return model.handleBoardKey(message)
		}
	}
	return model, nil
}

func (model Model) handleEvent(event scan.Event) (tea.Model, tea.Cmd) {
	listen := listenForSessionEvent(model.events)
	switch event.Kind {
	case scan.EventStateChanged:
		model.state = event.State
		if !model.state.Scanned() {
			model.banner = false
		}
	case scan.EventWin:
		model.state = event.State
		model.banner = true
		model.bannerID++
		id := model.bannerID
		return model, tea.Batch(listen, tea.Tick(BannerDuration, func(time.Time) tea.Msg {
			return bannerExpiredMsg{id: id}
		}))
	case scan.EventNotice:
		model.notice = scan.UserMessage(event.Err)
	}
	return model, listen
}

func (model Model) handleBoardKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	if message.Type == tea.KeyRunes && len(message.Runes) == 1 {
		if r := message.Runes[0]; r >= '0' && r <= '9' {
			if len(model.input) < 2 {
				model.input += string(r)
			}
			return model, nil
		}
	}

	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit

	case key.Matches(message, model.keys.Erase):
		if n := len(model.input); n > 0 {
			model.input = model.input[:n-1]
		}

	case key.Matches(message, model.keys.Mark):
		if model.input == "" {
			return model, nil
		}
		n, _ := strconv.Atoi(model.input)
		model.input = ""
		_, err := model.session.Toggle(n)
		model.setNotice(err)

	case key.Matches(message, model.keys.Open):
		model.mode = modeOpen
		model.input = ""
		model.notice = ""

	case key.Matches(message, model.keys.Scan):
		model.setNotice(model.session.RequestScan())

	case key.Matches(message, model.keys.Cancel):
		model.setNotice(model.session.Cancel())

	case key.Matches(message, model.keys.Clear):
		model.ask("Clear all marked numbers?", model.session.ClearMatches)

	case key.Matches(message, model.keys.Rescan):
		model.ask("Discard your marks and scan a new ticket?", model.session.Rescan)
	}
	return model, nil
}

// ask runs action directly unless it would discard marks, in which case
// the player confirms first.
func (model *Model) ask(prompt string, action func() error) {
	if !model.session.IsDestructive() {
		model.setNotice(action())
		return
	}
	model.mode = modeConfirm
	model.prompt = prompt
	model.confirm = action
}

func (model Model) handleConfirmKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Yes):
		model.setNotice(model.confirm())
	case key.Matches(message, model.keys.No):
	case message.Type == tea.KeyCtrlC:
		return model, tea.Quit
	default:
		return model, nil
	}
	model.mode = modeBoard
	model.confirm = nil
	model.prompt = ""
	return model, nil
}

func (model Model) handleOpenKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch message.Type {
	case tea.KeyCtrlC:
		return model, tea.Quit
	case tea.KeyEsc:
		model.mode = modeBoard
		model.input = ""
	case tea.KeyEnter:
		path := model.input
		model.mode = modeBoard
		model.input = ""
		model.setNotice(model.session.SelectFrom(context.Background(), scan.FileSource{Path: path}))
	case tea.KeyBackspace:
		if n := len(model.input); n > 0 {
			model.input = model.input[:n-1]
		}
	case tea.KeyRunes, tea.KeySpace:
		model.input += string(message.Runes)
	}
	return model, nil
}

func (model *Model) setNotice(err error) {
	model.notice = scan.UserMessage(err)
}
