package table

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"schooladmin/internal/metrics"
)

// eventBuffer is how many events may queue before new ones are dropped.
const eventBuffer = 32

// ErrUnknownMessage is returned by Handle for a message type it does not know.
var ErrUnknownMessage = errors.New("table: unknown message")

// Message is a user action sent by the browser.
type Message struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
	Multi bool   `json:"multi,omitempty"`
}

// Event is pushed back to the browser.
type Event struct {
	Type     string `json:"type"`
	HTML     string `json:"html,omitempty"`
	Query    string `json:"query,omitempty"`
	Level    string `json:"level,omitempty"`
	Message  string `json:"message,omitempty"`
	Location string `json:"location,omitempty"`
}

// Notice is a one-shot notification.
type Notice struct {
	Level   string
	Message string
}

// Config wires an instance to its data source and template.
type Config[T any] struct {
	// Load returns the rows for st and the total count. Client-mode
	// tables return the full set.
	Load func(ctx context.Context, st State) ([]T, int, error)
	// Remove deletes rows and reports one aggregate notice. A returned error
	// aborts the action, typically because the session ended.
	Remove func(ctx context.Context, rows []T) (Notice, error)
	Render func(View) (template.HTML, error)
	// Unauthorized classifies errors that end the session.
	Unauthorized func(error) bool
	SignOut      string
	SearchDelay  time.Duration
	Log          *zap.Logger
}

// Live is a mounted table whatever its record type.
type Live interface {
	ID() string
	Handle(Message) error
	Events() <-chan Event
	Close()
}

// Instance is one mounted table. Its state lives until Close.
type Instance[T any] struct {
	id     string
	table  *Table[T]
	cfg    Config[T]
	ctx    context.Context
	cancel context.CancelFunc
	search *Debouncer[string]

	mu     sync.Mutex
	state  State
	data   []T
	total  int
	loaded bool
	closed bool
	events chan Event
}

func NewInstance[T any](ctx context.Context, t *Table[T], st State, cfg Config[T]) *Instance[T] {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.SearchDelay <= 0 {
		cfg.SearchDelay = SearchDelay
	}
	if st.PageSize <= 0 {
		st.PageSize = t.Options.DefaultPageSize
	}
	ctx, cancel := context.WithCancel(ctx)
	in := &Instance[T]{
		id:     uuid.NewString(),
		table:  t,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		state:  st.Clone(),
		events: make(chan Event, eventBuffer),
	}
	in.search = NewDebouncer(cfg.SearchDelay, in.applySearch)
	metrics.LiveTables.Inc()
	return in
}

func (in *Instance[T]) ID() string { return in.id }

func (in *Instance[T]) Events() <-chan Event { return in.events }

// State returns a copy of the current view state.
func (in *Instance[T]) State() State {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state.Clone()
}

// Handle applies one message. Search input is debounced; everything else
// applies immediately and re-renders.
func (in *Instance[T]) Handle(msg Message) error {
	if msg.Type == "search" {
		in.search.Trigger(msg.Value)
		return nil
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil
	}

	server := in.table.Options.Server()
	reload := false
	switch msg.Type {
	case "refresh":
		reload = true
	case "sort":
		in.state.ToggleSort(msg.Value, msg.Multi)
		reload = server
	case "page":
		n, err := strconv.Atoi(msg.Value)
		if err != nil {
			return fmt.Errorf("table: page %q: %w", msg.Value, err)
		}
		in.state.GoTo(n)
		reload = server
	case "page_size":
		n, err := strconv.Atoi(msg.Value)
		if err != nil || !in.table.Options.AllowsPageSize(n) {
			return fmt.Errorf("table: page size %q: invalid", msg.Value)
		}
		in.state.SetPageSize(n)
		reload = server
	case "toggle_row":
		in.state.ToggleRow(msg.Value)
	case "toggle_page":
		in.state.TogglePage(in.table.PageIDs(in.data, in.state))
	case "toggle_column":
		in.state.ToggleColumn(msg.Value)
	case "delete_selected":
		in.deleteSelected()
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}

	if (reload || !in.loaded) && !in.load() {
		return nil
	}
	in.render(false)
	return nil
}

func (in *Instance[T]) applySearch(term string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return
	}
	in.state.SetSearch(term)
	if (in.table.Options.Server() || !in.loaded) && !in.load() {
		return
	}
	in.render(false)
}

func (in *Instance[T]) deleteSelected() {
	rows := in.table.Selected(in.data, in.state)
	if len(rows) == 0 || in.cfg.Remove == nil {
		return
	}
	notice, err := in.cfg.Remove(in.ctx, rows)
	if err != nil {
		in.fail(err)
		return
	}
	in.state.ClearSelection()
	in.emit(Event{Type: "notice", Level: notice.Level, Message: notice.Message})
	if in.load() {
		in.render(false)
	}
}

// load fetches rows for the current state; mu must be held.
func (in *Instance[T]) load() bool {
	in.render(true)
	data, total, err := in.cfg.Load(in.ctx, in.state.Clone())
	if err != nil {
		if in.ctx.Err() == nil {
			in.fail(err)
		}
		return false
	}
	in.data, in.total, in.loaded = data, total, true
	return true
}

func (in *Instance[T]) fail(err error) {
	if in.cfg.Unauthorized != nil && in.cfg.Unauthorized(err) {
		in.emit(Event{Type: "redirect", Location: in.cfg.SignOut})
		return
	}
	in.emit(Event{Type: "notice", Level: "error", Message: err.Error()})
}

func (in *Instance[T]) render(loading bool) {
	if in.cfg.Render == nil {
		return
	}
	view := in.table.Build(in.data, in.total, in.state, loading)
	html, err := in.cfg.Render(view)
	if err != nil {
		in.cfg.Log.Error("table render failed", zap.String("table", in.table.Options.Name), zap.Error(err))
		return
	}
	in.emit(Event{Type: "render", HTML: string(html), Query: view.Query})
}

func (in *Instance[T]) emit(ev Event) {
	if in.closed {
		return
	}
	select {
	case in.events <- ev:
	default:
		in.cfg.Log.Warn("table event dropped", zap.String("table", in.table.Options.Name), zap.String("event", ev.Type))
	}
}

// Close stops pending work and closes the event stream. It is safe to call twice.
func (in *Instance[T]) Close() {
	in.search.Stop()
	in.cancel()
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return
	}
	in.closed = true
	close(in.events)
	metrics.LiveTables.Dec()
}
