// Package popup renders feature detail panels and routes inline attribute
// edits to an external record update sink.
//
// Every opened Panel owns its own edit handlers. The Bridge only tracks which
// panel holds the single active edit, so starting an edit on one panel cancels
// the edit in progress on any other.
package popup

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb/planar"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-recmap/internal/feature"
	"github.com/joeblew999/plat-recmap/internal/record"
	"github.com/joeblew999/plat-recmap/internal/templates"
)

//go:embed templates/*.html
var templateFS embed.FS

// DefaultLimit is the number of fields shown when no limit is configured.
const DefaultLimit = 8

var (
	// ErrNotEditable is returned when starting an edit on a field without
	// edit permission.
	ErrNotEditable = errors.New("field is not editable")
	// ErrNoActiveEdit is returned when committing or cancelling a panel that
	// is not editing.
	ErrNoActiveEdit = errors.New("no active edit")
	// ErrPanelClosed is returned for panels discarded by a rebuild.
	ErrPanelClosed = errors.New("popup closed")
)

// UpdateFunc persists updates to the record identified by recordID.
type UpdateFunc func(ctx context.Context, recordID string, updates map[string]any) error

// Field is one attribute row of a panel.
type Field struct {
	Key      string `json:"key" doc:"Field name"`
	Label    string `json:"label" doc:"Display label"`
	Value    string `json:"value" doc:"Display value"`
	Editable bool   `json:"editable" doc:"Whether the field accepts inline edits"`
}

// View is a point-in-time copy of a panel's state.
type View struct {
	ID       string         `json:"id" doc:"Popup ID"`
	Handle   feature.Handle `json:"handle" doc:"Feature handle"`
	RecordID string         `json:"recordId" doc:"Record identifier"`
	Column   string         `json:"column" doc:"Geometry column of the feature"`
	Title    string         `json:"title" doc:"Panel title"`
	Anchor   []float64      `json:"anchor" doc:"Popup anchor as [lat, lng]"`
	Fields   []Field        `json:"fields" doc:"Displayed fields"`
	More     int            `json:"more,omitempty" doc:"Visible fields beyond the display cap"`
	Editing  string         `json:"editing,omitempty" doc:"Field being edited"`
	Pending  bool           `json:"pending,omitempty" doc:"Whether a commit is in flight"`
	Error    string         `json:"error,omitempty" doc:"Last commit error"`
}

// Options configures a Bridge.
type Options struct {
	// Limit caps the number of displayed fields. Zero means DefaultLimit.
	Limit   int
	Columns []record.Column
	Logger  *zap.Logger
}

// Bridge opens panels for features and coordinates their edit state.
type Bridge struct {
	mu       sync.Mutex
	update   UpdateFunc
	limit    int
	columns  []record.Column
	renderer *templates.Renderer
	panels   map[string]*Panel
	active   *Panel
	log      *zap.Logger
}

// NewBridge creates a bridge that sends committed edits to update.
func NewBridge(update UpdateFunc, opts Options) (*Bridge, error) {
	r, err := templates.New(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse popup templates: %w", err)
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Bridge{
		update:   update,
		limit:    opts.Limit,
		columns:  opts.Columns,
		renderer: r,
		panels:   make(map[string]*Panel),
		log:      opts.Logger.Named("popup"),
	}, nil
}

// SetColumns replaces the column descriptors used for new panels.
func (b *Bridge) SetColumns(cols []record.Column) {
	b.mu.Lock()
	b.columns = cols
	b.mu.Unlock()
}

// Open builds a panel for f.
func (b *Bridge) Open(f *feature.Feature) *Panel {
	b.mu.Lock()
	defer b.mu.Unlock()

	fields, more := b.fieldsFor(f)
	p := &Panel{
		bridge:   b,
		id:       uuid.NewString(),
		handle:   f.Handle(),
		recordID: f.RecordID(),
		column:   f.Column(),
		title:    Title(f.Record()),
		anchor:   anchorOf(f),
		fields:   fields,
		more:     more,
	}
	b.panels[p.id] = p
	return p
}

// Panel returns an open panel by ID.
func (b *Bridge) Panel(id string) (*Panel, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.panels[id]
	return p, ok
}

// Close discards a panel, cancelling its edit.
func (b *Bridge) Close(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.panels[id]; ok {
		b.closeLocked(p)
	}
}

// Reset discards every panel. Called when the feature set is rebuilt.
func (b *Bridge) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.panels {
		b.closeLocked(p)
	}
}

// Active returns the ID of the panel holding the active edit, if any.
func (b *Bridge) Active() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == nil {
		return "", false
	}
	return b.active.id, true
}

func (b *Bridge) closeLocked(p *Panel) {
	if b.active == p {
		b.active = nil
	}
	p.editing = ""
	p.closed = true
	delete(b.panels, p.id)
}

func (b *Bridge) fieldsFor(f *feature.Feature) ([]Field, int) {
	cols := b.columns
	if len(cols) == 0 {
		cols = columnsFromRecord(f.Record())
	}

	var fields []Field
	more := 0
	for _, c := range cols {
		if !c.Visible() || c.IsGeometry || c.Key == f.Column() || isIDField(c.Key) {
			continue
		}
		if len(fields) == b.limit {
			more++
			continue
		}
		fields = append(fields, Field{
			Key:      c.Key,
			Label:    c.DisplayLabel(),
			Value:    record.Stringify(f.Record()[c.Key]),
			Editable: c.Editable(),
		})
	}
	return fields, more
}

// columnsFromRecord derives read-only columns from a record with no schema.
func columnsFromRecord(r record.Record) []record.Column {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	cols := make([]record.Column, len(keys))
	for i, k := range keys {
		cols[i] = record.Column{Key: k, Permission: record.PermissionView}
	}
	return cols
}

func isIDField(key string) bool { return key == "id" || key == "Id" }

// Title returns the first of name, Name or title, else "Record <id>".
func Title(r record.Record) string {
	for _, k := range []string{"name", "Name", "title"} {
		if v := record.Stringify(r[k]); v != "" {
			return v
		}
	}
	return "Record " + r.ID()
}

func anchorOf(f *feature.Feature) []float64 {
	c, _ := planar.CentroidArea(f.Geometry().Orb())
	return []float64{c.Lat(), c.Lon()}
}
