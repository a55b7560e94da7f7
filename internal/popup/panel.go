package popup

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/joeblew999/plat-recmap/internal/feature"
)

// Panel is the detail panel of one feature.
type Panel struct {
	bridge   *Bridge
	id       string
	handle   feature.Handle
	recordID string
	column   string
	title    string
	anchor   []float64
	fields   []Field
	more     int

	editing string
	pending bool
	err     string
	closed  bool
}

func (p *Panel) ID() string       { return p.id }
func (p *Panel) RecordID() string { return p.recordID }
func (p *Panel) Column() string   { return p.column }

// View returns a copy of the panel state.
func (p *Panel) View() View {
	p.bridge.mu.Lock()
	defer p.bridge.mu.Unlock()
	return p.viewLocked()
}

func (p *Panel) viewLocked() View {
	return View{
		ID:       p.id,
		Handle:   p.handle,
		RecordID: p.recordID,
		Column:   p.column,
		Title:    p.title,
		Anchor:   p.anchor,
		Fields:   append([]Field(nil), p.fields...),
		More:     p.more,
		Editing:  p.editing,
		Pending:  p.pending,
		Error:    p.err,
	}
}

// HTML renders the panel.
func (p *Panel) HTML() (string, error) {
	return p.bridge.renderer.Render("popup", p.View())
}

// StartEdit opens the editor for key, cancelling any edit in progress on
// this or another panel.
func (p *Panel) StartEdit(key string) error {
	b := p.bridge
	b.mu.Lock()
	defer b.mu.Unlock()

	if p.closed {
		return ErrPanelClosed
	}
	if p.pending {
		return fmt.Errorf("commit in progress on %q", p.editing)
	}
	if !p.editableLocked(key) {
		return fmt.Errorf("%w: %s", ErrNotEditable, key)
	}
	if b.active != nil && b.active != p {
		b.active.editing = ""
		b.active.err = ""
	}
	b.active = p
	p.editing = key
	p.err = ""
	return nil
}

// Cancel closes the editor without writing anything.
func (p *Panel) Cancel() error {
	b := p.bridge
	b.mu.Lock()
	defer b.mu.Unlock()

	if p.closed {
		return ErrPanelClosed
	}
	if p.editing == "" {
		return ErrNoActiveEdit
	}
	p.editing = ""
	p.err = ""
	if b.active == p {
		b.active = nil
	}
	return nil
}

// Commit sends value for the field being edited to the update sink. On
// success the displayed value changes in place and the editor closes. On
// failure the editor stays open and the error is kept on the panel.
func (p *Panel) Commit(ctx context.Context, value string) error {
	b := p.bridge
	b.mu.Lock()
	if p.closed {
		b.mu.Unlock()
		return ErrPanelClosed
	}
	if p.editing == "" || b.active != p {
		b.mu.Unlock()
		return ErrNoActiveEdit
	}
	if p.pending {
		b.mu.Unlock()
		return fmt.Errorf("commit already in progress on %q", p.editing)
	}
	key, recordID := p.editing, p.recordID
	p.pending = true
	p.err = ""
	b.mu.Unlock()

	err := b.update(ctx, recordID, map[string]any{key: value})

	b.mu.Lock()
	defer b.mu.Unlock()
	p.pending = false
	if err != nil {
		p.err = err.Error()
		b.log.Warn("record update failed",
			zap.String("record", recordID), zap.String("field", key), zap.Error(err))
		return fmt.Errorf("update record %s: %w", recordID, err)
	}

	for i := range p.fields {
		if p.fields[i].Key == key {
			p.fields[i].Value = value
		}
	}
	if p.editing == key {
		p.editing = ""
	}
	if b.active == p && p.editing == "" {
		b.active = nil
	}
	b.log.Debug("record updated", zap.String("record", recordID), zap.String("field", key))
	return nil
}

func (p *Panel) editableLocked(key string) bool {
	for _, f := range p.fields {
		if f.Key == key {
			return f.Editable
		}
	}
	return false
}
