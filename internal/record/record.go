// Package record describes the tabular records rendered on the map and the
// column descriptors supplied by the schema/permission subsystem.
package record

import (
	"fmt"
	"strconv"
	"time"
)

// Record maps field names to values (string, number, or nil).
type Record map[string]any

// ID returns the record identifier from the "id" or "Id" field, stringified.
// An empty string means the record has no identifier.
func (r Record) ID() string {
	if v, ok := r["id"]; ok && v != nil {
		return Stringify(v)
	}
	if v, ok := r["Id"]; ok && v != nil {
		return Stringify(v)
	}
	return ""
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Permission controls whether a column is shown and whether it accepts edits.
type Permission string

const (
	PermissionView   Permission = "view"
	PermissionEdit   Permission = "edit"
	PermissionHidden Permission = "hidden"
)

// Column describes one field of the record set.
type Column struct {
	Key        string     `json:"key" yaml:"key" doc:"Field name"`
	Label      string     `json:"label" yaml:"label" doc:"Display label"`
	IsGeometry bool       `json:"isGeometry" yaml:"is_geometry" doc:"Whether the field holds geometry"`
	Permission Permission `json:"permission" yaml:"permission" enum:"view,edit,hidden" doc:"Column permission"`
}

// Visible reports whether the column may appear in tables and popups.
func (c Column) Visible() bool { return c.Permission != PermissionHidden }

// Editable reports whether the column accepts inline edits.
func (c Column) Editable() bool { return c.Permission == PermissionEdit && !c.IsGeometry }

// DisplayLabel returns the label, falling back to the key.
func (c Column) DisplayLabel() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Key
}

// GeometryColumns returns the keys of all columns flagged as geometry, in order.
func GeometryColumns(cols []Column) []string {
	var keys []string
	for _, c := range cols {
		if c.IsGeometry {
			keys = append(keys, c.Key)
		}
	}
	return keys
}

// Stringify renders a field value the way it is shown to users and grouped
// in the legend. nil becomes the empty string.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
