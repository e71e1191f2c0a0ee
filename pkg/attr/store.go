package attr

import (
	"fmt"
	"time"
)

// Kind identifies the value type of a field.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindString
	KindTime
	KindAny
)

// Field describes one entry of a store's closed schema.
type Field struct {
	Name    string
	Kind    Kind
	Default interface{}
	// New builds the default for reference kinds (maps, slices, structs) so
	// callers never share a mutable default value. Takes precedence over
	// Default when set.
	New func() interface{}
	// Persisted marks fields written by the main commit. Derived caches and
	// session-only fields are not persisted.
	Persisted bool
	// SideChannel fields are saved through dedicated calls; Set does not
	// dirty the store for them.
	SideChannel bool
}

// UnknownAttributeError reports a field name outside the schema. It is a
// programming error and should be treated as a defect, not recovered from.
type UnknownAttributeError struct {
	Name string
}

func (e *UnknownAttributeError) Error() string {
	return fmt.Sprintf("unknown attribute %q", e.Name)
}

// IsUnknownAttribute checks if an error is an unknown attribute error.
func IsUnknownAttribute(err error) bool {
	_, ok := err.(*UnknownAttributeError)
	return ok
}

// Store holds the values for one record. The zero value is not usable;
// construct with NewStore.
type Store struct {
	fields map[string]Field
	values map[string]interface{}
	dirty  bool
}

// NewStore creates an empty store over the given schema. All fields read as
// their defaults until set.
func NewStore(schema []Field) *Store {
	fields := make(map[string]Field, len(schema))
	for _, f := range schema {
		fields[f.Name] = f
	}
	return &Store{
		fields: fields,
		values: make(map[string]interface{}),
	}
}

// Known reports whether name is part of the schema.
func (s *Store) Known(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// Get returns the stored value for name, or the field default if the value
// is unset or nil. Fails only for names outside the schema.
func (s *Store) Get(name string) (interface{}, error) {
	f, ok := s.fields[name]
	if !ok {
		return nil, &UnknownAttributeError{Name: name}
	}
	if v, ok := s.values[name]; ok && v != nil {
		return v, nil
	}
	return fieldDefault(f), nil
}

// Set stores a value for name and marks the store dirty unless the field is
// a side-channel field. Fails with UnknownAttributeError for names outside
// the schema.
func (s *Store) Set(name string, value interface{}) error {
	f, ok := s.fields[name]
	if !ok {
		return &UnknownAttributeError{Name: name}
	}
	s.values[name] = value
	if !f.SideChannel {
		s.dirty = true
	}
	return nil
}

// Dirty reports whether unsaved changes exist.
func (s *Store) Dirty() bool {
	return s.dirty
}

// MarkClean clears the dirty flag without touching any values.
func (s *Store) MarkClean() {
	s.dirty = false
}

// Reset drops every stored value so each field reads as its default again,
// and clears the dirty flag. Reset never triggers a write of defaults back
// over a persisted row; it is a purely in-memory operation.
func (s *Store) Reset() {
	s.values = make(map[string]interface{})
	s.dirty = false
}

// Fields returns the schema entries in no particular order.
func (s *Store) Fields() []Field {
	out := make([]Field, 0, len(s.fields))
	for _, f := range s.fields {
		out = append(out, f)
	}
	return out
}

// Snapshot returns a shallow copy of the explicitly set values. Unset fields
// are absent so a restored store still falls back to defaults for them.
func (s *Store) Snapshot() map[string]interface{} {
	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Restore replaces the stored values with a snapshot previously taken with
// Snapshot. Values for names outside the schema are dropped. Restore does
// not dirty the store.
func (s *Store) Restore(values map[string]interface{}) {
	s.values = make(map[string]interface{}, len(values))
	for k, v := range values {
		if _, ok := s.fields[k]; ok {
			s.values[k] = v
		}
	}
}

// Bool returns a bool field, or false if the stored value has another type.
func (s *Store) Bool(name string) (bool, error) {
	v, err := s.Get(name)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

// Int64 returns an integer field. Stored int values are widened.
func (s *Store) Int64(name string) (int64, error) {
	v, err := s.Get(name)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		// JSON round-trips land here.
		return int64(n), nil
	}
	return 0, nil
}

// String returns a string field, or "" if the stored value has another type.
func (s *Store) String(name string) (string, error) {
	v, err := s.Get(name)
	if err != nil {
		return "", err
	}
	str, _ := v.(string)
	return str, nil
}

// Time returns a time field, or the zero time if the stored value has
// another type.
func (s *Store) Time(name string) (time.Time, error) {
	v, err := s.Get(name)
	if err != nil {
		return time.Time{}, err
	}
	t, _ := v.(time.Time)
	return t, nil
}

func fieldDefault(f Field) interface{} {
	if f.New != nil {
		return f.New()
	}
	if f.Default != nil {
		return f.Default
	}
	switch f.Kind {
	case KindBool:
		return false
	case KindInt:
		return int64(0)
	case KindString:
		return ""
	case KindTime:
		return time.Time{}
	}
	return nil
}
