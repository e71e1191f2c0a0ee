// Package attr implements a typed, default-backed attribute store.
//
// An attribute store maps a fixed, closed set of field names to values.
// Every field carries a kind and a default; reading an unset field returns
// the default, never an error. Writing a name outside the schema is a
// programming error and fails with UnknownAttributeError.
//
// The store tracks a dirty flag so callers can skip persistence when
// nothing changed. Fields marked as side-channel are saved through
// dedicated calls and do not dirty the store.
//
// The store has no concurrency control of its own; the component that
// embeds it decides how access is serialized.
package attr
