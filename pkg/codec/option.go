package codec

// Option mirrors Rust's Option<V>: Valid == false is the "None"
// tombstone state, Valid == true carries Value. The engine uses this
// everywhere a write can either set or delete a key.
type Option[V any] struct {
	Valid bool
	Value V
}

// Some wraps a present value.
func Some[V any](v V) Option[V] { return Option[V]{Valid: true, Value: v} }

// None is the absent/tombstone value.
func None[V any]() Option[V] { return Option[V]{} }
