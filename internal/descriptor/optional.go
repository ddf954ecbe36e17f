package descriptor

import (
	"bytes"
	"encoding/json"
)

// Optional holds a value that may be unknown. The zero value is unknown.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some wraps a known value.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// None returns an unknown value.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is known.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

// Present reports whether the value is known.
func (o Optional[T]) Present() bool { return o.ok }

// IsZero lets encoding/json drop unknown fields tagged omitzero.
func (o Optional[T]) IsZero() bool { return !o.ok }

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Optional[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}
