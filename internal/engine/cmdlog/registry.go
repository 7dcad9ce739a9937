package cmdlog

import (
	"fmt"
	"sort"
)

// Applier applies a decoded record forward to a target.
type Applier[T any] interface {
	Apply(target T) error
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc[T any] func(target T) error

// Apply calls f(target).
func (f ApplierFunc[T]) Apply(target T) error {
	return f(target)
}

// Decoder reconstructs a command from its record.
type Decoder[T any] func(rec Record) (Applier[T], error)

// Registry maps record types to decoders.
type Registry[T any] struct {
	decoders map[string]Decoder[T]
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{decoders: make(map[string]Decoder[T])}
}

// Register adds a decoder. Registering a type twice panics.
func (r *Registry[T]) Register(typ string, d Decoder[T]) {
	if typ == "" || d == nil {
		panic("cmdlog: Register with empty type or nil decoder")
	}
	if _, dup := r.decoders[typ]; dup {
		panic(fmt.Sprintf("cmdlog: decoder for %q registered twice", typ))
	}
	r.decoders[typ] = d
}

// Decode reconstructs the command stored in rec.
func (r *Registry[T]) Decode(rec Record) (Applier[T], error) {
	d, ok := r.decoders[rec.Type]
	if !ok {
		return nil, &RecordError{Seq: rec.Seq, Type: rec.Type, Err: ErrUnknownType}
	}
	a, err := d(rec)
	if err != nil {
		return nil, &RecordError{Seq: rec.Seq, Type: rec.Type, Err: err}
	}
	return a, nil
}

// Types returns the registered types, sorted.
func (r *Registry[T]) Types() []string {
	types := make([]string, 0, len(r.decoders))
	for t := range r.decoders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
