// Package topic holds the fixed mapping between classifier output indices
// and human-readable topic names.
package topic

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTopic is returned by Index when a name is not registered.
var ErrUnknownTopic = errors.New("unknown topic")

// Registry is an immutable bidirectional index <-> name table. Indices are
// the contiguous range [0, Len()).
type Registry struct {
	names   []string
	indices map[string]int
}

// Default returns the three-topic registry the bundled corpus is labelled
// with.
func Default() *Registry {
	r, _ := NewRegistry([]string{"Sports", "Finance", "Tech/Science"})
	return r
}

// NewRegistry builds a registry where each name's index is its position.
func NewRegistry(names []string) (*Registry, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("topic registry must not be empty")
	}
	r := &Registry{
		names:   make([]string, len(names)),
		indices: make(map[string]int, len(names)),
	}
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("topic %d has a blank name", i)
		}
		if prev, dup := r.indices[name]; dup {
			return nil, fmt.Errorf("topic %q registered at both %d and %d", name, prev, i)
		}
		r.names[i] = name
		r.indices[name] = i
	}
	return r, nil
}

// Name returns the topic name for a classifier index.
func (r *Registry) Name(index int) (string, error) {
	if index < 0 || index >= len(r.names) {
		return "", fmt.Errorf("topic index %d out of range [0, %d)", index, len(r.names))
	}
	return r.names[index], nil
}

// Index resolves a name back to its index.
func (r *Registry) Index(name string) (int, error) {
	i, ok := r.indices[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTopic, name)
	}
	return i, nil
}

// Names returns a copy of the names in index order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Len is the number of topics, K.
func (r *Registry) Len() int {
	return len(r.names)
}
