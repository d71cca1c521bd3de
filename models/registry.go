// Package models - registry for models.
package models

import (
	"github.com/pkg/errors"
)

// Error definitions for the models package.
var (
	ErrNotFound       = errors.New("model not found in registry")
	ErrEmptyRegistry  = errors.New("registry has no models")
	ErrDuplicateModel = errors.New("duplicate model name")
)

// Registry is the fixed, ordered set of classification models.
//
// A Registry is immutable after NewRegistry returns and is safe for
// concurrent readers.
type Registry struct {
	descriptors []Descriptor
	index       map[Name]int
	classes     *OutputClassSet
}

// NewRegistry creates a registry from descriptors in display order.
//
// This factory validates that every model has a unique name, an artifact
// filename and a demo fixture whose label belongs to the class set.
//
// Arguments:
//   - descriptors: The model descriptors, order is preserved.
//   - classes: The label set shared by the models.
//
// Returns:
//   - *Registry: The registry.
//   - error: An error if validation fails.
func NewRegistry(descriptors []Descriptor, classes *OutputClassSet) (*Registry, error) {
	if len(descriptors) == 0 {
		return nil, ErrEmptyRegistry
	}
	if classes == nil {
		classes = TumorClasses
	}

	r := &Registry{
		descriptors: make([]Descriptor, len(descriptors)),
		index:       make(map[Name]int, len(descriptors)),
		classes:     classes,
	}
	copy(r.descriptors, descriptors)

	for i, d := range r.descriptors {
		if d.Name == "" {
			return nil, errors.Errorf("model at position %d has no name", i)
		}
		if d.Filename == "" {
			return nil, errors.Errorf("model %s has no filename", d.Name)
		}
		if _, ok := r.index[d.Name]; ok {
			return nil, errors.Wrapf(ErrDuplicateModel, "%s", d.Name)
		}
		if !classes.Contains(d.Demo.Class) {
			return nil, errors.Errorf("model %s: demo class %q is not a known label", d.Name, d.Demo.Class)
		}
		if d.Demo.Confidence < 0 || d.Demo.Confidence > 100 {
			return nil, errors.Errorf("model %s: demo confidence %.2f out of range", d.Name, d.Demo.Confidence)
		}
		r.index[d.Name] = i
	}

	return r, nil
}

// MustNewRegistry is NewRegistry that panics on error.
func MustNewRegistry(descriptors []Descriptor, classes *OutputClassSet) *Registry {
	r, err := NewRegistry(descriptors, classes)
	if err != nil {
		panic(err)
	}
	return r
}

// Default returns the registry of the four shipped models.
func Default() *Registry {
	return MustNewRegistry(DefaultDescriptors(), TumorClasses)
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	return len(r.descriptors)
}

// Get returns the descriptor with the given name.
func (r *Registry) Get(name Name) (Descriptor, error) {
	i, ok := r.index[name]
	if !ok {
		return Descriptor{}, errors.Wrapf(ErrNotFound, "%s", name)
	}
	return r.descriptors[i], nil
}

// Descriptors returns a copy of the descriptors in registry order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Names returns the model names in registry order.
func (r *Registry) Names() []Name {
	names := make([]Name, len(r.descriptors))
	for i, d := range r.descriptors {
		names[i] = d.Name
	}
	return names
}

// Classes returns the label set shared by the models.
func (r *Registry) Classes() *OutputClassSet {
	return r.classes
}
