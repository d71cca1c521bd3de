package models

import "fmt"

// ClassLabel is one tumor class predicted by the classifiers.
type ClassLabel string

const (
	// ClassGlioma is output index 0.
	ClassGlioma ClassLabel = "Glioma"
	// ClassMeningioma is output index 1.
	ClassMeningioma ClassLabel = "Meningioma"
	// ClassNoTumor is output index 2.
	ClassNoTumor ClassLabel = "No Tumor"
	// ClassPituitary is output index 3.
	ClassPituitary ClassLabel = "Pituitary"
)

// String returns the human-readable label.
func (c ClassLabel) String() string {
	return string(c)
}

// OutputClass represents one classification label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name ClassLabel
}

// OutputClassSet ties an ordered list of labels to the model output layout.
type OutputClassSet struct {
	// Classes in positional order of the model output vector.
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[ClassLabel]int
}

// NewOutputClassSet builds a class set from labels in output order.
//
// Arguments:
//   - labels: The labels, index i of the slice is output index i.
//
// Returns:
//   - *OutputClassSet: The class set with its name index built.
func NewOutputClassSet(labels ...ClassLabel) *OutputClassSet {
	set := &OutputClassSet{Classes: make([]OutputClass, len(labels))}
	for i, l := range labels {
		set.Classes[i] = OutputClass{Index: i, Name: l}
	}
	set.BuildNameIndexMap()
	return set
}

// BuildNameIndexMap builds or rebuilds the name->index map.
func (s *OutputClassSet) BuildNameIndexMap() {
	s.nameToIdx = make(map[ClassLabel]int, len(s.Classes))
	for _, c := range s.Classes {
		s.nameToIdx[c.Name] = c.Index
	}
}

// Len returns the number of classes.
func (s *OutputClassSet) Len() int {
	return len(s.Classes)
}

// GetName returns the class label for a given output index.
func (s *OutputClassSet) GetName(idx int) (ClassLabel, error) {
	if idx < 0 || idx >= len(s.Classes) {
		return "", fmt.Errorf("index %d out of range for %d classes", idx, len(s.Classes))
	}
	return s.Classes[idx].Name, nil
}

// GetIndex returns the output index for a given class label.
func (s *OutputClassSet) GetIndex(name ClassLabel) (int, error) {
	idx, ok := s.nameToIdx[name]
	if !ok {
		return -1, fmt.Errorf("class %q not found", name)
	}
	return idx, nil
}

// Contains reports whether the label belongs to the set.
func (s *OutputClassSet) Contains(name ClassLabel) bool {
	_, ok := s.nameToIdx[name]
	return ok
}

// TumorClasses is the label set shared by all four classifiers.
var TumorClasses = NewOutputClassSet(
	ClassGlioma,
	ClassMeningioma,
	ClassNoTumor,
	ClassPituitary,
)
