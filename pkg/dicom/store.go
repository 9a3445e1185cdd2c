// Package dicom exposes DICOM attributes to the synchronizer. The Store
// interface is what image series consume; DatasetStore implements it over
// github.com/suyashkumar/dicom datasets.
package dicom

import (
	"errors"
	"fmt"
	"sort"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Tags written by image series
var (
	PerFrameFunctionalGroupsSequence = tag.Tag{Group: 0x5200, Element: 0x9230}
	FrameContentSequence             = tag.Tag{Group: 0x0020, Element: 0x9111}
	FrameAcquisitionDateTime         = tag.Tag{Group: 0x0018, Element: 0x9074}
)

var (
	// ErrNotSequence is returned when a sequence operation targets a non SQ element
	ErrNotSequence = errors.New("element is not a sequence")

	// ErrNegativeItem is returned for a negative sequence item index
	ErrNegativeItem = errors.New("negative sequence item index")
)

// Store is a mutable view over a DICOM attribute set
type Store interface {
	// Get returns the first string value of an attribute
	Get(t tag.Tag) (string, bool)

	// Set replaces an attribute value; nil removes the attribute
	Set(t tag.Tag, value *string) error

	// Items returns the items of a sequence attribute, nil when absent
	Items(seq tag.Tag) ([]Store, error)

	// Item returns item index of a sequence, creating the sequence and any
	// missing items up to index
	Item(seq tag.Tag, index int) (Store, error)
}

// DatasetStore is a Store over a list of DICOM elements. Nested items write
// back to their parent through the library constructors whenever they change.
type DatasetStore struct {
	elements []*dicom.Element
	commit   func([]*dicom.Element) error
}

// NewDatasetStore creates a store writing through to ds
func NewDatasetStore(ds *dicom.Dataset) *DatasetStore {
	return &DatasetStore{
		elements: ds.Elements,
		commit: func(elements []*dicom.Element) error {
			ds.Elements = elements
			return nil
		},
	}
}

// Get returns the first string value of an attribute
func (s *DatasetStore) Get(t tag.Tag) (string, bool) {
	el := s.find(t)
	if el == nil || el.Value == nil || el.Value.ValueType() != dicom.Strings {
		return "", false
	}
	values, ok := el.Value.GetValue().([]string)
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Set replaces an attribute value; nil removes the attribute
func (s *DatasetStore) Set(t tag.Tag, value *string) error {
	if value == nil {
		return s.remove(t)
	}
	el, err := dicom.NewElement(t, []string{*value})
	if err != nil {
		return fmt.Errorf("create element %s: %w", t, err)
	}
	return s.put(el)
}

// Items returns the items of a sequence attribute
func (s *DatasetStore) Items(seq tag.Tag) ([]Store, error) {
	items, err := s.sequence(seq)
	if err != nil {
		return nil, err
	}
	out := make([]Store, len(items))
	for i := range items {
		out[i] = s.child(seq, items, i)
	}
	return out, nil
}

// Item returns item index of a sequence, growing the sequence as needed
func (s *DatasetStore) Item(seq tag.Tag, index int) (Store, error) {
	if index < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeItem, index)
	}
	items, err := s.sequence(seq)
	if err != nil {
		return nil, err
	}
	if len(items) > index {
		return s.child(seq, items, index), nil
	}

	for len(items) <= index {
		items = append(items, []*dicom.Element{})
	}
	if err := s.writeSequence(seq, items); err != nil {
		return nil, err
	}
	return s.child(seq, items, index), nil
}

func (s *DatasetStore) child(seq tag.Tag, items [][]*dicom.Element, index int) *DatasetStore {
	return &DatasetStore{
		elements: items[index],
		commit: func(elements []*dicom.Element) error {
			items[index] = elements
			return s.writeSequence(seq, items)
		},
	}
}

// sequence returns a copy of the element lists of every item of seq
func (s *DatasetStore) sequence(seq tag.Tag) ([][]*dicom.Element, error) {
	el := s.find(seq)
	if el == nil {
		return nil, nil
	}
	if el.Value == nil || el.Value.ValueType() != dicom.Sequences {
		return nil, fmt.Errorf("%w: %s", ErrNotSequence, seq)
	}
	values, ok := el.Value.GetValue().([]*dicom.SequenceItemValue)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotSequence, seq)
	}

	items := make([][]*dicom.Element, len(values))
	for i, item := range values {
		elements, _ := item.GetValue().([]*dicom.Element)
		items[i] = append([]*dicom.Element(nil), elements...)
	}
	return items, nil
}

func (s *DatasetStore) writeSequence(seq tag.Tag, items [][]*dicom.Element) error {
	el, err := dicom.NewElement(seq, items)
	if err != nil {
		return fmt.Errorf("create sequence %s: %w", seq, err)
	}
	return s.put(el)
}

func (s *DatasetStore) find(t tag.Tag) *dicom.Element {
	for _, el := range s.elements {
		if el.Tag == t {
			return el
		}
	}
	return nil
}

// put inserts or replaces an element, keeping elements sorted by tag
func (s *DatasetStore) put(el *dicom.Element) error {
	elements := append([]*dicom.Element(nil), s.elements...)
	replaced := false
	for i, existing := range elements {
		if existing.Tag == el.Tag {
			elements[i] = el
			replaced = true
			break
		}
	}
	if !replaced {
		elements = append(elements, el)
		sort.SliceStable(elements, func(i, j int) bool {
			return tagLess(elements[i].Tag, elements[j].Tag)
		})
	}
	return s.update(elements)
}

func (s *DatasetStore) remove(t tag.Tag) error {
	elements := make([]*dicom.Element, 0, len(s.elements))
	for _, el := range s.elements {
		if el.Tag != t {
			elements = append(elements, el)
		}
	}
	if len(elements) == len(s.elements) {
		return nil
	}
	return s.update(elements)
}

func (s *DatasetStore) update(elements []*dicom.Element) error {
	if err := s.commit(elements); err != nil {
		return err
	}
	s.elements = elements
	return nil
}

func tagLess(a, b tag.Tag) bool {
	if a.Group != b.Group {
		return a.Group < b.Group
	}
	return a.Element < b.Element
}
