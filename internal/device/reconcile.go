package device

import (
	"fmt"
	"strings"
)

// Candidate is a tag that is ready to be merged into a device. Its ID and
// name are guaranteed non-empty; the only way to obtain one is NewCandidate.
type Candidate struct {
	tag *Tag
}

// NewCandidate validates the identity of t and wraps a copy of it.
// A missing ID is taken from the name.
func NewCandidate(t Tag) (Candidate, error) {
	if t.ID == "" {
		t.ID = t.Name
	}
	if err := validateIdentity(t.ID, t.Name); err != nil {
		return Candidate{}, err
	}
	return Candidate{tag: t.Clone()}, nil
}

// ID returns the identity the candidate will be stored under.
func (c Candidate) ID() string {
	if c.tag == nil {
		return ""
	}
	return c.tag.ID
}

// Tag returns a copy of the wrapped tag.
func (c Candidate) Tag() *Tag {
	return c.tag.Clone()
}

func validateIdentity(id, name string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidTag)
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTag)
	}
	if strings.Contains(id, SignalKeySeparator) {
		return fmt.Errorf("%w: id must not contain %q", ErrInvalidTag, SignalKeySeparator)
	}
	if len(id) > maxTagIDLength {
		return fmt.Errorf("%w: id exceeds %d characters", ErrInvalidTag, maxTagIDLength)
	}
	return nil
}

// Reconcile inserts the candidate into d unless a tag with the same identity
// is already present. Duplicates are dropped without error. It reports
// whether the tag was inserted. A device holding tags that are not keyed by
// their ID is normalised first.
func Reconcile(c Candidate, d *Device) bool {
	if c.tag == nil || d == nil {
		return false
	}
	if !d.isNormalised() {
		d.Normalise()
	}
	if _, exists := d.Tags[c.tag.ID]; exists {
		return false
	}
	d.Tags[c.tag.ID] = c.tag.Clone()
	return true
}

// EditOutcome describes what ApplyEdit did to the tag collection.
type EditOutcome int

// Edit outcomes.
const (
	// EditRejected means the device was left unchanged because the edited
	// identity belongs to another tag.
	EditRejected EditOutcome = iota
	// EditAdded means a new tag was inserted.
	EditAdded
	// EditUpdated means the tag kept its identity and was replaced in place.
	EditUpdated
	// EditRenamed means the tag moved to a new identity.
	EditRenamed
)

// String returns the outcome name used in logs and API responses.
func (o EditOutcome) String() string {
	switch o {
	case EditAdded:
		return "added"
	case EditUpdated:
		return "updated"
	case EditRenamed:
		return "renamed"
	case EditRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ApplyEdit applies the fields of draft to the tag stored under originalID,
// or to a new tag when originalID is empty or unknown. For device types whose
// identity follows the name the ID is recomputed from the new name. A changed
// identity is checked for collision before the old entry is removed, so an
// unrelated tag is never overwritten.
func ApplyEdit(originalID string, draft TagDraft, d *Device) (EditOutcome, error) {
	if d == nil {
		return EditRejected, ErrInvalidDevice
	}
	if d.Tags == nil {
		d.Tags = make(map[string]*Tag)
	}

	existing, found := d.Tags[originalID]
	var edited *Tag
	if found {
		edited = existing.Clone()
	} else {
		edited = &Tag{ID: originalID}
	}

	edited.Name = draft.Name
	edited.Type = draft.Type
	edited.Address = draft.Address
	edited.MemAddress = draft.MemAddress
	edited.Min = cloneFloat(draft.Min)
	edited.Max = cloneFloat(draft.Max)
	if IdentityFollowsName(d.Type) || edited.ID == "" {
		edited.ID = draft.Name
	}

	c, err := NewCandidate(*edited)
	if err != nil {
		return EditRejected, err
	}

	if found && c.ID() == originalID {
		d.Tags[originalID] = c.Tag()
		return EditUpdated, nil
	}

	if _, taken := d.Tags[c.ID()]; taken {
		return EditRejected, nil
	}

	if found {
		delete(d.Tags, originalID)
		Reconcile(c, d)
		return EditRenamed, nil
	}

	Reconcile(c, d)
	return EditAdded, nil
}

// RemoveTag deletes the tag with the given ID. Removing an absent tag is a
// no-op. It reports whether a tag was removed.
func RemoveTag(d *Device, id string) bool {
	if d == nil {
		return false
	}
	if _, ok := d.Tags[id]; !ok {
		return false
	}
	delete(d.Tags, id)
	return true
}

// ClearAll removes every tag from d and returns how many were removed.
func ClearAll(d *Device) int {
	if d == nil {
		return 0
	}
	n := len(d.Tags)
	d.Tags = make(map[string]*Tag)
	return n
}
