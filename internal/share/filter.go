package share

import (
	"iter"

	"github.com/evcraddock/sharebox/internal/files"
)

// Filter selects shares. Zero fields match everything; set fields are
// combined with AND.
type Filter struct {
	Owner      string
	SharedBy   string
	SharedWith string
	Type       *Type
	FileID     int64

	// Parent restricts shares to nodes directly inside the folder, or
	// anywhere below it when Recursive is set.
	Parent    *files.Node
	Recursive bool
}

// Match reports whether s satisfies every predicate of f.
func (f Filter) Match(s *Share) bool {
	if f.Owner != "" && s.Owner != f.Owner {
		return false
	}
	if f.SharedBy != "" && s.SharedBy != f.SharedBy {
		return false
	}
	if f.SharedWith != "" && s.SharedWith != f.SharedWith {
		return false
	}
	if f.Type != nil && s.Type != *f.Type {
		return false
	}
	if f.FileID != 0 && s.NodeID != f.FileID {
		return false
	}
	if f.Parent != nil {
		if s.Node == nil {
			return false
		}
		if f.Recursive {
			return f.Parent.Contains(s.Node)
		}
		return s.Node.ParentID == f.Parent.ID
	}
	return true
}

// Apply lazily filters seq. Errors are passed through and end iteration.
func (f Filter) Apply(seq iter.Seq2[*Share, error]) iter.Seq2[*Share, error] {
	return func(yield func(*Share, error) bool) {
		for s, err := range seq {
			if err != nil {
				yield(nil, err)
				return
			}
			if !f.Match(s) {
				continue
			}
			if !yield(s, nil) {
				return
			}
		}
	}
}

// Row is the tabular form of a share.
type Row struct {
	ID         int64  `json:"id"`
	Owner      string `json:"owner"`
	SharedBy   string `json:"shared_by"`
	SharedWith string `json:"shared_with"`
	Type       Type   `json:"type"`
	FileID     int64  `json:"file_id"`
}

// Row returns the tabular form of s.
func (s *Share) Row() Row {
	return Row{
		ID:         s.ID,
		Owner:      s.Owner,
		SharedBy:   s.SharedBy,
		SharedWith: s.SharedWith,
		Type:       s.Type,
		FileID:     s.NodeID,
	}
}
