package share

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/evcraddock/sharebox/internal/files"
	"github.com/evcraddock/sharebox/internal/metrics"
)

// State is the repair classification of a share.
type State int

// Share states.
const (
	// StateValid shares need no action.
	StateValid State = iota
	// StateRepairable shares lost their owner's access but the file exists.
	StateRepairable
	// StateDeletable shares point at a file that no longer exists.
	StateDeletable
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateRepairable:
		return "repairable"
	case StateDeletable:
		return "deletable"
	}
	return "unknown"
}

// Orphans checks and repairs shares whose owner lost access to the shared
// node.
type Orphans struct {
	shares  *Repository
	cache   *files.Cache
	access  *files.Access
	metrics *metrics.RepairMetrics
}

// NewOrphans creates an orphan checker over db. m may be nil.
func NewOrphans(db *sql.DB, m *metrics.RepairMetrics) *Orphans {
	return &Orphans{
		shares:  NewRepository(db),
		cache:   files.NewCache(db),
		access:  files.NewAccess(db),
		metrics: m,
	}
}

// IsShareValid reports whether owner can still reach fileID.
func (o *Orphans) IsShareValid(owner string, fileID int64) (bool, error) {
	return o.access.CanAccess(owner, fileID)
}

// FileExists reports whether fileID is still in the file cache.
func (o *Orphans) FileExists(fileID int64) (bool, error) {
	return o.cache.Exists(fileID)
}

// FindOwner returns the first user, by uid, whose home holds fileID, or ""
// when there is none.
func (o *Orphans) FindOwner(fileID int64) (string, error) {
	owners, err := o.access.HomeOwners(fileID)
	if err != nil {
		return "", err
	}
	if len(owners) == 0 {
		return "", nil
	}
	return owners[0], nil
}

// Classify returns the repair state of s.
func (o *Orphans) Classify(s *Share) (State, error) {
	valid, err := o.IsShareValid(s.Owner, s.NodeID)
	if err != nil {
		return StateValid, err
	}
	if valid {
		return StateValid, nil
	}
	exists, err := o.FileExists(s.NodeID)
	if err != nil {
		return StateValid, err
	}
	if exists {
		return StateRepairable, nil
	}
	return StateDeletable, nil
}

// Orphan is an invalid share with its classification.
type Orphan struct {
	Share *Share
	State State
}

// FindOrphans returns every invalid share matching f. Shares are collected
// before checking so no cursor is held open across the access queries.
func (o *Orphans) FindOrphans(f Filter) ([]Orphan, error) {
	all, err := Collect(f.Apply(o.shares.All()))
	if err != nil {
		return nil, err
	}

	var orphans []Orphan
	for _, s := range all {
		state, err := o.Classify(s)
		if err != nil {
			return nil, fmt.Errorf("checking share %d: %w", s.ID, err)
		}
		if state != StateValid {
			orphans = append(orphans, Orphan{Share: s, State: state})
		}
	}
	return orphans, nil
}

// DeleteOrphans removes the given orphan shares in bulk.
func (o *Orphans) DeleteOrphans(orphans []Orphan) (int64, error) {
	ids := make([]int64, len(orphans))
	for i, orphan := range orphans {
		ids[i] = orphan.Share.ID
	}
	n, err := o.shares.DeleteMany(ids)
	if err != nil {
		return n, err
	}
	o.metrics.RecordDeleted(int(n))
	slog.Info("deleted orphan shares", "count", n)
	return n, nil
}

// Fix is a planned or applied owner change.
type Fix struct {
	Share    *Share
	NewOwner string
}

// FixOwners reassigns every repairable share to the user whose home holds
// its node. Shares without such a user are left alone. With dryRun set
// nothing is written.
func (o *Orphans) FixOwners(dryRun bool) ([]Fix, error) {
	all, err := Collect(o.shares.All())
	if err != nil {
		return nil, err
	}

	var fixes []Fix
	for _, s := range all {
		valid, err := o.IsShareValid(s.Owner, s.NodeID)
		if err != nil {
			return fixes, fmt.Errorf("checking share %d: %w", s.ID, err)
		}
		if valid {
			continue
		}

		owner, err := o.FindOwner(s.NodeID)
		if err != nil {
			return fixes, fmt.Errorf("finding owner of share %d: %w", s.ID, err)
		}
		if owner == "" {
			o.metrics.RecordSkipped()
			continue
		}

		if !dryRun {
			if err := o.shares.Reassign(s.ID, owner, owner, s.NodeID); err != nil {
				return fixes, err
			}
			o.metrics.RecordFixed()
			slog.Info("fixed share owner",
				"share_id", s.ID,
				"old_owner", s.Owner,
				"new_owner", owner,
				"file_id", s.NodeID,
			)
		}
		fixes = append(fixes, Fix{Share: s, NewOwner: owner})
	}
	return fixes, nil
}

// SetOwner transfers a share to newOwner, who must be able to reach the
// shared node.
func (o *Orphans) SetOwner(id int64, newOwner string) (*Share, error) {
	s, err := o.shares.Get(id)
	if err != nil {
		return nil, err
	}

	ok, err := o.IsShareValid(newOwner, s.NodeID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("new owner has %w", ErrNoAccess)
	}

	if err := o.shares.Reassign(s.ID, newOwner, newOwner, s.NodeID); err != nil {
		return nil, err
	}
	slog.Info("changed share owner", "share_id", s.ID, "old_owner", s.Owner, "new_owner", newOwner)
	return o.shares.Get(id)
}
