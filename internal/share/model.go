// Package share provides shares, the share filter engine and the orphan
// share repair tools.
package share

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/evcraddock/sharebox/internal/files"
)

var (
	// ErrNotFound is returned for unknown share ids.
	ErrNotFound = errors.New("share not found")
	// ErrInvalidShareType is returned for unknown share type names and codes.
	ErrInvalidShareType = errors.New("invalid share type")
	// ErrNoAccess is returned when a user cannot reach the shared node.
	ErrNoAccess = errors.New("no access to the shared item")
)

// Type identifies who or what a share is addressed to.
type Type int

// Share types. Codes match the values stored in the shares table.
const (
	TypeUser        Type = 0
	TypeGroup       Type = 1
	TypeLink        Type = 3
	TypeEmail       Type = 4
	TypeRemote      Type = 6
	TypeCircle      Type = 7
	TypeGuest       Type = 8
	TypeRemoteGroup Type = 9
	TypeRoom        Type = 10
	TypeDeck        Type = 12
	TypeDeckUser    Type = 13
	TypeScienceMesh Type = 15
)

var typeNames = map[Type]string{
	TypeUser:        "user",
	TypeGroup:       "group",
	TypeLink:        "link",
	TypeEmail:       "email",
	TypeRemote:      "remote",
	TypeCircle:      "circle",
	TypeGuest:       "guest",
	TypeRemoteGroup: "remote_group",
	TypeRoom:        "room",
	TypeDeck:        "deck",
	TypeDeckUser:    "deck_user",
	TypeScienceMesh: "sciencemesh",
}

// TypeNames returns the valid share type names ordered by code.
func TypeNames() []string {
	types := make([]Type, 0, len(typeNames))
	for t := range typeNames {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	names := make([]string, len(types))
	for i, t := range types {
		names[i] = typeNames[t]
	}
	return names
}

// ParseType returns the share type with the given name.
func ParseType(name string) (Type, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w %q, valid types are: %s", ErrInvalidShareType, name, strings.Join(TypeNames(), ", "))
}

// Valid reports whether t is a known share type.
func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("unknown(%d)", int(t))
}

// MarshalText encodes the type by name.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidShareType, int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a type name.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Share grants a recipient access to a node owned by Owner.
type Share struct {
	ID          int64      `json:"id"`
	Type        Type       `json:"share_type"`
	SharedWith  string     `json:"share_with"`
	Owner       string     `json:"uid_owner"`
	SharedBy    string     `json:"uid_initiator"`
	ItemType    string     `json:"item_type"`
	NodeID      int64      `json:"file_source"`
	Target      string     `json:"file_target"`
	Permissions int        `json:"permissions"`
	Token       string     `json:"token,omitempty"`
	Note        string     `json:"note,omitempty"`
	Expiration  *time.Time `json:"expiration,omitempty"`
	CreatedAt   time.Time  `json:"stime"`

	// Node is the cached file entry, nil when the file is gone.
	Node *files.Node `json:"node,omitempty"`
}

// Permission bits.
const (
	PermRead   = 1
	PermUpdate = 2
	PermCreate = 4
	PermDelete = 8
	PermShare  = 16
	PermAll    = PermRead | PermUpdate | PermCreate | PermDelete | PermShare
)

// IsExpired reports whether the share expired before now.
func (s *Share) IsExpired(now time.Time) bool {
	return s.Expiration != nil && !s.Expiration.After(now)
}
