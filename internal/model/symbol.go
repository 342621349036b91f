package model

import "time"

// SymbolRole is a bitmask of the roles an occurrence plays, mirroring the
// index store's own role vocabulary closely enough to filter by it.
type SymbolRole uint32

const (
	RoleDeclaration SymbolRole = 1 << iota
	RoleDefinition
	RoleReference
	RoleRead
	RoleWrite
	RoleCall
	RoleExtendedBy
	RoleAccessorOf
	RoleChildOf
	RoleUnitTest
)

// Contains reports whether role r includes every bit set in mask.
func (r SymbolRole) Contains(mask SymbolRole) bool { return r&mask == mask }

// Intersects reports whether r shares any bit with mask.
func (r SymbolRole) Intersects(mask SymbolRole) bool { return r&mask != 0 }

// ContainerKind classifies a symbol that can contain other symbols, for the
// purpose of container-name resolution.
type ContainerKind int

const (
	ContainerKindOther ContainerKind = iota
	ContainerKindModule
	ContainerKindNamespace
	ContainerKindEnum
	ContainerKindStruct
	ContainerKindClass
	ContainerKindProtocol
	ContainerKindExtension
	ContainerKindUnion
)

// IsNamedContainer reports whether kind is one of the kinds container-name
// resolution is allowed to walk through.
func (k ContainerKind) IsNamedContainer() bool {
	switch k {
	case ContainerKindModule, ContainerKindNamespace, ContainerKindEnum, ContainerKindStruct,
		ContainerKindClass, ContainerKindProtocol, ContainerKindExtension, ContainerKindUnion:
		return true
	default:
		return false
	}
}

// Location pins an occurrence to a source position and the timestamp of
// the unit it was read from, which staleness checks constrain against mtime.
type Location struct {
	Path      string
	Line      int
	Column    int
	Timestamp time.Time
}

// Symbol is the minimal identity of a thing an occurrence refers to.
type Symbol struct {
	USR  string
	Name string
	Kind ContainerKind
}

// Occurrence is one recorded appearance of a symbol in a unit, as read
// from the index database and (after CheckedIndex filtering) guaranteed
// fresh under the active CheckLevel.
type Occurrence struct {
	Symbol        Symbol
	Location      Location
	Roles         SymbolRole
	RelatedUSRs   []string // symbols this occurrence relates to (e.g. overrides, protocol conformance)
	AccessorOf    *string  // USR of the property this accessor belongs to, if any
	ChildOf       *string  // USR of the lexical parent container, if any
	ExtendedByUSR *string  // for ContainerKindExtension occurrences, the USR of the extended type
}
