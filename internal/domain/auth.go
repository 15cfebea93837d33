package domain

import "time"

// Role enumerates what a caller may do with tracked documents.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

var roleRank = map[Role]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Includes reports whether r grants at least the permissions of other.
func (r Role) Includes(other Role) bool {
	return roleRank[r] >= roleRank[other] && roleRank[other] > 0
}

// Token represents issued bearer token metadata.
type Token struct {
	SubjectID string
	Role      Role
	ExpiresAt time.Time
	IssuedAt  time.Time
}
