package directory

// Role is the administrative rank of a directory record or caller.
// SUPER_ADMIN > ADMIN > SUPERVISOR > AGENT form a strict hierarchy;
// CLIENT sits outside it and carries no administrative scope.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleSupervisor Role = "SUPERVISOR"
	RoleAgent      Role = "AGENT"
	RoleClient     Role = "CLIENT"
)

// allowedRoles is the single source of truth for both visibility and
// assignability: a caller may see, act on, and hand out exactly the
// roles listed for it. Keeping one table avoids the drift that comes
// from duplicating role checks across layers.
var allowedRoles = map[Role][]Role{
	RoleSuperAdmin: {RoleSuperAdmin, RoleAdmin, RoleSupervisor, RoleAgent, RoleClient},
	RoleAdmin:      {RoleSupervisor, RoleAgent, RoleClient},
	RoleSupervisor: {RoleAgent},
	RoleAgent:      {},
	RoleClient:     {},
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := allowedRoles[r]
	return ok
}

// AllowedRoles returns the set of roles the caller may see and assign.
// The slice is a copy; callers may mutate it.
func AllowedRoles(caller Role) []Role {
	src := allowedRoles[caller]
	out := make([]Role, len(src))
	copy(out, src)
	return out
}

// CanActOn reports whether a caller with the given role may read or
// mutate a record holding the target role.
func CanActOn(caller, target Role) bool {
	for _, r := range allowedRoles[caller] {
		if r == target {
			return true
		}
	}
	return false
}

// CanAssignRole reports whether the caller may set a target's role to
// want. It is the role-escalation guard: a SUPERVISOR can never mint
// another SUPERVISOR, an ADMIN can never mint an ADMIN.
func CanAssignRole(caller, want Role) bool {
	return CanActOn(caller, want)
}
