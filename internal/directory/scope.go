package directory

// Principal is the authenticated caller of a directory operation. It is
// derived from the session token per request and never persisted here.
type Principal struct {
	ID   string
	Role Role
}

// AccessScope is the derived set of records a caller may query or
// mutate. The same scope drives reads and writes, so a caller can never
// mutate a record it could not also list.
type AccessScope struct {
	// AllRoles grants visibility over every role (SUPER_ADMIN only).
	AllRoles bool
	// Roles is the explicit allow-set when AllRoles is false.
	Roles []Role
	// SupervisorID, when non-empty, restricts visibility to records
	// whose supervisor_id matches it (SUPERVISOR callers only).
	SupervisorID string
}

// ResolveScope computes the caller's access scope. Pure and total:
// every role maps to a defined scope, unknown roles map to the empty
// scope.
func ResolveScope(p Principal) AccessScope {
	switch p.Role {
	case RoleSuperAdmin:
		return AccessScope{AllRoles: true}
	case RoleAdmin:
		return AccessScope{Roles: AllowedRoles(RoleAdmin)}
	case RoleSupervisor:
		return AccessScope{Roles: AllowedRoles(RoleSupervisor), SupervisorID: p.ID}
	default:
		// AGENT, CLIENT and anything unknown: no directory access.
		return AccessScope{}
	}
}

// Empty reports whether the scope grants no directory access at all.
func (s AccessScope) Empty() bool {
	return !s.AllRoles && len(s.Roles) == 0
}

// AllowsRole reports whether records holding r are inside the scope.
func (s AccessScope) AllowsRole(r Role) bool {
	if s.AllRoles {
		return true
	}
	for _, allowed := range s.Roles {
		if allowed == r {
			return true
		}
	}
	return false
}

// AllowsRecord reports whether the given record is visible to the
// scope, including the supervisor ownership restriction.
func (s AccessScope) AllowsRecord(rec *Record) bool {
	if rec == nil || !s.AllowsRole(rec.Role) {
		return false
	}
	if s.SupervisorID != "" && rec.SupervisorID != s.SupervisorID {
		return false
	}
	return true
}
