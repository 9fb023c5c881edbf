package httpapi

import (
	"net/http"
	"strings"

	"cleanops.io/internal/audit"
	"cleanops.io/internal/directory"
)

// handleAudit dispatches /v1/audit/recent, /v1/audit/entity/{type}/{id}
// and /v1/audit/actor/{id}. The ledger is an administrative surface
// and stays closed to supervisors and below.
func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if caller.Role != directory.RoleSuperAdmin && caller.Role != directory.RoleAdmin {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/audit/"), "/")
	parts := strings.Split(path, "/")
	limit, err := parseIntDefault(r.URL.Query().Get("limit"), 0)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be an integer")
		return
	}

	var entries []audit.Entry
	switch {
	case path == "recent":
		entries, err = a.ledger.Recent(r.Context(), limit)
	case len(parts) == 3 && parts[0] == "entity" && parts[1] != "" && parts[2] != "":
		entries, err = a.ledger.ByEntity(r.Context(), parts[1], parts[2], limit)
	case len(parts) == 2 && parts[0] == "actor" && parts[1] != "":
		entries, err = a.ledger.ByActor(r.Context(), parts[1], limit)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "audit lookup failed")
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}
