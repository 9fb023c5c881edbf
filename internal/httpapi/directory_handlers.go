package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"cleanops.io/internal/directory"
)

type createUserRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Phone        string `json:"phone"`
	Role         string `json:"role"`
	SupervisorID string `json:"supervisor_id"`
}

type updateUserRequest struct {
	Email        *string `json:"email"`
	FirstName    *string `json:"first_name"`
	LastName     *string `json:"last_name"`
	Phone        *string `json:"phone"`
	Role         *string `json:"role"`
	Status       *string `json:"status"`
	SupervisorID *string `json:"supervisor_id"`
}

type batchRequest struct {
	IDs    []string `json:"ids"`
	Status string   `json:"status,omitempty"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.listUsers(w, r, caller)
	case http.MethodPost:
		a.createUser(w, r, caller)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleUserScoped dispatches /v1/users/{id}, /v1/users/{id}/restore
// and /v1/users/batch/*.
func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")

	if parts[0] == "batch" {
		if len(parts) != 2 {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.handleBatch(w, r, caller, parts[1])
		return
	}

	id := parts[0]
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		a.getUser(w, r, caller, id)
	case len(parts) == 1 && r.Method == http.MethodPatch:
		a.updateUser(w, r, caller, id)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		a.archiveUser(w, r, caller, id)
	case len(parts) == 2 && parts[1] == "restore" && r.Method == http.MethodPost:
		a.restoreUser(w, r, caller, id)
	case len(parts) == 1:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	case len(parts) == 2 && parts[1] == "restore":
		methodNotAllowed(w, r, http.MethodPost)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request, caller directory.Principal) {
	q, err := parseSearchQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	page, err := a.dir.List(r.Context(), caller, q)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request, caller directory.Principal) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.dir.Create(r.Context(), caller, directory.CreateInput{
		Email:        req.Email,
		Password:     req.Password,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		Role:         directory.Role(req.Role),
		SupervisorID: req.SupervisorID,
	})
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/users/"+rec.ID)
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request, caller directory.Principal, id string) {
	includeDeleted := parseBool(r.URL.Query().Get("include_deleted"))
	rec, err := a.dir.Get(r.Context(), caller, id, includeDeleted)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request, caller directory.Principal, id string) {
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	in := directory.UpdateInput{
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		SupervisorID: req.SupervisorID,
	}
	if req.Role != nil {
		role := directory.Role(*req.Role)
		in.Role = &role
	}
	if req.Status != nil {
		status := directory.Status(*req.Status)
		in.Status = &status
	}
	rec, err := a.dir.Update(r.Context(), caller, id, in)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) archiveUser(w http.ResponseWriter, r *http.Request, caller directory.Principal, id string) {
	rec, err := a.dir.SoftDelete(r.Context(), caller, id)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) restoreUser(w http.ResponseWriter, r *http.Request, caller directory.Principal, id string) {
	rec, err := a.dir.Restore(r.Context(), caller, id)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleBatch(w http.ResponseWriter, r *http.Request, caller directory.Principal, op string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, r, http.StatusBadRequest, "ids are required")
		return
	}

	var res directory.BatchResult[*directory.Record]
	switch op {
	case "archive":
		res = a.dir.BatchArchive(r.Context(), caller, req.IDs)
	case "restore":
		res = a.dir.BatchRestore(r.Context(), caller, req.IDs)
	case "status":
		status := directory.Status(req.Status)
		if !status.Valid() {
			writeError(w, r, http.StatusBadRequest, "valid status is required")
			return
		}
		res = a.dir.BatchSetStatus(r.Context(), caller, req.IDs, status)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	// 207: the batch as a whole neither fully succeeded nor failed.
	code := http.StatusOK
	if len(res.Errors) > 0 {
		code = http.StatusMultiStatus
	}
	writeJSON(w, code, res)
}

func parseSearchQuery(r *http.Request) (directory.SearchQuery, error) {
	vals := r.URL.Query()
	q := directory.SearchQuery{
		SortBy:         vals.Get("sort_by"),
		SortOrder:      vals.Get("sort_order"),
		IncludeDeleted: parseBool(vals.Get("include_deleted")),
		FirstName:      vals.Get("first_name"),
		LastName:       vals.Get("last_name"),
		Search:         vals.Get("search"),
	}
	var err error
	if q.Page, err = parseIntDefault(vals.Get("page"), 1); err != nil {
		return q, err
	}
	if q.Limit, err = parseIntDefault(vals.Get("limit"), 20); err != nil {
		return q, err
	}
	if raw := vals.Get("role"); raw != "" {
		role := directory.Role(raw)
		q.Role = &role
	}
	if raw := vals.Get("status"); raw != "" {
		status := directory.Status(raw)
		q.Status = &status
	}
	return q, nil
}

func parseIntDefault(raw string, def int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	return val, nil
}

func parseBool(raw string) bool {
	val, err := strconv.ParseBool(raw)
	return err == nil && val
}
