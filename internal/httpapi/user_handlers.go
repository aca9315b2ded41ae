package httpapi

import (
	"net/http"
	"strings"
	"time"

	"shelfd.org/internal/audit"
	"shelfd.org/internal/auth"
)

type userUpdateRequest struct {
	Email     *string `json:"email"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

type userPageResponse struct {
	Items      []auth.Profile `json:"items"`
	Page       int            `json:"page"`
	Size       int            `json:"size"`
	TotalItems int            `json:"totalItems"`
	TotalPages int            `json:"totalPages"`
}

func profiles(users []*auth.User) []auth.Profile {
	out := make([]auth.Profile, 0, len(users))
	for _, u := range users {
		out = append(out, u.Profile())
	}
	return out
}

// handleUsersCollection lists accounts for admins. Optional query params:
// active=true restricts to active accounts, from/to (RFC 3339) restrict by
// creation time; otherwise the listing is paged.
func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	q := r.URL.Query()

	if q.Get("active") == "true" {
		users, err := a.users.Users().ListActive(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, profiles(users))
		return
	}

	if q.Get("from") != "" || q.Get("to") != "" {
		from, err := time.Parse(time.RFC3339, q.Get("from"))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "from must be an RFC 3339 timestamp")
			return
		}
		to, err := time.Parse(time.RFC3339, q.Get("to"))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "to must be an RFC 3339 timestamp")
			return
		}
		users, err := a.users.Users().ListCreatedBetween(r.Context(), from, to)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, profiles(users))
		return
	}

	page, err := parsePositiveInt(q.Get("page"), 0, 0, 1<<20)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "page must be a non-negative integer")
		return
	}
	size, err := parsePositiveInt(q.Get("size"), 20, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "size must be between 1 and 100")
		return
	}

	users, total, err := a.users.Users().ListPage(r.Context(), page*size, size)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userPageResponse{
		Items:      profiles(users),
		Page:       page,
		Size:       size,
		TotalItems: total,
		TotalPages: (total + size - 1) / size,
	})
}

func (a *API) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	p, ok := a.requireRole(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		user, err := a.users.Users().FindByID(r.Context(), p.UserID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user.Profile())
	case http.MethodPut:
		a.updateUser(w, r, p.UserID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) handleUsersSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, r, http.StatusBadRequest, "name query parameter is required")
		return
	}
	users, err := a.users.Users().SearchByName(r.Context(), name)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles(users))
}

func (a *API) handleUsersCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	active, err := a.users.Users().CountActive(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	total, err := a.users.Users().Count(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"total":  total,
		"active": active,
	})
}

func (a *API) handleUsersByRole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	role := strings.TrimSpace(r.URL.Query().Get("role"))
	if role == "" {
		writeError(w, r, http.StatusBadRequest, "role query parameter is required")
		return
	}
	users, err := a.users.Users().ListByRole(r.Context(), role)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles(users))
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/users/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if action, found := strings.CutSuffix(path, "/activate"); found && !strings.Contains(action, "/") {
		a.setUserActive(w, r, action, true)
		return
	}
	if action, found := strings.CutSuffix(path, "/deactivate"); found && !strings.Contains(action, "/") {
		a.setUserActive(w, r, action, false)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getUser(w, r, path)
	case http.MethodPut:
		if _, ok := a.requireRole(w, r); !ok {
			return
		}
		if !auth.AuthorizeSelf(r.Context(), path, auth.RoleAdmin) {
			writeError(w, r, http.StatusForbidden, "insufficient role")
			return
		}
		a.updateUser(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.requireRole(w, r); !ok {
		return
	}
	if !auth.AuthorizeSelf(r.Context(), id, auth.RoleAdmin) {
		writeError(w, r, http.StatusForbidden, "insufficient role")
		return
	}
	user, err := a.users.Users().FindByID(r.Context(), id)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user.Profile())
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request, id string) {
	var req userUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == nil && req.FirstName == nil && req.LastName == nil {
		writeError(w, r, http.StatusBadRequest, "no fields to update")
		return
	}
	if req.Email != nil && strings.TrimSpace(*req.Email) == "" {
		writeError(w, r, http.StatusBadRequest, "email must not be blank")
		return
	}

	user, err := a.users.Users().Update(r.Context(), id, auth.UserUpdate{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "user.update", map[string]any{
		"target_user_id": id,
	})
	writeJSON(w, http.StatusOK, user.Profile())
}

func (a *API) setUserActive(w http.ResponseWriter, r *http.Request, id string, active bool) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	if _, ok := a.requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	if err := a.users.Users().SetActive(r.Context(), id, active); err != nil {
		handleAuthError(w, r, err)
		return
	}

	event := "user.activate"
	if !active {
		event = "user.deactivate"
	}
	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"target_user_id": id,
	})
	user, err := a.users.Users().FindByID(r.Context(), id)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user.Profile())
}
