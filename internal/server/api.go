package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/chatmate/chatmate/internal/access"
	"github.com/chatmate/chatmate/internal/logging"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// errorResponse is the body of every failed API call.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// API serves the JSON access-management endpoints.
type API struct {
	service   *access.Service
	directory *access.Directory
	logger    *slog.Logger
}

// NewAPI creates the API over the server context's services.
func NewAPI(sc *ServerContext) *API {
	return &API{
		service:   sc.Service(),
		directory: sc.Directory(),
		logger:    sc.Logger(),
	}
}

// Register mounts the API routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /users", a.register)
	mux.HandleFunc("GET /users/search", a.searchUsers)
	mux.HandleFunc("GET /users/count", a.countUsers)
	mux.HandleFunc("GET /users/{username}", a.verifyUser)

	mux.HandleFunc("GET /access", a.accessState)
	mux.HandleFunc("POST /access/individual", a.grantIndividual)
	mux.HandleFunc("DELETE /access/individual/{username}", a.revokeIndividual)
	mux.HandleFunc("POST /access/groups", a.createGroup)
	mux.HandleFunc("DELETE /access/groups/{groupName}", a.deleteGroup)
	mux.HandleFunc("POST /access/groups/{groupName}/users", a.addGroupMember)
	mux.HandleFunc("DELETE /access/groups/{groupName}/users/{username}", a.removeGroupMember)
	mux.HandleFunc("GET /access/group-access", a.groupsWithAccess)
	mux.HandleFunc("POST /access/group-access", a.grantGroup)
	mux.HandleFunc("DELETE /access/group-access/{groupName}", a.revokeGroup)
	mux.HandleFunc("POST /access/sync-from-group", a.syncFromGroup)
	mux.HandleFunc("POST /access/toggle-restriction", a.toggleRestriction)
	mux.HandleFunc("GET /access/restriction-status", a.restrictionStatus)
	mux.HandleFunc("GET /access/granted", a.granted)

	mux.HandleFunc("GET /chat/{ownerId}/authorize", a.authorize)
}

// accessRequest is the union of the JSON bodies accepted by the access routes.
type accessRequest struct {
	OwnerID      string `json:"ownerId"`
	Username     string `json:"username"`
	GroupName    string `json:"groupName"`
	IsRestricted *bool  `json:"isRestricted"`
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req access.Registration
	if !a.decode(w, r, &req, false) {
		return
	}
	acct, err := a.directory.Register(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (a *API) verifyUser(w http.ResponseWriter, r *http.Request) {
	acct, err := a.directory.LookupAccount(r.Context(), r.PathValue("username"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]access.Account{"user": acct})
}

func (a *API) searchUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			a.fail(w, r, &access.Error{Kind: access.KindInvalidArgument, Message: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	accounts, err := a.directory.SearchAccounts(r.Context(), q.Get("query"), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (a *API) countUsers(w http.ResponseWriter, r *http.Request) {
	n, err := a.directory.CountAccounts(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (a *API) accessState(w http.ResponseWriter, r *http.Request) {
	state, err := a.service.GetAccessState(r.Context(), r.URL.Query().Get("ownerId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) grantIndividual(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if !a.decode(w, r, &req, false) {
		return
	}
	list, err := a.service.GrantIndividualAccess(r.Context(), req.OwnerID, req.Username)
	a.respond(w, r, list, err)
}

func (a *API) revokeIndividual(w http.ResponseWriter, r *http.Request) {
	req, ok := a.ownerRequest(w, r)
	if !ok {
		return
	}
	list, err := a.service.RevokeIndividualAccess(r.Context(), req.OwnerID, r.PathValue("username"))
	a.respond(w, r, list, err)
}

func (a *API) createGroup(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if !a.decode(w, r, &req, false) {
		return
	}
	groups, err := a.service.CreateGroup(r.Context(), req.OwnerID, req.GroupName)
	a.respond(w, r, groups, err)
}

func (a *API) deleteGroup(w http.ResponseWriter, r *http.Request) {
	req, ok := a.ownerRequest(w, r)
	if !ok {
		return
	}
	groups, err := a.service.DeleteGroup(r.Context(), req.OwnerID, r.PathValue("groupName"))
	a.respond(w, r, groups, err)
}

func (a *API) addGroupMember(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if !a.decode(w, r, &req, false) {
		return
	}
	group, err := a.service.AddUserToGroup(r.Context(), req.OwnerID, r.PathValue("groupName"), req.Username)
	a.respond(w, r, group, err)
}

func (a *API) removeGroupMember(w http.ResponseWriter, r *http.Request) {
	req, ok := a.ownerRequest(w, r)
	if !ok {
		return
	}
	group, err := a.service.RemoveUserFromGroup(r.Context(), req.OwnerID, r.PathValue("groupName"), r.PathValue("username"))
	a.respond(w, r, group, err)
}

func (a *API) groupsWithAccess(w http.ResponseWriter, r *http.Request) {
	groups, err := a.service.GetGroupsWithAccess(r.Context(), r.URL.Query().Get("ownerId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"groupsWithAccess": groups})
}

func (a *API) grantGroup(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if !a.decode(w, r, &req, false) {
		return
	}
	res, err := a.service.GrantGroupAccess(r.Context(), req.OwnerID, req.GroupName)
	a.respond(w, r, res, err)
}

func (a *API) revokeGroup(w http.ResponseWriter, r *http.Request) {
	req, ok := a.ownerRequest(w, r)
	if !ok {
		return
	}
	res, err := a.service.RevokeGroupAccess(r.Context(), req.OwnerID, r.PathValue("groupName"))
	a.respond(w, r, res, err)
}

func (a *API) syncFromGroup(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if !a.decode(w, r, &req, false) {
		return
	}
	list, err := a.service.SyncAccessFromGroups(r.Context(), req.OwnerID, req.GroupName)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"accessList": list})
}

func (a *API) toggleRestriction(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if !a.decode(w, r, &req, false) {
		return
	}
	if req.IsRestricted == nil {
		a.fail(w, r, &access.Error{Kind: access.KindInvalidArgument, Message: "isRestricted is required"})
		return
	}
	restricted, err := a.service.SetAccessRestricted(r.Context(), req.OwnerID, *req.IsRestricted)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true, "accessRestricted": restricted})
}

func (a *API) restrictionStatus(w http.ResponseWriter, r *http.Request) {
	restricted, err := a.service.GetRestrictionStatus(r.Context(), r.URL.Query().Get("ownerId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"accessRestricted": restricted})
}

func (a *API) granted(w http.ResponseWriter, r *http.Request) {
	owners, err := a.service.ListGrantingOwners(r.Context(), r.URL.Query().Get("username"))
	a.respond(w, r, owners, err)
}

func (a *API) authorize(w http.ResponseWriter, r *http.Request) {
	ok := a.service.IsAuthorized(r.Context(), r.PathValue("ownerId"), r.URL.Query().Get("visitor"))
	writeJSON(w, http.StatusOK, map[string]bool{"authorized": ok})
}

// ownerRequest reads ownerId for DELETE routes from the query string or,
// failing that, an optional JSON body.
func (a *API) ownerRequest(w http.ResponseWriter, r *http.Request) (accessRequest, bool) {
	var req accessRequest
	if owner := r.URL.Query().Get("ownerId"); owner != "" {
		req.OwnerID = owner
		return req, true
	}
	return req, a.decode(w, r, &req, true)
}

// decode parses the JSON body into dst. A malformed body is answered with
// 400 InvalidArgument and decode returns false.
func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	a.fail(w, r, &access.Error{
		Kind:    access.KindInvalidArgument,
		Message: fmt.Sprintf("invalid request body: %v", err),
	})
	return false
}

// respond writes v as JSON, or the error response when err is set.
func (a *API) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// fail maps err onto the error taxonomy's status and body. Storage failures
// never leak their cause to the client.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := access.KindOf(err)
	msg := access.MessageOf(err)
	if kind == access.KindStorageFailure {
		msg = "storage failure"
	}
	if kind.HTTPStatus() >= http.StatusInternalServerError {
		a.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("route", r.Pattern),
			logging.Kind(string(kind)),
			logging.Err(err))
	}
	writeJSON(w, kind.HTTPStatus(), errorResponse{Error: string(kind), Message: strings.TrimSpace(msg)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
