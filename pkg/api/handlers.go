package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cloudwisp/wisp/pkg/manager"
	"github.com/cloudwisp/wisp/pkg/types"
	"github.com/gorilla/mux"
)

// FanoutRequest is the wire form of a fan-out invocation
type FanoutRequest struct {
	Operation string   `json:"operation"`
	SiteIDs   []string `json:"site_ids"`

	Username string                `json:"username,omitempty"`
	Password string                `json:"password,omitempty"`
	Policy   types.BandwidthPolicy `json:"policy,omitempty"`
	Patch    *types.UserPatch      `json:"patch,omitempty"`
}

// SyncUserRequest is the wire form of a sync-to-all-sites invocation
type SyncUserRequest struct {
	Username string                `json:"username"`
	Password string                `json:"password"`
	Policy   types.BandwidthPolicy `json:"policy,omitempty"`
}

// TokenRequest is the wire form of a token issuance
type TokenRequest struct {
	SiteID string   `json:"site_id"`
	Scope  []string `json:"scope,omitempty"`
}

func (s *Server) handleRegisterSite(w http.ResponseWriter, r *http.Request) {
	var site types.Site
	if err := json.NewDecoder(r.Body).Decode(&site); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	registered, err := s.mgr.RegisterSite(&site)
	if err != nil {
		if errors.Is(err, types.ErrDuplicateEndpoint) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, registered)
}

func (s *Server) handleListSites(w http.ResponseWriter, _ *http.Request) {
	sites, err := s.mgr.ListSites()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sites == nil {
		sites = []*types.Site{}
	}
	writeJSON(w, http.StatusOK, sites)
}

func (s *Server) handleGetSite(w http.ResponseWriter, r *http.Request) {
	site, err := s.mgr.GetSite(mux.Vars(r)["id"])
	if err != nil {
		writeSiteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (s *Server) handleRemoveSite(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.RemoveSite(mux.Vars(r)["id"]); err != nil {
		writeSiteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSiteMirror(w http.ResponseWriter, r *http.Request) {
	users, err := s.mgr.ListMirror(mux.Vars(r)["id"])
	if err != nil {
		writeSiteError(w, err)
		return
	}
	if users == nil {
		users = []*types.ProvisionedUser{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleSiteUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.mgr.SiteUsers(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleSiteClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.mgr.SiteClients(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("interface"))
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

func (s *Server) handleSiteIdentity(w http.ResponseWriter, r *http.Request) {
	ident, err := s.mgr.SiteIdentity(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ident)
}

func (s *Server) handleSiteResources(w http.ResponseWriter, r *http.Request) {
	res, err := s.mgr.SiteResources(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SiteID == "" {
		writeError(w, http.StatusBadRequest, "site_id is required")
		return
	}

	token, err := s.mgr.IssueToken(req.SiteID, req.Scope)
	if err != nil {
		writeSiteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

// handleFanout dispatches one logical operation across a site set.
// Partial remote failure is a successful orchestration outcome: the
// response is always 200 with a mixed-outcome body. Non-2xx is
// reserved for malformed requests.
func (s *Server) handleFanout(w http.ResponseWriter, r *http.Request) {
	var req FanoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.SiteIDs) == 0 {
		writeError(w, http.StatusBadRequest, "site_ids must not be empty")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	var result *types.FanoutResult
	switch req.Operation {
	case manager.OpCreateUser:
		result = s.mgr.CreateUser(r.Context(), types.UserSpec{
			Username: req.Username,
			Password: req.Password,
			Policy:   req.Policy,
		}, req.SiteIDs)
	case manager.OpUpdateUser:
		if req.Patch == nil {
			writeError(w, http.StatusBadRequest, "patch is required for update_user")
			return
		}
		result = s.mgr.UpdateUser(r.Context(), req.Username, *req.Patch, req.SiteIDs)
	case manager.OpDeleteUser:
		result = s.mgr.DeleteUser(r.Context(), req.Username, req.SiteIDs)
	case manager.OpSetBandwidth:
		if req.Policy.IsZero() {
			writeError(w, http.StatusBadRequest, "policy is required for set_bandwidth")
			return
		}
		result = s.mgr.SetBandwidth(r.Context(), req.Username, req.Policy, req.SiteIDs)
	default:
		writeError(w, http.StatusBadRequest, "unknown operation: "+req.Operation)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSyncUser(w http.ResponseWriter, r *http.Request) {
	var req SyncUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	result, err := s.mgr.SyncUser(r.Context(), types.UserSpec{
		Username: req.Username,
		Password: req.Password,
		Policy:   req.Policy,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeSiteError(w http.ResponseWriter, err error) {
	if errors.Is(err, types.ErrSiteNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// writeDeviceError maps a live-view device failure onto HTTP. These
// routes proxy a single site, so unlike fan-out the status reflects
// the per-site error directly.
func writeDeviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrSiteNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrNotReachable):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, types.ErrProtocol):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
