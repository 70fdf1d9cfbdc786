package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-tagregistry/internal/audit"
	"github.com/nerrad567/gray-logic-tagregistry/internal/device"
)

// importRequest is the body of a discovery import.
type importRequest struct {
	Nodes []device.DiscoveredNode `json:"nodes"`
}

// handleListTags returns the tag views of a device ordered by ID.
func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	views, err := s.registry.TagViews(r.Context(), name)
	if err != nil {
		s.writeRegistryError(w, r, err, "failed to list tags")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device": name,
		"tags":   views,
		"count":  len(views),
	})
}

// handleImportTags merges discovered nodes into a device.
func (s *Server) handleImportTags(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	res, err := s.registry.ImportDiscovered(r.Context(), name, req.Nodes)
	if err != nil {
		s.writeRegistryError(w, r, err, "failed to import tags")
		return
	}

	s.recordAudit(r, audit.ActionTagImport, name, "", map[string]any{
		"added":   res.Added,
		"skipped": res.Skipped,
		"invalid": res.Invalid,
	})
	writeJSON(w, http.StatusOK, res)
}

// handleEditTag adds or edits a single tag. A rename onto an identity held
// by another tag is reported as a conflict and leaves the device unchanged.
func (s *Server) handleEditTag(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req device.EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	res, err := s.registry.EditTag(r.Context(), name, req)
	if err != nil {
		s.writeRegistryError(w, r, err, "failed to edit tag")
		return
	}

	if res.Outcome == device.EditRejected && res.Import == nil {
		writeConflict(w, "tag identity "+req.Draft.Name+" is already in use")
		return
	}

	s.recordAudit(r, audit.ActionTagEdit, name, res.ID, map[string]any{
		"outcome": res.Status,
	})
	writeJSON(w, http.StatusOK, res)
}

// handleRemoveTag deletes one tag. The ID may be path-escaped; removing an
// absent tag succeeds with removed=false.
func (s *Server) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil || id == "" {
		writeBadRequest(w, "invalid tag id")
		return
	}

	removed, err := s.registry.RemoveTag(r.Context(), name, id)
	if err != nil {
		s.writeRegistryError(w, r, err, "failed to remove tag")
		return
	}

	if removed {
		s.recordAudit(r, audit.ActionTagRemove, name, id, nil)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"removed": removed,
	})
}

// handleClearTags removes every tag of a device. The caller must confirm
// with ?confirm=true.
func (s *Server) handleClearTags(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if r.URL.Query().Get("confirm") != "true" {
		writeBadRequest(w, "clearing all tags requires confirm=true")
		return
	}

	n, err := s.registry.ClearTags(r.Context(), name)
	if err != nil {
		s.writeRegistryError(w, r, err, "failed to clear tags")
		return
	}

	s.logger.Info("tags cleared via api", "device", name, "removed", n, "subject", subject(r))
	s.recordAudit(r, audit.ActionTagClear, name, "", map[string]any{"removed": n})
	writeJSON(w, http.StatusOK, map[string]any{
		"removed": n,
	})
}
