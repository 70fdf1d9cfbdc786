package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-tagregistry/internal/audit"
)

// recordAudit stores one change history entry. Failures are logged; the
// mutation has already been persisted and is not rolled back.
func (s *Server) recordAudit(r *http.Request, action, deviceName, tagID string, details map[string]any) {
	if s.audit == nil {
		return
	}
	entry := &audit.Entry{
		Action:  action,
		Device:  deviceName,
		TagID:   tagID,
		Subject: subject(r),
		Details: details,
	}
	if err := s.audit.Create(r.Context(), entry); err != nil {
		s.logger.Error("recording audit entry",
			"action", action,
			"device", deviceName,
			"error", err,
		)
	}
}

// handleListAudit returns the change history, newest first.
//
// Query parameters: device, action, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "audit log is not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Device: q.Get("device"),
		Action: q.Get("action"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries", "error", err)
		writeInternalError(w, "failed to list audit log")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
