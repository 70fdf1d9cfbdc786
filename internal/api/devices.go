package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-tagregistry/internal/audit"
	"github.com/nerrad567/gray-logic-tagregistry/internal/device"
)

// deviceSummary is one entry of the device list.
type deviceSummary struct {
	Name     string            `json:"name"`
	Type     device.DeviceType `json:"type"`
	TagCount int               `json:"tag_count"`
}

// deviceResponse is a device with its tags rendered for display.
type deviceResponse struct {
	Name      string            `json:"name"`
	Type      device.DeviceType `json:"type"`
	TagCount  int               `json:"tag_count"`
	Tags      []device.TagView  `json:"tags"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func newDeviceResponse(d *device.Device) deviceResponse {
	return deviceResponse{
		Name:      d.Name,
		Type:      d.Type,
		TagCount:  d.TagCount(),
		Tags:      device.NewTagViews(d),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// handleListDevices returns every device ordered by name.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.registry.ListDevices(r.Context())

	summaries := make([]deviceSummary, 0, len(devices))
	for i := range devices {
		summaries = append(summaries, deviceSummary{
			Name:     devices[i].Name,
			Type:     devices[i].Type,
			TagCount: devices[i].TagCount(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": summaries,
		"count":   len(summaries),
	})
}

// handleCreateDevice creates a device. Tags supplied in the body are merged
// through the reconciler, so duplicates collapse to one entry.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var dev device.Device
	if err := json.NewDecoder(r.Body).Decode(&dev); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.registry.CreateDevice(r.Context(), &dev); err != nil {
		s.writeRegistryError(w, r, err, "failed to create device")
		return
	}

	s.logger.Info("device created via api", "name", dev.Name, "subject", subject(r))
	s.recordAudit(r, audit.ActionDeviceCreate, dev.Name, "", map[string]any{
		"type":      dev.Type,
		"tag_count": dev.TagCount(),
	})
	writeJSON(w, http.StatusCreated, newDeviceResponse(&dev))
}

// handleGetDevice returns a device with its tag views.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	dev, err := s.registry.GetDevice(r.Context(), name)
	if err != nil {
		s.writeRegistryError(w, r, err, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, newDeviceResponse(dev))
}

// handleDeleteDevice removes a device and all of its tags.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.registry.DeleteDevice(r.Context(), name); err != nil {
		s.writeRegistryError(w, r, err, "failed to delete device")
		return
	}

	s.logger.Info("device deleted via api", "name", name, "subject", subject(r))
	s.recordAudit(r, audit.ActionDeviceDelete, name, "", nil)
	w.WriteHeader(http.StatusNoContent)
}

// subject names the authenticated caller for logs, or "anonymous".
func subject(r *http.Request) string {
	if claims := claimsFromContext(r.Context()); claims != nil {
		return claims.Subject
	}
	return "anonymous"
}
