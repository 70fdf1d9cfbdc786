package api

import (
	"net/http"
	"testing"

	"github.com/nerrad567/gray-logic-tagregistry/internal/audit"
	"github.com/nerrad567/gray-logic-tagregistry/internal/auth"
	"github.com/nerrad567/gray-logic-tagregistry/internal/infrastructure/config"
)

func TestAuditLog_RecordsMutations(t *testing.T) {
	srv, _ := testServer(t, config.SecurityConfig{JWT: config.JWTConfig{
		Enabled: true,
		Secret:  testJWTSecret,
	}}, nil)
	router := srv.buildRouter()

	tok, err := auth.GenerateAccessToken("commissioner", auth.RoleAdmin, testJWTSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	bearer := "Bearer " + tok

	steps := []struct {
		method string
		path   string
		body   any
		status int
	}{
		{http.MethodPost, "/api/v1/devices", map[string]any{"name": "plc1", "type": "ModbusTCP"}, http.StatusCreated},
		{http.MethodPut, "/api/v1/devices/plc1/tags", map[string]any{"tag": map[string]any{"name": "T1", "address": "1"}}, http.StatusOK},
		{http.MethodDelete, "/api/v1/devices/plc1/tags/T1", nil, http.StatusOK},
		{http.MethodDelete, "/api/v1/devices/plc1/tags/T1", nil, http.StatusOK},
		{http.MethodDelete, "/api/v1/devices/plc1/tags?confirm=true", nil, http.StatusOK},
		{http.MethodDelete, "/api/v1/devices/plc1", nil, http.StatusNoContent},
	}
	for _, s := range steps {
		if w := do(t, router, s.method, s.path, s.body, "Authorization", bearer); w.Code != s.status {
			t.Fatalf("%s %s status = %d, want %d (body %s)", s.method, s.path, w.Code, s.status, w.Body.String())
		}
	}

	w := do(t, router, http.MethodGet, "/api/v1/audit?device=plc1", nil, "Authorization", bearer)
	if w.Code != http.StatusOK {
		t.Fatalf("audit status = %d (body %s)", w.Code, w.Body.String())
	}
	var res audit.ListResult
	decode(t, w, &res)

	// The second remove found nothing and is not recorded.
	want := []string{
		audit.ActionDeviceDelete,
		audit.ActionTagClear,
		audit.ActionTagRemove,
		audit.ActionTagEdit,
		audit.ActionDeviceCreate,
	}
	if res.Total != len(want) {
		t.Fatalf("Total = %d, want %d (%+v)", res.Total, len(want), res.Entries)
	}
	for i, action := range want {
		if res.Entries[i].Action != action {
			t.Errorf("entry %d action = %q, want %q", i, res.Entries[i].Action, action)
		}
		if res.Entries[i].Subject != "commissioner" {
			t.Errorf("entry %d subject = %q", i, res.Entries[i].Subject)
		}
	}
	if res.Entries[2].TagID != "T1" {
		t.Errorf("remove entry tag = %q, want T1", res.Entries[2].TagID)
	}
	if res.Entries[3].Details["outcome"] != "added" {
		t.Errorf("edit details = %v", res.Entries[3].Details)
	}
}

func TestAuditLog_QueryValidation(t *testing.T) {
	srv, _ := testServer(t, config.SecurityConfig{}, nil)
	router := srv.buildRouter()

	for _, q := range []string{"?limit=abc", "?offset=-1"} {
		w := do(t, router, http.MethodGet, "/api/v1/audit"+q, nil)
		assertError(t, w, http.StatusBadRequest, ErrCodeBadRequest)
	}

	w := do(t, router, http.MethodGet, "/api/v1/audit?limit=5&action=tag.edit", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("audit status = %d", w.Code)
	}
	var res audit.ListResult
	decode(t, w, &res)
	if res.Limit != 5 || res.Total != 0 || res.Entries == nil {
		t.Errorf("empty audit = %+v", res)
	}
}

func TestAuditLog_RequiresReadPermission(t *testing.T) {
	srv, _ := testServer(t, config.SecurityConfig{JWT: config.JWTConfig{
		Enabled: true,
		Secret:  testJWTSecret,
	}}, nil)

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/audit", nil)
	assertError(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)
}
