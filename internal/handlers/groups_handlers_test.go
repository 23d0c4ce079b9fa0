package handlers

import (
	"net/http"
	"testing"

	"github.com/docvault/backend/internal/models"
)

func TestGroupsEndpoints(t *testing.T) {
	env := setupTestEnv(t)
	adminUser, adminToken := createTestUser(t, env.db, "admin", "password123", models.UserRoleAdmin, nil)

	var groupID string

	t.Run("POST /api/groups/ admin creates a group", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/", map[string]any{
			"name":        "Records",
			"description": "case records",
		}, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusCreated)
		data := body["data"].(map[string]any)
		groupID = data["id"].(string)
		if data["name"] != "Records" {
			t.Fatalf("expected name Records, got %v", data["name"])
		}
	})

	t.Run("POST /api/groups/ duplicate name conflicts", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/", map[string]any{
			"name": "Records",
		}, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusConflict)
		assertEnvelopeError(t, body, "group name already exists")
	})

	group := createTestGroup(t, env.db, "Archive", adminUser.ID)
	_, groupAdminToken := createTestUser(t, env.db, "chief", "password123", models.UserRoleGroupAdmin, &group.ID)
	member, memberToken := createTestUser(t, env.db, "member", "password123", models.UserRoleUser, &group.ID)

	t.Run("POST /api/groups/ group admin forbidden", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/", map[string]any{
			"name": "Rogue",
		}, authHeaders(groupAdminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusForbidden)
		assertEnvelopeError(t, body, "administrator privileges required")
	})

	t.Run("GET /api/groups/ admin lists all groups", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/groups/", nil, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		if got := len(body["data"].([]any)); got != 2 {
			t.Fatalf("expected 2 groups, got %d", got)
		}
	})

	t.Run("GET /api/groups/ group admin sees only own group", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/groups/", nil, authHeaders(groupAdminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data := body["data"].([]any)
		if len(data) != 1 {
			t.Fatalf("expected 1 group, got %d", len(data))
		}
		if data[0].(map[string]any)["name"] != "Archive" {
			t.Fatalf("expected Archive, got %v", data[0])
		}
	})

	t.Run("GET /api/groups/ plain user forbidden", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/groups/", nil, authHeaders(memberToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusForbidden)
		assertEnvelopeError(t, body, "you do not have permission to view groups")
	})

	t.Run("GET /api/groups/:id group admin reads own group with members", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/groups/"+group.ID.String(), nil, authHeaders(groupAdminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data := body["data"].(map[string]any)
		members := data["members"].([]any)
		if len(members) != 2 {
			t.Fatalf("expected 2 members, got %d", len(members))
		}
	})

	t.Run("GET /api/groups/:id plain user forbidden even for own group", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/groups/"+group.ID.String(), nil, authHeaders(memberToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusForbidden)
		assertEnvelopeError(t, body, "regular users cannot view group details")
	})

	t.Run("GET /api/groups/:id group admin cannot read another group", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/groups/"+groupID, nil, authHeaders(groupAdminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusForbidden)
		assertEnvelopeError(t, body, "you do not have permission to view this group")
	})

	t.Run("PUT /api/groups/:id group admin renames own group", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/groups/"+group.ID.String(), map[string]any{
			"name": "Archive 2",
		}, authHeaders(groupAdminToken))
		assertStatus(t, resp, http.StatusOK)
	})

	t.Run("PUT /api/groups/:id rename onto taken name conflicts", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/groups/"+group.ID.String(), map[string]any{
			"name": "Records",
		}, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusConflict)
		assertEnvelopeError(t, body, "group name already exists")
	})

	t.Run("DELETE /api/groups/:id refuses while members remain", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/groups/"+group.ID.String(), nil, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusConflict)
		assertEnvelopeError(t, body, "cannot delete a group that still has users")
	})

	t.Run("DELETE /api/groups/:id refuses while documents remain", func(t *testing.T) {
		doc := uploadTestDocument(t, env, member, "GRP-DOC-1")
		if err := env.db.Model(&models.User{}).Where("group_id = ?", group.ID).Update("group_id", nil).Error; err != nil {
			t.Fatalf("failed ungrouping members: %v", err)
		}

		resp := performRequest(t, env.app, http.MethodDelete, "/api/groups/"+group.ID.String(), nil, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusConflict)
		assertEnvelopeError(t, body, "cannot delete a group that still has documents")

		if err := env.db.Delete(&models.Document{}, "id = ?", doc.ID).Error; err != nil {
			t.Fatalf("failed removing document: %v", err)
		}
	})

	t.Run("DELETE /api/groups/:id empty group deleted", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/groups/"+group.ID.String(), nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)

		var count int64
		if err := env.db.Model(&models.Group{}).Where("id = ?", group.ID).Count(&count).Error; err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 0 {
			t.Fatal("expected group row removed")
		}
	})
}
