package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/uniform-points/internal/model"
)

func TestAuthMiddleware_WithValidToken(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	token, err := m.IssueToken(model.Actor{ID: 42, Role: model.RoleTailorOperator}, time.Hour)
	require.NoError(t, err)

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		actor, ok := ActorFromContext(r.Context())
		require.True(t, ok, "actor not in context")
		assert.Equal(t, int64(42), actor.ID)
		assert.Equal(t, model.RoleTailorOperator, actor.Role)
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)
	assert.True(t, nextCalled, "next handler was not called")
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	foreign, err := NewAuthMiddleware("other-secret").IssueToken(model.Actor{ID: 1, Role: model.RoleStaff}, time.Hour)
	require.NoError(t, err)
	expired, err := m.IssueToken(model.Actor{ID: 1, Role: model.RoleStaff}, -time.Minute)
	require.NoError(t, err)
	badRole, err := m.IssueToken(model.Actor{ID: 1, Role: "admin"}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "no header", header: ""},
		{name: "not bearer", header: "Basic dXNlcjpwYXNz"},
		{name: "foreign signature", header: "Bearer " + foreign},
		{name: "expired", header: "Bearer " + expired},
		{name: "unknown role", header: "Bearer " + badRole},
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			m.Middleware(next).ServeHTTP(w, r)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), `"success":false`)
		})
	}
}

func TestRequireRole(t *testing.T) {
	gate := RequireRole(model.RoleStaff, model.RoleStoreOperator)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name   string
		actor  *model.Actor
		status int
	}{
		{name: "allowed", actor: &model.Actor{ID: 1, Role: model.RoleStoreOperator}, status: http.StatusNoContent},
		{name: "forbidden", actor: &model.Actor{ID: 2, Role: model.RoleBeneficiary}, status: http.StatusForbidden},
		{name: "anonymous", actor: nil, status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
			if tt.actor != nil {
				r = r.WithContext(WithActor(r.Context(), *tt.actor))
			}
			w := httptest.NewRecorder()

			gate(ok).ServeHTTP(w, r)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
