package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/check", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ana@noel.org", body["username"])
		assert.Equal(t, "s3cret", body["password"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"info":{"displayName":["Ana Souza"],"employeeID":"MAT-1"}}`))
	}))
	defer srv.Close()

	id, err := NewClient(srv.URL, time.Second, false).Check(context.Background(), "Ana@noel.org", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "ana@noel.org", id.Email())
	assert.Equal(t, "Ana Souza", id.DisplayName())
	assert.Equal(t, "MAT-1", id.EmployeeID())
}

func TestCheckRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, false).Check(context.Background(), "ana@noel.org", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCheckUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 20*time.Millisecond, false).Check(context.Background(), "ana@noel.org", "x")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCheckEmptyPassword(t *testing.T) {
	_, err := NewClient("http://unused", time.Second, true).Check(context.Background(), "ana@noel.org", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestStubMode(t *testing.T) {
	id, err := NewClient("http://unused", time.Second, true).Check(context.Background(), "dev@noel.org", "anything")
	require.NoError(t, err)
	assert.Equal(t, "dev", id.DisplayName())
}

func TestPingVersion(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"version key", `{"version":"2.3.1"}`, "2.3.1"},
		{"app_version key", `{"app_version":"1.0"}`, "1.0"},
		{"semver in text", `LDAP bridge v1.4.2 ready`, "v1.4.2"},
		{"nothing", `{"status":"ok"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			v, err := NewClient(srv.URL, time.Second, false).Ping(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestPingNonOKIsDown(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusBadGateway} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(`{"version":"2.3.1"}`))
		}))

		v, err := NewClient(srv.URL, time.Second, false).Ping(context.Background())
		srv.Close()
		assert.ErrorIs(t, err, ErrUnavailable, "status %d", code)
		assert.Empty(t, v, "status %d", code)
	}
}

func TestDisplayNameFallbacks(t *testing.T) {
	assert.Equal(t, "Bia", (&Identity{Username: "b@x.com", Info: map[string]interface{}{"cn": "Bia"}}).DisplayName())
	assert.Equal(t, "b", (&Identity{Username: "b@x.com"}).DisplayName())
	assert.Equal(t, "MAT-9", (&Identity{Info: map[string]interface{}{"matricula": "MAT-9"}}).EmployeeID())
}
