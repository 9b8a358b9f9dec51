package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct{ err error }

func (f fakeStorage) Ready(context.Context) error { return f.err }

type fakeIdentity struct {
	version string
	err     error
}

func (f fakeIdentity) Ping(context.Context) (string, error) { return f.version, f.err }

func fixedNow() time.Time { return time.Date(2025, 12, 24, 9, 0, 0, 0, time.UTC) }

func decode(t *testing.T, w *httptest.ResponseRecorder) Status {
	t.Helper()
	var st Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	return st
}

func TestHandlerAllUp(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	c := &Checker{
		Version:  "1.4.0",
		DB:       db,
		Storage:  fakeStorage{},
		Identity: fakeIdentity{version: "2.0.1"},
		now:      fixedNow,
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	c.Handler(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	st := decode(t, w)
	assert.Equal(t, "ok", st.Status)
	assert.Equal(t, "1.4.0", st.Version)
	assert.True(t, st.DBOK)
	assert.True(t, st.MinioOK)
	assert.True(t, st.LDAPOK)
	require.NotNil(t, st.LDAPVersion)
	assert.Equal(t, "2.0.1", *st.LDAPVersion)
	assert.Equal(t, "2025-12-24T09:00:00Z", st.Time)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlerDegraded(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	c := &Checker{DB: db, Storage: fakeStorage{}, Identity: fakeIdentity{err: errors.New("timeout")}, DSN: "postgres://noel:***@db/noel"}
	w := httptest.NewRecorder()
	c.DebugHandler(w, httptest.NewRequest(http.MethodGet, "/health/debug", nil))

	st := decode(t, w)
	assert.Equal(t, "degraded", st.Status)
	assert.False(t, st.DBOK)
	assert.True(t, st.MinioOK)
	assert.False(t, st.LDAPOK)
	assert.Nil(t, st.LDAPVersion)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestHandlerDownWithoutProbes(t *testing.T) {
	w := httptest.NewRecorder()
	(&Checker{}).Handler(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "down", decode(t, w).Status)
}

func TestAggregate(t *testing.T) {
	assert.Equal(t, "ok", Aggregate(true, true, true))
	assert.Equal(t, "degraded", Aggregate(false, true, false))
	assert.Equal(t, "down", Aggregate(false, false, false))
}
