package relatorios

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/noel-cartinhas/noel/internal/cartas"
	"github.com/noel-cartinhas/noel/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	objects   map[string]bool
	deleted   []string
	deleteErr error
}

func (f *fakeStore) Bucket() string { return "bkt" }

func (f *fakeStore) List(_ context.Context, prefix string) ([]storage.Object, error) {
	var out []storage.Object
	for name := range f.objects {
		if strings.HasPrefix(name, prefix) {
			out = append(out, storage.Object{Name: name})
		}
	}
	return out, nil
}

func (f *fakeStore) Delete(_ context.Context, name string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, name)
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeStore) PresignedURL(_ context.Context, name string) (string, error) {
	return "http://signed.test/" + name, nil
}

type fakeSource struct {
	refs    []cartas.AttachmentRef
	deleted map[int]bool
	cleared []int
}

func (f *fakeSource) ActiveAttachments(context.Context) ([]cartas.AttachmentRef, error) {
	return f.refs, nil
}

func (f *fakeSource) ClearDeletedAttachments(_ context.Context, n int) (bool, error) {
	if !f.deleted[n] {
		return false, nil
	}
	f.cleared = append(f.cleared, n)
	return true, nil
}

func TestDeleteObjectClearsDeletedCarta(t *testing.T) {
	store := &fakeStore{objects: map[string]bool{"cartas/4/a.pdf": true, "cartas/4/a_thumb.jpg": true}}
	source := &fakeSource{deleted: map[int]bool{4: true}}
	svc := NewService(store, source)

	res, err := svc.DeleteObject(context.Background(), "cartas/4/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{"cartas/4/a.pdf", "cartas/4/a_thumb.jpg"}, store.deleted)
	assert.Equal(t, "cartas/4/a_thumb.jpg", res.ThumbObject)
	require.NotNil(t, res.ClearedCarta)
	assert.Equal(t, 4, *res.ClearedCarta)
}

func TestDeleteObjectRefusesReferenced(t *testing.T) {
	store := &fakeStore{objects: map[string]bool{"cartas/1/a.pdf": true}}
	source := &fakeSource{refs: []cartas.AttachmentRef{{LetterNumber: 1, AttachmentURL: "cartas/1/a.pdf"}}}

	_, err := NewService(store, source).DeleteObject(context.Background(), "cartas/1/a.pdf")
	assert.ErrorIs(t, err, ErrReferenced)
	assert.Empty(t, store.deleted)
}

func TestDeleteObjectValidatesName(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakeSource{})
	for _, name := range []string{"", "outros/x.pdf", "cartas/../etc"} {
		_, err := svc.DeleteObject(context.Background(), name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestDeleteObjectHandlerSurfacesStorageFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &fakeStore{objects: map[string]bool{}, deleteErr: errors.New("minio down")}
	r := gin.New()
	r.POST("/relatorios/api/delete-object", DeleteObjectHandler(NewService(store, &fakeSource{})))

	req := httptest.NewRequest(http.MethodPost, "/relatorios/api/delete-object", strings.NewReader(`{"object_name":"cartas/2/x.pdf"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestReportHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &fakeStore{objects: map[string]bool{"cartas/1/a.pdf": true, "cartas/2/b.pdf": true}}
	source := &fakeSource{refs: []cartas.AttachmentRef{{LetterNumber: 1, AttachmentURL: "cartas/1/a.pdf"}}}
	svc := NewService(store, source)

	r := gin.New()
	r.GET("/relatorios/anexos-orfaos", OrphansHandler(svc))
	r.GET("/relatorios/anexos-referenciados", ReferencedHandler(svc))
	r.GET("/relatorios/api/object-url", ObjectURLHandler(svc))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/relatorios/anexos-orfaos", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cartas/2/b.pdf")
	assert.NotContains(t, w.Body.String(), "cartas/1/a.pdf")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/relatorios/anexos-referenciados", nil))
	assert.Contains(t, w.Body.String(), "cartas/1/a.pdf")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/relatorios/api/object-url?object_name=cartas/1/a.pdf", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http://signed.test/cartas/1/a.pdf")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/relatorios/api/object-url?object_name=etc/passwd", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
