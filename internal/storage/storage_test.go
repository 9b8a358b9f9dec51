package storage

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateMIME(t *testing.T) {
	tests := []struct {
		ct, file, want string
	}{
		{"application/pdf", "carta.pdf", ".pdf"},
		{"image/jpeg", "foto.JPEG", ".jpeg"},
		{"image/jpeg", "foto", ".jpg"},
		{"image/png; charset=binary", "x.png", ".png"},
		{"image/webp", "x.bin", ".webp"},
	}
	for _, tt := range tests {
		got, err := ValidateMIME(tt.ct, tt.file)
		require.NoError(t, err, tt.ct)
		assert.Equal(t, tt.want, got, tt.ct)
	}

	for _, ct := range []string{"", "text/plain", "image/gif", "application/zip"} {
		_, err := ValidateMIME(ct, "x")
		assert.ErrorIs(t, err, ErrMIMENotAllowed, ct)
	}
}

func TestObjectName(t *testing.T) {
	name := ObjectName(42, ".png")
	assert.Regexp(t, regexp.MustCompile(`^cartas/42/anexo-[0-9a-f]{32}\.png$`), name)
	assert.NotEqual(t, name, ObjectName(42, ".png"))
}

func TestThumbName(t *testing.T) {
	assert.Equal(t, "cartas/1/anexo-ab_thumb.jpg", ThumbName("cartas/1/anexo-ab.png"))
	assert.Equal(t, "cartas/1/anexo-ab_thumb.jpg", ThumbName("cartas/1/anexo-ab_thumb.jpg"))
	assert.True(t, IsThumb("cartas/1/x_thumb.jpg"))
	assert.False(t, IsThumb("cartas/1/x.jpg"))
}

func TestLetterNumberOf(t *testing.T) {
	n, ok := LetterNumberOf("cartas/17/anexo-1.pdf")
	assert.True(t, ok)
	assert.Equal(t, 17, n)

	for _, name := range []string{"cartas/abc/x.pdf", "outros/1/x.pdf", "cartas/5", "cartas/0/x.pdf"} {
		_, ok := LetterNumberOf(name)
		assert.False(t, ok, name)
	}
}

func TestLatestSkipsThumbnails(t *testing.T) {
	now := time.Now()
	objs := []Object{
		{Name: "cartas/1/a.pdf", LastModified: now.Add(-time.Hour)},
		{Name: "cartas/1/b.png", LastModified: now.Add(-time.Minute)},
		{Name: "cartas/1/b_thumb.jpg", LastModified: now},
	}
	got, ok := Latest(objs)
	require.True(t, ok)
	assert.Equal(t, "cartas/1/b.png", got.Name)

	_, ok = Latest([]Object{{Name: "cartas/1/b_thumb.jpg"}})
	assert.False(t, ok)
}

func TestSplitEndpoint(t *testing.T) {
	host, secure := splitEndpoint("https://s3.noel.org/")
	assert.Equal(t, "s3.noel.org", host)
	assert.True(t, secure)

	host, secure = splitEndpoint("minio:9000")
	assert.Equal(t, "minio:9000", host)
	assert.False(t, secure)
}
