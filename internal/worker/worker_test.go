package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/noel-cartinhas/noel/internal/cartas"
	"github.com/noel-cartinhas/noel/internal/models"
	"github.com/noel-cartinhas/noel/internal/relatorios"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type memObjects struct {
	data  map[string][]byte
	puts  []string
	onGet func(name string)
}

func (m *memObjects) Get(_ context.Context, name string) (io.ReadCloser, string, error) {
	if m.onGet != nil {
		m.onGet(name)
	}
	b, ok := m.data[name]
	if !ok {
		return nil, "", fmt.Errorf("missing %s", name)
	}
	return io.NopCloser(bytes.NewReader(b)), "image/png", nil
}

func (m *memObjects) Put(_ context.Context, name, _ string, r io.Reader, _ int64) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.data[name] = b
	m.puts = append(m.puts, name)
	return nil
}

func (m *memObjects) Delete(_ context.Context, name string) error {
	delete(m.data, name)
	return nil
}

type memLetters struct {
	cartas map[int]*models.Carta
	thumbs map[int]string
}

func (m *memLetters) Get(_ context.Context, n int) (*models.Carta, error) {
	c, ok := m.cartas[n]
	if !ok {
		return nil, fmt.Errorf("%w: %d", cartas.ErrNotFound, n)
	}
	return c, nil
}

func (m *memLetters) SetThumbnail(_ context.Context, n int, objectName, thumb string) error {
	c, ok := m.cartas[n]
	if !ok {
		return fmt.Errorf("%w: %d", cartas.ErrNotFound, n)
	}
	if c.AttachmentURL == nil || *c.AttachmentURL != objectName {
		return fmt.Errorf("%w: %d", cartas.ErrStaleAttachment, n)
	}
	m.thumbs[n] = thumb
	return nil
}

func strPtr(s string) *string { return &s }

func TestShrinkKeepsAspectRatio(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Shrink(bytes.NewReader(pngBytes(t, 1000, 500)), &out, 320))

	img, err := jpeg.Decode(&out)
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 160, img.Bounds().Dy())

	out.Reset()
	require.NoError(t, Shrink(bytes.NewReader(pngBytes(t, 40, 90)), &out, 320))
	img, err = jpeg.Decode(&out)
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 90, img.Bounds().Dy())

	err = Shrink(strings.NewReader("%PDF-1.7"), &out, 320)
	assert.ErrorIs(t, err, ErrNotAnImage)
}

func TestGenerate(t *testing.T) {
	objects := &memObjects{data: map[string][]byte{"cartas/1/anexo-a.png": pngBytes(t, 800, 600)}}
	letters := &memLetters{
		cartas: map[int]*models.Carta{
			1: {LetterNumber: 1, AttachmentURL: strPtr("cartas/1/anexo-a.png")},
			2: {LetterNumber: 2, AttachmentURL: strPtr("cartas/2/anexo-new.png")},
		},
		thumbs: map[int]string{},
	}
	th := &Thumbnailer{Objects: objects, Letters: letters}
	ctx := context.Background()

	thumb, err := th.Generate(ctx, 1, "cartas/1/anexo-a.png")
	require.NoError(t, err)
	assert.Equal(t, "cartas/1/anexo-a_thumb.jpg", thumb)
	assert.Equal(t, thumb, letters.thumbs[1])
	assert.Equal(t, []string{thumb}, objects.puts)

	thumb, err = th.Generate(ctx, 1, "cartas/1/anexo-b.pdf")
	require.NoError(t, err)
	assert.Empty(t, thumb)

	// the letter moved on to a newer attachment
	thumb, err = th.Generate(ctx, 2, "cartas/2/anexo-old.png")
	require.NoError(t, err)
	assert.Empty(t, thumb)

	_, err = th.Generate(ctx, 9, "cartas/9/x.png")
	assert.ErrorIs(t, err, cartas.ErrNotFound)
}

func TestGenerateDropsThumbnailOfReplacedAttachment(t *testing.T) {
	letters := &memLetters{
		cartas: map[int]*models.Carta{3: {LetterNumber: 3, AttachmentURL: strPtr("cartas/3/anexo-old.png")}},
		thumbs: map[int]string{},
	}
	objects := &memObjects{data: map[string][]byte{"cartas/3/anexo-old.png": pngBytes(t, 400, 400)}}
	// a new upload lands while the old image is being shrunk
	objects.onGet = func(string) {
		letters.cartas[3].AttachmentURL = strPtr("cartas/3/anexo-new.png")
	}

	thumb, err := (&Thumbnailer{Objects: objects, Letters: letters}).Generate(context.Background(), 3, "cartas/3/anexo-old.png")
	require.NoError(t, err)
	assert.Empty(t, thumb)
	assert.Empty(t, letters.thumbs)
	assert.NotContains(t, objects.data, "cartas/3/anexo-old_thumb.jpg")
}

func TestHandleThumbnail(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	letters := &memLetters{cartas: map[int]*models.Carta{}, thumbs: map[int]string{}}
	h := handleThumbnail(logger, &Thumbnailer{Objects: &memObjects{data: map[string][]byte{}}, Letters: letters})

	err := h(context.Background(), asynq.NewTask(TaskThumbnail, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	task, err := NewThumbnailTask(5, "cartas/5/a.png")
	require.NoError(t, err)
	assert.Equal(t, TaskThumbnail, task.Type())
	assert.JSONEq(t, `{"letter_number":5,"object_name":"cartas/5/a.png"}`, string(task.Payload()))

	// a letter deleted before the task ran is not an error
	assert.NoError(t, h(context.Background(), task))
}

type fakeReporter struct {
	rep relatorios.Report
	err error
}

func (f fakeReporter) Build(context.Context) (relatorios.Report, error) { return f.rep, f.err }

func TestHandleOrphanScan(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info", "json")

	rep := relatorios.Report{Orphaned: []relatorios.Entry{{ObjectName: "cartas/1/a.pdf", Size: 10}, {ObjectName: "cartas/2/b.pdf", Size: 5}}}
	require.NoError(t, handleOrphanScan(logger, fakeReporter{rep: rep})(context.Background(), asynq.NewTask(TaskOrphanScan, nil)))
	assert.Contains(t, buf.String(), `"orphaned":2`)
	assert.Contains(t, buf.String(), `"orphaned_bytes":15`)

	err := handleOrphanScan(logger, fakeReporter{err: errors.New("minio down")})(context.Background(), nil)
	assert.Error(t, err)

	err = handleOrphanScan(logger, nil)(context.Background(), nil)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
