package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/noel-cartinhas/noel/internal/cartas"
	"github.com/noel-cartinhas/noel/internal/models"
	"github.com/noel-cartinhas/noel/internal/storage"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	thumbMaxSide  = 320
	thumbQuality  = 80
	maxImageBytes = 20 << 20
)

// ErrNotAnImage marks objects that get no thumbnail.
var ErrNotAnImage = errors.New("object is not a supported image")

// ObjectStore reads originals and writes thumbnails.
type ObjectStore interface {
	Get(ctx context.Context, name string) (io.ReadCloser, string, error)
	Put(ctx context.Context, name, contentType string, r io.Reader, size int64) error
	Delete(ctx context.Context, name string) error
}

// LetterStore reads letters and records their thumbnail. SetThumbnail
// fails with cartas.ErrStaleAttachment when the letter's attachment is no
// longer objectName.
type LetterStore interface {
	Get(ctx context.Context, n int) (*models.Carta, error)
	SetThumbnail(ctx context.Context, n int, objectName, thumb string) error
}

// Thumbnailer turns an uploaded image into a small JPEG next to it.
type Thumbnailer struct {
	Objects ObjectStore
	Letters LetterStore
}

// Generate builds the thumbnail of objectName and points letter n at it.
// It returns the thumbnail name, or "" when there was nothing to do: a PDF,
// a letter whose attachment has since changed, or a deleted letter.
func (t *Thumbnailer) Generate(ctx context.Context, n int, objectName string) (string, error) {
	if strings.EqualFold(path.Ext(objectName), ".pdf") || storage.IsThumb(objectName) {
		return "", nil
	}

	c, err := t.Letters.Get(ctx, n)
	if err != nil {
		return "", err
	}
	if c.AttachmentURL == nil || *c.AttachmentURL != objectName {
		return "", nil
	}

	rc, _, err := t.Objects.Get(ctx, objectName)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var out bytes.Buffer
	if err := Shrink(io.LimitReader(rc, maxImageBytes), &out, thumbMaxSide); err != nil {
		return "", err
	}

	thumb := storage.ThumbName(objectName)
	if err := t.Objects.Put(ctx, thumb, "image/jpeg", &out, int64(out.Len())); err != nil {
		return "", err
	}
	err = t.Letters.SetThumbnail(ctx, n, objectName, thumb)
	if errors.Is(err, cartas.ErrStaleAttachment) || errors.Is(err, cartas.ErrNotFound) {
		// A newer upload or a delete landed while shrinking.
		if derr := t.Objects.Delete(ctx, thumb); derr != nil {
			slog.Warn("Failed to remove unused thumbnail", "object", thumb, "error", derr)
		}
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("stored %s but failed to reference it: %w", thumb, err)
	}
	return thumb, nil
}

// Shrink decodes a JPEG, PNG or WEBP image from r and writes it to w as a
// JPEG whose longer side is at most maxSide. Smaller images keep their size.
func Shrink(r io.Reader, w io.Writer, maxSide int) error {
	src, _, err := image.Decode(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}

	b := src.Bounds()
	width, height := b.Dx(), b.Dy()
	if width > maxSide || height > maxSide {
		if width >= height {
			height = max(1, height*maxSide/width)
			width = maxSide
		} else {
			width = max(1, width*maxSide/height)
			height = maxSide
		}
	}

	// JPEG has no alpha; flatten transparent areas onto white.
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return jpeg.Encode(w, dst, &jpeg.Options{Quality: thumbQuality})
}
