package relatorios

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/noel-cartinhas/noel/internal/cartas"
	"github.com/noel-cartinhas/noel/internal/storage"
)

var (
	ErrInvalidName = errors.New("object name must be under " + storage.Prefix)
	ErrReferenced  = errors.New("object is referenced by a live carta")
)

// ObjectStore is the slice of storage the reports need.
type ObjectStore interface {
	Bucket() string
	List(ctx context.Context, prefix string) ([]storage.Object, error)
	Delete(ctx context.Context, name string) error
	PresignedURL(ctx context.Context, name string) (string, error)
}

// AttachmentSource reads and clears letter attachment references.
type AttachmentSource interface {
	ActiveAttachments(ctx context.Context) ([]cartas.AttachmentRef, error)
	ClearDeletedAttachments(ctx context.Context, n int) (bool, error)
}

// Service builds reports and removes orphans.
type Service struct {
	store  ObjectStore
	source AttachmentSource
}

func NewService(store ObjectStore, source AttachmentSource) *Service {
	return &Service{store: store, source: source}
}

// Build lists the bucket and reconciles it against live letters.
func (s *Service) Build(ctx context.Context) (Report, error) {
	objs, err := s.store.List(ctx, storage.Prefix)
	if err != nil {
		return Report{}, err
	}
	refs, err := s.source.ActiveAttachments(ctx)
	if err != nil {
		return Report{}, err
	}
	return Reconcile(objs, refs, s.store.Bucket()), nil
}

// ObjectURL signs a temporary link to name.
func (s *Service) ObjectURL(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if !strings.HasPrefix(name, storage.Prefix) {
		return "", ErrInvalidName
	}
	return s.store.PresignedURL(ctx, name)
}

// DeleteResult reports what DeleteObject touched.
type DeleteResult struct {
	ObjectName   string `json:"object_name"`
	ThumbObject  string `json:"thumb_object,omitempty"`
	ClearedCarta *int   `json:"cleared_carta,omitempty"`
}

// DeleteObject removes an unreferenced object and its thumbnail. If the
// object belonged to a soft-deleted letter, that letter's attachment
// references are cleared as well.
func (s *Service) DeleteObject(ctx context.Context, name string) (DeleteResult, error) {
	name = strings.TrimSpace(name)
	if !strings.HasPrefix(name, storage.Prefix) || strings.Contains(name, "..") {
		return DeleteResult{}, ErrInvalidName
	}

	refs, err := s.source.ActiveAttachments(ctx)
	if err != nil {
		return DeleteResult{}, err
	}
	names, _ := referenced(refs, s.store.Bucket())
	if _, ok := names[name]; ok {
		return DeleteResult{}, fmt.Errorf("%w: %s", ErrReferenced, name)
	}

	if err := s.store.Delete(ctx, name); err != nil {
		return DeleteResult{}, err
	}
	res := DeleteResult{ObjectName: name}

	if !storage.IsThumb(name) {
		thumb := storage.ThumbName(name)
		if err := s.store.Delete(ctx, thumb); err != nil {
			slog.Debug("Thumbnail delete failed", "object", thumb, "error", err)
		} else {
			res.ThumbObject = thumb
		}
	}

	if n, ok := storage.LetterNumberOf(name); ok {
		cleared, err := s.source.ClearDeletedAttachments(ctx, n)
		if err != nil {
			slog.Warn("Failed to clear attachments of deleted carta", "letter_number", n, "error", err)
		} else if cleared {
			res.ClearedCarta = &n
		}
	}
	return res, nil
}
