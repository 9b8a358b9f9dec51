package cartas

import (
	"context"
	"errors"
	"log/slog"

	"github.com/noel-cartinhas/noel/internal/events"
	"github.com/noel-cartinhas/noel/internal/metrics"
	"github.com/noel-cartinhas/noel/internal/models"
)

// Service runs lifecycle operations and reports each one to the event
// recorder and the transition counters.
type Service struct {
	repo   *Repository
	events events.Recorder
}

// NewService wires a repository to an event recorder. A nil recorder drops events.
func NewService(repo *Repository, rec events.Recorder) *Service {
	if rec == nil {
		rec = events.Discard{}
	}
	return &Service{repo: repo, events: rec}
}

func (s *Service) Repository() *Repository { return s.repo }

func (s *Service) Get(ctx context.Context, n int) (*models.Carta, error) {
	return s.repo.GetLive(ctx, n)
}

func (s *Service) List(ctx context.Context, f Filter) ([]models.Carta, int64, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) Create(ctx context.Context, actor string, in CreateInput) (*models.Carta, error) {
	return s.create(ctx, actor, in, nil)
}

func (s *Service) create(ctx context.Context, actor string, in CreateInput, payload map[string]interface{}) (*models.Carta, error) {
	c, err := s.repo.Create(ctx, in)
	metrics.ObserveTransition(OpCreate, Outcome(err))
	if err != nil {
		return nil, err
	}
	s.record(ctx, OpCreate, normaliseEmail(actor), c, payload)
	return c, nil
}

func (s *Service) Adopt(ctx context.Context, n int, email string) (*models.Carta, error) {
	return s.apply(ctx, n, Adopt(email))
}

func (s *Service) Cancel(ctx context.Context, n int, requester string) (*models.Carta, error) {
	return s.apply(ctx, n, Cancel(requester))
}

func (s *Service) Release(ctx context.Context, n int, requester string, isAdmin bool) (*models.Carta, error) {
	return s.apply(ctx, n, Release(requester, isAdmin))
}

func (s *Service) Deliver(ctx context.Context, n int, admin string) (*models.Carta, error) {
	return s.apply(ctx, n, Deliver(admin))
}

func (s *Service) Undeliver(ctx context.Context, n int, actor string) (*models.Carta, error) {
	return s.apply(ctx, n, Undeliver(actor))
}

func (s *Service) Delete(ctx context.Context, n int, actor string) (*models.Carta, error) {
	return s.apply(ctx, n, SoftDelete(actor))
}

func (s *Service) Update(ctx context.Context, n int, actor string, p Patch) (*models.Carta, error) {
	return s.apply(ctx, n, Update(actor, p))
}

// SetThumbnail points letter n at thumb when its attachment is still
// objectName, and fails with ErrStaleAttachment otherwise.
func (s *Service) SetThumbnail(ctx context.Context, n int, objectName, thumb string) error {
	_, err := s.apply(ctx, n, AttachThumbnail(objectName, thumb))
	return err
}

func (s *Service) apply(ctx context.Context, n int, t Transition) (*models.Carta, error) {
	c, err := s.repo.Apply(ctx, n, t)
	metrics.ObserveTransition(t.Op, Outcome(err))
	if err != nil {
		return nil, err
	}
	s.record(ctx, t.Op, t.Actor, c, nil)
	return c, nil
}

func (s *Service) record(ctx context.Context, op, actor string, c *models.Carta, payload map[string]interface{}) {
	e := events.New(op, c.LetterNumber, actor, c.Status)
	e.Payload = payload
	if err := s.events.Record(ctx, e); err != nil {
		slog.Warn("Failed to record carta event", "op", op, "letter_number", c.LetterNumber, "error", err)
	}
}

// Outcome classifies an operation error for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotPermitted):
		return "rejected"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrStaleAttachment):
		return "stale"
	}
	return "error"
}
