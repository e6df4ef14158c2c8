package cdadocument

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/clinicaldocs/internal/platform/ccda"
	"github.com/ehr/clinicaldocs/pkg/pagination"
)

const systemActor = "system"

// Service is the document registry: it generates documents and drives them
// through Draft, Final, Signed and Sent. Writes to one document are
// serialised by the repository's conditional updates.
type Service struct {
	repo      Repository
	assembler *Assembler
	validator *ccda.Validator
	cache     TextCache
	metrics   *Metrics
	now       func() time.Time
	logger    zerolog.Logger
}

type Option func(s *Service)

// WithClock replaces time.Now as the source of document and audit times.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithTextCache(c TextCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func NewService(repo Repository, assembler *Assembler, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		assembler: assembler,
		validator: ccda.NewValidator(),
		now:       time.Now,
		logger:    logger.With().Str("component", "cda").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return systemActor
	}
	return actor
}

func (s *Service) event(e *zerolog.Event, rec *Record, actor string) *zerolog.Event {
	return e.
		Str("document_id", rec.ID.String()).
		Str("kind", rec.Kind.String()).
		Str("status", rec.Status().String()).
		Str("actor", actor)
}

// Generate assembles a new draft document with a fresh identifier and stores it.
func (s *Service) Generate(ctx context.Context, req Request, actor string) (*Record, error) {
	now := s.now()
	doc, err := s.assembler.Assemble(ctx, req, s.assembler.NewIdentifier(), actor, now)
	if err != nil {
		s.metrics.IncrementOperation("generate", "error")
		return nil, err
	}

	actor = actorOrSystem(actor)
	rec := &Record{
		Kind:            req.Kind,
		PatientID:       req.PatientID,
		PatientName:     doc.Header().Subject.Name,
		MedicalRecordID: req.MedicalRecordID,
		SourceID:        req.SourceID,
		Document:        doc,
		Text:            ccda.Serialize(doc),
		CreatedBy:       actor,
		CreatedAt:       now,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		s.metrics.IncrementOperation("generate", "error")
		return nil, fmt.Errorf("store document: %w", err)
	}

	s.metrics.IncrementGenerated(req.Kind)
	s.metrics.IncrementOperation("generate", "ok")
	s.event(s.logger.Info(), rec, actor).
		Str("extension", doc.ID().Extension).
		Msg("document generated")
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.repo.GetByID(ctx, id)
}

// GetRawText returns the serialized document, through the text cache when
// one is configured. Cache failures fall back to the repository.
func (s *Service) GetRawText(ctx context.Context, id uuid.UUID) ([]byte, error) {
	if s.cache != nil {
		text, ok, err := s.cache.Get(ctx, id)
		if err != nil {
			s.logger.Warn().Err(err).Str("document_id", id.String()).Msg("text cache read failed")
		} else {
			s.metrics.IncrementTextCache(ok)
			if ok {
				return text, nil
			}
		}
	}

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, id, rec.Text); err != nil {
			s.logger.Warn().Err(err).Str("document_id", id.String()).Msg("text cache write failed")
		}
	}
	return rec.Text, nil
}

// Search lists document summaries, newest first.
func (s *Service) Search(ctx context.Context, params SearchParams, page pagination.Params) (*pagination.Response[Summary], error) {
	page = pagination.New(page.Limit, page.Offset)
	recs, total, err := s.repo.Search(ctx, params, page)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	items := make([]Summary, 0, len(recs))
	for _, rec := range recs {
		items = append(items, rec.Summary())
	}
	return pagination.NewResponse(items, total, page), nil
}

// Validate checks the stored text and records the errors against the
// document. Warnings are returned but not stored.
func (s *Service) Validate(ctx context.Context, id uuid.UUID) (ccda.ValidationResult, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return ccda.ValidationResult{}, err
	}
	return s.validate(ctx, rec)
}

func (s *Service) validate(ctx context.Context, rec *Record) (ccda.ValidationResult, error) {
	result := s.validator.Validate(rec.Text)
	var errs []string
	if !result.IsValid {
		errs = result.Errors
	}

	err := s.repo.SetValidationErrors(ctx, rec.ID, rec.Version, errs)
	switch {
	case errors.Is(err, ErrStatusConflict):
		s.event(s.logger.Warn(), rec, systemActor).Msg("document changed during validation, result not stored")
	case err != nil:
		return result, fmt.Errorf("store validation result: %w", err)
	}

	s.metrics.IncrementValidation(result.IsValid)
	s.event(s.logger.Info(), rec, systemActor).
		Bool("valid", result.IsValid).
		Int("errors", len(result.Errors)).
		Int("warnings", len(result.Warnings)).
		Msg("document validated")
	return result, nil
}

// Finalize moves a draft to Final.
func (s *Service) Finalize(ctx context.Context, id uuid.UUID, actor string) (*Record, error) {
	return s.transition(ctx, "finalize", id, actor, ccda.StatusFinal, nil)
}

// RecordSignature stores the outcome of an external signing step: Final to Signed.
func (s *Service) RecordSignature(ctx context.Context, id uuid.UUID, signer string) (*Record, error) {
	return s.transition(ctx, "sign", id, signer, ccda.StatusSigned, func(r *Record, now time.Time) {
		r.SignedBy = &signer
		r.SignedAt = &now
	})
}

// RecordSent stores the outcome of an external delivery: Signed to Sent.
func (s *Service) RecordSent(ctx context.Context, id uuid.UUID, actor string) (*Record, error) {
	return s.transition(ctx, "send", id, actor, ccda.StatusSent, nil)
}

func (s *Service) transition(ctx context.Context, op string, id uuid.UUID, actor string, to ccda.Status, apply func(*Record, time.Time)) (*Record, error) {
	actor = actorOrSystem(actor)
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	from := rec.Status()
	next, err := rec.Document.WithStatus(to)
	if err != nil {
		return nil, s.reject(op, rec, actor, err)
	}

	now := s.now()
	updated := *rec
	updated.Document = next
	updated.UpdatedBy = &actor
	updated.UpdatedAt = &now
	if apply != nil {
		apply(&updated, now)
	}
	if err := s.repo.Update(ctx, &updated, from); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, s.reject(op, rec, actor, fmt.Errorf("%w: document %s changed concurrently", ccda.ErrInvalidStatusTransition, id))
		}
		s.metrics.IncrementOperation(op, "error")
		return nil, err
	}

	s.invalidate(ctx, id)
	s.metrics.IncrementOperation(op, "ok")
	s.event(s.logger.Info(), &updated, actor).Str("from", from.String()).Msg("document status changed")
	return &updated, nil
}

// Regenerate re-assembles a draft or final document from its original
// inputs. The identifier is kept; sections and text are replaced, stored
// validation errors are cleared and the status returns to Draft.
func (s *Service) Regenerate(ctx context.Context, id uuid.UUID, actor string) (*Record, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ccda.Editable(rec.Status()) {
		return nil, s.reject("regenerate", rec, actorOrSystem(actor),
			fmt.Errorf("%w: cannot regenerate a %s document", ccda.ErrInvalidStatusTransition, rec.Status()))
	}

	now := s.now()
	doc, err := s.assembler.Assemble(ctx, rec.Request(), rec.Document.ID(), actor, now)
	if err != nil {
		s.metrics.IncrementOperation("regenerate", "error")
		return nil, err
	}

	actor = actorOrSystem(actor)
	updated := *rec
	updated.Document = doc
	updated.Text = ccda.Serialize(doc)
	updated.PatientName = doc.Header().Subject.Name
	updated.UpdatedBy = &actor
	updated.UpdatedAt = &now
	if err := s.repo.Update(ctx, &updated, ccda.StatusDraft, ccda.StatusFinal); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, s.reject("regenerate", rec, actor, fmt.Errorf("%w: document %s changed concurrently", ccda.ErrInvalidStatusTransition, id))
		}
		s.metrics.IncrementOperation("regenerate", "error")
		return nil, err
	}

	s.invalidate(ctx, id)
	s.metrics.IncrementOperation("regenerate", "ok")
	s.event(s.logger.Info(), &updated, actor).Msg("document regenerated")
	return &updated, nil
}

// Delete soft-deletes a draft or final document.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor string) error {
	actor = actorOrSystem(actor)
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !ccda.Editable(rec.Status()) {
		return s.reject("delete", rec, actor, fmt.Errorf("%w: document is %s", ErrCannotDeleteSignedOrSent, rec.Status()))
	}

	if err := s.repo.SoftDelete(ctx, id, actor, ccda.StatusDraft, ccda.StatusFinal); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return s.reject("delete", rec, actor, fmt.Errorf("%w: document %s changed concurrently", ErrCannotDeleteSignedOrSent, id))
		}
		s.metrics.IncrementOperation("delete", "error")
		return err
	}

	s.invalidate(ctx, id)
	s.metrics.IncrementOperation("delete", "ok")
	s.event(s.logger.Info(), rec, actor).Msg("document deleted")
	return nil
}

func (s *Service) reject(op string, rec *Record, actor string, err error) error {
	s.metrics.IncrementOperation(op, "rejected")
	s.event(s.logger.Info(), rec, actor).Err(err).Str("operation", op).Msg("operation rejected")
	return err
}

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("document_id", id.String()).Msg("text cache invalidation failed")
	}
}

// RevalidateReport summarises a Revalidate run.
type RevalidateReport struct {
	Checked int
	Invalid int
}

const revalidatePageSize = 100

// Revalidate validates every stored document in status, at most
// concurrency at a time, and stores each result.
func (s *Service) Revalidate(ctx context.Context, status ccda.Status, concurrency int) (RevalidateReport, error) {
	var checked, invalid atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for offset := 0; ; offset += revalidatePageSize {
		recs, total, err := s.repo.ListByStatus(gctx, status, revalidatePageSize, offset)
		if err != nil {
			_ = g.Wait()
			return RevalidateReport{}, fmt.Errorf("list %s documents: %w", status, err)
		}
		for _, rec := range recs {
			g.Go(func() error {
				result, err := s.validate(gctx, rec)
				if err != nil {
					return err
				}
				checked.Add(1)
				if !result.IsValid {
					invalid.Add(1)
				}
				return nil
			})
		}
		if len(recs) == 0 || offset+len(recs) >= total {
			break
		}
	}

	err := g.Wait()
	return RevalidateReport{Checked: int(checked.Load()), Invalid: int(invalid.Load())}, err
}
