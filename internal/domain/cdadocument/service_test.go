package cdadocument

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/ehr/clinicaldocs/internal/platform/ccda"
	"github.com/ehr/clinicaldocs/pkg/pagination"
)

// -- Mock Repository --

// mockRepo stores copies of records and applies the same version and status
// checks as the Postgres repository.
type mockRepo struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*Record
	deleted map[uuid.UUID]bool
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Record), deleted: make(map[uuid.UUID]bool)}
}

func statusIn(s ccda.Status, from []ccda.Status) bool {
	for _, f := range from {
		if s == f {
			return true
		}
	}
	return false
}

func (m *mockRepo) Create(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.Version = 1
	stored := *r
	m.items[r.ID] = &stored
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok || m.deleted[id] {
		return nil, ErrDocumentNotFound
	}
	out := *r
	return &out, nil
}

func (m *mockRepo) Update(_ context.Context, r *Record, from ...ccda.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[r.ID]
	if !ok || m.deleted[r.ID] {
		return ErrDocumentNotFound
	}
	if stored.Version != r.Version || !statusIn(stored.Status(), from) {
		return ErrStatusConflict
	}
	r.Version++
	next := *r
	m.items[r.ID] = &next
	return nil
}

func (m *mockRepo) SoftDelete(_ context.Context, id uuid.UUID, _ string, from ...ccda.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[id]
	if !ok || m.deleted[id] {
		return ErrDocumentNotFound
	}
	if !statusIn(stored.Status(), from) {
		return ErrStatusConflict
	}
	m.deleted[id] = true
	stored.Version++
	return nil
}

func (m *mockRepo) SetValidationErrors(_ context.Context, id uuid.UUID, version int, errs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[id]
	if !ok || m.deleted[id] {
		return ErrDocumentNotFound
	}
	if stored.Version != version {
		return ErrStatusConflict
	}
	next := *stored
	next.Document = stored.Document.WithValidationErrors(errs)
	m.items[id] = &next
	return nil
}

func (m *mockRepo) filter(keep func(*Record) bool, newestFirst bool) []*Record {
	var out []*Record
	for id, r := range m.items {
		if m.deleted[id] || !keep(r) {
			continue
		}
		c := *r
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func window(recs []*Record, limit, offset int) []*Record {
	if offset >= len(recs) {
		return nil
	}
	end := offset + limit
	if end > len(recs) {
		end = len(recs)
	}
	return recs[offset:end]
}

func (m *mockRepo) Search(_ context.Context, p SearchParams, page pagination.Params) ([]*Record, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.filter(func(r *Record) bool {
		return (p.PatientID == nil || r.PatientID == *p.PatientID) &&
			(p.Kind == nil || r.Kind == *p.Kind) &&
			(p.Status == nil || r.Status() == *p.Status)
	}, true)
	return window(all, page.Limit, page.Offset), len(all), nil
}

func (m *mockRepo) ListByStatus(_ context.Context, status ccda.Status, limit, offset int) ([]*Record, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.filter(func(r *Record) bool { return r.Status() == status }, false)
	return window(all, limit, offset), len(all), nil
}

// corrupt overwrites the stored text so validation fails.
func (m *mockRepo) corrupt(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[id].Text = []byte("<ClinicalDocument")
}

// -- Fake Text Cache --

type fakeCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID][]byte
	fail    bool
}

func newFakeCache() *fakeCache { return &fakeCache{entries: make(map[uuid.UUID][]byte)} }

var errCacheDown = errors.New("cache down")

func (c *fakeCache) Get(_ context.Context, id uuid.UUID) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return nil, false, errCacheDown
	}
	b, ok := c.entries[id]
	return b, ok, nil
}

func (c *fakeCache) Set(_ context.Context, id uuid.UUID, text []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errCacheDown
	}
	c.entries[id] = text
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

func (c *fakeCache) has(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

// -- Helpers --

// tickingClock advances one minute per call.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

type serviceFixture struct {
	svc     *Service
	repo    *mockRepo
	cache   *fakeCache
	metrics *Metrics
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		repo:    newMockRepo(),
		cache:   newFakeCache(),
		metrics: NewMetrics(prometheus.NewRegistry()),
	}
	clock := &tickingClock{now: testNow}
	assembler := NewAssembler(newSource(dischargeSnapshot()), testOrg(), zerolog.Nop(), f.metrics)
	f.svc = NewService(f.repo, assembler, zerolog.Nop(),
		WithClock(clock.Now),
		WithTextCache(f.cache),
		WithMetrics(f.metrics),
	)
	return f
}

func (f *serviceFixture) generate(t *testing.T, kind Kind) *Record {
	t.Helper()
	rec, err := f.svc.Generate(context.Background(), forRecord(kind), "u-42")
	if err != nil {
		t.Fatalf("Generate(%s): %v", kind, err)
	}
	return rec
}

func (f *serviceFixture) operations(op, result string) float64 {
	return testutil.ToFloat64(f.metrics.Operations.WithLabelValues(op, result))
}

// -- Generate --

func TestService_Generate(t *testing.T) {
	f := newServiceFixture(t)
	rec := f.generate(t, KindDischargeSummary)

	if rec.ID == uuid.Nil || rec.Version != 1 {
		t.Errorf("unexpected id/version %s/%d", rec.ID, rec.Version)
	}
	if rec.Status() != ccda.StatusDraft {
		t.Errorf("status = %s, want draft", rec.Status())
	}
	if rec.PatientName != "Nguyen Van An" || rec.CreatedBy != "u-42" {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.MedicalRecordID == nil || *rec.MedicalRecordID != testRecordID {
		t.Errorf("medical record id not kept: %v", rec.MedicalRecordID)
	}
	if len(rec.Text) == 0 {
		t.Fatal("expected serialized text")
	}
	if res := ccda.NewValidator().Validate(rec.Text); !res.IsValid {
		t.Errorf("generated text invalid: %v", res.Errors)
	}

	stored, err := f.svc.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Document.ID() != rec.Document.ID() {
		t.Errorf("stored identifier %s != %s", stored.Document.ID(), rec.Document.ID())
	}

	if got := testutil.ToFloat64(f.metrics.Generated.WithLabelValues("discharge-summary")); got != 1 {
		t.Errorf("generated counter = %v, want 1", got)
	}
	if got := f.operations("generate", "ok"); got != 1 {
		t.Errorf("generate ok = %v, want 1", got)
	}
}

func TestService_GenerateSystemActor(t *testing.T) {
	f := newServiceFixture(t)
	rec, err := f.svc.Generate(context.Background(), forRecord(KindLabReport), "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if rec.CreatedBy != "system" {
		t.Errorf("CreatedBy = %q, want system", rec.CreatedBy)
	}
	if au := rec.Document.Header().Author; au.ID != "system" {
		t.Errorf("author = %+v", au)
	}
}

func TestService_GenerateUnknownPatient(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Generate(context.Background(), Request{Kind: KindPrescription, PatientID: uuid.New()}, "u-42")
	if !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
	if len(f.repo.items) != 0 {
		t.Errorf("expected nothing stored, got %d records", len(f.repo.items))
	}
	if got := f.operations("generate", "error"); got != 1 {
		t.Errorf("generate error = %v, want 1", got)
	}
}

func TestService_GetUnknown(t *testing.T) {
	f := newServiceFixture(t)
	if _, err := f.svc.Get(context.Background(), uuid.New()); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
	if _, err := f.svc.Finalize(context.Background(), uuid.New(), "u-42"); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("Finalize: expected ErrDocumentNotFound, got %v", err)
	}
}

// -- Lifecycle --

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	rec := f.generate(t, KindPrescription)

	if _, err := f.svc.RecordSent(ctx, rec.ID, "u-42"); !errors.Is(err, ccda.ErrInvalidStatusTransition) {
		t.Fatalf("send from draft: expected ErrInvalidStatusTransition, got %v", err)
	}

	final, err := f.svc.Finalize(ctx, rec.ID, "u-42")
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if final.Status() != ccda.StatusFinal || final.Version != 2 {
		t.Errorf("after finalize: status %s version %d", final.Status(), final.Version)
	}
	if final.UpdatedBy == nil || *final.UpdatedBy != "u-42" || final.UpdatedAt == nil {
		t.Errorf("audit fields not set: %+v", final)
	}

	signed, err := f.svc.RecordSignature(ctx, rec.ID, "dr.binh")
	if err != nil {
		t.Fatalf("RecordSignature: %v", err)
	}
	if signed.Status() != ccda.StatusSigned || signed.SignedBy == nil || *signed.SignedBy != "dr.binh" || signed.SignedAt == nil {
		t.Errorf("unexpected signed record %+v", signed)
	}

	sent, err := f.svc.RecordSent(ctx, rec.ID, "")
	if err != nil {
		t.Fatalf("RecordSent: %v", err)
	}
	if sent.Status() != ccda.StatusSent || *sent.UpdatedBy != "system" {
		t.Errorf("unexpected sent record %+v", sent)
	}
	if sent.Document.ID() != rec.Document.ID() {
		t.Error("identifier changed during lifecycle")
	}

	if _, err := f.svc.Finalize(ctx, rec.ID, "u-42"); !errors.Is(err, ccda.ErrInvalidStatusTransition) {
		t.Errorf("finalize sent: expected ErrInvalidStatusTransition, got %v", err)
	}
	if got := f.operations("finalize", "rejected"); got != 1 {
		t.Errorf("finalize rejected = %v, want 1", got)
	}
}

func TestService_FinalizeTwice(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	rec := f.generate(t, KindLabReport)

	if _, err := f.svc.Finalize(ctx, rec.ID, "u-42"); err != nil {
		t.Fatalf("first Finalize: %v", err)
	}
	if _, err := f.svc.Finalize(ctx, rec.ID, "u-42"); !errors.Is(err, ccda.ErrInvalidStatusTransition) {
		t.Fatalf("second Finalize: expected ErrInvalidStatusTransition, got %v", err)
	}
}

func TestService_ConcurrentFinalize(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		f := newServiceFixture(t)
		rec := f.generate(t, KindProgressNote)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for j := range errs {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				_, errs[j] = f.svc.Finalize(ctx, rec.ID, "u-42")
			}(j)
		}
		wg.Wait()

		ok, rejected := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ccda.ErrInvalidStatusTransition):
				rejected++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if ok != 1 || rejected != 1 {
			t.Fatalf("run %d: %d succeeded, %d rejected; want exactly one of each", i, ok, rejected)
		}

		stored, _ := f.svc.Get(ctx, rec.ID)
		if stored.Status() != ccda.StatusFinal || stored.Version != 2 {
			t.Fatalf("run %d: stored status %s version %d", i, stored.Status(), stored.Version)
		}
	}
}

// -- Regenerate --

func TestService_Regenerate(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	rec := f.generate(t, KindDischargeSummary)

	f.repo.corrupt(rec.ID)
	if res, err := f.svc.Validate(ctx, rec.ID); err != nil || res.IsValid {
		t.Fatalf("Validate corrupted: valid=%v err=%v", res.IsValid, err)
	}
	if _, err := f.svc.Finalize(ctx, rec.ID, "u-42"); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	regen, err := f.svc.Regenerate(ctx, rec.ID, "u-7")
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if regen.ID != rec.ID || regen.Document.ID() != rec.Document.ID() {
		t.Errorf("identifier changed: %s -> %s", rec.Document.ID(), regen.Document.ID())
	}
	if regen.Status() != ccda.StatusDraft {
		t.Errorf("status = %s, want draft", regen.Status())
	}
	if errs := regen.Document.ValidationErrors(); len(errs) != 0 {
		t.Errorf("validation errors not cleared: %v", errs)
	}
	if res := ccda.NewValidator().Validate(regen.Text); !res.IsValid {
		t.Errorf("regenerated text invalid: %v", res.Errors)
	}
	if regen.Version != 3 || *regen.UpdatedBy != "u-7" || regen.CreatedBy != "u-42" {
		t.Errorf("unexpected audit fields: version %d updated_by %v created_by %s", regen.Version, *regen.UpdatedBy, regen.CreatedBy)
	}
}

func TestService_RegenerateSignedRejected(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	rec := f.generate(t, KindOperativeNote)
	if _, err := f.svc.Finalize(ctx, rec.ID, "u-42"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.RecordSignature(ctx, rec.ID, "dr.binh"); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Regenerate(ctx, rec.ID, "u-42"); !errors.Is(err, ccda.ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}
	stored, _ := f.svc.Get(ctx, rec.ID)
	if stored.Status() != ccda.StatusSigned || stored.Version != 3 {
		t.Errorf("record changed: status %s version %d", stored.Status(), stored.Version)
	}
}

// -- Delete --

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	rec := f.generate(t, KindImagingReport)

	if err := f.svc.Delete(ctx, rec.ID, "u-42"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, rec.ID); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound after delete, got %v", err)
	}
	if err := f.svc.Delete(ctx, rec.ID, "u-42"); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("second delete: expected ErrDocumentNotFound, got %v", err)
	}
}

func TestService_DeleteSignedRejected(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	rec := f.generate(t, KindReferralNote)
	if _, err := f.svc.Finalize(ctx, rec.ID, "u-42"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.RecordSignature(ctx, rec.ID, "dr.binh"); err != nil {
		t.Fatal(err)
	}

	err := f.svc.Delete(ctx, rec.ID, "u-42")
	if !errors.Is(err, ErrCannotDeleteSignedOrSent) {
		t.Fatalf("expected ErrCannotDeleteSignedOrSent, got %v", err)
	}
	stored, err := f.svc.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("signed document should still exist: %v", err)
	}
	if stored.Status() != ccda.StatusSigned {
		t.Errorf("status = %s, want signed", stored.Status())
	}
	if got := f.operations("delete", "rejected"); got != 1 {
		t.Errorf("delete rejected = %v, want 1", got)
	}
}

// -- Validate --

func TestService_ValidatePersistsErrors(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	rec := f.generate(t, KindConsultationNote)

	res, err := f.svc.Validate(ctx, rec.ID)
	if err != nil || !res.IsValid {
		t.Fatalf("Validate: valid=%v err=%v errors=%v", res.IsValid, err, res.Errors)
	}

	f.repo.corrupt(rec.ID)
	res, err = f.svc.Validate(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.IsValid || len(res.Errors) == 0 {
		t.Fatalf("expected errors for malformed text, got %+v", res)
	}

	stored, _ := f.svc.Get(ctx, rec.ID)
	if got := stored.Document.ValidationErrors(); len(got) != len(res.Errors) || got[0] != res.Errors[0] {
		t.Errorf("stored errors = %v, want %v", got, res.Errors)
	}
	if stored.Version != 1 {
		t.Errorf("validation bumped version to %d", stored.Version)
	}
	if got := testutil.ToFloat64(f.metrics.Validations.WithLabelValues("invalid")); got != 1 {
		t.Errorf("invalid validations = %v, want 1", got)
	}
}

func TestService_ValidateStaleRecordNotStored(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	rec := f.generate(t, KindLabReport)

	stale, _ := f.svc.Get(ctx, rec.ID)
	stale.Text = []byte("not xml")
	if _, err := f.svc.Finalize(ctx, rec.ID, "u-42"); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.validate(ctx, stale)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.IsValid {
		t.Fatal("expected invalid result")
	}
	stored, _ := f.svc.Get(ctx, rec.ID)
	if errs := stored.Document.ValidationErrors(); len(errs) != 0 {
		t.Errorf("result for a stale version was stored: %v", errs)
	}
}

// -- Raw text --

func TestService_GetRawTextCache(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	rec := f.generate(t, KindDischargeSummary)

	text, err := f.svc.GetRawText(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRawText: %v", err)
	}
	if string(text) != string(rec.Text) {
		t.Error("text differs from stored text")
	}
	if !f.cache.has(rec.ID) {
		t.Fatal("expected text to be cached after a miss")
	}
	if _, err := f.svc.GetRawText(ctx, rec.ID); err != nil {
		t.Fatalf("GetRawText: %v", err)
	}
	if hits := testutil.ToFloat64(f.metrics.TextCache.WithLabelValues("hit")); hits != 1 {
		t.Errorf("cache hits = %v, want 1", hits)
	}
	if misses := testutil.ToFloat64(f.metrics.TextCache.WithLabelValues("miss")); misses != 1 {
		t.Errorf("cache misses = %v, want 1", misses)
	}

	if _, err := f.svc.Regenerate(ctx, rec.ID, "u-42"); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if f.cache.has(rec.ID) {
		t.Error("expected cache entry to be invalidated by a write")
	}
}

func TestService_GetRawTextCacheFailure(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	rec := f.generate(t, KindPrescription)
	f.cache.fail = true

	text, err := f.svc.GetRawText(ctx, rec.ID)
	if err != nil {
		t.Fatalf("expected fallback to repository, got %v", err)
	}
	if len(text) == 0 {
		t.Error("expected text")
	}
	if _, err := f.svc.GetRawText(ctx, uuid.New()); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
}

// -- Search --

func TestService_Search(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	first := f.generate(t, KindLabReport)
	f.generate(t, KindPrescription)
	last := f.generate(t, KindLabReport)

	resp, err := f.svc.Search(ctx, SearchParams{}, pagination.New(2, 0))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Total != 3 || len(resp.Data) != 2 || !resp.HasMore {
		t.Fatalf("page 1: total %d len %d has_more %v", resp.Total, len(resp.Data), resp.HasMore)
	}
	if resp.Data[0].ID != last.ID {
		t.Errorf("expected newest first, got %s", resp.Data[0].ID)
	}
	s := resp.Data[0]
	if s.DocumentID != last.Document.ID().Extension || s.Title != "Laboratory Report" || s.Status != ccda.StatusDraft {
		t.Errorf("unexpected summary %+v", s)
	}

	resp, err = f.svc.Search(ctx, SearchParams{}, pagination.New(2, 2))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ID != first.ID || resp.HasMore {
		t.Errorf("page 2: %+v", resp)
	}

	kind := KindPrescription
	resp, err = f.svc.Search(ctx, SearchParams{Kind: &kind}, pagination.Params{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Total != 1 || resp.Limit != pagination.DefaultLimit {
		t.Errorf("kind filter: total %d limit %d", resp.Total, resp.Limit)
	}

	other := uuid.New()
	resp, err = f.svc.Search(ctx, SearchParams{PatientID: &other}, pagination.New(10, 0))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Total != 0 || resp.Data == nil {
		t.Errorf("expected an empty, non-nil page, got %+v", resp)
	}
}

func TestSearchParams_CreatedBefore(t *testing.T) {
	if (SearchParams{}).CreatedBefore() != nil {
		t.Error("expected nil without To")
	}
	to := time.Date(2024, 3, 31, 15, 0, 0, 0, time.UTC)
	got := SearchParams{To: &to}.CreatedBefore()
	if want := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC); got == nil || !got.Equal(want) {
		t.Errorf("CreatedBefore = %v, want %v", got, want)
	}
}

// -- Revalidate --

func TestService_Revalidate(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	var drafts []*Record
	for i := 0; i < 5; i++ {
		drafts = append(drafts, f.generate(t, Kinds()[i]))
	}
	f.repo.corrupt(drafts[1].ID)
	f.repo.corrupt(drafts[3].ID)
	if _, err := f.svc.Finalize(ctx, drafts[4].ID, "u-42"); err != nil {
		t.Fatal(err)
	}

	report, err := f.svc.Revalidate(ctx, ccda.StatusDraft, 2)
	if err != nil {
		t.Fatalf("Revalidate: %v", err)
	}
	if report.Checked != 4 || report.Invalid != 2 {
		t.Errorf("report = %+v, want 4 checked, 2 invalid", report)
	}
	for i, want := range []bool{false, true, false, true} {
		stored, _ := f.svc.Get(ctx, drafts[i].ID)
		if got := len(stored.Document.ValidationErrors()) > 0; got != want {
			t.Errorf("draft %d: has errors = %v, want %v", i, got, want)
		}
	}

	report, err = f.svc.Revalidate(ctx, ccda.StatusSent, 0)
	if err != nil || report.Checked != 0 {
		t.Errorf("empty status: report %+v err %v", report, err)
	}
}
