package surgical

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	redisclient "github.com/hackgods/surgical-authorization-tracker/internal/redis"
)

type sliceSink struct {
	mu      sync.Mutex
	notices []Notice
}

func (s *sliceSink) Notify(_ context.Context, n Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
}

func (s *sliceSink) kinds() []NoticeKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]NoticeKind, 0, len(s.notices))
	for _, n := range s.notices {
		out = append(out, n.Kind)
	}
	return out
}

type summarizerFunc func(ctx context.Context, c Case) (string, error)

func (f summarizerFunc) Summarize(ctx context.Context, c Case) (string, error) { return f(ctx, c) }

type serviceFixture struct {
	svc   *Service
	store *Store
	repo  *memRepository
	sink  *sliceSink
	now   time.Time
}

func newServiceFixture(t *testing.T, summarizer Summarizer) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		repo: &memRepository{},
		sink: &sliceSink{},
		now:  time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	f.store = newTestStore(t, f.repo)
	f.svc = NewService(Options{
		Store:      f.store,
		Sink:       f.sink,
		Summarizer: summarizer,
		Locker:     redisclient.NewLocalLocker(time.Minute),
		Log:        zap.NewNop(),
		Now:        func() time.Time { return f.now },
	})
	return f
}

func (f *serviceFixture) create(t *testing.T, patient string) Case {
	t.Helper()
	c, err := f.svc.CreateCase(context.Background(), NewCaseInput{PatientName: patient, InsuranceProvider: "OSDE"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return c
}

func TestCreateCaseDefaults(t *testing.T) {
	f := newServiceFixture(t, nil)

	c, err := f.svc.CreateCase(context.Background(), NewCaseInput{
		PatientName:       "  María José Díaz ",
		InsuranceProvider: "Medifé",
		Surgeon:           "Dra. Moreno",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if c.ID != "AUT-2025-001" {
		t.Fatalf("unexpected id %s", c.ID)
	}
	if c.PatientName != "María José Díaz" {
		t.Fatalf("expected trimmed name, got %q", c.PatientName)
	}
	for _, d := range c.Documents() {
		if d != DocPending {
			t.Fatalf("expected pending documents, got %v", c.Documents())
		}
	}
	if c.FolderStatus != FolderIncomplete || c.FollowUpStatus != FollowUpNotSubmitted {
		t.Fatalf("unexpected statuses %s %s", c.FolderStatus, c.FollowUpStatus)
	}
	if !c.RequestDate.Equal(f.now) || c.SubmittedDate != nil || c.LastAlertSent != nil {
		t.Fatalf("unexpected dates %+v", c)
	}
	if c.DriveFolderLink != "https://example.com/drive/María_José_Díaz" {
		t.Fatalf("unexpected drive link %s", c.DriveFolderLink)
	}
	if kinds := f.sink.kinds(); len(kinds) != 1 || kinds[0] != KindCaseCreated {
		t.Fatalf("expected a single created notice, got %v", kinds)
	}
}

func TestCreateCaseRejectsMissingFields(t *testing.T) {
	f := newServiceFixture(t, nil)

	tests := []struct {
		name string
		in   NewCaseInput
		want error
	}{
		{"empty name", NewCaseInput{InsuranceProvider: "OSDE"}, ErrPatientNameRequired},
		{"whitespace name", NewCaseInput{PatientName: "   ", InsuranceProvider: "OSDE"}, ErrPatientNameRequired},
		{"empty insurance", NewCaseInput{PatientName: "Ana"}, ErrInsuranceRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.CreateCase(context.Background(), tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if f.store.Len() != 0 || f.repo.saves() != 0 {
		t.Fatalf("nothing should be stored, got len=%d saves=%d", f.store.Len(), f.repo.saves())
	}
	if len(f.sink.kinds()) != 0 {
		t.Fatal("rejected creates must not emit notices")
	}
}

func TestUpdateCaseKeepsServerOwnedFields(t *testing.T) {
	f := newServiceFixture(t, nil)
	c := f.create(t, "Ana")

	alerted := f.now.Add(time.Hour)
	if _, err := f.store.Update(context.Background(), c.ID, func(prev Case) (Case, error) {
		prev.LastAlertSent = &alerted
		return prev, nil
	}); err != nil {
		t.Fatal(err)
	}

	candidate := c
	candidate.RequestDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	candidate.LastAlertSent = nil
	candidate.Notes = "llamar el lunes"

	updated, err := f.svc.UpdateCase(context.Background(), candidate)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.RequestDate.Equal(c.RequestDate) {
		t.Fatalf("request date changed to %v", updated.RequestDate)
	}
	if updated.LastAlertSent == nil || !updated.LastAlertSent.Equal(alerted) {
		t.Fatalf("last alert lost: %v", updated.LastAlertSent)
	}
	if updated.Notes != "llamar el lunes" {
		t.Fatalf("notes not saved: %q", updated.Notes)
	}
}

func TestUpdateCaseRunsRulesAndNotifiesInOrder(t *testing.T) {
	f := newServiceFixture(t, nil)
	c := f.create(t, "Ana")

	c.Consent, c.Budget, c.SurgeonReport, c.NutritionistReport, c.PsychologistReport =
		DocReceived, DocReceived, DocNotApplicable, DocReceived, DocReceived
	c.FollowUpStatus = FollowUpSubmittedInReview
	f.now = f.now.Add(2 * time.Hour)

	updated, err := f.svc.UpdateCase(context.Background(), c)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.FolderStatus != FolderReadyToSubmit {
		t.Fatalf("expected ready folder, got %s", updated.FolderStatus)
	}
	if updated.SubmittedDate == nil || !updated.SubmittedDate.Equal(f.now) {
		t.Fatalf("expected submitted date %v, got %v", f.now, updated.SubmittedDate)
	}

	want := []NoticeKind{KindCaseCreated, KindFolderReady, KindCaseSubmitted}
	got := f.sink.kinds()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestUpdateCaseRejectsInvalidInput(t *testing.T) {
	f := newServiceFixture(t, nil)
	c := f.create(t, "Ana")

	bad := c
	bad.FollowUpStatus = "lost"
	if _, err := f.svc.UpdateCase(context.Background(), bad); !errors.Is(err, ErrInvalidCase) {
		t.Fatalf("expected ErrInvalidCase, got %v", err)
	}

	missing := c
	missing.ID = "AUT-2025-999"
	if _, err := f.svc.UpdateCase(context.Background(), missing); !errors.Is(err, ErrCaseNotFound) {
		t.Fatalf("expected ErrCaseNotFound, got %v", err)
	}

	stored, _ := f.svc.GetCase(c.ID)
	if stored.FollowUpStatus != FollowUpNotSubmitted {
		t.Fatal("rejected update changed the stored case")
	}
}

func TestRunAlertSweepPersistsOnlyWhenDirty(t *testing.T) {
	f := newServiceFixture(t, nil)
	c := f.create(t, "Ana")

	saves := f.repo.saves()
	if n, err := f.svc.RunAlertSweep(context.Background()); err != nil || n != 0 {
		t.Fatalf("expected no alerts, got %d %v", n, err)
	}
	if f.repo.saves() != saves {
		t.Fatal("clean sweep must not persist")
	}

	submitted := f.now.Add(-40 * day)
	c.FollowUpStatus = FollowUpSubmittedInReview
	c.SubmittedDate = &submitted
	if _, err := f.svc.UpdateCase(context.Background(), c); err != nil {
		t.Fatal(err)
	}

	saves = f.repo.saves()
	n, err := f.svc.RunAlertSweep(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("expected 1 alert, got %d %v", n, err)
	}
	if f.repo.saves() != saves+1 {
		t.Fatalf("expected exactly one save, got %d", f.repo.saves()-saves)
	}

	stored, _ := f.svc.GetCase(c.ID)
	if stored.LastAlertSent == nil || !stored.LastAlertSent.Equal(f.now) {
		t.Fatalf("expected lastAlertSent=%v, got %v", f.now, stored.LastAlertSent)
	}
	if !f.svc.IsOverdue(stored) {
		t.Fatal("expected case to be overdue")
	}

	// Within the cooldown window nothing happens.
	f.now = f.now.Add(10 * day)
	if n, _ := f.svc.RunAlertSweep(context.Background()); n != 0 {
		t.Fatalf("expected cooldown, got %d alerts", n)
	}

	// After a full window the case is alerted again.
	f.now = f.now.Add(21 * day)
	if n, _ := f.svc.RunAlertSweep(context.Background()); n != 1 {
		t.Fatalf("expected a repeat alert, got %d", n)
	}
}

func TestRunAlertSweepSharedRepository(t *testing.T) {
	repo, err := NewFileRepository(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	locker := redisclient.NewLocalLocker(time.Minute)
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	newService := func(sink NoticeSink) *Service {
		return NewService(Options{
			Store:  newTestStore(t, repo),
			Sink:   sink,
			Locker: locker,
			Log:    zap.NewNop(),
			Now:    func() time.Time { return now },
		})
	}

	apiSink, workerSink := &sliceSink{}, &sliceSink{}
	apiSvc := newService(apiSink)

	c, err := apiSvc.CreateCase(context.Background(), NewCaseInput{PatientName: "Ana", InsuranceProvider: "OSDE"})
	if err != nil {
		t.Fatal(err)
	}
	submitted := now.Add(-31 * day)
	c.FollowUpStatus = FollowUpSubmittedInReview
	c.SubmittedDate = &submitted
	if _, err := apiSvc.UpdateCase(context.Background(), c); err != nil {
		t.Fatal(err)
	}

	// The worker starts after the case is submitted, as alert-worker does.
	workerSvc := newService(workerSink)
	if n, err := workerSvc.RunAlertSweep(context.Background()); err != nil || n != 1 {
		t.Fatalf("worker sweep: expected 1 alert, got %d %v", n, err)
	}
	if kinds := workerSink.kinds(); len(kinds) != 2 {
		t.Fatalf("expected internal and patient notices, got %v", kinds)
	}

	now = now.Add(time.Hour)
	apiSink.mu.Lock()
	apiSink.notices = nil
	apiSink.mu.Unlock()
	if n, err := apiSvc.RunAlertSweep(context.Background()); err != nil || n != 0 {
		t.Fatalf("api sweep inside the cooldown: expected 0 alerts, got %d %v", n, err)
	}
	if kinds := apiSink.kinds(); len(kinds) != 0 {
		t.Fatalf("api sweep must not notify, got %v", kinds)
	}

	stored, err := apiSvc.GetCase(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.LastAlertSent == nil || !stored.LastAlertSent.Equal(now.Add(-time.Hour)) {
		t.Fatalf("expected the worker stamp, got %v", stored.LastAlertSent)
	}
}

func TestRunAlertSweepCancelledContext(t *testing.T) {
	f := newServiceFixture(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.svc.RunAlertSweep(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestGenerateSummaryAppendsToNotes(t *testing.T) {
	var seen Case
	f := newServiceFixture(t, summarizerFunc(func(ctx context.Context, c Case) (string, error) {
		seen = c
		return "Resumen del Caso: en espera", nil
	}))
	c := f.create(t, "Ana")
	c.Notes = "nota previa"
	if _, err := f.svc.UpdateCase(context.Background(), c); err != nil {
		t.Fatal(err)
	}

	updated, err := f.svc.GenerateSummary(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if seen.ID != c.ID {
		t.Fatalf("summarizer got case %q", seen.ID)
	}
	want := "nota previa\n\n--- Resumen IA ---\nResumen del Caso: en espera"
	if updated.Notes != want {
		t.Fatalf("expected notes %q, got %q", want, updated.Notes)
	}
}

func TestGenerateSummaryRecordsFailure(t *testing.T) {
	f := newServiceFixture(t, summarizerFunc(func(ctx context.Context, c Case) (string, error) {
		return "", errors.New("upstream 503")
	}))
	c := f.create(t, "Ana")

	updated, err := f.svc.GenerateSummary(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("a failed generation is still recorded: %v", err)
	}
	if updated.Notes != "--- Resumen IA ---\nError generating summary: upstream 503" {
		t.Fatalf("unexpected notes %q", updated.Notes)
	}
}

func TestGenerateSummaryUnknownCase(t *testing.T) {
	f := newServiceFixture(t, summarizerFunc(func(ctx context.Context, c Case) (string, error) {
		t.Fatal("summarizer must not be called")
		return "", nil
	}))

	if _, err := f.svc.GenerateSummary(context.Background(), "AUT-2025-404"); !errors.Is(err, ErrCaseNotFound) {
		t.Fatalf("expected ErrCaseNotFound, got %v", err)
	}
}

func TestGenerateSummaryRejectsConcurrentRequest(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	f := newServiceFixture(t, summarizerFunc(func(ctx context.Context, c Case) (string, error) {
		close(started)
		<-release
		return "ok", nil
	}))
	c := f.create(t, "Ana")

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.GenerateSummary(context.Background(), c.ID)
		done <- err
	}()

	<-started
	if _, err := f.svc.GenerateSummary(context.Background(), c.ID); !errors.Is(err, ErrSummaryInProgress) {
		t.Fatalf("expected ErrSummaryInProgress, got %v", err)
	}
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("first summary: %v", err)
	}
	stored, _ := f.svc.GetCase(c.ID)
	if strings.Count(stored.Notes, "--- Resumen IA ---") != 1 {
		t.Fatalf("expected exactly one summary, got %q", stored.Notes)
	}
}

func TestSaveSettingsValidates(t *testing.T) {
	f := newServiceFixture(t, nil)

	next := f.svc.Settings()
	next.AlertMessageInternal = "Caso [Desconocido]"
	if _, err := f.svc.SaveSettings(context.Background(), next); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}

	next = f.svc.Settings()
	next.AlertDaysPostSubmission = 45
	saved, err := f.svc.SaveSettings(context.Background(), next)
	if err != nil || saved.AlertDaysPostSubmission != 45 {
		t.Fatalf("unexpected %+v %v", saved, err)
	}
}

func TestReferenceEditsPersist(t *testing.T) {
	f := newServiceFixture(t, nil)

	if _, err := f.svc.AddReference(context.Background(), ListPsychologists, "Lic. Suárez"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.RemoveReference(context.Background(), ListPsychologists, "Lic. Gomez"); err != nil {
		t.Fatal(err)
	}

	reloaded := newTestStore(t, f.repo)
	got := reloaded.Settings().Psychologists
	if strings.Join(got, ",") != "Lic. Fernandez,Lic. Suárez" {
		t.Fatalf("unexpected psychologists %v", got)
	}
}
