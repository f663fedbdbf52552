package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/surgical-authorization-tracker/internal/metrics"
	"github.com/hackgods/surgical-authorization-tracker/internal/notify"
	redisclient "github.com/hackgods/surgical-authorization-tracker/internal/redis"
	"github.com/hackgods/surgical-authorization-tracker/internal/surgical"
)

type fakeSummarizer struct {
	text    string
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeSummarizer) Summarize(ctx context.Context, c surgical.Case) (string, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

type testEnv struct {
	handler  http.Handler
	svc      *surgical.Service
	store    *surgical.Store
	recorder *notify.Recorder
}

func newTestEnv(t *testing.T, summarizer surgical.Summarizer) *testEnv {
	t.Helper()

	repo, err := surgical.NewFileRepository(t.TempDir())
	if err != nil {
		t.Fatalf("file repository: %v", err)
	}

	log := zap.NewNop()
	store := surgical.NewStore(repo, log)
	store.Load(context.Background())

	recorder := notify.NewRecorder(50)
	m := metrics.NewCollector()
	svc := surgical.NewService(surgical.Options{
		Store:      store,
		Sink:       recorder,
		Summarizer: summarizer,
		Locker:     redisclient.NewLocalLocker(5 * time.Second),
		Metrics:    m,
		Log:        log,
	})

	handler := NewRouter(RouterConfig{
		Service: svc,
		Notices: recorder,
		Metrics: m,
		Log:     log,
		Storage: repo,
		Env:     "test",
		Version: "test",
	})

	return &testEnv{handler: handler, svc: svc, store: store, recorder: recorder}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func (e *testEnv) createCase(t *testing.T, patient string) CaseResponse {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/cases", CreateCaseRequest{
		PatientName:       patient,
		InsuranceProvider: "OSDE",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create case: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decode[CaseResponse](t, rec)
}

func TestCreateCase(t *testing.T) {
	env := newTestEnv(t, &fakeSummarizer{})

	c := env.createCase(t, "Ana Pérez")

	want := fmt.Sprintf("AUT-%d-001", time.Now().Year())
	if c.ID != want {
		t.Fatalf("expected id %s, got %s", want, c.ID)
	}
	if c.FolderStatus != surgical.FolderIncomplete || c.FollowUpStatus != surgical.FollowUpNotSubmitted {
		t.Fatalf("unexpected initial statuses: %s %s", c.FolderStatus, c.FollowUpStatus)
	}
	if c.DriveFolderLink != "https://example.com/drive/Ana_Pérez" {
		t.Fatalf("unexpected drive link %s", c.DriveFolderLink)
	}
	if c.Overdue {
		t.Fatal("new case should not be overdue")
	}

	second := env.createCase(t, "Luis Gómez")
	if second.ID != fmt.Sprintf("AUT-%d-002", time.Now().Year()) {
		t.Fatalf("expected sequential id, got %s", second.ID)
	}
}

func TestCreateCaseValidation(t *testing.T) {
	env := newTestEnv(t, &fakeSummarizer{})

	tests := []struct {
		name string
		body any
		want int
	}{
		{"empty patient", CreateCaseRequest{PatientName: "  ", InsuranceProvider: "OSDE"}, http.StatusBadRequest},
		{"empty insurance", CreateCaseRequest{PatientName: "Ana"}, http.StatusBadRequest},
		{"bad json", "not an object", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/cases", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			resp := decode[ErrorResponse](t, rec)
			if resp.Error == "" {
				t.Fatal("expected error code")
			}
		})
	}

	if env.store.Len() != 0 {
		t.Fatalf("expected no stored cases, got %d", env.store.Len())
	}
}

func TestListCasesFiltersByInsurance(t *testing.T) {
	env := newTestEnv(t, &fakeSummarizer{})

	env.createCase(t, "Ana")
	rec := env.do(t, http.MethodPost, "/cases", CreateCaseRequest{PatientName: "Luis", InsuranceProvider: "Galeno"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d", rec.Code)
	}

	all := decode[CaseListResponse](t, env.do(t, http.MethodGet, "/cases", nil))
	if all.Count != 2 {
		t.Fatalf("expected 2 cases, got %d", all.Count)
	}

	filtered := decode[CaseListResponse](t, env.do(t, http.MethodGet, "/cases?insurance=Galeno", nil))
	if filtered.Count != 1 || filtered.Cases[0].PatientName != "Luis" {
		t.Fatalf("unexpected filter result: %+v", filtered)
	}
}

func TestGetCaseNotFound(t *testing.T) {
	env := newTestEnv(t, &fakeSummarizer{})

	rec := env.do(t, http.MethodGet, "/cases/AUT-2020-999", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUpdateCaseAppliesRules(t *testing.T) {
	env := newTestEnv(t, &fakeSummarizer{})
	c := env.createCase(t, "Ana")

	c.Consent = surgical.DocReceived
	c.Budget = surgical.DocNotApplicable
	c.SurgeonReport = surgical.DocReceived
	c.NutritionistReport = surgical.DocReceived
	c.PsychologistReport = surgical.DocReceived

	rec := env.do(t, http.MethodPut, "/cases/"+c.ID, c)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	updated := decode[CaseResponse](t, rec)
	if updated.FolderStatus != surgical.FolderReadyToSubmit {
		t.Fatalf("expected ready folder, got %s", updated.FolderStatus)
	}

	updated.FollowUpStatus = surgical.FollowUpSubmittedInReview
	rec = env.do(t, http.MethodPut, "/cases/"+c.ID, updated)
	submitted := decode[CaseResponse](t, rec)
	if submitted.SubmittedDate == nil {
		t.Fatal("expected submitted date to be stamped")
	}

	var kinds []surgical.NoticeKind
	for _, n := range env.recorder.Recent() {
		kinds = append(kinds, n.Kind)
	}
	want := []surgical.NoticeKind{surgical.KindCaseCreated, surgical.KindFolderReady, surgical.KindCaseSubmitted}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Fatalf("expected notices %v, got %v", want, kinds)
	}
}

func TestUpdateCaseErrors(t *testing.T) {
	env := newTestEnv(t, &fakeSummarizer{})
	c := env.createCase(t, "Ana")

	mismatch := c
	mismatch.ID = "AUT-1999-001"
	bad := c
	bad.Consent = "lost"

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"unknown case", "/cases/AUT-1999-001", mismatch, http.StatusNotFound},
		{"id mismatch", "/cases/" + c.ID, mismatch, http.StatusBadRequest},
		{"invalid document status", "/cases/" + c.ID, bad, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPut, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGenerateSummary(t *testing.T) {
	env := newTestEnv(t, &fakeSummarizer{text: "Resumen del Caso: todo en orden"})
	c := env.createCase(t, "Ana")

	rec := env.do(t, http.MethodPost, "/cases/"+c.ID+"/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	got := decode[CaseResponse](t, rec)
	if got.Notes != "--- Resumen IA ---\nResumen del Caso: todo en orden" {
		t.Fatalf("unexpected notes %q", got.Notes)
	}
}

func TestGenerateSummaryFailureIsAppended(t *testing.T) {
	env := newTestEnv(t, &fakeSummarizer{err: errors.New("quota exceeded")})
	c := env.createCase(t, "Ana")

	got := decode[CaseResponse](t, env.do(t, http.MethodPost, "/cases/"+c.ID+"/summary", nil))
	if !strings.Contains(got.Notes, "Error generating summary: quota exceeded") {
		t.Fatalf("expected error text in notes, got %q", got.Notes)
	}
}

func TestGenerateSummaryInProgress(t *testing.T) {
	summarizer := &fakeSummarizer{
		text:    "ok",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	env := newTestEnv(t, summarizer)
	c := env.createCase(t, "Ana")

	var wg sync.WaitGroup
	wg.Add(1)
	var first *httptest.ResponseRecorder
	go func() {
		defer wg.Done()
		first = env.do(t, http.MethodPost, "/cases/"+c.ID+"/summary", nil)
	}()

	<-summarizer.started
	second := env.do(t, http.MethodPost, "/cases/"+c.ID+"/summary", nil)
	close(summarizer.release)
	wg.Wait()

	if second.Code != http.StatusConflict {
		t.Fatalf("expected 409 for concurrent summary, got %d", second.Code)
	}
	if first.Code != http.StatusOK {
		t.Fatalf("expected first summary to succeed, got %d", first.Code)
	}
}

func TestSettingsMaskToken(t *testing.T) {
	env := newTestEnv(t, &fakeSummarizer{})

	got := decode[surgical.Settings](t, env.do(t, http.MethodGet, "/settings", nil))
	if got.WhatsAppAPIToken != "****oken" {
		t.Fatalf("expected masked token, got %q", got.WhatsAppAPIToken)
	}

	// Sending the masked value back keeps the stored secret.
	got.AlertDaysPostSubmission = 10
	rec := env.do(t, http.MethodPut, "/settings", got)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	stored := env.svc.Settings()
	if stored.WhatsAppAPIToken != "simulated_token" {
		t.Fatalf("token was overwritten with %q", stored.WhatsAppAPIToken)
	}
	if stored.AlertDaysPostSubmission != 10 {
		t.Fatalf("expected threshold 10, got %d", stored.AlertDaysPostSubmission)
	}
}

func TestSettingsValidation(t *testing.T) {
	env := newTestEnv(t, &fakeSummarizer{})

	tests := []struct {
		name string
		body map[string]any
	}{
		{"zero threshold", map[string]any{"alertDaysPostSubmission": 0}},
		{"unknown token", map[string]any{"alertMessagePatient": "Hola [Nombre]"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPut, "/settings", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}

	if env.svc.Settings().AlertDaysPostSubmission != 30 {
		t.Fatal("rejected settings must not be stored")
	}
}

func TestReferenceLists(t *testing.T) {
	env := newTestEnv(t, &fakeSummarizer{})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"add", http.MethodPost, "/settings/lists/insuranceProviders", ReferenceItemRequest{Item: "IOMA"}, http.StatusCreated},
		{"duplicate", http.MethodPost, "/settings/lists/insuranceProviders", ReferenceItemRequest{Item: "IOMA"}, http.StatusConflict},
		{"empty", http.MethodPost, "/settings/lists/surgeons", ReferenceItemRequest{Item: " "}, http.StatusBadRequest},
		{"unknown list", http.MethodPost, "/settings/lists/anesthetists", ReferenceItemRequest{Item: "Dr. X"}, http.StatusNotFound},
		{"remove escaped", http.MethodDelete, "/settings/lists/insuranceProviders/Swiss%20Medical", nil, http.StatusOK},
		{"remove missing", http.MethodDelete, "/settings/lists/insuranceProviders/Nope", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}

	providers := env.svc.Settings().InsuranceProviders
	want := []string{"OSDE", "Galeno", "Medifé", "IOMA"}
	if fmt.Sprint(providers) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, providers)
	}
}

func TestSweepAndNotices(t *testing.T) {
	env := newTestEnv(t, &fakeSummarizer{})
	c := env.createCase(t, "Ana")

	longAgo := time.Now().Add(-45 * 24 * time.Hour)
	c.FollowUpStatus = surgical.FollowUpSubmittedInReview
	c.SubmittedDate = &longAgo
	if rec := env.do(t, http.MethodPut, "/cases/"+c.ID, c); rec.Code != http.StatusOK {
		t.Fatalf("update: %d", rec.Code)
	}

	listed := decode[CaseListResponse](t, env.do(t, http.MethodGet, "/cases", nil))
	if !listed.Cases[0].Overdue {
		t.Fatal("expected case to be overdue")
	}

	sweep := decode[SweepResponse](t, env.do(t, http.MethodPost, "/alerts/sweep", nil))
	if sweep.Alerted != 1 {
		t.Fatalf("expected 1 alerted case, got %d", sweep.Alerted)
	}
	again := decode[SweepResponse](t, env.do(t, http.MethodPost, "/alerts/sweep", nil))
	if again.Alerted != 0 {
		t.Fatalf("expected cooldown to suppress the second alert, got %d", again.Alerted)
	}

	notices := decode[NoticeListResponse](t, env.do(t, http.MethodGet, "/notices", nil))
	var alerts int
	for _, n := range notices.Notices {
		if n.Kind == surgical.KindInternalAlert {
			alerts++
			if !strings.HasPrefix(n.Message, "INTERNAL ALERT: ") || !strings.Contains(n.Message, c.ID) {
				t.Fatalf("unexpected alert message %q", n.Message)
			}
		}
	}
	if alerts != 1 {
		t.Fatalf("expected 1 internal alert notice, got %d", alerts)
	}
}
