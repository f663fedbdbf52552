package surgical

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/hackgods/surgical-authorization-tracker/internal/metrics"
	redisclient "github.com/hackgods/surgical-authorization-tracker/internal/redis"
)

const (
	driveFolderBase = "https://example.com/drive/"
	summaryHeader   = "--- Resumen IA ---"
)

// Summarizer produces a free text summary of a case.
type Summarizer interface {
	Summarize(ctx context.Context, c Case) (string, error)
}

type Options struct {
	Store      *Store
	Sink       NoticeSink
	Summarizer Summarizer
	Locker     redisclient.Locker
	Metrics    *metrics.Collector
	Log        *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	store      *Store
	sink       NoticeSink
	summarizer Summarizer
	locker     redisclient.Locker
	metrics    *metrics.Collector
	log        *zap.Logger
	now        func() time.Time
}

func NewService(opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Service{
		store:      opts.Store,
		sink:       opts.Sink,
		summarizer: opts.Summarizer,
		locker:     opts.Locker,
		metrics:    opts.Metrics,
		log:        opts.Log,
		now:        opts.Now,
	}
}

// CreateCase validates the input and stores a new case at the start of the
// workflow. Nothing is stored when validation fails.
func (s *Service) CreateCase(ctx context.Context, in NewCaseInput) (Case, error) {
	in.PatientName = strings.TrimSpace(in.PatientName)
	in.InsuranceProvider = strings.TrimSpace(in.InsuranceProvider)
	if in.PatientName == "" {
		return Case{}, ErrPatientNameRequired
	}
	if in.InsuranceProvider == "" {
		return Case{}, ErrInsuranceRequired
	}

	now := s.now()
	created := s.store.Insert(ctx, now, func(id string) Case {
		return Case{
			ID:                 id,
			PatientName:        in.PatientName,
			WhatsAppNumber:     strings.TrimSpace(in.WhatsAppNumber),
			InsuranceProvider:  in.InsuranceProvider,
			Surgeon:            strings.TrimSpace(in.Surgeon),
			Nutritionist:       strings.TrimSpace(in.Nutritionist),
			Psychologist:       strings.TrimSpace(in.Psychologist),
			Consent:            DocPending,
			Budget:             DocPending,
			SurgeonReport:      DocPending,
			NutritionistReport: DocPending,
			PsychologistReport: DocPending,
			FolderStatus:       FolderIncomplete,
			FollowUpStatus:     FollowUpNotSubmitted,
			RequestDate:        now,
			DriveFolderLink:    driveFolderBase + underscoreSpaces(in.PatientName),
		}
	})

	if s.metrics != nil {
		s.metrics.CasesCreatedTotal.Inc()
	}
	s.log.Info("case created", zap.String("case_id", created.ID), zap.String("insurance", created.InsuranceProvider))
	s.emit(ctx, Notice{
		Message:  fmt.Sprintf("Case for %s created successfully.", created.PatientName),
		Severity: SeveritySuccess,
		Kind:     KindCaseCreated,
		CaseID:   created.ID,
		At:       now,
	})

	return created, nil
}

// UpdateCase replaces the stored case with candidate after running the folder
// readiness and submission rules over it.
func (s *Service) UpdateCase(ctx context.Context, candidate Case) (Case, error) {
	return s.update(ctx, candidate.ID, func(prev Case) Case { return candidate })
}

func (s *Service) update(ctx context.Context, id string, edit func(prev Case) Case) (Case, error) {
	now := s.now()
	var notices []Notice

	updated, err := s.store.Update(ctx, id, func(prev Case) (Case, error) {
		next := edit(prev)
		if next.ID != prev.ID {
			return Case{}, ErrCaseIDMismatch
		}
		if err := next.validate(); err != nil {
			return Case{}, err
		}

		// Server owned fields.
		next.RequestDate = prev.RequestDate
		next.LastAlertSent = prev.LastAlertSent

		if n, ok := ApplyFolderReadiness(&next, now); ok {
			notices = append(notices, n)
		}
		if n, ok := ApplySubmissionTransition(prev, &next, now); ok {
			notices = append(notices, n)
		}
		return next, nil
	})
	if err != nil {
		return Case{}, err
	}

	if s.metrics != nil {
		s.metrics.CaseUpdatesTotal.Inc()
	}
	for _, n := range notices {
		s.emit(ctx, n)
	}
	return updated, nil
}

func (s *Service) GetCase(id string) (Case, error) {
	return s.store.Get(id)
}

func (s *Service) ListCases(filter CaseFilter) []Case {
	return s.store.List(filter)
}

// IsOverdue reports whether c has exceeded the configured review threshold.
func (s *Service) IsOverdue(c Case) bool {
	return Overdue(c, s.store.Settings().AlertDaysPostSubmission, s.now())
}

// RunAlertSweep scans every case once and alerts the ones that are due. It
// returns the number of cases alerted.
func (s *Service) RunAlertSweep(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	start := time.Now()
	now := s.now()
	if moved := s.store.SyncAlerts(ctx); moved > 0 {
		s.log.Info("picked up alerts stamped elsewhere", zap.Int("cases", moved))
	}
	res := Sweep(s.store.List(CaseFilter{}), s.store.Settings(), now)

	if s.metrics != nil {
		s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}
	if !res.Changed() {
		return 0, nil
	}

	alerts := make(map[string]time.Time)
	for i, dirty := range res.Dirty {
		if dirty {
			alerts[res.Cases[i].ID] = *res.Cases[i].LastAlertSent
		}
	}

	applied := make(map[string]bool)
	for _, id := range s.store.MarkAlerted(ctx, alerts) {
		applied[id] = true
	}

	for _, n := range res.Notices {
		if applied[n.CaseID] {
			s.emit(ctx, n)
		}
	}
	if s.metrics != nil {
		s.metrics.AlertsSentTotal.Add(float64(len(applied)))
	}
	if skipped := len(alerts) - len(applied); skipped > 0 {
		s.log.Info("alerts dropped, cases changed during sweep", zap.Int("skipped", skipped))
	}
	s.log.Info("alert sweep finished", zap.Int("alerted", len(applied)))

	return len(applied), nil
}

// GenerateSummary asks the Summarizer for a summary of the case and appends
// the text to its notes. A failed generation appends the error text instead.
// Only one generation per case may run at a time; a concurrent request gets
// ErrSummaryInProgress.
func (s *Service) GenerateSummary(ctx context.Context, id string) (Case, error) {
	c, err := s.store.Get(id)
	if err != nil {
		return Case{}, err
	}

	var updated Case
	err = s.locker.WithLock(ctx, "summary:"+id, func(lockCtx context.Context) error {
		s.emit(lockCtx, Notice{
			Message:  fmt.Sprintf("Generating summary for %s...", c.PatientName),
			Severity: SeverityInfo,
			Kind:     KindSummary,
			CaseID:   id,
			At:       s.now(),
		})

		text, err := s.summarizer.Summarize(lockCtx, c)
		outcome := "ok"
		if err != nil {
			s.log.Warn("summary generation failed", zap.String("case_id", id), zap.Error(err))
			text = fmt.Sprintf("Error generating summary: %v", err)
			outcome = "error"
		}
		if s.metrics != nil {
			s.metrics.SummaryRequestsTotal.WithLabelValues(outcome).Inc()
		}

		updated, err = s.update(lockCtx, id, func(prev Case) Case {
			next := prev
			next.Notes = appendSummary(prev.Notes, text)
			return next
		})
		return err
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		if s.metrics != nil {
			s.metrics.SummaryRequestsTotal.WithLabelValues("busy").Inc()
		}
		return Case{}, ErrSummaryInProgress
	}
	if err != nil {
		return Case{}, err
	}

	s.emit(ctx, Notice{
		Message:  "AI summary generated and added to notes.",
		Severity: SeveritySuccess,
		Kind:     KindSummary,
		CaseID:   id,
		At:       s.now(),
	})
	return updated, nil
}

func (s *Service) Settings() Settings {
	return s.store.Settings()
}

// SaveSettings validates and replaces the settings wholesale.
func (s *Service) SaveSettings(ctx context.Context, next Settings) (Settings, error) {
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	return s.store.UpdateSettings(ctx, func(cur *Settings) error {
		*cur = next.clone()
		return nil
	})
}

func (s *Service) AddReference(ctx context.Context, list ReferenceList, item string) (Settings, error) {
	return s.store.UpdateSettings(ctx, func(cur *Settings) error {
		return cur.AddReference(list, item)
	})
}

func (s *Service) RemoveReference(ctx context.Context, list ReferenceList, item string) (Settings, error) {
	return s.store.UpdateSettings(ctx, func(cur *Settings) error {
		return cur.RemoveReference(list, item)
	})
}

func (s *Service) emit(ctx context.Context, n Notice) {
	if s.metrics != nil {
		s.metrics.NoticesTotal.WithLabelValues(string(n.Severity)).Inc()
	}
	if s.sink != nil {
		s.sink.Notify(ctx, n)
	}
}

func appendSummary(notes, text string) string {
	if notes != "" {
		notes += "\n\n"
	}
	return notes + summaryHeader + "\n" + text
}

func underscoreSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, s)
}
