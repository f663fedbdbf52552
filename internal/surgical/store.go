package surgical

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store owns the in-memory case collection and settings and mirrors every
// change to the Repository. All mutation happens under mu, so the store is
// the single writer for both records.
type Store struct {
	mu       sync.RWMutex
	repo     Repository
	log      *zap.Logger
	cases    []Case
	index    map[string]int
	settings Settings
	ids      *caseIDGenerator
}

func NewStore(repo Repository, log *zap.Logger) *Store {
	return &Store{
		repo:     repo,
		log:      log,
		index:    map[string]int{},
		settings: DefaultSettings(),
		ids:      newCaseIDGenerator(),
	}
}

// Load replaces the in-memory state with the stored records. Read or decode
// failures are logged and leave an empty collection or default settings, so
// Load always yields a usable store.
func (s *Store) Load(ctx context.Context) {
	cases, err := s.repo.LoadCases(ctx)
	if err != nil {
		s.log.Error("failed to load cases, starting empty", zap.Error(err))
		cases = nil
	}

	settings := DefaultSettings()
	raw, err := s.repo.LoadSettings(ctx)
	if err != nil {
		s.log.Error("failed to load settings, using defaults", zap.Error(err))
	} else if settings, err = MergeSettings(raw); err != nil {
		s.log.Error("failed to decode settings, using defaults", zap.Error(err))
	}
	if settings.AlertDaysPostSubmission < 1 {
		def := DefaultSettings().AlertDaysPostSubmission
		s.log.Warn("stored alert days out of range, using default",
			zap.Int("stored", settings.AlertDaysPostSubmission), zap.Int("default", def))
		settings.AlertDaysPostSubmission = def
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cases = s.cases[:0]
	s.index = make(map[string]int, len(cases))
	s.ids = newCaseIDGenerator()
	for _, c := range cases {
		if _, dup := s.index[c.ID]; dup || c.ID == "" {
			s.log.Warn("skipping stored case with empty or duplicate id", zap.String("case_id", c.ID))
			continue
		}
		s.index[c.ID] = len(s.cases)
		s.cases = append(s.cases, c)
		s.ids.observe(c.ID)
	}
	s.settings = settings

	s.log.Info("store loaded", zap.Int("cases", len(s.cases)))
}

// List returns a copy of the cases matching filter, in creation order.
func (s *Store) List(filter CaseFilter) []Case {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Case, 0, len(s.cases))
	for _, c := range s.cases {
		if filter.match(c) {
			out = append(out, c)
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cases)
}

func (s *Store) Get(id string) (Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return Case{}, ErrCaseNotFound
	}
	return s.cases[i], nil
}

// Insert assigns the next case id, stores the record built from it and
// persists the collection.
func (s *Store) Insert(ctx context.Context, now time.Time, build func(id string) Case) Case {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.ids.next(now)
	for {
		if _, taken := s.index[id]; !taken {
			break
		}
		id = s.ids.next(now)
	}

	c := build(id)
	c.ID = id
	s.index[id] = len(s.cases)
	s.cases = append(s.cases, c)
	s.saveCasesLocked(ctx)

	return c
}

// Update runs fn on the stored record with the given id and replaces it with
// the result. fn runs under the write lock and must not block.
func (s *Store) Update(ctx context.Context, id string, fn func(prev Case) (Case, error)) (Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return Case{}, ErrCaseNotFound
	}

	next, err := fn(s.cases[i])
	if err != nil {
		return Case{}, err
	}
	if next.ID != id {
		return Case{}, ErrCaseIDMismatch
	}

	s.cases[i] = next
	s.saveCasesLocked(ctx)
	return next, nil
}

// MarkAlerted merges alert timestamps into the live records and returns the
// ids that took them. A timestamp is applied only to a case still in review
// and only if it moves LastAlertSent forward, after stamps written by other
// processes have been pulled in. The collection is saved once, and only if
// something changed.
func (s *Store) MarkAlerted(ctx context.Context, alerts map[string]time.Time) []string {
	if len(alerts) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncAlertsLocked(ctx)

	var applied []string
	for id, at := range alerts {
		i, ok := s.index[id]
		if !ok {
			continue
		}
		c := &s.cases[i]
		if c.FollowUpStatus != FollowUpSubmittedInReview {
			continue
		}
		if c.LastAlertSent != nil && !at.After(*c.LastAlertSent) {
			continue
		}
		stamp := at
		c.LastAlertSent = &stamp
		applied = append(applied, id)
	}

	if len(applied) > 0 {
		s.saveCasesLocked(ctx)
	}
	return applied
}

// SyncAlerts pulls LastAlertSent stamps from the repository into the live
// records, moving each one forward only. It returns how many records moved.
func (s *Store) SyncAlerts(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncAlertsLocked(ctx)
}

// syncAlertsLocked picks up alerts stamped by another process sharing the
// repository, e.g. an alert-worker next to the api-server.
func (s *Store) syncAlertsLocked(ctx context.Context) int {
	stored, err := s.repo.LoadCases(ctx)
	if err != nil {
		s.log.Warn("failed to read stored alert stamps", zap.Error(err))
		return 0
	}

	moved := 0
	for _, sc := range stored {
		if sc.LastAlertSent == nil {
			continue
		}
		i, ok := s.index[sc.ID]
		if !ok {
			continue
		}
		c := &s.cases[i]
		if c.LastAlertSent != nil && !sc.LastAlertSent.After(*c.LastAlertSent) {
			continue
		}
		stamp := *sc.LastAlertSent
		c.LastAlertSent = &stamp
		moved++
	}
	return moved
}

func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.clone()
}

// UpdateSettings applies fn to a copy of the settings and, if fn succeeds,
// stores and persists the copy.
func (s *Store) UpdateSettings(ctx context.Context, fn func(*Settings) error) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings.clone()
	if err := fn(&next); err != nil {
		return Settings{}, err
	}

	s.settings = next
	if err := s.repo.SaveSettings(ctx, next); err != nil {
		s.log.Error("failed to save settings", zap.Error(err))
	}
	return next.clone(), nil
}

func (s *Store) saveCasesLocked(ctx context.Context) {
	s.syncAlertsLocked(ctx)

	snapshot := make([]Case, len(s.cases))
	copy(snapshot, s.cases)
	if err := s.repo.SaveCases(ctx, snapshot); err != nil {
		s.log.Error("failed to save cases", zap.Error(err))
	}
}
