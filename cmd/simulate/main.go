package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"go.uber.org/zap"

	applog "github.com/hackgods/surgical-authorization-tracker/internal/logger"
	"github.com/hackgods/surgical-authorization-tracker/internal/surgical"
)

// SimConfig drives a mixed workload against a running api-server.
type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	CreateRatio  float64
	UpdateRatio  float64
	SummaryRatio float64
	ReadRatio    float64
}

// casePool tracks the case ids created during the run.
type casePool struct {
	mu  sync.RWMutex
	ids []string
}

func (p *casePool) add(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
}

func (p *casePool) random(rng *rand.Rand) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.ids) == 0 {
		return "", false
	}
	return p.ids[rng.Intn(len(p.ids))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status < http.StatusBadRequest:
		atomic.AddInt64(&om.Success, 1)
	case err == nil && status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	max = latencies[len(latencies)-1]
	return avg, p50, p95, max
}

type Metrics struct {
	Create  OperationMetrics
	Update  OperationMetrics
	Summary OperationMetrics
	List    OperationMetrics
	Get     OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    casePool
	client  *http.Client
	log     *zap.Logger
	metrics Metrics
}

func main() {
	logger, err := applog.New(getEnv("LOG_LEVEL", "info"), getEnv("LOG_FORMAT", "console"))
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.String("api", cfg.APIBaseURL),
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
	)

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 2 * time.Minute},
		log:    logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		CreateRatio:  getFloat("SIM_CREATE_RATIO", 0.2),
		UpdateRatio:  getFloat("SIM_UPDATE_RATIO", 0.3),
		SummaryRatio: getFloat("SIM_SUMMARY_RATIO", 0.05),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.45),
	}

	// Normalize ratios
	total := cfg.CreateRatio + cfg.UpdateRatio + cfg.SummaryRatio + cfg.ReadRatio
	if total > 0 {
		cfg.CreateRatio /= total
		cfg.UpdateRatio /= total
		cfg.SummaryRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if _, err := url.ParseRequestURI(cfg.APIBaseURL); err != nil {
		return fmt.Errorf("SIM_API_BASE_URL: %w", err)
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < c.CreateRatio:
			s.doCreate(ctx)
		case r < c.CreateRatio+c.UpdateRatio:
			s.doUpdate(ctx, rng)
		case r < c.CreateRatio+c.UpdateRatio+c.SummaryRatio:
			s.doSummary(ctx, rng)
		case rng.Intn(2) == 0:
			s.doList(ctx)
		default:
			s.doGet(ctx, rng)
		}
	}
}

func (s *Simulator) doCreate(ctx context.Context) {
	in := surgical.NewCaseInput{
		PatientName:       gofakeit.Name(),
		WhatsAppNumber:    gofakeit.Phone(),
		InsuranceProvider: gofakeit.RandomString([]string{"OSDE", "Swiss Medical", "Galeno", "Medifé"}),
	}

	var created surgical.Case
	latency, status, err := s.call(ctx, http.MethodPost, "/cases", in, &created)
	if err == nil && status == http.StatusCreated && created.ID != "" {
		s.pool.add(created.ID)
	}
	s.metrics.Create.Record(latency, status, err)
}

// doUpdate marks one random document as received, which over time drives
// folders to ready and some cases into review.
func (s *Simulator) doUpdate(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.random(rng)
	if !ok {
		return
	}

	var c surgical.Case
	if _, status, err := s.call(ctx, http.MethodGet, "/cases/"+url.PathEscape(id), nil, &c); err != nil || status != http.StatusOK {
		return
	}

	docs := []*surgical.DocumentStatus{&c.Consent, &c.Budget, &c.SurgeonReport, &c.NutritionistReport, &c.PsychologistReport}
	*docs[rng.Intn(len(docs))] = surgical.DocReceived
	if c.FolderStatus == surgical.FolderReadyToSubmit && c.FollowUpStatus == surgical.FollowUpNotSubmitted {
		c.FollowUpStatus = surgical.FollowUpSubmittedInReview
	}

	latency, status, err := s.call(ctx, http.MethodPut, "/cases/"+url.PathEscape(id), c, nil)
	s.metrics.Update.Record(latency, status, err)
}

func (s *Simulator) doSummary(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.random(rng)
	if !ok {
		return
	}
	latency, status, err := s.call(ctx, http.MethodPost, "/cases/"+url.PathEscape(id)+"/summary", nil, nil)
	s.metrics.Summary.Record(latency, status, err)
}

func (s *Simulator) doList(ctx context.Context) {
	latency, status, err := s.call(ctx, http.MethodGet, "/cases", nil, nil)
	s.metrics.List.Record(latency, status, err)
}

func (s *Simulator) doGet(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.random(rng)
	if !ok {
		return
	}
	latency, status, err := s.call(ctx, http.MethodGet, "/cases/"+url.PathEscape(id), nil, nil)
	s.metrics.Get.Record(latency, status, err)
}

func (s *Simulator) call(ctx context.Context, method, path string, in, out any) (time.Duration, int, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, 0, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, body)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return latency, 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < http.StatusBadRequest {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return latency, resp.StatusCode, err
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return latency, resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Cases created: %d\n\n", len(s.pool.ids))

	printOperationReport("Create case", &s.metrics.Create)
	printOperationReport("Update case", &s.metrics.Update)
	printOperationReport("Generate summary", &s.metrics.Summary)
	printOperationReport("List cases", &s.metrics.List)
	printOperationReport("Get case", &s.metrics.Get)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
