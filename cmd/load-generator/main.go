package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/taskleaf/taskleaf/internal/platform/env"
	"github.com/taskleaf/taskleaf/internal/platform/metrics"
)

type config struct {
	APIBase                 string
	Users                   int
	SetupConcurrency        int
	StartupWait             time.Duration
	Duration                time.Duration
	RampUp                  time.Duration
	ActionsPerUserPerSecond float64
	RequestTimeout          time.Duration
	MetricsAddr             string
	Password                string
}

type authResponse struct {
	AccessToken string `json:"access_token"`
}

type createdResponse struct {
	ID string `json:"id"`
}

type simulatedUser struct {
	Index       int
	Email       string
	Password    string
	AccessToken string

	mu     sync.Mutex
	tasks  []string
	events []string
}

type runner struct {
	cfg       config
	runID     string
	apiClient *http.Client

	requestsSuccess atomic.Int64
	requestsError   atomic.Int64
	activeVUs       atomic.Int64
}

var (
	requestsTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "taskleaf_loadgen_requests_total",
		Help: "Total HTTP requests sent by load generator.",
	}, []string{"endpoint", "method", "status", "outcome"})

	actionsTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "taskleaf_loadgen_actions_total",
		Help: "User actions executed by load generator.",
	}, []string{"action", "outcome"})

	virtualUsersGauge = metrics.NewGauge(metrics.Opts{
		Name: "taskleaf_loadgen_virtual_users",
		Help: "Current number of active virtual users sending actions.",
	})
)

func init() {
	metrics.Default.MustRegister(requestsTotal, actionsTotal, virtualUsersGauge)
}

func main() {
	cfg := loadConfig()
	if cfg.Users <= 0 {
		log.Fatal("LOADGEN_USERS must be > 0")
	}
	if cfg.SetupConcurrency <= 0 {
		log.Fatal("LOADGEN_SETUP_CONCURRENCY must be > 0")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx := baseCtx
	if cfg.Duration > 0 {
		timeoutCtx, cancel := context.WithTimeout(baseCtx, cfg.Duration)
		defer cancel()
		ctx = timeoutCtx
	}

	go runMetricsServer(cfg.MetricsAddr)

	transport := &http.Transport{
		MaxIdleConns:        cfg.Users * 4,
		MaxIdleConnsPerHost: cfg.Users * 4,
		IdleConnTimeout:     90 * time.Second,
	}

	r := &runner{
		cfg:   cfg,
		runID: strconv.FormatInt(time.Now().UTC().UnixNano(), 10),
		apiClient: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
		},
	}

	if err := r.waitForAPI(ctx); err != nil {
		log.Fatalf("dependency readiness failed: %v", err)
	}

	users := r.setupUsers(ctx)
	if len(users) == 0 {
		log.Fatal("failed to initialize any users")
	}
	log.Printf("load generator initialized: users=%d duration=%s rate_per_user=%.2f req/s",
		len(users), cfg.Duration.String(), cfg.ActionsPerUserPerSecond)

	go r.logProgress(ctx)

	var wg sync.WaitGroup
	for idx := range users {
		user := users[idx]
		wg.Add(1)
		go func(u *simulatedUser) {
			defer wg.Done()
			r.runUser(ctx, u)
		}(user)
	}

	<-ctx.Done()
	wg.Wait()

	log.Printf("load test complete: success_requests=%d error_requests=%d",
		r.requestsSuccess.Load(), r.requestsError.Load())
}

func loadConfig() config {
	return config{
		APIBase:                 strings.TrimRight(env.String("LOADGEN_API_BASE", "http://taskleaf-api:8000"), "/"),
		Users:                   env.Int("LOADGEN_USERS", 100),
		SetupConcurrency:        env.Int("LOADGEN_SETUP_CONCURRENCY", 20),
		StartupWait:             env.Duration("LOADGEN_STARTUP_WAIT", 2*time.Minute),
		Duration:                env.Duration("LOADGEN_DURATION", 10*time.Minute),
		RampUp:                  env.Duration("LOADGEN_RAMP_UP", 30*time.Second),
		ActionsPerUserPerSecond: floatEnv("LOADGEN_ACTIONS_PER_USER_PER_SECOND", 0.3),
		RequestTimeout:          env.Duration("LOADGEN_REQUEST_TIMEOUT", 10*time.Second),
		MetricsAddr:             env.String("LOADGEN_METRICS_ADDR", ":9099"),
		Password:                env.String("LOADGEN_PASSWORD", "load-test-pass-123"),
	}
}

func (r *runner) waitForAPI(ctx context.Context) error {
	wait := r.cfg.StartupWait
	if wait <= 0 {
		wait = 2 * time.Minute
	}

	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.APIBase+"/readyz", nil)
		if err != nil {
			lastErr = err
			time.Sleep(1200 * time.Millisecond)
			continue
		}
		resp, err := r.apiClient.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(1200 * time.Millisecond)
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return nil
		}
		lastErr = fmt.Errorf("status=%d", resp.StatusCode)
		time.Sleep(1200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout")
	}
	return fmt.Errorf("taskleaf-api not ready: %w", lastErr)
}

func (r *runner) setupUsers(ctx context.Context) []*simulatedUser {
	type setupResult struct {
		user *simulatedUser
		err  error
	}

	sem := make(chan struct{}, r.cfg.SetupConcurrency)
	results := make(chan setupResult, r.cfg.Users)
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Users; i++ {
		idx := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			user, err := r.setupSingleUser(ctx, idx)
			results <- setupResult{user: user, err: err}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	users := make([]*simulatedUser, 0, r.cfg.Users)
	failures := 0
	for result := range results {
		if result.err != nil {
			failures++
			log.Printf("user setup failed: %v", result.err)
			continue
		}
		users = append(users, result.user)
	}
	log.Printf("user setup complete: success=%d failed=%d", len(users), failures)
	return users
}

func (r *runner) setupSingleUser(ctx context.Context, idx int) (*simulatedUser, error) {
	user := &simulatedUser{
		Index:    idx,
		Email:    fmt.Sprintf("load-%s-%04d@example.com", r.runID, idx),
		Password: r.cfg.Password,
	}

	var auth authResponse
	status, err := r.requestJSON(ctx, "register", http.MethodPost, r.cfg.APIBase+"/api/v1/auth/register", map[string]string{
		"email":    user.Email,
		"password": user.Password,
	}, nil, &auth, http.StatusCreated, http.StatusConflict)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", user.Email, err)
	}

	if status == http.StatusConflict {
		auth = authResponse{}
		if _, err := r.requestJSON(ctx, "login", http.MethodPost, r.cfg.APIBase+"/api/v1/auth/login", map[string]string{
			"email":    user.Email,
			"password": user.Password,
		}, nil, &auth, http.StatusOK); err != nil {
			return nil, fmt.Errorf("login %s: %w", user.Email, err)
		}
	}

	if strings.TrimSpace(auth.AccessToken) == "" {
		return nil, fmt.Errorf("empty access token for %s", user.Email)
	}
	user.AccessToken = auth.AccessToken
	return user, nil
}

func (r *runner) runUser(ctx context.Context, user *simulatedUser) {
	if r.cfg.RampUp > 0 {
		delay := time.Duration((float64(r.cfg.RampUp) / float64(max(r.cfg.Users, 1))) * float64(user.Index))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	virtualUsersGauge.Inc()
	r.activeVUs.Add(1)
	defer virtualUsersGauge.Dec()
	defer r.activeVUs.Add(-1)

	interval := time.Second
	if r.cfg.ActionsPerUserPerSecond > 0 {
		interval = time.Duration(float64(time.Second) / r.cfg.ActionsPerUserPerSecond)
		if interval < 25*time.Millisecond {
			interval = 25 * time.Millisecond
		}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(user.Index*7)))
	initialJitter := time.Duration(rng.Int63n(int64(interval)))
	select {
	case <-ctx.Done():
		return
	case <-time.After(initialJitter):
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runAction(ctx, user, rng)
		}
	}
}

func (r *runner) runAction(ctx context.Context, user *simulatedUser, rng *rand.Rand) {
	choice := rng.Float64()
	switch {
	case choice < 0.35:
		r.createTask(ctx, user, rng)
	case choice < 0.50:
		r.completeTask(ctx, user, rng)
	case choice < 0.70:
		r.createEvent(ctx, user, rng)
	case choice < 0.85:
		r.loadMonthView(ctx, user, rng)
	case choice < 0.95:
		r.loadTaskList(ctx, user)
	default:
		r.deleteEvent(ctx, user, rng)
	}
}

func (r *runner) createTask(ctx context.Context, user *simulatedUser, rng *rand.Rand) {
	due := time.Now().UTC().AddDate(0, 0, rng.Intn(30)-7)
	var resp createdResponse
	_, err := r.requestJSON(ctx, "task_create", http.MethodPost, r.cfg.APIBase+"/api/v1/tasks", map[string]string{
		"title":    fmt.Sprintf("Load Task %d", rng.Intn(1_000_000)),
		"priority": []string{"low", "medium", "high"}[rng.Intn(3)],
		"due_date": due.Format("2006-01-02"),
	}, &user.AccessToken, &resp, http.StatusCreated)
	if err != nil {
		actionsTotal.WithLabelValues("task_create", "error").Inc()
		return
	}
	user.remember(&user.tasks, resp.ID)
	actionsTotal.WithLabelValues("task_create", "success").Inc()
}

func (r *runner) completeTask(ctx context.Context, user *simulatedUser, rng *rand.Rand) {
	taskID, ok := user.random(&user.tasks, rng)
	if !ok {
		r.createTask(ctx, user, rng)
		return
	}
	_, err := r.requestJSON(ctx, "task_complete", http.MethodPatch,
		r.cfg.APIBase+"/api/v1/tasks/"+taskID+"/complete",
		map[string]bool{"completed": true}, &user.AccessToken, nil, http.StatusOK, http.StatusNotFound)
	if err != nil {
		actionsTotal.WithLabelValues("task_complete", "error").Inc()
		return
	}
	actionsTotal.WithLabelValues("task_complete", "success").Inc()
}

func (r *runner) createEvent(ctx context.Context, user *simulatedUser, rng *rand.Rand) {
	date := time.Now().UTC().AddDate(0, 0, rng.Intn(60)-14)
	payload := map[string]string{
		"title": fmt.Sprintf("Load Event %d", rng.Intn(1_000_000)),
		"date":  date.Format("2006-01-02"),
	}
	if rng.Float64() < 0.5 {
		payload["time"] = fmt.Sprintf("%02d:%02d", rng.Intn(24), rng.Intn(60))
	}
	if rng.Float64() < 0.15 {
		payload["recurrence"] = []string{"daily", "weekly", "monthly"}[rng.Intn(3)]
	}

	var resp createdResponse
	_, err := r.requestJSON(ctx, "event_create", http.MethodPost, r.cfg.APIBase+"/api/v1/events",
		payload, &user.AccessToken, &resp, http.StatusCreated)
	if err != nil {
		actionsTotal.WithLabelValues("event_create", "error").Inc()
		return
	}
	user.remember(&user.events, resp.ID)
	actionsTotal.WithLabelValues("event_create", "success").Inc()
}

func (r *runner) deleteEvent(ctx context.Context, user *simulatedUser, rng *rand.Rand) {
	eventID, ok := user.random(&user.events, rng)
	if !ok {
		r.createEvent(ctx, user, rng)
		return
	}
	_, err := r.requestJSON(ctx, "event_delete", http.MethodDelete,
		r.cfg.APIBase+"/api/v1/events/"+eventID, nil, &user.AccessToken, nil,
		http.StatusNoContent, http.StatusNotFound)
	if err != nil {
		actionsTotal.WithLabelValues("event_delete", "error").Inc()
		return
	}
	user.forget(&user.events, eventID)
	actionsTotal.WithLabelValues("event_delete", "success").Inc()
}

func (r *runner) loadMonthView(ctx context.Context, user *simulatedUser, rng *rand.Rand) {
	anchor := time.Now().UTC().AddDate(0, rng.Intn(3)-1, 0)
	_, err := r.requestJSON(ctx, "month_view", http.MethodGet,
		r.cfg.APIBase+"/api/v1/calendar/month?date="+anchor.Format("2006-01-02"),
		nil, &user.AccessToken, nil, http.StatusOK)
	if err != nil {
		actionsTotal.WithLabelValues("month_view", "error").Inc()
		return
	}
	actionsTotal.WithLabelValues("month_view", "success").Inc()
}

func (r *runner) loadTaskList(ctx context.Context, user *simulatedUser) {
	_, err := r.requestJSON(ctx, "task_list", http.MethodGet,
		r.cfg.APIBase+"/api/v1/tasks?due=upcoming", nil, &user.AccessToken, nil, http.StatusOK)
	if err != nil {
		actionsTotal.WithLabelValues("task_list", "error").Inc()
		return
	}
	actionsTotal.WithLabelValues("task_list", "success").Inc()
}

func (r *runner) requestJSON(
	ctx context.Context,
	endpoint, method, requestURL string,
	payload any,
	bearerToken *string,
	out any,
	expectedStatuses ...int,
) (int, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearerToken != nil && strings.TrimSpace(*bearerToken) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(*bearerToken))
	}

	resp, err := r.apiClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, method, "0", "error").Inc()
		r.requestsError.Add(1)
		return 0, err
	}
	defer resp.Body.Close()

	responseBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		requestsTotal.WithLabelValues(endpoint, method, strconv.Itoa(resp.StatusCode), "error").Inc()
		r.requestsError.Add(1)
		return resp.StatusCode, readErr
	}

	statusText := strconv.Itoa(resp.StatusCode)
	if isExpectedStatus(resp.StatusCode, expectedStatuses) {
		requestsTotal.WithLabelValues(endpoint, method, statusText, "success").Inc()
		r.requestsSuccess.Add(1)
		if out != nil && len(responseBody) > 0 {
			if err := json.Unmarshal(responseBody, out); err != nil {
				return resp.StatusCode, err
			}
		}
		return resp.StatusCode, nil
	}

	requestsTotal.WithLabelValues(endpoint, method, statusText, "error").Inc()
	r.requestsError.Add(1)
	return resp.StatusCode, fmt.Errorf("unexpected status=%d body=%s", resp.StatusCode, truncate(string(responseBody), 240))
}

func (r *runner) logProgress(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Printf("progress: success_requests=%d error_requests=%d active_vus=%d",
				r.requestsSuccess.Load(),
				r.requestsError.Load(),
				r.activeVUs.Load(),
			)
		}
	}
}

func runMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.DefaultHandler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("load generator metrics endpoint listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("load generator metrics server failed: %v", err)
	}
}

func (u *simulatedUser) remember(bucket *[]string, id string) {
	if strings.TrimSpace(id) == "" {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	*bucket = append(*bucket, id)
}

func (u *simulatedUser) random(bucket *[]string, rng *rand.Rand) (string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(*bucket) == 0 {
		return "", false
	}
	return (*bucket)[rng.Intn(len(*bucket))], true
}

func (u *simulatedUser) forget(bucket *[]string, id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	items := *bucket
	for idx, existing := range items {
		if existing != id {
			continue
		}
		items[idx] = items[len(items)-1]
		*bucket = items[:len(items)-1]
		return
	}
}

func isExpectedStatus(status int, expected []int) bool {
	for _, candidate := range expected {
		if status == candidate {
			return true
		}
	}
	return false
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max] + "..."
}

func floatEnv(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
