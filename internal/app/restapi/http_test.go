package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/taskleaf/taskleaf/internal/app/events"
	"github.com/taskleaf/taskleaf/internal/app/identity"
	"github.com/taskleaf/taskleaf/internal/app/pomodoro"
	"github.com/taskleaf/taskleaf/internal/app/tasks"
	"github.com/taskleaf/taskleaf/internal/app/weather"
	"github.com/taskleaf/taskleaf/internal/calendar"
	platformauth "github.com/taskleaf/taskleaf/internal/platform/auth"
)

type fakeIdentityRepo struct {
	users         map[string]identity.User
	refreshByHash map[string]identity.RefreshToken
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{
		users:         map[string]identity.User{},
		refreshByHash: map[string]identity.RefreshToken{},
	}
}

func (f *fakeIdentityRepo) EnsureSchema(ctx context.Context) error { return nil }

func (f *fakeIdentityRepo) CreateUser(ctx context.Context, user identity.User) error {
	for _, u := range f.users {
		if u.Email == user.Email {
			return errors.New("duplicate key value violates unique constraint")
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeIdentityRepo) FindUserByEmail(ctx context.Context, email string) (identity.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return identity.User{}, identity.ErrNotFound
}

func (f *fakeIdentityRepo) FindUserByID(ctx context.Context, userID string) (identity.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}

func (f *fakeIdentityRepo) FindUserByGoogleID(ctx context.Context, googleID string) (identity.User, error) {
	for _, u := range f.users {
		if u.GoogleID == googleID && googleID != "" {
			return u, nil
		}
	}
	return identity.User{}, identity.ErrNotFound
}

func (f *fakeIdentityRepo) UpdateGoogleLink(ctx context.Context, userID, googleID, picture, refreshToken string) error {
	u, ok := f.users[userID]
	if !ok {
		return identity.ErrNotFound
	}
	u.GoogleID = googleID
	if picture != "" {
		u.ProfilePicture = picture
	}
	if refreshToken != "" {
		u.GoogleRefreshToken = refreshToken
	}
	f.users[userID] = u
	return nil
}

func (f *fakeIdentityRepo) ClearGoogleLink(ctx context.Context, userID string) error {
	u, ok := f.users[userID]
	if !ok {
		return identity.ErrNotFound
	}
	u.GoogleRefreshToken = ""
	f.users[userID] = u
	return nil
}

func (f *fakeIdentityRepo) ListGoogleConnectedUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for id, u := range f.users {
		if u.GoogleRefreshToken != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeIdentityRepo) CreateRefreshToken(ctx context.Context, token identity.RefreshToken) error {
	f.refreshByHash[token.TokenHash] = token
	return nil
}

func (f *fakeIdentityRepo) FindRefreshTokenByHash(ctx context.Context, tokenHash string) (identity.RefreshToken, error) {
	rt, ok := f.refreshByHash[tokenHash]
	if !ok || rt.RevokedAt != nil {
		return identity.RefreshToken{}, identity.ErrNotFound
	}
	return rt, nil
}

func (f *fakeIdentityRepo) RevokeRefreshToken(ctx context.Context, tokenID string) error {
	now := time.Now().UTC()
	for hash, rt := range f.refreshByHash {
		if rt.TokenID == tokenID {
			rt.RevokedAt = &now
			f.refreshByHash[hash] = rt
		}
	}
	return nil
}

type fakeEventRepo struct {
	items map[string]events.Event
}

func (f *fakeEventRepo) EnsureSchema(ctx context.Context) error { return nil }

func (f *fakeEventRepo) Create(ctx context.Context, ev events.Event) error {
	f.items[ev.ID] = ev
	return nil
}

func (f *fakeEventRepo) Update(ctx context.Context, ev events.Event) error {
	existing, ok := f.items[ev.ID]
	if !ok || existing.UserID != ev.UserID {
		return events.ErrNotFound
	}
	f.items[ev.ID] = ev
	return nil
}

func (f *fakeEventRepo) Delete(ctx context.Context, userID, eventID string) error {
	ev, ok := f.items[eventID]
	if !ok || ev.UserID != userID {
		return events.ErrNotFound
	}
	delete(f.items, eventID)
	return nil
}

func (f *fakeEventRepo) FindByID(ctx context.Context, userID, eventID string) (events.Event, error) {
	ev, ok := f.items[eventID]
	if !ok || ev.UserID != userID {
		return events.Event{}, events.ErrNotFound
	}
	return ev, nil
}

func (f *fakeEventRepo) ListForUser(ctx context.Context, userID string) ([]events.Event, error) {
	var out []events.Event
	for _, ev := range f.items {
		if ev.UserID == userID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeEventRepo) SetRemoteID(ctx context.Context, userID, eventID, remoteID string) error {
	ev, err := f.FindByID(ctx, userID, eventID)
	if err != nil {
		return err
	}
	ev.RemoteID = remoteID
	f.items[eventID] = ev
	return nil
}

func (f *fakeEventRepo) ClearRemoteID(ctx context.Context, userID, eventID string) error {
	return f.SetRemoteID(ctx, userID, eventID, "")
}

type fakeTaskRepo struct {
	items      map[string]tasks.Task
	categories map[string]tasks.Category
}

func (f *fakeTaskRepo) EnsureSchema(ctx context.Context) error { return nil }

func (f *fakeTaskRepo) Create(ctx context.Context, t tasks.Task) error {
	f.items[t.ID] = t
	return nil
}

func (f *fakeTaskRepo) Update(ctx context.Context, t tasks.Task) error {
	existing, ok := f.items[t.ID]
	if !ok || existing.UserID != t.UserID {
		return tasks.ErrNotFound
	}
	f.items[t.ID] = t
	return nil
}

func (f *fakeTaskRepo) Delete(ctx context.Context, userID, taskID string) error {
	t, ok := f.items[taskID]
	if !ok || t.UserID != userID {
		return tasks.ErrNotFound
	}
	delete(f.items, taskID)
	return nil
}

func (f *fakeTaskRepo) FindByID(ctx context.Context, userID, taskID string) (tasks.Task, error) {
	t, ok := f.items[taskID]
	if !ok || t.UserID != userID {
		return tasks.Task{}, tasks.ErrNotFound
	}
	return t, nil
}

func (f *fakeTaskRepo) ListForUser(ctx context.Context, userID string, filter tasks.Filter) ([]tasks.Task, error) {
	var out []tasks.Task
	for _, t := range f.items {
		if t.UserID != userID {
			continue
		}
		if filter.Completed != nil && t.Completed != *filter.Completed {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeTaskRepo) ListDated(ctx context.Context, userID string) ([]tasks.Task, error) {
	var out []tasks.Task
	for _, t := range f.items {
		if t.UserID == userID && t.DueDate != nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTaskRepo) SetRemoteID(ctx context.Context, userID, taskID, remoteID string) error {
	t, err := f.FindByID(ctx, userID, taskID)
	if err != nil {
		return err
	}
	t.RemoteID = remoteID
	f.items[taskID] = t
	return nil
}

func (f *fakeTaskRepo) CreateCategory(ctx context.Context, c tasks.Category) error {
	f.categories[c.ID] = c
	return nil
}

func (f *fakeTaskRepo) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	c, ok := f.categories[categoryID]
	if !ok || c.UserID != userID {
		return tasks.ErrCategoryNotFound
	}
	delete(f.categories, categoryID)
	return nil
}

func (f *fakeTaskRepo) ListCategories(ctx context.Context, userID string) ([]tasks.Category, error) {
	var out []tasks.Category
	for _, c := range f.categories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakePomodoroRepo struct {
	sessions map[string]pomodoro.Session
}

func (f *fakePomodoroRepo) EnsureSchema(ctx context.Context) error { return nil }

func (f *fakePomodoroRepo) Create(ctx context.Context, s pomodoro.Session) error {
	f.sessions[s.ID] = s
	return nil
}

func (f *fakePomodoroRepo) Update(ctx context.Context, s pomodoro.Session) error {
	if _, ok := f.sessions[s.ID]; !ok {
		return pomodoro.ErrNotFound
	}
	f.sessions[s.ID] = s
	return nil
}

func (f *fakePomodoroRepo) FindByID(ctx context.Context, userID, sessionID string) (pomodoro.Session, error) {
	s, ok := f.sessions[sessionID]
	if !ok || s.UserID != userID {
		return pomodoro.Session{}, pomodoro.ErrNotFound
	}
	return s, nil
}

func (f *fakePomodoroRepo) FindActive(ctx context.Context, userID string) (pomodoro.Session, error) {
	for _, s := range f.sessions {
		if s.UserID == userID && !s.Completed && s.EndedAt == nil {
			return s, nil
		}
	}
	return pomodoro.Session{}, pomodoro.ErrNotFound
}

func (f *fakePomodoroRepo) ListRecent(ctx context.Context, userID string, limit int) ([]pomodoro.Session, error) {
	var out []pomodoro.Session
	for _, s := range f.sessions {
		if s.UserID == userID && len(out) < limit {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakePomodoroRepo) ListSince(ctx context.Context, userID string, since time.Time) ([]pomodoro.Session, error) {
	var out []pomodoro.Session
	for _, s := range f.sessions {
		if s.UserID == userID && !s.StartedAt.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

type staticRemote struct{ events []calendar.Event }

func (s staticRemote) Events(userID string) ([]calendar.Event, error) { return s.events, nil }

func (s staticRemote) Remove(userID, remoteID string) error { return nil }

func newHandlerForTests() (*Handler, *identity.Service) {
	mgr := platformauth.NewManager("secret", time.Hour)
	mgr.Now = func() time.Time { return time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC) }
	identitySvc := identity.NewService(newFakeIdentityRepo(), mgr)

	next := 0
	newID := func() string {
		next++
		return fmt.Sprintf("id-%d", next)
	}
	identitySvc.NewID = newID

	taskSvc := tasks.NewService(
		&fakeTaskRepo{items: map[string]tasks.Task{}, categories: map[string]tasks.Category{}},
		nil,
		func(_ string, _ []byte) error { return nil },
	)
	taskSvc.NewID = newID
	taskSvc.Now = mgr.Now

	eventSvc := events.NewService(
		&fakeEventRepo{items: map[string]events.Event{}},
		staticRemote{},
		taskSvc,
		func(_ string, _ []byte) error { return nil },
	)
	eventSvc.NewID = newID
	eventSvc.Now = mgr.Now

	pomodoroSvc := pomodoro.NewService(&fakePomodoroRepo{sessions: map[string]pomodoro.Session{}})
	pomodoroSvc.NewID = newID
	pomodoroSvc.Now = mgr.Now

	handler := &Handler{
		Identity:      identitySvc,
		Events:        eventSvc,
		Tasks:         taskSvc,
		Pomodoro:      pomodoroSvc,
		Weather:       weather.NewClient(""),
		AllowedOrigin: "http://localhost:5173",
	}
	return handler, identitySvc
}

func authToken(t *testing.T, identitySvc *identity.Service) string {
	t.Helper()
	resp, err := identitySvc.Register(context.Background(), "alice@example.com", "Alice", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return resp.AccessToken
}

func doJSON(t *testing.T, handler *Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBuffer(nil)
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.Router().ServeHTTP(rr, req)
	return rr
}

func TestAuthRegisterLoginMe(t *testing.T) {
	handler, _ := newHandlerForTests()

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/auth/register", "",
		`{"email":"bob@example.com","full_name":"Bob","password":"password123"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "",
		`{"email":"bob@example.com","password":"password123"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var login identity.AuthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &login); err != nil {
		t.Fatalf("invalid login response: %v", err)
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/v1/me", login.AccessToken, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var me identity.UserResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &me); err != nil {
		t.Fatalf("invalid me response: %v", err)
	}
	if me.Email != "bob@example.com" {
		t.Fatalf("unexpected me response: %+v", me)
	}
}

func TestDuplicateRegisterConflicts(t *testing.T) {
	handler, _ := newHandlerForTests()

	body := `{"email":"bob@example.com","password":"password123"}`
	if rr := doJSON(t, handler, http.MethodPost, "/api/v1/auth/register", "", body); rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if rr := doJSON(t, handler, http.MethodPost, "/api/v1/auth/register", "", body); rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	handler, _ := newHandlerForTests()

	for _, path := range []string{"/api/v1/tasks", "/api/v1/events", "/api/v1/me"} {
		rr := doJSON(t, handler, http.MethodGet, path, "", "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rr.Code)
		}
	}
}

func TestEventLifecycle(t *testing.T) {
	handler, identitySvc := newHandlerForTests()
	token := authToken(t, identitySvc)

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/events", token,
		`{"title":"Dentist","date":"2026-03-20","time":"14:30"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var created events.EventResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("invalid create response: %v", err)
	}
	if created.Origin != "local" || created.Date != "2026-03-20" {
		t.Fatalf("unexpected created event: %+v", created)
	}

	rr = doJSON(t, handler, http.MethodPut, "/api/v1/events/"+created.ID, token,
		`{"title":"Dentist moved","date":"2026-03-21"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/v1/calendar/month?date=2026-03-21", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "Dentist moved") {
		t.Fatalf("month view missing event: %s", rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodDelete, "/api/v1/events/"+created.ID, token, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/v1/events/"+created.ID, token, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestEventValidationStatus(t *testing.T) {
	handler, identitySvc := newHandlerForTests()
	token := authToken(t, identitySvc)

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/events", token, `{"title":"","date":"2026-03-20"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing title, got %d", rr.Code)
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/v1/events", token, `{"title":"X","date":"not-a-date"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rr.Code)
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/v1/calendar/month?date=nope", token, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad view date, got %d", rr.Code)
	}
}

func TestTaskCreateCompleteStats(t *testing.T) {
	handler, identitySvc := newHandlerForTests()
	token := authToken(t, identitySvc)

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/tasks", token,
		`{"title":"Write report","priority":"high","due_date":"2026-03-16"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var created tasks.TaskResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("invalid create response: %v", err)
	}

	rr = doJSON(t, handler, http.MethodPatch, "/api/v1/tasks/"+created.ID+"/complete", token,
		`{"completed":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var completed tasks.TaskResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &completed); err != nil {
		t.Fatalf("invalid complete response: %v", err)
	}
	if !completed.Completed {
		t.Fatalf("task not completed: %+v", completed)
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/v1/tasks/stats", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var stats tasks.Stats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid stats response: %v", err)
	}
	if stats.Total != 1 || stats.Completed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestAnalyticsEndpoints(t *testing.T) {
	handler, identitySvc := newHandlerForTests()
	token := authToken(t, identitySvc)

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/tasks", token,
		`{"title":"Write report","due_date":"2026-03-15"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var created tasks.TaskResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("invalid create response: %v", err)
	}
	rr = doJSON(t, handler, http.MethodPatch, "/api/v1/tasks/"+created.ID+"/complete", token,
		`{"completed":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/v1/analytics/metrics", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var metrics tasks.AnalyticsMetrics
	if err := json.Unmarshal(rr.Body.Bytes(), &metrics); err != nil {
		t.Fatalf("invalid metrics response: %v", err)
	}
	if metrics.Summary.TotalTasks != 1 || metrics.Summary.CompletedTasks != 1 {
		t.Fatalf("unexpected summary: %+v", metrics.Summary)
	}
	if metrics.Summary.CurrentStreak != 1 {
		t.Fatalf("unexpected streak: %+v", metrics.Summary)
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/v1/analytics/daily-stats?days=7", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var daily struct {
		Stats []tasks.DailyStat `json:"stats"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &daily); err != nil {
		t.Fatalf("invalid daily-stats response: %v", err)
	}
	if len(daily.Stats) != 7 {
		t.Fatalf("expected 7 entries, got %d", len(daily.Stats))
	}
	last := daily.Stats[6]
	if last.Date != "2026-03-15" || last.Completed != 1 {
		t.Fatalf("unexpected last entry: %+v", last)
	}
}

func TestPomodoroStartConflicts(t *testing.T) {
	handler, identitySvc := newHandlerForTests()
	token := authToken(t, identitySvc)

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/pomodoro/start", token, `{"duration_minutes":25}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/v1/pomodoro/start", token, `{"duration_minutes":25}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/v1/pomodoro/active", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"active":true`) {
		t.Fatalf("expected active session: %s", rr.Body.String())
	}
}

func TestICSFeedContentType(t *testing.T) {
	handler, identitySvc := newHandlerForTests()
	token := authToken(t, identitySvc)

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/events", token,
		`{"title":"Standup","date":"2026-03-20","time":"09:00"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/v1/calendar/feed.ics", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("unexpected content type: %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "BEGIN:VCALENDAR") {
		t.Fatalf("not an ICS document: %s", rr.Body.String())
	}
}

func TestWeatherDisabledIsNotFound(t *testing.T) {
	handler, identitySvc := newHandlerForTests()
	token := authToken(t, identitySvc)

	rr := doJSON(t, handler, http.MethodGet, "/api/v1/weather?location=Berlin", token, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestOptionsHasCORSHeaders(t *testing.T) {
	handler, _ := newHandlerForTests()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tasks", nil)
	rr := httptest.NewRecorder()
	handler.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected CORS origin: %q", got)
	}
}
