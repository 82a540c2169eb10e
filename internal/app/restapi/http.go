package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/taskleaf/taskleaf/internal/app/events"
	"github.com/taskleaf/taskleaf/internal/app/googlecal"
	"github.com/taskleaf/taskleaf/internal/app/identity"
	"github.com/taskleaf/taskleaf/internal/app/pomodoro"
	"github.com/taskleaf/taskleaf/internal/app/remotecache"
	"github.com/taskleaf/taskleaf/internal/app/tasks"
	"github.com/taskleaf/taskleaf/internal/app/weather"
	"github.com/taskleaf/taskleaf/internal/calendar"
	platformauth "github.com/taskleaf/taskleaf/internal/platform/auth"
)

type Handler struct {
	Identity      *identity.Service
	Events        *events.Service
	Tasks         *tasks.Service
	Pomodoro      *pomodoro.Service
	Weather       *weather.Client
	Cache         *remotecache.Cache
	OAuth         *googlecal.OAuth
	AllowedOrigin string
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.corsMiddleware)
	r.Options("/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/api/v1/auth/register", h.handleRegister)
	r.Post("/api/v1/auth/login", h.handleLogin)
	r.Post("/api/v1/auth/refresh", h.handleRefresh)
	r.Post("/api/v1/auth/logout", h.handleLogout)
	r.Get("/api/v1/auth/google", h.handleGoogleAuthURL)
	r.Get("/api/v1/auth/google/callback", h.handleGoogleCallback)

	r.Group(func(authR chi.Router) {
		authR.Use(h.authMiddleware)

		authR.Get("/api/v1/me", h.handleMe)
		authR.Post("/api/v1/auth/google/disconnect", h.handleGoogleDisconnect)

		authR.Get("/api/v1/events", h.handleListEvents)
		authR.Post("/api/v1/events", h.handleCreateEvent)
		authR.Get("/api/v1/events/{eventID}", h.handleGetEvent)
		authR.Put("/api/v1/events/{eventID}", h.handleUpdateEvent)
		authR.Delete("/api/v1/events/{eventID}", h.handleDeleteEvent)

		authR.Get("/api/v1/remote-events", h.handleListRemoteEvents)
		authR.Post("/api/v1/remote-events/refresh", h.handleRefreshRemoteEvents)
		authR.Delete("/api/v1/remote-events/{remoteID}", h.handleDeleteRemoteEvent)

		authR.Get("/api/v1/calendar/day", h.handleDayView)
		authR.Get("/api/v1/calendar/week", h.handleWeekView)
		authR.Get("/api/v1/calendar/month", h.handleMonthView)
		authR.Get("/api/v1/calendar/feed.ics", h.handleICSFeed)

		authR.Get("/api/v1/tasks", h.handleListTasks)
		authR.Post("/api/v1/tasks", h.handleCreateTask)
		authR.Get("/api/v1/tasks/stats", h.handleTaskStats)
		authR.Get("/api/v1/tasks/{taskID}", h.handleGetTask)
		authR.Put("/api/v1/tasks/{taskID}", h.handleUpdateTask)
		authR.Delete("/api/v1/tasks/{taskID}", h.handleDeleteTask)
		authR.Patch("/api/v1/tasks/{taskID}/complete", h.handleCompleteTask)

		authR.Get("/api/v1/analytics/metrics", h.handleAnalyticsMetrics)
		authR.Get("/api/v1/analytics/daily-stats", h.handleAnalyticsDailyStats)

		authR.Get("/api/v1/categories", h.handleListCategories)
		authR.Post("/api/v1/categories", h.handleCreateCategory)
		authR.Delete("/api/v1/categories/{categoryID}", h.handleDeleteCategory)

		authR.Get("/api/v1/weather", h.handleWeather)
		authR.Get("/api/v1/weather/forecast", h.handleWeatherForecast)

		authR.Post("/api/v1/pomodoro/start", h.handlePomodoroStart)
		authR.Patch("/api/v1/pomodoro/{sessionID}/progress", h.handlePomodoroProgress)
		authR.Post("/api/v1/pomodoro/{sessionID}/stop", h.handlePomodoroStop)
		authR.Get("/api/v1/pomodoro/active", h.handlePomodoroActive)
		authR.Get("/api/v1/pomodoro/sessions", h.handlePomodoroSessions)
		authR.Get("/api/v1/pomodoro/stats", h.handlePomodoroStats)
	})

	return r
}

type registerRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	resp, err := h.Identity.Register(r.Context(), req.Email, req.FullName, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidEmail), errors.Is(err, identity.ErrInvalidPassword):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			if strings.Contains(strings.ToLower(err.Error()), "duplicate") {
				h.writeError(w, http.StatusConflict, "email already registered")
				return
			}
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	resp, err := h.Identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			h.writeError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, identity.ErrGoogleOnlyAccount):
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	resp, err := h.Identity.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrRefreshTokenMissing):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, identity.ErrInvalidRefreshToken):
			h.writeError(w, http.StatusUnauthorized, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := h.Identity.Logout(r.Context(), req.RefreshToken); err != nil {
		if errors.Is(err, identity.ErrRefreshTokenMissing) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGoogleAuthURL(w http.ResponseWriter, r *http.Request) {
	if h.OAuth == nil || !h.OAuth.Configured() {
		h.writeError(w, http.StatusServiceUnavailable, "google sign-in is not configured")
		return
	}
	state := r.URL.Query().Get("state")
	h.writeJSON(w, http.StatusOK, map[string]string{"auth_url": h.OAuth.AuthURL(state)})
}

func (h *Handler) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.OAuth == nil || !h.OAuth.Configured() {
		h.writeError(w, http.StatusServiceUnavailable, "google sign-in is not configured")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		h.writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	token, err := h.OAuth.ExchangeCode(r.Context(), code)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	info, err := h.OAuth.FetchUserinfo(r.Context(), token.AccessToken)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	resp, err := h.Identity.LoginWithGoogle(r.Context(), identity.GoogleProfile{
		GoogleID:       info.Sub,
		Email:          info.Email,
		FullName:       info.Name,
		ProfilePicture: info.Picture,
		RefreshToken:   token.RefreshToken,
	})
	if err != nil {
		if errors.Is(err, identity.ErrMissingGoogleFields) {
			h.writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGoogleDisconnect(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if err := h.Identity.DisconnectGoogle(r.Context(), claims.Subject); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if h.Cache != nil {
		_ = h.Cache.Invalidate(claims.Subject)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	resp, err := h.Identity.Me(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	resp, err := h.Events.List(r.Context(), claims.Subject)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req events.EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	claims := claimsFromContext(r.Context())
	resp, err := h.Events.Create(r.Context(), claims.Subject, req)
	if err != nil {
		h.writeEventError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	resp, err := h.Events.Get(r.Context(), claims.Subject, chi.URLParam(r, "eventID"))
	if err != nil {
		h.writeEventError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req events.EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	claims := claimsFromContext(r.Context())
	resp, err := h.Events.Update(r.Context(), claims.Subject, chi.URLParam(r, "eventID"), req)
	if err != nil {
		h.writeEventError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if err := h.Events.Delete(r.Context(), claims.Subject, chi.URLParam(r, "eventID")); err != nil {
		h.writeEventError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeEventError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, events.ErrTitleRequired),
		errors.Is(err, events.ErrDateRequired),
		errors.Is(err, events.ErrInvalidTime),
		errors.Is(err, events.ErrInvalidRecurrence),
		errors.Is(err, calendar.ErrInvalidDate):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, events.ErrRemoteReadOnly):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, events.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "event not found")
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) handleListRemoteEvents(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	remote, err := h.Cache.Events(claims.Subject)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, remote)
}

func (h *Handler) handleRefreshRemoteEvents(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if err := h.Cache.Refresh(r.Context(), claims.Subject); err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	remote, err := h.Cache.Events(claims.Subject)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, remote)
}

func (h *Handler) handleDeleteRemoteEvent(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if err := h.Events.DeleteRemote(r.Context(), claims.Subject, chi.URLParam(r, "remoteID")); err != nil {
		h.writeEventError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func viewParams(r *http.Request) (calendar.Date, bool, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return calendar.Date{}, false, calendar.ErrInvalidDate
	}
	d, err := calendar.ParseDate(raw)
	if err != nil {
		return calendar.Date{}, false, err
	}
	showRemote := r.URL.Query().Get("show_remote") == "true"
	return d, showRemote, nil
}

func (h *Handler) handleDayView(w http.ResponseWriter, r *http.Request) {
	d, showRemote, err := viewParams(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	claims := claimsFromContext(r.Context())
	view, err := h.Events.DayView(r.Context(), claims.Subject, d, showRemote)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleWeekView(w http.ResponseWriter, r *http.Request) {
	d, showRemote, err := viewParams(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	claims := claimsFromContext(r.Context())
	view, err := h.Events.WeekView(r.Context(), claims.Subject, d, showRemote)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleMonthView(w http.ResponseWriter, r *http.Request) {
	d, showRemote, err := viewParams(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	claims := claimsFromContext(r.Context())
	view, err := h.Events.MonthView(r.Context(), claims.Subject, d, showRemote)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleICSFeed(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	feed, err := h.Events.ICSFeed(r.Context(), claims.Subject, "TaskLeaf")
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="taskleaf.ics"`)
	_, _ = w.Write([]byte(feed))
}

func taskFilterFromQuery(r *http.Request) tasks.Filter {
	q := r.URL.Query()
	f := tasks.Filter{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		Due:      q.Get("due"),
	}
	if raw := q.Get("completed"); raw != "" {
		completed := raw == "true"
		f.Completed = &completed
	}
	return f
}

func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	resp, err := h.Tasks.List(r.Context(), claims.Subject, taskFilterFromQuery(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req tasks.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	claims := claimsFromContext(r.Context())
	resp, err := h.Tasks.Create(r.Context(), claims.Subject, req)
	if err != nil {
		h.writeTaskError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	resp, err := h.Tasks.Get(r.Context(), claims.Subject, chi.URLParam(r, "taskID"))
	if err != nil {
		h.writeTaskError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req tasks.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	claims := claimsFromContext(r.Context())
	resp, err := h.Tasks.Update(r.Context(), claims.Subject, chi.URLParam(r, "taskID"), req)
	if err != nil {
		h.writeTaskError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if err := h.Tasks.Delete(r.Context(), claims.Subject, chi.URLParam(r, "taskID")); err != nil {
		h.writeTaskError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Completed bool `json:"completed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	claims := claimsFromContext(r.Context())
	resp, err := h.Tasks.SetCompleted(r.Context(), claims.Subject, chi.URLParam(r, "taskID"), req.Completed)
	if err != nil {
		h.writeTaskError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	stats, err := h.Tasks.Stats(r.Context(), claims.Subject)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleAnalyticsMetrics(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	metrics, err := h.Tasks.Analytics(r.Context(), claims.Subject)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, metrics)
}

func (h *Handler) handleAnalyticsDailyStats(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	claims := claimsFromContext(r.Context())
	stats, err := h.Tasks.DailyStats(r.Context(), claims.Subject, days)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (h *Handler) writeTaskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tasks.ErrTitleRequired),
		errors.Is(err, tasks.ErrInvalidPriority),
		errors.Is(err, tasks.ErrInvalidDueTime),
		errors.Is(err, tasks.ErrSyncNeedsDueDate),
		errors.Is(err, tasks.ErrCategoryNameMissing),
		errors.Is(err, calendar.ErrInvalidDate):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tasks.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, tasks.ErrCategoryNotFound):
		h.writeError(w, http.StatusNotFound, "category not found")
	default:
		if strings.Contains(strings.ToLower(err.Error()), "duplicate") {
			h.writeError(w, http.StatusConflict, "category already exists")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	resp, err := h.Tasks.ListCategories(r.Context(), claims.Subject)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	claims := claimsFromContext(r.Context())
	resp, err := h.Tasks.CreateCategory(r.Context(), claims.Subject, req.Name, req.Color)
	if err != nil {
		h.writeTaskError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if err := h.Tasks.DeleteCategory(r.Context(), claims.Subject, chi.URLParam(r, "categoryID")); err != nil {
		h.writeTaskError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleWeather(w http.ResponseWriter, r *http.Request) {
	location := r.URL.Query().Get("location")
	if strings.TrimSpace(location) == "" {
		h.writeError(w, http.StatusBadRequest, "location is required")
		return
	}
	info := h.Weather.Current(r.Context(), location)
	if info == nil {
		h.writeError(w, http.StatusNotFound, "no weather data for location")
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

func (h *Handler) handleWeatherForecast(w http.ResponseWriter, r *http.Request) {
	location := r.URL.Query().Get("location")
	if strings.TrimSpace(location) == "" {
		h.writeError(w, http.StatusBadRequest, "location is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 8
	}
	entries := h.Weather.Forecast(r.Context(), location, limit)
	if entries == nil {
		entries = []weather.ForecastEntry{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handlePomodoroStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID          string `json:"task_id"`
		DurationMinutes int    `json:"duration_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	claims := claimsFromContext(r.Context())
	resp, err := h.Pomodoro.Start(r.Context(), claims.Subject, req.TaskID, req.DurationMinutes)
	if err != nil {
		h.writePomodoroError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handlePomodoroProgress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MinutesCompleted int `json:"minutes_completed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	claims := claimsFromContext(r.Context())
	resp, err := h.Pomodoro.Progress(r.Context(), claims.Subject, chi.URLParam(r, "sessionID"), req.MinutesCompleted)
	if err != nil {
		h.writePomodoroError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePomodoroStop(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	resp, err := h.Pomodoro.Stop(r.Context(), claims.Subject, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writePomodoroError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePomodoroActive(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	resp, ok, err := h.Pomodoro.Active(r.Context(), claims.Subject)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		h.writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"active": true, "session": resp})
}

func (h *Handler) handlePomodoroSessions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	claims := claimsFromContext(r.Context())
	resp, err := h.Pomodoro.Recent(r.Context(), claims.Subject, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePomodoroStats(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	stats, err := h.Pomodoro.Stats(r.Context(), claims.Subject)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) writePomodoroError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pomodoro.ErrInvalidDuration), errors.Is(err, pomodoro.ErrProgressBackward):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pomodoro.ErrSessionActive), errors.Is(err, pomodoro.ErrSessionFinished):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, pomodoro.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "session not found")
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin, Access-Control-Request-Headers")
		allowed := strings.TrimSpace(h.AllowedOrigin)
		if allowed == "" {
			allowed = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", allowed)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")

		requestHeaders := strings.TrimSpace(r.Header.Get("Access-Control-Request-Headers"))
		if requestHeaders != "" {
			w.Header().Set("Access-Control-Allow-Headers", requestHeaders)
		} else {
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		next.ServeHTTP(w, r)
	})
}

type claimsContextKey struct{}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := platformauth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			h.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := h.Identity.AuthToken.Parse(token)
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithClaims(r.Context(), claims)))
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func contextWithClaims(ctx context.Context, claims platformauth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

func claimsFromContext(ctx context.Context) platformauth.Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(platformauth.Claims)
	return claims
}
