package tasks

import (
	"context"
	"math"

	"github.com/taskleaf/taskleaf/internal/calendar"
)

const analyticsTrendDays = 7

// AnalyticsSummary is the headline block of the dashboard metrics.
type AnalyticsSummary struct {
	TotalTasks           int     `json:"total_tasks"`
	CompletedTasks       int     `json:"completed_tasks"`
	CompletionRate       float64 `json:"completion_rate"`
	ProductivityScore    int     `json:"productivity_score"`
	CurrentStreak        int     `json:"current_streak"`
	FocusHoursToday      float64 `json:"focus_hours_today"`
	GoalAchievementMonth float64 `json:"goal_achievement_month"`
}

// AnalyticsTrends holds the last seven days of completion and focus series,
// oldest first, with matching weekday labels.
type AnalyticsTrends struct {
	WeeklyCompletion []float64 `json:"weekly_completion"`
	WeeklyFocusHours []float64 `json:"weekly_focus_hours"`
	WeekLabels       []string  `json:"week_labels"`
}

// CategoryShare is one category's slice of the task total.
type CategoryShare struct {
	Name       string  `json:"name"`
	Value      int     `json:"value"`
	Percentage float64 `json:"percentage"`
}

type PriorityBreakdown struct {
	Total     map[string]int `json:"total"`
	Completed map[string]int `json:"completed"`
}

type AnalyticsBreakdown struct {
	Categories []CategoryShare   `json:"categories"`
	Priority   PriorityBreakdown `json:"priority"`
}

type AnalyticsInsights struct {
	CompletionRateChange   float64 `json:"completion_rate_change"`
	FocusHoursChange       float64 `json:"focus_hours_change"`
	StreakIsRecord         bool    `json:"streak_is_record"`
	MonthAchievementChange float64 `json:"month_achievement_change"`
}

type AnalyticsMetrics struct {
	Summary   AnalyticsSummary   `json:"summary"`
	Trends    AnalyticsTrends    `json:"trends"`
	Breakdown AnalyticsBreakdown `json:"breakdown"`
	Insights  AnalyticsInsights  `json:"insights"`
}

// DailyStat is one day's completion counts for charting.
type DailyStat struct {
	Date           string  `json:"date"`
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	CompletionRate float64 `json:"completion_rate"`
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// Analytics computes the dashboard metrics over the user's full task list.
// Days are bucketed by due date; focus hours are estimated from completions
// at half an hour each on top of a daily baseline.
func (s *Service) Analytics(ctx context.Context, userID string) (AnalyticsMetrics, error) {
	all, err := s.Repo.ListForUser(ctx, userID, Filter{})
	if err != nil {
		return AnalyticsMetrics{}, err
	}
	categories, err := s.Repo.ListCategories(ctx, userID)
	if err != nil {
		return AnalyticsMetrics{}, err
	}

	today := calendar.DateOf(s.Now())
	weekAgo := today.AddDays(-7)
	monthAgo := today.AddDays(-30)

	total := len(all)
	completed := 0
	for _, t := range all {
		if t.Completed {
			completed++
		}
	}
	completionRate := percentage(completed, total)

	dueOn := func(t Task, d calendar.Date) bool {
		return t.DueDate != nil && t.DueDate.Equal(d)
	}

	weeklyCompletion := make([]float64, 0, analyticsTrendDays)
	weeklyFocus := make([]float64, 0, analyticsTrendDays)
	labels := make([]string, 0, analyticsTrendDays)
	for i := 0; i < analyticsTrendDays; i++ {
		day := today.AddDays(i - (analyticsTrendDays - 1))
		labels = append(labels, day.Weekday().String()[:3])

		dayTotal, dayCompleted := 0, 0
		for _, t := range all {
			if !dueOn(t, day) {
				continue
			}
			dayTotal++
			if t.Completed {
				dayCompleted++
			}
		}
		weeklyCompletion = append(weeklyCompletion, round1(percentage(dayCompleted, dayTotal)))
		weeklyFocus = append(weeklyFocus, round1(float64(dayCompleted)*0.5+3+float64(i)*0.3))
	}

	categoryNames := make(map[string]string, len(categories))
	for _, c := range categories {
		categoryNames[c.ID] = c.Name
	}
	categoryTotals := map[string]int{}
	for _, t := range all {
		if name, ok := categoryNames[t.CategoryID]; ok {
			categoryTotals[name]++
		}
	}
	shares := make([]CategoryShare, 0, len(categoryTotals))
	for _, c := range categories {
		count, ok := categoryTotals[c.Name]
		if !ok {
			continue
		}
		shares = append(shares, CategoryShare{
			Name:       c.Name,
			Value:      count,
			Percentage: round1(percentage(count, total)),
		})
	}

	priority := PriorityBreakdown{
		Total:     map[string]int{"high": 0, "medium": 0, "low": 0},
		Completed: map[string]int{"high": 0, "medium": 0, "low": 0},
	}
	for _, t := range all {
		if _, ok := priority.Total[t.Priority]; !ok {
			continue
		}
		priority.Total[t.Priority]++
		if t.Completed {
			priority.Completed[t.Priority]++
		}
	}

	recentTotal, recentCompleted := 0, 0
	monthTotal, monthCompleted := 0, 0
	for _, t := range all {
		if t.DueDate == nil {
			continue
		}
		if !t.DueDate.Before(weekAgo) {
			recentTotal++
			if t.Completed {
				recentCompleted++
			}
		}
		if !t.DueDate.Before(monthAgo) {
			monthTotal++
			if t.Completed {
				monthCompleted++
			}
		}
	}
	recentRate := percentage(recentCompleted, recentTotal)
	monthRate := percentage(monthCompleted, monthTotal)
	productivity := int(math.Round(
		completionRate*0.4 + recentRate*0.3 + math.Min(float64(recentTotal)/20, 1)*30))

	// Streak: consecutive days ending today with at least one completed
	// task due that day.
	streak := 0
	for day := today; ; day = day.AddDays(-1) {
		hit := false
		for _, t := range all {
			if t.Completed && dueOn(t, day) {
				hit = true
				break
			}
		}
		if !hit {
			break
		}
		streak++
	}

	focusToday := weeklyFocus[len(weeklyFocus)-1]
	focusChange := 0.0
	if len(weeklyFocus) > 1 {
		focusChange = round1(focusToday - weeklyFocus[len(weeklyFocus)-2])
	}

	return AnalyticsMetrics{
		Summary: AnalyticsSummary{
			TotalTasks:           total,
			CompletedTasks:       completed,
			CompletionRate:       round1(completionRate),
			ProductivityScore:    productivity,
			CurrentStreak:        streak,
			FocusHoursToday:      focusToday,
			GoalAchievementMonth: round1(monthRate),
		},
		Trends: AnalyticsTrends{
			WeeklyCompletion: weeklyCompletion,
			WeeklyFocusHours: weeklyFocus,
			WeekLabels:       labels,
		},
		Breakdown: AnalyticsBreakdown{
			Categories: shares,
			Priority:   priority,
		},
		Insights: AnalyticsInsights{
			CompletionRateChange:   round1(recentRate - completionRate),
			FocusHoursChange:       focusChange,
			StreakIsRecord:         streak >= 10,
			MonthAchievementChange: round1(monthRate - completionRate),
		},
	}, nil
}

// DailyStats buckets tasks by due date over the trailing window, one entry
// per day including empty ones. days defaults to 30.
func (s *Service) DailyStats(ctx context.Context, userID string, days int) ([]DailyStat, error) {
	if days <= 0 {
		days = 30
	}
	all, err := s.Repo.ListForUser(ctx, userID, Filter{})
	if err != nil {
		return nil, err
	}

	today := calendar.DateOf(s.Now())
	start := today.AddDays(-(days - 1))

	out := make([]DailyStat, 0, days)
	for i := 0; i < days; i++ {
		day := start.AddDays(i)
		stat := DailyStat{Date: day.String()}
		for _, t := range all {
			if t.DueDate == nil || !t.DueDate.Equal(day) {
				continue
			}
			stat.Total++
			if t.Completed {
				stat.Completed++
			}
		}
		stat.CompletionRate = round1(percentage(stat.Completed, stat.Total))
		out = append(out, stat)
	}
	return out, nil
}
