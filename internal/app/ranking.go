package app

import (
	"sort"
	"time"

	"classroom-quiz-service/internal/domain"
)

// Rank folds the answer log into per-student statistics ordered by score,
// then by number of answers, keeping encounter order for remaining ties.
// Students are keyed by name only; school and age come from the latest answer.
// An answer whose question no longer exists counts as answered but never correct.
func Rank(questions []domain.Question, answers []domain.StudentAnswer) []domain.StudentStats {
	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		if _, dup := byID[q.ID]; !dup {
			byID[q.ID] = q
		}
	}

	index := make(map[string]int)
	stats := make([]domain.StudentStats, 0)
	for _, a := range answers {
		i, ok := index[a.StudentName]
		if !ok {
			i = len(stats)
			index[a.StudentName] = i
			stats = append(stats, domain.StudentStats{Name: a.StudentName})
		}
		st := &stats[i]
		st.School = a.StudentSchool
		st.Age = a.StudentAge
		st.TotalAnswers++
		if q, found := byID[a.QuestionID]; found && q.IsCorrect(a.Answer) {
			st.CorrectAnswers++
		}
		st.Score = st.CorrectAnswers
	}

	for i := range stats {
		stats[i].Accuracy = domain.Percent(stats[i].CorrectAnswers, stats[i].TotalAnswers)
	}

	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Score != stats[j].Score {
			return stats[i].Score > stats[j].Score
		}
		return stats[i].TotalAnswers > stats[j].TotalAnswers
	})
	return stats
}

// BuildLeaderboard ranks the state and flags the current student's row.
// The highlight never changes the ordering.
func BuildLeaderboard(state domain.State, currentStudent string, now time.Time) domain.Leaderboard {
	ranking := Rank(state.Questions, state.StudentAnswers)
	entries := make([]domain.RankedStudent, len(ranking))
	for i, st := range ranking {
		entries[i] = domain.RankedStudent{
			StudentStats: st,
			Rank:         i + 1,
			Highlight:    currentStudent != "" && st.Name == currentStudent,
		}
	}
	return domain.Leaderboard{Entries: entries, UpdatedAt: now}
}

// RankOf returns the 1-based position of name, or 0 when the student has no answers.
func RankOf(ranking []domain.StudentStats, name string) int {
	for i, st := range ranking {
		if st.Name == name {
			return i + 1
		}
	}
	return 0
}
