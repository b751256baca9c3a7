package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pavelanni/quiztutor/internal/model"
)

// ExportPerformance builds export-ready records for every performance
// record matching subject and week. Empty strings mean all.
func (s *Store) ExportPerformance(ctx context.Context, subject, week string) (*model.PerformanceDump, error) {
	keys, err := s.ListSessionKeys(ctx, subject, week)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	dump := &model.PerformanceDump{
		ExportedAt: time.Now().UTC(),
		Subject:    subject,
		Week:       week,
		Records:    []model.PerformanceExport{},
	}

	// Question text per quiz, loaded once.
	texts := make(map[[2]string]map[int]string)

	for _, key := range keys {
		state, err := s.GetPerformance(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("get performance %s: %w", key, err)
		}
		if state == nil {
			continue
		}

		quizKey := [2]string{key.Subject, key.Week}
		if _, ok := texts[quizKey]; !ok {
			questions, err := s.GetQuiz(ctx, key.Subject, key.Week)
			if err != nil {
				return nil, fmt.Errorf("get quiz %s/%s: %w", key.Subject, key.Week, err)
			}
			m := make(map[int]string, len(questions))
			for _, q := range questions {
				m[q.ID] = q.Question
			}
			texts[quizKey] = m
		}

		ids := make([]int, 0, len(state.Answers))
		for id := range state.Answers {
			ids = append(ids, id)
		}
		sort.Ints(ids)

		questions := make([]model.QuestionAttempts, 0, len(ids))
		for _, id := range ids {
			attempts := state.Answers[id]
			var best float64
			for _, a := range attempts {
				if !a.IsExploration && a.Score > best {
					best = a.Score
				}
			}
			questions = append(questions, model.QuestionAttempts{
				QuestionID: id,
				Question:   texts[quizKey][id],
				Attempts:   attempts,
				BestScore:  best,
			})
		}

		dump.Records = append(dump.Records, model.PerformanceExport{
			StudentID:            key.StudentID,
			Subject:              key.Subject,
			Week:                 key.Week,
			CurrentQuestionIndex: state.CurrentQuestionIndex,
			Started:              state.Started,
			LastScore:            state.LastScore,
			UpdatedAt:            state.UpdatedAt,
			Questions:            questions,
		})
	}

	return dump, nil
}
