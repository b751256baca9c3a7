package session

import (
	"context"
	"errors"
	"sync"

	"github.com/pavelanni/quiztutor/internal/model"
)

var errFake = errors.New("fake failure")

type gradeResult struct {
	grade model.Grade
	err   error
}

// fakeGrader returns queued results in order and records every request.
// An empty queue fails the call.
type fakeGrader struct {
	mu       sync.Mutex
	results  []gradeResult
	requests []model.GradeRequest
}

func (g *fakeGrader) queue(score float64, feedback string) *fakeGrader {
	g.results = append(g.results, gradeResult{grade: model.Grade{Score: score, Feedback: feedback}})
	return g
}

func (g *fakeGrader) queueErr(err error) *fakeGrader {
	g.results = append(g.results, gradeResult{err: err})
	return g
}

func (g *fakeGrader) Grade(_ context.Context, req model.GradeRequest) (model.Grade, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if len(g.results) == 0 {
		return model.Grade{}, errFake
	}
	r := g.results[0]
	g.results = g.results[1:]
	return r.grade, r.err
}

func (g *fakeGrader) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type fakeStore struct {
	mu      sync.Mutex
	records map[model.SessionKey]*model.PerformanceState
	puts    int
	getErr  error
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[model.SessionKey]*model.PerformanceState)}
}

func (s *fakeStore) GetPerformance(_ context.Context, key model.SessionKey) (*model.PerformanceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	st, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	return st.Clone(), nil
}

func (s *fakeStore) PutPerformance(_ context.Context, key model.SessionKey, st *model.PerformanceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.records[key] = st.Clone()
	s.puts++
	return nil
}

func (s *fakeStore) get(key model.SessionKey) *model.PerformanceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[key]
}

type fakeCatalog struct {
	quizzes map[[2]string][]model.QuizQuestion
	err     error
}

func (c *fakeCatalog) GetQuiz(_ context.Context, subject, week string) ([]model.QuizQuestion, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.quizzes[[2]string{subject, week}], nil
}
