// Package inmem is the exam provider used in mock mode: exams come from a YAML seed and submissions stay in memory.
package inmem

import (
	"bytes"
	"context"
	_ "embed"
	"io"
	"io/ioutil"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/ulms/core/exam"
)

//go:embed seed.yaml
var defaultSeed []byte

type seed struct {
	Default int         `yaml:"default"`
	Exams   []exam.Exam `yaml:"exams"`
}

type Store struct {
	mu          sync.RWMutex
	exams       map[int]exam.Exam
	fallback    int
	submissions []exam.Submission
}

var _ exam.Provider = (*Store)(nil)

// NewStore loads the bundled seed.
func NewStore() *Store {
	s, err := Load(bytes.NewReader(defaultSeed))
	if err != nil {
		panic(errors.Wrap(err, "inmem: bundled seed")) // the seed ships with the binary
	}
	return s
}

// Load reads a seed document. An unknown exam id is served the "default" exam under that id.
func Load(r io.Reader) (*Store, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading seed")
	}
	var sd seed
	if err = yaml.Unmarshal(data, &sd); err != nil {
		return nil, errors.Wrap(err, "parsing seed")
	}

	s := &Store{exams: make(map[int]exam.Exam, len(sd.Exams)), fallback: sd.Default}
	for _, e := range sd.Exams {
		if _, dup := s.exams[e.ID]; dup {
			return nil, errors.Errorf("duplicate exam id %d in seed", e.ID)
		}
		s.exams[e.ID] = e
	}
	if _, ok := s.exams[s.fallback]; s.fallback != 0 && !ok {
		return nil, errors.Errorf("default exam %d is not in the seed", s.fallback)
	}
	return s, nil
}

func (s *Store) GetExam(ctx context.Context, id int) (exam.Exam, error) {
	if err := ctx.Err(); err != nil {
		return exam.Exam{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.exams[id]
	if !ok {
		if s.fallback == 0 || id <= 0 {
			return exam.Exam{}, exam.ErrNotFound
		}
		e = s.exams[s.fallback]
		e.ID = id
	}
	return stamp(e), nil
}

// stamp deep copies e and ties every question to it.
func stamp(e exam.Exam) exam.Exam {
	qs := make([]exam.Question, len(e.Questions))
	for i, q := range e.Questions {
		q.Choices = append([]string(nil), q.Choices...)
		q.ExamID = e.ID
		qs[i] = q
	}
	e.Questions = qs
	return e
}

func (s *Store) SubmitExam(ctx context.Context, sub exam.Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = append(s.submissions, sub)
	return nil
}

func (s *Store) Put(e exam.Exam) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exams[e.ID] = e
}

// IDs lists the seeded exams.
func (s *Store) IDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int, 0, len(s.exams))
	for id := range s.exams {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (s *Store) Submissions() []exam.Submission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]exam.Submission, len(s.submissions))
	copy(out, s.submissions)
	return out
}
