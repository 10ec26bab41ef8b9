package inmemdb

import (
	"sync"

	"github.com/trezcool/assessly/core/assessment"
	"github.com/trezcool/assessly/core/attempt"
)

type (
	// DB is a process-local store used by tests and the API when Database.InMemory is set.
	DB struct {
		assessment *assessmentTable
		attempt    *attemptTable
	}

	assessmentTable struct {
		mutex sync.RWMutex
		table map[string]*assessment.Assessment
	}

	attemptTable struct {
		mutex sync.RWMutex
		table map[string]*attempt.Attempt
	}
)

func Open() (*DB, error) {
	db := &DB{
		assessment: &assessmentTable{table: make(map[string]*assessment.Assessment)},
		attempt:    &attemptTable{table: make(map[string]*attempt.Attempt)},
	}
	return db, nil
}
