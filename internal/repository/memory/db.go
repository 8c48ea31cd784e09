// Package memory is a process-local store implementing every repository
// contract of the engine. It backs tests and the single-replica
// STORE_DRIVER=memory mode.
package memory

import (
	"sync"

	"splitEngine/domain"
)

type assignmentKey struct {
	campaign string
	subject  string
}

// DB is shared by the repositories of this package. Every repository method
// holds mu for its whole unit of work, so multi-row writes are atomic.
type DB struct {
	mu sync.Mutex

	campaigns   map[string]*domain.Campaign
	assignments map[assignmentKey]*domain.Assignment
	exposures   []domain.ExposureEvent
	conversions []domain.ConversionEvent
	history     []domain.AllocationHistory
	subjects    map[string]domain.Subject

	nextID uint
}

func NewDB() *DB {
	return &DB{
		campaigns:   make(map[string]*domain.Campaign),
		assignments: make(map[assignmentKey]*domain.Assignment),
		subjects:    make(map[string]domain.Subject),
	}
}

// id must be called with mu held.
func (db *DB) id() uint {
	db.nextID++
	return db.nextID
}

func copyAssignment(a *domain.Assignment) *domain.Assignment {
	if a == nil {
		return nil
	}
	out := *a
	if a.ExposedAt != nil {
		t := *a.ExposedAt
		out.ExposedAt = &t
	}
	return &out
}
