package study

import (
	"context"
	"fmt"
)

// Transaction is the mutable unit of work handed to RunInTransaction callbacks.
// Mutations become visible only when the callback returns nil.
type Transaction interface {
	CreateStudy(Study) (Study, error)
	UpdateStudy(id string, mutator func(*Study) error) (Study, error)
	DeleteStudy(id string) error
	FindStudy(id string) (Study, bool)
	CreateRun(Run) (Run, error)
	UpdateRun(id string, mutator func(*Run) error) (Run, error)
	DeleteRun(id string) error
	FindRun(id string) (Run, bool)
}

// PersistentStore is the storage abstraction the service layer runs against.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	GetStudy(id string) (Study, bool)
	ListStudies() []Study
	GetRun(id string) (Run, bool)
	ListRuns() []Run
}

// NotFoundError reports a missing entity by type and identifier.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// NewNotFound builds a NotFoundError for the given entity type and id.
func NewNotFound(entity, id string) error {
	return NotFoundError{Entity: entity, ID: id}
}
