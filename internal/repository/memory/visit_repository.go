// Package memory keeps visits in process memory. It backs the "memory"
// storage backend used for local runs; nothing survives a restart.
package memory

import (
	"context"
	"sync"

	"visit-recorder/internal/domain"
	"visit-recorder/internal/repository"
)

type visitRepository struct {
	mu     sync.Mutex
	visits []domain.Visit
	nextID int64
}

// NewVisitRepository creates an empty in-memory store
func NewVisitRepository() repository.VisitRepository {
	return &visitRepository{nextID: 1}
}

func (r *visitRepository) EnsureSchema(ctx context.Context) error {
	return ctx.Err()
}

func (r *visitRepository) Create(ctx context.Context, visit *domain.Visit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	visit.ID = r.nextID
	r.nextID++
	r.visits = append(r.visits, *visit)
	return nil
}

func (r *visitRepository) List(ctx context.Context, limit, offset int) ([]*domain.Visit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.Visit, 0)
	for i := len(r.visits) - 1 - offset; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		v := r.visits[i]
		out = append(out, &v)
	}
	return out, nil
}

func (r *visitRepository) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.visits)), nil
}

func (r *visitRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *visitRepository) Close() {}
