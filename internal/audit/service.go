package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	defaultPageSize = 20
	// MaxPageSize caps one page of trail entries.
	MaxPageSize = 50
)

// ErrInvalidFilter indicates a missing entity or id.
var ErrInvalidFilter = errors.New("audit: entity and entity id are required")

// Repository reads audit entries newest first.
type Repository interface {
	Trail(ctx context.Context, entity, entityID string, offset, limit int) ([]Entry, error)
}

// Service mengoordinasikan pengambilan data audit.
type Service struct {
	repo Repository
}

// NewService membuat service audit trail baru.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Trail returns one page of an entity's history, newest first.
func (s *Service) Trail(ctx context.Context, filter TrailFilter) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	entity := strings.TrimSpace(filter.Entity)
	entityID := strings.TrimSpace(filter.EntityID)
	if entity == "" || entityID == "" {
		return Result{}, ErrInvalidFilter
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	// One extra row tells whether another page exists without a COUNT.
	rows, err := s.repo.Trail(ctx, entity, entityID, (page-1)*pageSize, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []Entry{}
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Entries: rows, Paging: paging}, nil
}
