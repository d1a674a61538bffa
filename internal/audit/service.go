package audit

import (
	"context"
	"fmt"
	"strings"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Repository reads stored audit records, newest first.
type Repository interface {
	ListEntries(ctx context.Context, q Query) ([]Record, error)
}

// Service serves the permission audit timeline.
type Service struct {
	repo Repository
}

// NewService builds a timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of audit records.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s == nil || s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	rows, err := s.repo.ListEntries(ctx, Query{
		EntityType: strings.TrimSpace(filters.EntityType),
		EntityID:   strings.TrimSpace(filters.EntityID),
		Action:     strings.TrimSpace(filters.Action),
		Offset:     (page - 1) * pageSize,
		Limit:      pageSize + 1,
	})
	if err != nil {
		return Result{}, fmt.Errorf("audit: timeline: %w", err)
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	if rows == nil {
		rows = []Record{}
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every record matching filters, ignoring paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]Record, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	rows, err := s.repo.ListEntries(ctx, Query{
		EntityType: strings.TrimSpace(filters.EntityType),
		EntityID:   strings.TrimSpace(filters.EntityID),
		Action:     strings.TrimSpace(filters.Action),
	})
	if err != nil {
		return nil, fmt.Errorf("audit: export: %w", err)
	}
	return rows, nil
}
