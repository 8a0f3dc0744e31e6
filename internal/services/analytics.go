package services

import (
	"context"

	"gorm.io/gorm"
)

// Querier executes parameterized query text against the analytics engine and
// returns rows as loosely-typed key/value records. The report collector only
// depends on this contract, never on the engine itself.
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error)
}

// AnalyticsService is the ClickHouse-backed Querier.
type AnalyticsService struct {
	db *gorm.DB
}

func NewAnalyticsService(db *gorm.DB) *AnalyticsService {
	return &AnalyticsService{db: db}
}

func (s *AnalyticsService) Query(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	if err := s.db.WithContext(ctx).Raw(query, args...).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
