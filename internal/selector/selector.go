// Package selector draws random quotes a user has not received yet.
package selector

import (
	"context"
	"fmt"
	"slices"

	"github.com/graffic/quotebot/internal/quotes"
	"github.com/graffic/quotebot/internal/requests"
	"gorm.io/gorm"
)

// Selector queries quotes minus the user's request history. It only reads.
type Selector struct {
	db *gorm.DB
}

// New creates a selector
func New(db *gorm.DB) *Selector {
	return &Selector{db: db}
}

func (s *Selector) unseen(ctx context.Context, userID int64, f quotes.Filter) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&quotes.Quote{}).
		Scopes(requests.NotSeenBy(userID), f.Scope())
}

// SelectUnique returns up to batchSize random quotes the user has not seen
// that pass the filter. An exhausted user gets an empty slice and no error.
func (s *Selector) SelectUnique(ctx context.Context, userID int64, f quotes.Filter, batchSize int) ([]quotes.Quote, error) {
	if batchSize <= 0 {
		batchSize = quotes.DefaultBatchSize
	}

	result := []quotes.Quote{}
	if err := s.unseen(ctx, userID, f).
		Preload("Comics").
		Order("RANDOM()").
		Limit(batchSize).
		Find(&result).Error; err != nil {
		return nil, fmt.Errorf("failed to select unique quotes: %w", err)
	}
	return result, nil
}

// CountRemaining counts the quotes in years the user has not seen. Empty
// years means every year.
func (s *Selector) CountRemaining(ctx context.Context, userID int64, years []int) (int64, error) {
	var n int64
	if err := s.unseen(ctx, userID, quotes.Filter{Years: years}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count unique quotes: %w", err)
	}
	return n, nil
}

// CountRemainingByYear breaks CountRemaining down per year, ascending. Every
// requested year (or every year with data when years is empty) is present,
// with zero when exhausted.
func (s *Selector) CountRemainingByYear(ctx context.Context, userID int64, years []int) ([]quotes.YearCount, error) {
	var remaining []quotes.YearCount
	if err := s.unseen(ctx, userID, quotes.Filter{Years: years}).
		Select("quotes.year AS year, COUNT(*) AS count").
		Group("quotes.year").
		Scan(&remaining).Error; err != nil {
		return nil, fmt.Errorf("failed to count unique quotes by year: %w", err)
	}

	all := years
	if len(all) == 0 {
		if err := s.db.WithContext(ctx).
			Model(&quotes.Quote{}).
			Distinct("year").
			Order("year ASC").
			Pluck("year", &all).Error; err != nil {
			return nil, fmt.Errorf("failed to list years: %w", err)
		}
	}

	byYear := make(map[int]int64, len(remaining))
	for _, r := range remaining {
		byYear[r.Year] = r.Count
	}

	result := make([]quotes.YearCount, 0, len(all))
	for _, y := range sortedUnique(all) {
		result = append(result, quotes.YearCount{Year: y, Count: byYear[y]})
	}
	return result, nil
}

func sortedUnique(years []int) []int {
	seen := make(map[int]bool, len(years))
	out := make([]int, 0, len(years))
	for _, y := range years {
		if !seen[y] {
			seen[y] = true
			out = append(out, y)
		}
	}
	slices.Sort(out)
	return out
}
