package quotes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/graffic/quotebot/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidPattern is returned by FindByRegex for patterns that do not compile.
var ErrInvalidPattern = errors.New("invalid pattern")

// Scope narrows a quotes query.
type Scope = func(db *gorm.DB) *gorm.DB

// Store handles persistence of quotes to the database. Reads use the pool
// directly, writes go through the writer.
type Store struct {
	db     *gorm.DB
	writer *storage.Writer
	now    func() time.Time
}

// NewStore creates a new quote store
func NewStore(db *gorm.DB, writer *storage.Writer) *Store {
	return &Store{db: db, writer: writer, now: time.Now}
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// GetOrCreate stores ext unless a quote with its id exists, then attaches any
// comics URL not stored yet. The boolean reports whether the quote row was
// created by this call.
func (s *Store) GetOrCreate(ctx context.Context, ext External) (*Quote, bool, error) {
	created := false
	err := s.writer.Transaction(ctx, func(tx *gorm.DB) error {
		var existing Quote
		err := tx.First(&existing, ext.ID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			q := Quote{
				ID:         ext.ID,
				URL:        ext.URL,
				Text:       ext.Text,
				Date:       Day(ext.Date),
				Rating:     ext.Rating,
				ModifiedAt: Day(s.now()),
			}
			if err := tx.Create(&q).Error; err != nil {
				return fmt.Errorf("failed to create quote: %w", err)
			}
			created = true
		case err != nil:
			return fmt.Errorf("failed to look up quote: %w", err)
		}

		_, err = addComics(tx, ext.ID, ext.ComicsURLs)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	q, err := s.GetByID(ctx, ext.ID)
	if err != nil {
		return nil, false, err
	}
	return q, created, nil
}

// AddComics attaches the given URLs to a quote, skipping known ones. The
// modification date is not touched.
func (s *Store) AddComics(ctx context.Context, quoteID int64, urls []string) (int, error) {
	var added int
	err := s.writer.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		added, err = addComics(tx, quoteID, urls)
		return err
	})
	return added, err
}

func addComics(tx *gorm.DB, quoteID int64, urls []string) (int, error) {
	added := 0
	for _, url := range urls {
		c := Comics{URL: url, QuoteID: quoteID}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "url"}},
			DoNothing: true,
		}).Create(&c)
		if res.Error != nil {
			return added, fmt.Errorf("failed to add comics %q: %w", url, res.Error)
		}
		added += int(res.RowsAffected)
	}
	return added, nil
}

// UpdateText overwrites the text and stamps today's modification date when
// the text differs. A missing quote is reported as unchanged.
func (s *Store) UpdateText(ctx context.Context, id int64, text string) (bool, error) {
	changed := false
	err := s.writer.Transaction(ctx, func(tx *gorm.DB) error {
		var q Quote
		if err := tx.First(&q, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("failed to get quote: %w", err)
		}
		if q.Text == text {
			return nil
		}
		if err := tx.Model(&Quote{}).Where("id = ?", id).UpdateColumns(map[string]interface{}{
			"text":        text,
			"modified_at": Day(s.now()),
		}).Error; err != nil {
			return fmt.Errorf("failed to update quote text: %w", err)
		}
		changed = true
		return nil
	})
	return changed, err
}

// GetByID retrieves a quote with its comics. A missing quote is nil, nil.
func (s *Store) GetByID(ctx context.Context, id int64) (*Quote, error) {
	var q Quote
	err := s.db.WithContext(ctx).
		Preload("Comics", func(db *gorm.DB) *gorm.DB {
			return db.Order("comics.id ASC")
		}).
		First(&q, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	return &q, nil
}

// GetMany returns the quotes for ids in the order given, skipping unknown ids.
func (s *Store) GetMany(ctx context.Context, ids []int64) ([]Quote, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var found []Quote
	if err := s.db.WithContext(ctx).
		Preload("Comics").
		Where("id IN ?", ids).
		Find(&found).Error; err != nil {
		return nil, fmt.Errorf("failed to get quotes: %w", err)
	}

	byID := make(map[int64]Quote, len(found))
	for _, q := range found {
		byID[q.ID] = q
	}
	result := make([]Quote, 0, len(found))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			result = append(result, q)
			delete(byID, id)
		}
	}
	return result, nil
}

// FindByRegex returns the ids, ascending, of quotes whose text matches
// pattern. Scopes restrict the searched quotes.
func (s *Store) FindByRegex(ctx context.Context, pattern string, caseInsensitive bool, scopes ...Scope) ([]int64, error) {
	if caseInsensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}

	query := s.db.WithContext(ctx).Model(&Quote{}).Scopes(scopes...).Order("quotes.id ASC")

	ids := []int64{}
	if !storage.IsSQLite(s.db) {
		if err := query.Where("quotes.text ~ ?", pattern).Pluck("quotes.id", &ids).Error; err != nil {
			return nil, fmt.Errorf("failed to search quotes: %w", err)
		}
		return ids, nil
	}

	// SQLite has no REGEXP function, match in process.
	rows, err := query.Select("quotes.id", "quotes.text").Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to search quotes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			text string
		)
		if err := rows.Scan(&id, &text); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		if re.MatchString(text) {
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to search quotes: %w", err)
	}
	return ids, nil
}

// YearsWithData returns the distinct publication years, ascending.
func (s *Store) YearsWithData(ctx context.Context) ([]int, error) {
	years := []int{}
	if err := s.db.WithContext(ctx).
		Model(&Quote{}).
		Distinct("year").
		Order("year ASC").
		Pluck("year", &years).Error; err != nil {
		return nil, fmt.Errorf("failed to list years: %w", err)
	}
	return years, nil
}

// CountByYear returns the number of quotes per publication year, ascending.
func (s *Store) CountByYear(ctx context.Context) ([]YearCount, error) {
	counts := []YearCount{}
	if err := s.db.WithContext(ctx).
		Model(&Quote{}).
		Select("year, COUNT(*) AS count").
		Group("year").
		Order("year ASC").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to count quotes by year: %w", err)
	}
	return counts, nil
}

// NearestDates returns the closest days before and after date holding at
// least one quote. Either is nil when there is none on that side.
func (s *Store) NearestDates(ctx context.Context, date time.Time) (before, after *time.Time, err error) {
	day := Day(date)

	var q Quote
	err = s.db.WithContext(ctx).
		Select("published_at").
		Where("published_at < ?", day).
		Order("published_at DESC").
		Take(&q).Error
	switch {
	case err == nil:
		d := q.Date
		before = &d
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil, fmt.Errorf("failed to find earlier date: %w", err)
	}

	q = Quote{}
	err = s.db.WithContext(ctx).
		Select("published_at").
		Where("published_at >= ?", day.AddDate(0, 0, 1)).
		Order("published_at ASC").
		Take(&q).Error
	switch {
	case err == nil:
		d := q.Date
		after = &d
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil, fmt.Errorf("failed to find later date: %w", err)
	}

	return before, after, nil
}

// ByDate returns one page of the quotes published on date, by id, and the
// total for that date.
func (s *Store) ByDate(ctx context.Context, date time.Time, page, perPage int) ([]Quote, int64, error) {
	day := Day(date)
	onDay := func(db *gorm.DB) *gorm.DB {
		return db.Where("published_at >= ? AND published_at < ?", day, day.AddDate(0, 0, 1))
	}

	total, err := s.Count(ctx, onDay)
	if err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	var result []Quote
	if err := s.db.WithContext(ctx).
		Scopes(onDay).
		Preload("Comics").
		Order("id ASC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&result).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to get quotes by date: %w", err)
	}
	return result, total, nil
}

// Count returns the number of stored quotes matching scopes.
func (s *Store) Count(ctx context.Context, scopes ...Scope) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&Quote{}).
		Scopes(scopes...).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count quotes: %w", err)
	}
	return count, nil
}

// CountWithComics returns the number of quotes with at least one comics,
// restricted by scopes.
func (s *Store) CountWithComics(ctx context.Context, scopes ...Scope) (int64, error) {
	return s.Count(ctx, append(scopes, WithComics)...)
}

// WithComics keeps quotes that have at least one comics attached.
func WithComics(db *gorm.DB) *gorm.DB {
	return db.Where("EXISTS (SELECT 1 FROM comics WHERE comics.quote_id = quotes.id)")
}

// MaxID returns the highest stored quote id, or zero.
func (s *Store) MaxID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := s.db.WithContext(ctx).
		Model(&Quote{}).
		Select("MAX(id)").
		Row().
		Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get max quote id: %w", err)
	}
	return id.Int64, nil
}
