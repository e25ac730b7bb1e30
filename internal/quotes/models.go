package quotes

import (
	"time"

	"gorm.io/gorm"
)

// DefaultBatchSize is the number of quotes drawn per prefetch refill.
const DefaultBatchSize = 20

// Quote is one item scraped from the source. Its ID is the source's numeric
// id and is never generated locally.
type Quote struct {
	ID         int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	URL        string    `gorm:"uniqueIndex;not null" json:"url"`
	Text       string    `gorm:"not null" json:"text"`
	Date       time.Time `gorm:"column:published_at;index;not null" json:"date"`
	Year       int       `gorm:"index;not null" json:"year"` // derived from Date
	Rating     int       `gorm:"not null" json:"rating"`
	ModifiedAt time.Time `gorm:"column:modified_at;not null" json:"modified_at"`
	CreatedAt  time.Time `json:"created_at"`

	Comics []Comics `gorm:"foreignKey:QuoteID" json:"comics,omitempty"`
}

// TableName specifies the table name for Quote
func (Quote) TableName() string {
	return "quotes"
}

// BeforeSave keeps Year in step with Date.
func (q *Quote) BeforeSave(tx *gorm.DB) error {
	q.Year = q.Date.Year()
	return nil
}

// ComicsURLs returns the attachment URLs in insertion order.
func (q *Quote) ComicsURLs() []string {
	urls := make([]string, 0, len(q.Comics))
	for _, c := range q.Comics {
		urls = append(urls, c.URL)
	}
	return urls
}

// Comics is an image attached to a quote.
type Comics struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	URL       string    `gorm:"uniqueIndex;not null" json:"url"`
	QuoteID   int64     `gorm:"index;not null" json:"quote_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for Comics
func (Comics) TableName() string {
	return "comics"
}

// External is a quote as returned by the source, before it is stored.
type External struct {
	ID         int64     `json:"id"`
	URL        string    `json:"url"`
	Text       string    `json:"text"`
	Date       time.Time `json:"date"`
	Rating     int       `json:"rating"`
	ComicsURLs []string  `json:"comics_urls"`
}

// Filter narrows the candidate quotes for a user. Empty Years and a
// non-positive MaxTextLength mean no restriction.
type Filter struct {
	Years         []int
	MaxTextLength int
}

// IsZero reports whether the filter restricts nothing.
func (f Filter) IsZero() bool {
	return len(f.Years) == 0 && f.MaxTextLength <= 0
}

// Scope returns the gorm scope applying the filter to a quotes query.
func (f Filter) Scope() func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if len(f.Years) > 0 {
			db = db.Where("quotes.year IN ?", f.Years)
		}
		if f.MaxTextLength > 0 {
			db = db.Where("LENGTH(quotes.text) <= ?", f.MaxTextLength)
		}
		return db
	}
}

// YearCount is the number of quotes published in a year.
type YearCount struct {
	Year  int
	Count int64
}
