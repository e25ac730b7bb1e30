package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/graffic/quotebot/internal/quotes"
	"github.com/graffic/quotebot/internal/storage"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrUnknownUser is returned when changing settings of a user never seen.
var ErrUnknownUser = errors.New("unknown user")

// Store persists users, chats and their settings
type Store struct {
	db     *gorm.DB
	writer *storage.Writer
	now    func() time.Time
}

// NewStore creates a new user store
func NewStore(db *gorm.DB, writer *storage.Writer) *Store {
	return &Store{db: db, writer: writer, now: time.Now}
}

// Touch creates the user on first sight and refreshes its profile and last
// activity.
func (s *Store) Touch(ctx context.Context, p Profile) (*User, error) {
	u := User{
		ID:           p.ID,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Username:     p.Username,
		LanguageCode: p.LanguageCode,
		LastActivity: s.now(),
	}
	err := s.writer.Do(ctx, func(db *gorm.DB) error {
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "username", "language_code", "last_activity"}),
		}).Create(&u).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to touch user: %w", err)
	}
	return &u, nil
}

// TouchChat creates the chat on first sight and refreshes it.
func (s *Store) TouchChat(ctx context.Context, p ChatProfile) (*Chat, error) {
	c := Chat{
		ID:           p.ID,
		Type:         p.Type,
		Title:        p.Title,
		Username:     p.Username,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Description:  p.Description,
		LastActivity: s.now(),
	}
	err := s.writer.Do(ctx, func(db *gorm.DB) error {
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"type", "title", "username", "first_name", "last_name", "description", "last_activity"}),
		}).Create(&c).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to touch chat: %w", err)
	}
	return &c, nil
}

// Get returns a user with its settings, or nil, nil.
func (s *Store) Get(ctx context.Context, id int64) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).Preload("Settings").First(&u, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// Filters returns the user's quote filter. Unknown users have none.
func (s *Store) Filters(ctx context.Context, userID int64) (quotes.Filter, error) {
	u, err := s.Get(ctx, userID)
	if err != nil || u == nil || u.Settings == nil {
		return quotes.Filter{}, err
	}
	return u.Settings.Filter()
}

// Filter decodes the settings into a quotes.Filter.
func (st *Settings) Filter() (quotes.Filter, error) {
	var f quotes.Filter
	years, err := decodeYears(st.Years)
	if err != nil {
		return f, err
	}
	f.Years = years
	if st.MaxTextLength != nil {
		f.MaxTextLength = *st.MaxTextLength
	}
	return f, nil
}

func decodeYears(raw datatypes.JSON) ([]int, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var years []int
	if err := json.Unmarshal(raw, &years); err != nil {
		return nil, fmt.Errorf("failed to decode years: %w", err)
	}
	return years, nil
}

// SetYears replaces the user's year filter. An empty list on a user without
// settings is a no-op. The result reports whether anything changed.
func (s *Store) SetYears(ctx context.Context, userID int64, years []int) (bool, error) {
	normalized := slices.Clone(years)
	slices.Sort(normalized)
	normalized = slices.Compact(normalized)

	changed := false
	err := s.writer.Transaction(ctx, func(tx *gorm.DB) error {
		settings, err := s.settingsFor(tx, userID, len(normalized) > 0)
		if err != nil || settings == nil {
			return err
		}

		current, err := decodeYears(settings.Years)
		if err != nil {
			return err
		}
		if slices.Equal(current, normalized) {
			return nil
		}

		encoded, err := json.Marshal(normalized)
		if err != nil {
			return fmt.Errorf("failed to encode years: %w", err)
		}
		if len(normalized) == 0 {
			encoded = []byte("[]")
		}
		if err := tx.Model(settings).Update("years", datatypes.JSON(encoded)).Error; err != nil {
			return fmt.Errorf("failed to update years: %w", err)
		}
		changed = true
		return nil
	})
	return changed, err
}

// SetMaxTextLength sets or clears (nil) the text length bound.
func (s *Store) SetMaxTextLength(ctx context.Context, userID int64, limit *int) (bool, error) {
	changed := false
	err := s.writer.Transaction(ctx, func(tx *gorm.DB) error {
		settings, err := s.settingsFor(tx, userID, limit != nil)
		if err != nil || settings == nil {
			return err
		}
		if equalLimit(settings.MaxTextLength, limit) {
			return nil
		}
		if err := tx.Model(settings).Update("max_text_length", limit).Error; err != nil {
			return fmt.Errorf("failed to update max text length: %w", err)
		}
		changed = true
		return nil
	})
	return changed, err
}

func equalLimit(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// settingsFor loads the user's settings, creating them when create is set.
// Without create, a user lacking settings yields nil.
func (s *Store) settingsFor(tx *gorm.DB, userID int64, create bool) (*Settings, error) {
	var u User
	if err := tx.Preload("Settings").First(&u, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownUser, userID)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if u.Settings != nil || !create {
		return u.Settings, nil
	}

	settings := &Settings{Years: datatypes.JSON("[]")}
	if err := tx.Create(settings).Error; err != nil {
		return nil, fmt.Errorf("failed to create settings: %w", err)
	}
	if err := tx.Model(&User{}).Where("id = ?", userID).Update("settings_id", settings.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to attach settings: %w", err)
	}
	return settings, nil
}

// Page returns users ordered by last activity, newest first, and the total.
func (s *Store) Page(ctx context.Context, page, perPage int) ([]User, int64, error) {
	total, err := s.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	var result []User
	if err := s.db.WithContext(ctx).
		Order("last_activity DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&result).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return result, total, nil
}

// Count returns the number of known users.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&User{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// PageChats returns chats of the given types (all when empty) ordered by
// last activity, newest first, and the total.
func (s *Store) PageChats(ctx context.Context, page, perPage int, types ...string) ([]Chat, int64, error) {
	byType := func(db *gorm.DB) *gorm.DB {
		if len(types) > 0 {
			return db.Where("type IN ?", types)
		}
		return db
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&Chat{}).Scopes(byType).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count chats: %w", err)
	}
	if page < 1 {
		page = 1
	}
	var result []Chat
	if err := s.db.WithContext(ctx).
		Scopes(byType).
		Order("last_activity DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&result).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list chats: %w", err)
	}
	return result, total, nil
}
