package forms

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "dialog-manager/internal/common/errors"
	"dialog-manager/internal/slots"

	"github.com/lib/pq"
)

const (
	formQuery = `SELECT action, COALESCE(slot_expression, '')
		FROM dialogue_forms
		WHERE intent = $1`

	formSlotsQuery = `SELECT name, COALESCE(description, ''), slot_type, optional, options
		FROM dialogue_form_slots
		WHERE intent = $1
		ORDER BY position`

	formIntentsQuery = `SELECT intent FROM dialogue_forms ORDER BY intent`
)

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

type formCacheEntry struct {
	form     *Form
	loadedAt time.Time
}

// PostgresStore reads forms from the dialogue_forms tables and caches them
// for CacheTTL, including intents that have no form.
type PostgresStore struct {
	db       *sql.DB
	logger   Logger
	cacheTTL time.Duration
	cache    map[string]*formCacheEntry
	mu       sync.RWMutex
}

func NewPostgresStore(db *sql.DB, cacheTTL time.Duration, log Logger) *PostgresStore {
	return &PostgresStore{
		db:       db,
		logger:   log,
		cacheTTL: cacheTTL,
		cache:    make(map[string]*formCacheEntry),
	}
}

func (s *PostgresStore) GetFormFromIntent(ctx context.Context, intent string) (*Form, error) {
	s.mu.RLock()
	if entry, ok := s.cache[intent]; ok && time.Since(entry.loadedAt) < s.cacheTTL {
		s.mu.RUnlock()
		if entry.form == nil {
			return nil, nil
		}
		return entry.form.Clone(), nil
	}
	s.mu.RUnlock()

	form, err := s.load(ctx, intent)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[intent] = &formCacheEntry{form: form, loadedAt: time.Now()}
	s.mu.Unlock()

	if form == nil {
		return nil, nil
	}
	return form.Clone(), nil
}

func (s *PostgresStore) load(ctx context.Context, intent string) (*Form, error) {
	form := &Form{Intent: intent}
	err := s.db.QueryRowContext(ctx, formQuery, intent).Scan(&form.Action, &form.SlotExpression)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Debug("No form for intent", map[string]interface{}{"intent": intent})
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewFormStoreFailedError(intent, err)
	}

	rows, err := s.db.QueryContext(ctx, formSlotsQuery, intent)
	if err != nil {
		return nil, apperrors.NewFormStoreFailedError(intent, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			slot     slots.Slot
			slotType string
			options  []string
		)
		if err := rows.Scan(&slot.Name, &slot.Description, &slotType, &slot.Optional, pq.Array(&options)); err != nil {
			return nil, apperrors.NewFormStoreFailedError(intent, fmt.Errorf("scan slot: %w", err))
		}
		slot.SlotType = slots.SlotType(slotType)
		slot.Options = options
		form.Slots = append(form.Slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewFormStoreFailedError(intent, err)
	}

	if err := form.Validate(); err != nil {
		s.logger.Warn("Stored form is invalid", map[string]interface{}{
			"intent": intent,
			"error":  err.Error(),
		})
		return nil, err
	}
	return form, nil
}

// AllForms loads and validates every stored form, bypassing the cache.
func (s *PostgresStore) AllForms(ctx context.Context) ([]*Form, error) {
	rows, err := s.db.QueryContext(ctx, formIntentsQuery)
	if err != nil {
		return nil, apperrors.NewFormStoreFailedError("*", err)
	}
	var intents []string
	for rows.Next() {
		var intent string
		if err := rows.Scan(&intent); err != nil {
			rows.Close()
			return nil, apperrors.NewFormStoreFailedError("*", err)
		}
		intents = append(intents, intent)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewFormStoreFailedError("*", err)
	}

	out := make([]*Form, 0, len(intents))
	for _, intent := range intents {
		f, err := s.load(ctx, intent)
		if err != nil {
			return nil, err
		}
		if f != nil {
			out = append(out, f)
		}
	}
	return out, nil
}
