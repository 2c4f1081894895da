package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-recurring/internal/domain"
	"github.com/dvloznov/finance-recurring/internal/engine"
)

const definitionColumns = `id, user_id, title, amount, category, category_id, category_icon, category_color,
	wallet, description, frequency, start_date, end_date, next_occurrence, is_active, total_generated`

// PutDefinition creates or replaces a definition.
func (s *Store) PutDefinition(ctx context.Context, def domain.RecurringExpenseDefinition) error {
	if def.ID == "" || def.UserID == "" {
		return fmt.Errorf("PutDefinition: definition ID and user ID are required")
	}

	query := s.rebind(`
		INSERT INTO recurring_definitions (` + definitionColumns + `, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			title = excluded.title,
			amount = excluded.amount,
			category = excluded.category,
			category_id = excluded.category_id,
			category_icon = excluded.category_icon,
			category_color = excluded.category_color,
			wallet = excluded.wallet,
			description = excluded.description,
			frequency = excluded.frequency,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			next_occurrence = excluded.next_occurrence,
			is_active = excluded.is_active,
			total_generated = excluded.total_generated,
			updated_at = excluded.updated_at`)

	_, err := s.db.ExecContext(ctx, query,
		def.ID, def.UserID, def.Title, def.Amount.String(),
		def.Category, def.CategoryID, def.CategoryIcon, def.CategoryColor,
		def.Wallet, def.Description, string(def.Frequency),
		def.StartDate.String(), nullDate(def.EndDate), nullDate(optionalDate(def.NextOccurrence)),
		def.IsActive, def.TotalGenerated, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("PutDefinition: failed to upsert definition %s: %w", def.ID, err)
	}
	return nil
}

// LoadActiveDefinitions implements engine.DefinitionRepository.
func (s *Store) LoadActiveDefinitions(ctx context.Context, userID string) ([]domain.RecurringExpenseDefinition, error) {
	query := s.rebind(`SELECT ` + definitionColumns + `
		FROM recurring_definitions
		WHERE user_id = ? AND is_active = ?
		ORDER BY id`)

	rows, err := s.db.QueryContext(ctx, query, userID, true)
	if err != nil {
		return nil, fmt.Errorf("LoadActiveDefinitions: failed to query definitions: %w", err)
	}
	defer rows.Close()

	var defs []domain.RecurringExpenseDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("LoadActiveDefinitions: %w", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("LoadActiveDefinitions: error iterating definitions: %w", err)
	}

	return defs, nil
}

// GetDefinition returns one of the user's definitions.
func (s *Store) GetDefinition(ctx context.Context, userID, id string) (domain.RecurringExpenseDefinition, error) {
	query := s.rebind(`SELECT ` + definitionColumns + ` FROM recurring_definitions WHERE id = ? AND user_id = ?`)

	def, err := scanDefinition(s.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		return domain.RecurringExpenseDefinition{}, fmt.Errorf("GetDefinition: %w", err)
	}
	return def, nil
}

// SaveDefinitionUpdate implements engine.DefinitionRepository.
func (s *Store) SaveDefinitionUpdate(ctx context.Context, userID string, upd domain.DefinitionUpdate) error {
	if err := s.applyUpdate(ctx, s.db, userID, upd); err != nil {
		return fmt.Errorf("SaveDefinitionUpdate: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// applyUpdate advances the definition only if it is still at the expected
// occurrence.
func (s *Store) applyUpdate(ctx context.Context, q execer, userID string, upd domain.DefinitionUpdate) error {
	query := s.rebind(`
		UPDATE recurring_definitions
		SET next_occurrence = ?, total_generated = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND COALESCE(next_occurrence, start_date) = ?`)

	res, err := q.ExecContext(ctx, query,
		upd.NextOccurrence.String(), upd.TotalGenerated, time.Now().UTC(),
		upd.DefinitionID, userID, upd.ExpectedNextOccurrence.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update definition %s: %w", upd.DefinitionID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	var current sql.Null[civil.Date]
	var start civil.Date
	err = q.QueryRowContext(ctx,
		s.rebind(`SELECT next_occurrence, start_date FROM recurring_definitions WHERE id = ? AND user_id = ?`),
		upd.DefinitionID, userID,
	).Scan(&current, &start)
	if err == sql.ErrNoRows {
		return fmt.Errorf("definition not found: %s", upd.DefinitionID)
	}
	if err != nil {
		return fmt.Errorf("failed to read definition %s: %w", upd.DefinitionID, err)
	}

	at := start
	if current.Valid {
		at = current.V
	}
	return fmt.Errorf("definition %s at %s, update expects %s: %w",
		upd.DefinitionID, at, upd.ExpectedNextOccurrence, engine.ErrStaleDefinition)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row scanner) (domain.RecurringExpenseDefinition, error) {
	var (
		def       domain.RecurringExpenseDefinition
		frequency string
		endDate   sql.Null[civil.Date]
		next      sql.Null[civil.Date]
	)

	err := row.Scan(
		&def.ID, &def.UserID, &def.Title, &def.Amount,
		&def.Category, &def.CategoryID, &def.CategoryIcon, &def.CategoryColor,
		&def.Wallet, &def.Description, &frequency,
		&def.StartDate, &endDate, &next, &def.IsActive, &def.TotalGenerated,
	)
	if err != nil {
		return def, fmt.Errorf("failed to scan definition: %w", err)
	}

	// Unknown frequencies are kept as-is so the scanner reports them per definition.
	def.Frequency = domain.Frequency(frequency)
	if f, err := domain.ParseFrequency(frequency); err == nil {
		def.Frequency = f
	}
	if endDate.Valid {
		end := endDate.V
		def.EndDate = &end
	}
	if next.Valid {
		def.NextOccurrence = next.V
	}
	return def, nil
}

func nullDate(d *civil.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func optionalDate(d civil.Date) *civil.Date {
	if d.IsZero() {
		return nil
	}
	return &d
}
