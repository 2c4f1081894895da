package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-recurring/internal/domain"
	"github.com/shopspring/decimal"
)

// Append implements engine.TransactionStore. A transaction that already
// exists is left untouched and the budget is not counted twice.
func (s *Store) Append(ctx context.Context, tx domain.GeneratedTransaction) error {
	err := s.withTx(ctx, func(dbTx *sql.Tx) error {
		return s.appendTx(ctx, dbTx, tx)
	})
	if err != nil {
		return fmt.Errorf("Append: %w", err)
	}
	return nil
}

// Commit implements engine.Committer. The transaction insert, the budget
// refresh and the definition update share one database transaction.
func (s *Store) Commit(ctx context.Context, tx domain.GeneratedTransaction, upd domain.DefinitionUpdate) error {
	err := s.withTx(ctx, func(dbTx *sql.Tx) error {
		if err := s.applyUpdate(ctx, dbTx, tx.UserID, upd); err != nil {
			return err
		}
		return s.appendTx(ctx, dbTx, tx)
	})
	if err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	return nil
}

func (s *Store) appendTx(ctx context.Context, dbTx *sql.Tx, tx domain.GeneratedTransaction) error {
	query := s.rebind(`
		INSERT INTO transactions (
			id, user_id, date, period, day_of_week, title, category, category_id, category_icon,
			category_color, wallet, description, amount, is_income, is_auto_generated,
			recurring_source_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)

	res, err := dbTx.ExecContext(ctx, query,
		tx.ID, tx.UserID, tx.Date.String(), domain.BudgetPeriod(tx.Date), int(tx.DayOfWeek),
		tx.Title, tx.Category, tx.CategoryID, tx.CategoryIcon, tx.CategoryColor,
		tx.Wallet, tx.Description, tx.Amount.String(), tx.IsIncome, tx.IsAutoGenerated,
		nullString(tx.RecurringSourceID), tx.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", tx.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return nil
	}

	return s.refreshBudget(ctx, dbTx, domain.BudgetKeyFor(tx))
}

// refreshBudget recomputes the budget row from the stored transactions, so
// replays cannot inflate it.
func (s *Store) refreshBudget(ctx context.Context, dbTx *sql.Tx, key domain.BudgetKey) error {
	rows, err := dbTx.QueryContext(ctx,
		s.rebind(`SELECT amount FROM transactions WHERE user_id = ? AND category = ? AND period = ? AND is_income = ?`),
		key.UserID, key.Category, key.Period, false,
	)
	if err != nil {
		return fmt.Errorf("failed to query budget transactions: %w", err)
	}
	defer rows.Close()

	spent := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return fmt.Errorf("failed to scan amount: %w", err)
		}
		spent = spent.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating budget transactions: %w", err)
	}

	query := s.rebind(`
		INSERT INTO budgets (user_id, category, period, spent, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, category, period) DO UPDATE SET
			spent = excluded.spent,
			updated_at = excluded.updated_at`)
	if _, err := dbTx.ExecContext(ctx, query, key.UserID, key.Category, key.Period, spent.String(), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert budget %s/%s: %w", key.Category, key.Period, err)
	}
	return nil
}

// Transactions returns the user's transactions between from and to
// (inclusive, zero means unbounded) ordered by date, then ID.
func (s *Store) Transactions(ctx context.Context, userID string, from, to civil.Date) ([]domain.GeneratedTransaction, error) {
	query := `
		SELECT id, user_id, date, day_of_week, title, category, category_id, category_icon,
			category_color, wallet, description, amount, is_income, is_auto_generated,
			recurring_source_id, created_at
		FROM transactions
		WHERE user_id = ?`
	args := []any{userID}
	if !from.IsZero() {
		query += ` AND date >= ?`
		args = append(args, from.String())
	}
	if !to.IsZero() {
		query += ` AND date <= ?`
		args = append(args, to.String())
	}
	query += ` ORDER BY date, id`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("Transactions: failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.GeneratedTransaction
	for rows.Next() {
		var (
			tx        domain.GeneratedTransaction
			date      civil.Date
			dayOfWeek int
			sourceID  sql.NullString
		)
		err := rows.Scan(
			&tx.ID, &tx.UserID, &date, &dayOfWeek, &tx.Title, &tx.Category, &tx.CategoryID,
			&tx.CategoryIcon, &tx.CategoryColor, &tx.Wallet, &tx.Description, &tx.Amount,
			&tx.IsIncome, &tx.IsAutoGenerated, &sourceID, &tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("Transactions: failed to scan transaction: %w", err)
		}
		tx.Date = date
		tx.DayOfWeek = time.Weekday(dayOfWeek)
		tx.RecurringSourceID = sourceID.String
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Transactions: error iterating transactions: %w", err)
	}

	return txs, nil
}

// Budget returns the amount spent for a budget key; zero when no row exists.
func (s *Store) Budget(ctx context.Context, key domain.BudgetKey) (decimal.Decimal, error) {
	var spent decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT spent FROM budgets WHERE user_id = ? AND category = ? AND period = ?`),
		key.UserID, key.Category, key.Period,
	).Scan(&spent)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("Budget: %w", err)
	}
	return spent, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
