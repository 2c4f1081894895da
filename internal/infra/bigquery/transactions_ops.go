package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
)

const (
	transactionsTable = "transactions"
	budgetsTable      = "budgets"
)

// appendTransactionScript inserts the transaction unless its ID already exists
// and recomputes the budget row of its category and month from the stored
// transactions, in one multi-statement transaction. A replayed append
// changes nothing.
const appendTransactionScript = `
BEGIN TRANSACTION;

MERGE %[1]s.%[2]s T
USING (SELECT @transaction_id AS transaction_id) S
ON T.transaction_id = S.transaction_id
WHEN NOT MATCHED THEN
  INSERT (
    transaction_id, user_id, transaction_date, budget_period, day_of_week, title, amount,
    category_id, category_name, category_icon, category_color, wallet, description,
    is_income, is_auto_generated, recurring_source_id, created_ts
  )
  VALUES (
    @transaction_id, @user_id, @transaction_date, @budget_period, @day_of_week, @title, @amount,
    NULLIF(@category_id, ''), NULLIF(@category_name, ''), NULLIF(@category_icon, ''),
    NULLIF(@category_color, ''), NULLIF(@wallet, ''), NULLIF(@description, ''),
    @is_income, @is_auto_generated, NULLIF(@recurring_source_id, ''), @created_ts
  );

MERGE %[1]s.%[3]s B
USING (
  SELECT
    user_id,
    IFNULL(category_name, '') AS category,
    budget_period AS period,
    SUM(amount) AS spent
  FROM %[1]s.%[2]s
  WHERE user_id = @user_id
    AND IFNULL(category_name, '') = @category_name
    AND budget_period = @budget_period
    AND NOT is_income
  GROUP BY user_id, category, period
) S
ON B.user_id = S.user_id AND B.category = S.category AND B.period = S.period
WHEN MATCHED THEN
  UPDATE SET spent = S.spent, updated_ts = CURRENT_TIMESTAMP()
WHEN NOT MATCHED THEN
  INSERT (user_id, category, period, spent, updated_ts)
  VALUES (S.user_id, S.category, S.period, S.spent, CURRENT_TIMESTAMP());

COMMIT TRANSACTION;
`

// AppendTransactionWithClient idempotently stores row in <dataset>.transactions
// and refreshes the matching <dataset>.budgets row.
func AppendTransactionWithClient(ctx context.Context, client *bigquery.Client, dataset string, row *TransactionRow) error {
	q := client.Query(fmt.Sprintf(appendTransactionScript, dataset, transactionsTable, budgetsTable))
	q.Parameters = transactionParameters(row)

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("AppendTransaction: running merge script: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("AppendTransaction: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("AppendTransaction: job error: %w", err)
	}

	return nil
}

func transactionParameters(row *TransactionRow) []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "transaction_id", Value: row.TransactionID},
		{Name: "user_id", Value: row.UserID},
		{Name: "transaction_date", Value: row.TransactionDate},
		{Name: "budget_period", Value: row.BudgetPeriod},
		{Name: "day_of_week", Value: row.DayOfWeek},
		{Name: "title", Value: row.Title},
		{Name: "amount", Value: row.Amount},
		{Name: "category_id", Value: row.CategoryID.StringVal},
		{Name: "category_name", Value: row.CategoryName.StringVal},
		{Name: "category_icon", Value: row.CategoryIcon.StringVal},
		{Name: "category_color", Value: row.CategoryColor.StringVal},
		{Name: "wallet", Value: row.Wallet.StringVal},
		{Name: "description", Value: row.Description.StringVal},
		{Name: "is_income", Value: row.IsIncome},
		{Name: "is_auto_generated", Value: row.IsAutoGenerated},
		{Name: "recurring_source_id", Value: row.RecurringSourceID.StringVal},
		{Name: "created_ts", Value: row.CreatedTS},
	}
}

// QueryTransactionsByUserWithClient returns the user's transactions between
// from and to (inclusive, zero means unbounded).
func QueryTransactionsByUserWithClient(ctx context.Context, client *bigquery.Client, dataset, userID string, from, to civil.Date) ([]*TransactionRow, error) {
	query := fmt.Sprintf(`
		SELECT
			transaction_id,
			user_id,
			transaction_date,
			budget_period,
			day_of_week,
			title,
			amount,
			category_id,
			category_name,
			category_icon,
			category_color,
			wallet,
			description,
			is_income,
			is_auto_generated,
			recurring_source_id,
			created_ts
		FROM %s.%s
		WHERE user_id = @user_id`, dataset, transactionsTable)

	params := []bigquery.QueryParameter{{Name: "user_id", Value: userID}}
	if !from.IsZero() {
		query += " AND transaction_date >= @from_date"
		params = append(params, bigquery.QueryParameter{Name: "from_date", Value: from})
	}
	if !to.IsZero() {
		query += " AND transaction_date <= @to_date"
		params = append(params, bigquery.QueryParameter{Name: "to_date", Value: to})
	}
	query += " ORDER BY transaction_date, transaction_id"

	q := client.Query(query)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactionsByUser: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryTransactionsByUser: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}

// GetBudgetWithClient returns the budget row for the key, or nil when none exists.
func GetBudgetWithClient(ctx context.Context, client *bigquery.Client, dataset, userID, category, period string) (*BudgetRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT user_id, category, period, spent, updated_ts
		FROM %s.%s
		WHERE user_id = @user_id AND category = @category AND period = @period
		LIMIT 1
	`, dataset, budgetsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "category", Value: category},
		{Name: "period", Value: period},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetBudget: query read: %w", err)
	}

	var row BudgetRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetBudget: iter next: %w", err)
	}
	return &row, nil
}
