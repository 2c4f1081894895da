package sqlstore

import "strings"

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS recurring_definitions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	amount {{AMOUNT}} NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	category_id TEXT NOT NULL DEFAULT '',
	category_icon TEXT NOT NULL DEFAULT '',
	category_color TEXT NOT NULL DEFAULT '',
	wallet TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	frequency TEXT NOT NULL,
	start_date {{DATE}} NOT NULL,
	end_date {{DATE}},
	next_occurrence {{DATE}},
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	total_generated BIGINT NOT NULL DEFAULT 0,
	updated_at {{TIMESTAMP}} NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recurring_definitions_user ON recurring_definitions (user_id, is_active);
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	date {{DATE}} NOT NULL,
	period TEXT NOT NULL,
	day_of_week INTEGER NOT NULL,
	title TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	category_id TEXT NOT NULL DEFAULT '',
	category_icon TEXT NOT NULL DEFAULT '',
	category_color TEXT NOT NULL DEFAULT '',
	wallet TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	amount {{AMOUNT}} NOT NULL,
	is_income BOOLEAN NOT NULL,
	is_auto_generated BOOLEAN NOT NULL,
	recurring_source_id TEXT,
	created_at {{TIMESTAMP}} NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_budget ON transactions (user_id, category, period);
CREATE TABLE IF NOT EXISTS budgets (
	user_id TEXT NOT NULL,
	category TEXT NOT NULL,
	period TEXT NOT NULL,
	spent {{AMOUNT}} NOT NULL,
	updated_at {{TIMESTAMP}} NOT NULL,
	PRIMARY KEY (user_id, category, period)
)`

// schema returns the DDL statements for the dialect. Amounts are exact
// NUMERIC on Postgres and decimal strings on SQLite.
func schema(d Dialect) []string {
	r := strings.NewReplacer(
		"{{AMOUNT}}", "TEXT",
		"{{DATE}}", "TEXT",
		"{{TIMESTAMP}}", "DATETIME",
	)
	if d == DialectPostgres {
		r = strings.NewReplacer(
			"{{AMOUNT}}", "NUMERIC",
			"{{DATE}}", "DATE",
			"{{TIMESTAMP}}", "TIMESTAMPTZ",
		)
	}

	var stmts []string
	for _, stmt := range strings.Split(r.Replace(schemaTemplate), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
