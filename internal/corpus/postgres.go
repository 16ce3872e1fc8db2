package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/chameleon-ai/chameleon/pkg/postgres"
)

var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

func checkTable(table string) error {
	if !tableName.MatchString(table) {
		return fmt.Errorf("invalid corpus table name %q", table)
	}
	return nil
}

// LoadPostgres reads every document from table ordered by position.
func LoadPostgres(ctx context.Context, client *postgres.Client, table string) (*Store, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	rows, err := client.DB.QueryContext(ctx,
		fmt.Sprintf("SELECT text, topic_index FROM %s ORDER BY position", table))
	if err != nil {
		return nil, fmt.Errorf("querying corpus table %s: %w", table, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.Text, &d.TopicIndex); err != nil {
			return nil, fmt.Errorf("scanning corpus row: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating corpus rows: %w", err)
	}
	return NewStore(docs), nil
}

// Import replaces the contents of table with docs in a single transaction,
// creating the table when it does not exist.
func Import(ctx context.Context, client *postgres.Client, table string, docs []Document) error {
	if err := checkTable(table); err != nil {
		return err
	}
	return client.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	position    INTEGER PRIMARY KEY,
	text        TEXT NOT NULL,
	topic_index INTEGER NOT NULL
)`, table)); err != nil {
			return fmt.Errorf("creating table %s: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("clearing table %s: %w", table, err)
		}
		insert := fmt.Sprintf("INSERT INTO %s (position, text, topic_index) VALUES ($1, $2, $3)", table)
		for i, d := range docs {
			if _, err := tx.ExecContext(ctx, insert, i, d.Text, d.TopicIndex); err != nil {
				return fmt.Errorf("inserting document %d: %w", i, err)
			}
		}
		slog.Default().With("component", "corpus").Info("corpus imported", "table", table, "documents", len(docs))
		return nil
	})
}
