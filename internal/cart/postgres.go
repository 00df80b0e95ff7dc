package cart

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/pickle-storefront/internal/database"
	"github.com/safar/pickle-storefront/internal/models"
)

// PostgresStore keeps one row per cart line in the cart_lines table created
// by the database migrations.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context, bagKey string) ([]models.CartLine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, weight_option, name, unit_price, quantity, image_url
		 FROM cart_lines
		 WHERE bag_key = $1
		 ORDER BY position`,
		bagKey)
	if err != nil {
		return nil, fmt.Errorf("query cart bag %s: %w", bagKey, err)
	}
	defer rows.Close()

	lines := []models.CartLine{}
	for rows.Next() {
		var line models.CartLine
		if err := rows.Scan(
			&line.ProductID,
			&line.SelectedWeightOption,
			&line.Name,
			&line.UnitPrice,
			&line.Quantity,
			&line.ImageURL,
		); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart lines: %w", err)
	}

	return lines, nil
}

// Save replaces the whole bag in one serializable transaction.
func (s *PostgresStore) Save(ctx context.Context, bagKey string, lines []models.CartLine) error {
	return database.WithRetry(ctx, s.db, database.TxOptions{
		IsolationLevel: sql.LevelSerializable,
		MaxRetries:     3,
	}, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE bag_key = $1`, bagKey); err != nil {
			return fmt.Errorf("clear cart bag %s: %w", bagKey, err)
		}

		for i, line := range lines {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO cart_lines (bag_key, position, product_id, weight_option, name, unit_price, quantity, image_url, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
				bagKey, i, line.ProductID, line.SelectedWeightOption, line.Name, line.UnitPrice, line.Quantity, line.ImageURL)
			if err != nil {
				return fmt.Errorf("insert cart line %s: %w", line.ProductID, err)
			}
		}

		return nil
	})
}

func (s *PostgresStore) Clear(ctx context.Context, bagKey string) error {
	return database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE bag_key = $1`, bagKey); err != nil {
			return fmt.Errorf("clear cart bag %s: %w", bagKey, err)
		}
		return nil
	})
}
