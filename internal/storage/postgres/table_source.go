package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/fos/internal/domain"
)

const pgUndefinedTable = "42P01"

// Имена таблиц и ключевых полей приходят из каталога зависимостей и подставляются
// в текст запроса, поэтому допускаем только безопасные идентификаторы.
var safeIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// tableSourcePostgres читает реплицированные upstream-таблицы напрямую из PostgreSQL.
// Таблица, которую репликация ещё не создала, трактуется как пустая зависимость.
type tableSourcePostgres struct {
	db *sql.DB
}

// NewTableSource возвращает postgres-источник upstream-таблиц.
func NewTableSource(store *Store) domain.TableSource {
	return &tableSourcePostgres{db: store.DB()}
}

var _ domain.TableSource = (*tableSourcePostgres)(nil)

// QueryByKey возвращает строки таблицы с совпадающим значением ключевого поля.
// Отсутствие таблицы (42P01) превращается в ErrTableMissing.
func (s *tableSourcePostgres) QueryByKey(q domain.TableQuery) ([]domain.Row, error) {
	if err := validateIdentifier(q.Table); err != nil {
		return nil, err
	}
	if err := validateIdentifier(q.KeyField); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT * FROM %q WHERE %q = $1`, q.Table, q.KeyField)
	rows, err := s.db.QueryContext(ctx, query, q.KeyValue)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
			return nil, domain.ErrTableMissing
		}
		return nil, fmt.Errorf("query %s by %s: %w", q.Table, q.KeyField, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", q.Table, err)
	}

	var result []domain.Row
	for rows.Next() {
		values := make([]sql.NullString, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row of %s: %w", q.Table, err)
		}

		row := make(domain.Row, len(columns))
		for i, column := range columns {
			if values[i].Valid {
				row[column] = values[i].String
			} else {
				row[column] = ""
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows of %s: %w", q.Table, err)
	}

	return result, nil
}

func validateIdentifier(name string) error {
	if !safeIdentifier.MatchString(name) {
		return fmt.Errorf("unsafe sql identifier: %q", name)
	}
	return nil
}
