package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/fos/internal/domain"
)

// auditRepositoryPostgres хранит журнал переходов в таблице fos_transitions.
type auditRepositoryPostgres struct {
	db *sql.DB
}

// NewAuditRepository возвращает postgres-реализацию журнала переходов.
func NewAuditRepository(store *Store) domain.AuditRepository {
	return &auditRepositoryPostgres{db: store.DB()}
}

var _ domain.AuditRepository = (*auditRepositoryPostgres)(nil)

// Append добавляет событие перехода в журнал.
func (r *auditRepositoryPostgres) Append(event domain.TransitionEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO fos_transitions (
			id, entity_key, from_status, to_status, actor, reason, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		event.ID, event.EntityKey, string(event.From), string(event.To),
		event.Actor, event.Reason, event.Occurred,
	); err != nil {
		return fmt.Errorf("insert transition for %s: %w", event.EntityKey, err)
	}

	return nil
}

// List возвращает историю переходов записи в порядке наступления.
func (r *auditRepositoryPostgres) List(entityKey string) ([]domain.TransitionEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entity_key, from_status, to_status, actor, reason, occurred_at
		FROM fos_transitions
		WHERE entity_key = $1
		ORDER BY occurred_at
	`, entityKey)
	if err != nil {
		return nil, fmt.Errorf("list transitions for %s: %w", entityKey, err)
	}
	defer rows.Close()

	var result []domain.TransitionEvent
	for rows.Next() {
		var (
			event      domain.TransitionEvent
			fromStatus string
			toStatus   string
		)
		if err := rows.Scan(
			&event.ID, &event.EntityKey, &fromStatus, &toStatus,
			&event.Actor, &event.Reason, &event.Occurred,
		); err != nil {
			return nil, fmt.Errorf("scan transition row: %w", err)
		}
		event.From = domain.LifecycleStatus(fromStatus)
		event.To = domain.LifecycleStatus(toStatus)
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transition rows: %w", err)
	}

	return result, nil
}
