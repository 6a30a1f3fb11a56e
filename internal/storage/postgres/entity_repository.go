package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/fos/internal/domain"
)

const (
	opTimeout = 5 * time.Second

	pgUniqueViolation = "23505"
)

// entityRepositoryPostgres хранит отслеживаемые записи в таблице fos_entities.
// Карты зависимостей, снапшот и ответ TMS лежат в JSONB-колонках.
type entityRepositoryPostgres struct {
	db *sql.DB
}

// NewEntityRepository возвращает postgres-реализацию хранилища записей.
func NewEntityRepository(store *Store) domain.EntityRepository {
	return &entityRepositoryPostgres{db: store.DB()}
}

var _ domain.EntityRepository = (*entityRepositoryPostgres)(nil)

// snapshotDoc — JSON-представление снапшота в колонке snapshot.
type snapshotDoc struct {
	OrderNo        string `json:"order_no"`
	ConsolNo       string `json:"consol_no"`
	ServiceLevelID string `json:"service_level_id"`
	VendorID       string `json:"vendor_id"`
	Consolidation  string `json:"consolidation"`
	ControlStation string `json:"control_station"`
	SeqNo          string `json:"seq_no"`
	UpdatedBy      string `json:"updated_by"`
	CreateDateTime string `json:"create_date_time"`
}

func snapshotToDoc(s domain.ShipmentSnapshot) snapshotDoc {
	return snapshotDoc(s)
}

func docToSnapshot(d snapshotDoc) domain.ShipmentSnapshot {
	return domain.ShipmentSnapshot(d)
}

// Create сохраняет новую запись; повтор по занятому ключу превращается в ErrEntityExists.
func (r *entityRepositoryPostgres) Create(entity domain.TrackedEntity) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	deps, legs, snapshot, err := marshalEntityDocs(entity)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO fos_entities (
			entity_key, entity_type, lifecycle, retry_count,
			dependencies, legs, snapshot, response,
			created_at, last_updated_at, last_updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		entity.Key, string(entity.EntityType), string(entity.Lifecycle), entity.RetryCount,
		deps, legs, snapshot, nullableJSON(entity.Response),
		entity.CreatedAt, entity.LastUpdatedAt, entity.LastUpdatedBy,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrEntityExists
		}
		return fmt.Errorf("insert entity %s: %w", entity.Key, err)
	}

	return nil
}

// Get возвращает запись по ключу.
func (r *entityRepositoryPostgres) Get(key string) (domain.TrackedEntity, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT entity_key, entity_type, lifecycle, retry_count,
		       dependencies, legs, snapshot, response,
		       created_at, last_updated_at, last_updated_by
		FROM fos_entities
		WHERE entity_key = $1
	`, key)

	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TrackedEntity{}, domain.ErrEntityNotFound
		}
		return domain.TrackedEntity{}, fmt.Errorf("get entity %s: %w", key, err)
	}

	return entity, nil
}

// Update читает запись под SELECT ... FOR UPDATE, применяет мутацию и перезаписывает строку.
// Ключ записи неизменяем: значение, выставленное мутацией, игнорируется.
func (r *entityRepositoryPostgres) Update(key string, mutate func(*domain.TrackedEntity)) (domain.TrackedEntity, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.TrackedEntity{}, fmt.Errorf("begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT entity_key, entity_type, lifecycle, retry_count,
		       dependencies, legs, snapshot, response,
		       created_at, last_updated_at, last_updated_by
		FROM fos_entities
		WHERE entity_key = $1
		FOR UPDATE
	`, key)

	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TrackedEntity{}, domain.ErrEntityNotFound
		}
		return domain.TrackedEntity{}, fmt.Errorf("lock entity %s: %w", key, err)
	}

	mutate(&entity)
	entity.Key = key

	deps, legs, snapshot, err := marshalEntityDocs(entity)
	if err != nil {
		return domain.TrackedEntity{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE fos_entities
		SET entity_type = $2, lifecycle = $3, retry_count = $4,
		    dependencies = $5, legs = $6, snapshot = $7, response = $8,
		    last_updated_at = $9, last_updated_by = $10
		WHERE entity_key = $1
	`,
		key, string(entity.EntityType), string(entity.Lifecycle), entity.RetryCount,
		deps, legs, snapshot, nullableJSON(entity.Response),
		entity.LastUpdatedAt, entity.LastUpdatedBy,
	); err != nil {
		return domain.TrackedEntity{}, fmt.Errorf("update entity %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.TrackedEntity{}, fmt.Errorf("commit update of %s: %w", key, err)
	}

	return entity, nil
}

// ListByStatus возвращает записи в заданном статусе, упорядоченные по ключу.
func (r *entityRepositoryPostgres) ListByStatus(status domain.LifecycleStatus) ([]domain.TrackedEntity, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT entity_key, entity_type, lifecycle, retry_count,
		       dependencies, legs, snapshot, response,
		       created_at, last_updated_at, last_updated_by
		FROM fos_entities
		WHERE lifecycle = $1
		ORDER BY entity_key
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list entities by status %s: %w", status, err)
	}
	defer rows.Close()

	var result []domain.TrackedEntity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity row: %w", err)
		}
		result = append(result, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity rows: %w", err)
	}

	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (domain.TrackedEntity, error) {
	var (
		entity      domain.TrackedEntity
		entityType  string
		lifecycle   string
		depsRaw     []byte
		legsRaw     []byte
		snapshotRaw []byte
		responseRaw []byte
	)

	if err := row.Scan(
		&entity.Key, &entityType, &lifecycle, &entity.RetryCount,
		&depsRaw, &legsRaw, &snapshotRaw, &responseRaw,
		&entity.CreatedAt, &entity.LastUpdatedAt, &entity.LastUpdatedBy,
	); err != nil {
		return domain.TrackedEntity{}, err
	}

	entity.EntityType = domain.EntityType(entityType)
	entity.Lifecycle = domain.LifecycleStatus(lifecycle)

	if len(depsRaw) > 0 {
		if err := json.Unmarshal(depsRaw, &entity.Dependencies); err != nil {
			return domain.TrackedEntity{}, fmt.Errorf("decode dependencies: %w", err)
		}
	}
	if len(legsRaw) > 0 {
		if err := json.Unmarshal(legsRaw, &entity.Legs); err != nil {
			return domain.TrackedEntity{}, fmt.Errorf("decode legs: %w", err)
		}
	}
	if len(snapshotRaw) > 0 {
		var doc snapshotDoc
		if err := json.Unmarshal(snapshotRaw, &doc); err != nil {
			return domain.TrackedEntity{}, fmt.Errorf("decode snapshot: %w", err)
		}
		entity.Snapshot = docToSnapshot(doc)
	}
	if len(responseRaw) > 0 {
		entity.Response = json.RawMessage(responseRaw)
	}

	return entity, nil
}

func marshalEntityDocs(entity domain.TrackedEntity) (deps, legs, snapshot []byte, err error) {
	if entity.Dependencies != nil {
		if deps, err = json.Marshal(entity.Dependencies); err != nil {
			return nil, nil, nil, fmt.Errorf("encode dependencies of %s: %w", entity.Key, err)
		}
	}
	if entity.Legs != nil {
		if legs, err = json.Marshal(entity.Legs); err != nil {
			return nil, nil, nil, fmt.Errorf("encode legs of %s: %w", entity.Key, err)
		}
	}
	if snapshot, err = json.Marshal(snapshotToDoc(entity.Snapshot)); err != nil {
		return nil, nil, nil, fmt.Errorf("encode snapshot of %s: %w", entity.Key, err)
	}
	return deps, legs, snapshot, nil
}

// nullableJSON превращает пустой RawMessage в SQL NULL.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
