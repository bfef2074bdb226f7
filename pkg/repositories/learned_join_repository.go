package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tablemesh/tablemesh-engine/pkg/database"
	"github.com/tablemesh/tablemesh-engine/pkg/models"
)

// LearnedJoinRepository persists learned joins. One row per normalized table
// pair; re-learning a pair replaces the previous answer (last-write-wins).
type LearnedJoinRepository interface {
	Upsert(ctx context.Context, lj *models.LearnedJoin) error
	GetByPair(ctx context.Context, tableA, tableB string) (*models.LearnedJoin, error)
	GetAll(ctx context.Context) ([]*models.LearnedJoin, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type learnedJoinRepository struct {
	db *database.DB
}

// NewLearnedJoinRepository creates a new LearnedJoinRepository.
func NewLearnedJoinRepository(db *database.DB) LearnedJoinRepository {
	return &learnedJoinRepository{db: db}
}

var _ LearnedJoinRepository = (*learnedJoinRepository)(nil)

func (r *learnedJoinRepository) Upsert(ctx context.Context, lj *models.LearnedJoin) error {
	if lj.ID == uuid.Nil {
		lj.ID = uuid.New()
	}
	if lj.CreatedAt.IsZero() {
		lj.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO learned_joins (
			id, pair_key, table_a, table_b, on_expression, cardinality, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (pair_key)
		DO UPDATE SET
			table_a = EXCLUDED.table_a,
			table_b = EXCLUDED.table_b,
			on_expression = EXCLUDED.on_expression,
			cardinality = EXCLUDED.cardinality,
			created_by = EXCLUDED.created_by,
			updated_at = NOW()`

	_, err := r.db.Exec(ctx, query,
		lj.ID, lj.PairKey(), lj.TableA, lj.TableB, lj.On, lj.Cardinality, lj.CreatedBy, lj.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert learned join: %w", err)
	}
	return nil
}

func (r *learnedJoinRepository) GetByPair(ctx context.Context, tableA, tableB string) (*models.LearnedJoin, error) {
	query := `
		SELECT id, table_a, table_b, on_expression, cardinality, created_by, created_at, updated_at
		FROM learned_joins
		WHERE pair_key = $1`

	row := r.db.QueryRow(ctx, query, models.NormalizedPairKey(tableA, tableB))
	lj, err := scanLearnedJoin(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get learned join: %w", err)
	}
	return lj, nil
}

func (r *learnedJoinRepository) GetAll(ctx context.Context) ([]*models.LearnedJoin, error) {
	query := `
		SELECT id, table_a, table_b, on_expression, cardinality, created_by, created_at, updated_at
		FROM learned_joins
		ORDER BY table_a, table_b`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query learned joins: %w", err)
	}
	defer rows.Close()

	var joins []*models.LearnedJoin
	for rows.Next() {
		lj, err := scanLearnedJoin(rows)
		if err != nil {
			return nil, err
		}
		joins = append(joins, lj)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating learned joins: %w", err)
	}
	return joins, nil
}

func (r *learnedJoinRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM learned_joins WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete learned join: %w", err)
	}
	return nil
}

func scanLearnedJoin(row pgx.Row) (*models.LearnedJoin, error) {
	var lj models.LearnedJoin
	err := row.Scan(
		&lj.ID, &lj.TableA, &lj.TableB, &lj.On, &lj.Cardinality,
		&lj.CreatedBy, &lj.CreatedAt, &lj.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &lj, nil
}
