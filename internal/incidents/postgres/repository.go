// Package postgres implements the incidents document store on PostgreSQL.
// Incidents are stored as whole JSONB documents keyed by id; filters are
// evaluated against document fields with JSON operators.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nimbusops/statuspage/internal/domain"
	"github.com/nimbusops/statuspage/internal/incidents"
)

// Repository implements incidents.Store backed by a pgx connection pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL incidents repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get retrieves an incident document by id.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Incident, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx,
		`SELECT doc FROM incidents WHERE id = $1`,
		id,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", incidents.ErrIncidentNotFound, id)
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}

	var incident domain.Incident
	if err := json.Unmarshal(doc, &incident); err != nil {
		return nil, fmt.Errorf("unmarshal incident %s: %w", id, err)
	}
	return &incident, nil
}

// Find retrieves incident documents matching the filter, newest first.
func (r *Repository) Find(ctx context.Context, filter incidents.Filter) ([]*domain.Incident, error) {
	query := `SELECT doc FROM incidents`
	where, args := buildWhere(filter)
	if where != "" {
		query += " WHERE " + where
	}
	query += ` ORDER BY doc->>'created_at' DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find incidents: %w", err)
	}
	defer rows.Close()

	var result []*domain.Incident
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		var incident domain.Incident
		if err := json.Unmarshal(doc, &incident); err != nil {
			return nil, fmt.Errorf("unmarshal incident: %w", err)
		}
		result = append(result, &incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return result, nil
}

// Count returns the number of incident documents matching the filter.
func (r *Repository) Count(ctx context.Context, filter incidents.Filter) (int, error) {
	query := `SELECT COUNT(*) FROM incidents`
	where, args := buildWhere(filter)
	if where != "" {
		query += " WHERE " + where
	}

	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count incidents: %w", err)
	}
	return count, nil
}

// Insert stores a new incident document.
func (r *Repository) Insert(ctx context.Context, incident *domain.Incident) error {
	doc, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("marshal incident: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO incidents (id, doc) VALUES ($1, $2)`,
		incident.ID, doc,
	)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// Update replaces the stored document and reports how many rows matched.
// Zero means the incident was deleted between read and write.
func (r *Repository) Update(ctx context.Context, incident *domain.Incident) (int64, error) {
	doc, err := json.Marshal(incident)
	if err != nil {
		return 0, fmt.Errorf("marshal incident: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE incidents SET doc = $2 WHERE id = $1`,
		incident.ID, doc,
	)
	if err != nil {
		return 0, fmt.Errorf("update incident: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Remove deletes an incident document and reports how many rows matched.
func (r *Repository) Remove(ctx context.Context, id string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM incidents WHERE id = $1`,
		id,
	)
	if err != nil {
		return 0, fmt.Errorf("remove incident: %w", err)
	}
	return tag.RowsAffected(), nil
}

// buildWhere translates a Filter into a SQL predicate over the document.
func buildWhere(filter incidents.Filter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Type != nil {
		add(`doc->>'type' = $%d`, string(*filter.Type))
	}
	if filter.IsResolved != nil {
		add(`COALESCE((doc->>'is_resolved')::boolean, false) = $%d`, *filter.IsResolved)
	}
	if filter.ScheduledStatus != nil {
		add(`doc->>'scheduled_status' = $%d`, string(*filter.ScheduledStatus))
	}
	if filter.AutoStatusUpdates != nil {
		add(`COALESCE((doc->>'scheduled_auto_status_updates')::boolean, false) = $%d`, *filter.AutoStatusUpdates)
	}
	if filter.ScheduledStartBefore != nil {
		add(`(doc->>'scheduled_start_time')::timestamptz <= $%d`, filter.ScheduledStartBefore.UTC())
	}
	if filter.ScheduledEndBefore != nil {
		add(`(doc->>'scheduled_end_time')::timestamptz <= $%d`, filter.ScheduledEndBefore.UTC())
	}

	return strings.Join(conds, " AND "), args
}
