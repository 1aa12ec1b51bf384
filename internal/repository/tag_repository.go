package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

type TagRepository struct {
	pool *pgxpool.Pool
}

func NewTagRepository(pool *pgxpool.Pool) *TagRepository {
	return &TagRepository{pool: pool}
}

// Names lists the tag catalog in alphabetical order.
func (r *TagRepository) Names(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT name FROM tags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *TagRepository) Ensure(ctx context.Context, names ...string) error {
	const query = `INSERT INTO tags (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, err := r.pool.Exec(ctx, query, name); err != nil {
			return fmt.Errorf("ensure tag %q: %w", name, err)
		}
	}
	return nil
}
