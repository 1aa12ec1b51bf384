package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"promptfinder/internal/models"
)

type ProfanityRepository struct {
	pool *pgxpool.Pool
}

func NewProfanityRepository(pool *pgxpool.Pool) *ProfanityRepository {
	return &ProfanityRepository{pool: pool}
}

func (r *ProfanityRepository) ActiveWords(ctx context.Context) ([]models.ProfanityEntry, error) {
	const query = `SELECT id, word, severity, active FROM profanity_words WHERE active ORDER BY word`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var words []models.ProfanityEntry
	for rows.Next() {
		var entry models.ProfanityEntry
		if err := rows.Scan(&entry.ID, &entry.Word, &entry.Severity, &entry.Active); err != nil {
			return nil, err
		}
		words = append(words, entry)
	}
	return words, rows.Err()
}

// Upsert adds a word or reactivates it with a new severity.
func (r *ProfanityRepository) Upsert(ctx context.Context, word string, severity models.Severity) error {
	const query = `
		INSERT INTO profanity_words (word, severity, active)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (word) DO UPDATE SET severity = EXCLUDED.severity, active = TRUE`
	if _, err := r.pool.Exec(ctx, query, strings.ToLower(strings.TrimSpace(word)), severity); err != nil {
		return fmt.Errorf("upsert profanity word: %w", err)
	}
	return nil
}

func (r *ProfanityRepository) Deactivate(ctx context.Context, word string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE profanity_words SET active = FALSE WHERE word = $1`, strings.ToLower(strings.TrimSpace(word)))
	if err != nil {
		return fmt.Errorf("deactivate profanity word: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWordNotFound
	}
	return nil
}

var ErrWordNotFound = errors.New("profanity word not found")
