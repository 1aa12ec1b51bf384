package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"promptfinder/internal/models"
)

// CommitModeration writes the per-service logs, their flags and the post outcome in one transaction.
// Either everything lands or nothing does.
func (r *PostRepository) CommitModeration(ctx context.Context, postID int64, logs []models.ModerationLog, update models.ModerationUpdate) (models.Post, error) {
	var committed models.Post
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := getPost(ctx, tx, postID, true); err != nil {
			return err
		}

		for _, entry := range logs {
			if err := insertLog(ctx, tx, postID, entry); err != nil {
				return err
			}
		}

		const query = `
			UPDATE posts
			SET moderation_status = $2,
			    requires_manual_review = $3,
			    moderation_completed_at = $4,
			    status = $5,
			    updated_at = NOW()
			WHERE id = $1
			RETURNING ` + postColumns

		var err error
		committed, err = scanPost(tx.QueryRow(ctx, query,
			postID, update.Status, update.RequiresReview, update.CompletedAt, update.PostStatus,
		))
		return err
	})
	if err != nil {
		if errors.Is(err, ErrPostNotFound) {
			return models.Post{}, err
		}
		return models.Post{}, fmt.Errorf("commit moderation: %w", err)
	}
	return committed, nil
}

func insertLog(ctx context.Context, tx pgx.Tx, postID int64, entry models.ModerationLog) error {
	const logQuery = `
		INSERT INTO moderation_logs (post_id, service, status, confidence, severity, categories, explanation, raw_response, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	categories := entry.Categories
	if categories == nil {
		categories = []string{}
	}
	severity := entry.Severity
	if severity == "" {
		severity = models.SeverityLow
	}

	var logID int64
	err := tx.QueryRow(ctx, logQuery,
		postID, entry.Service, entry.Status, entry.Confidence, severity, categories,
		entry.Explanation, string(entry.RawResponse), entry.Notes,
	).Scan(&logID)
	if err != nil {
		return fmt.Errorf("insert %s log: %w", entry.Service, err)
	}

	const flagQuery = `
		INSERT INTO content_flags (moderation_log_id, category, confidence, severity, detail)
		VALUES ($1, $2, $3, $4, $5)`
	for _, flag := range entry.Flags {
		detail := flag.Detail
		if len(detail) == 0 {
			detail = []byte("{}")
		}
		if _, err := tx.Exec(ctx, flagQuery, logID, flag.Category, flag.Confidence, flag.Severity, string(detail)); err != nil {
			return fmt.Errorf("insert flag %s: %w", flag.Category, err)
		}
	}
	return nil
}

// LogsForPost returns the moderation history, newest first, with flags attached.
func (r *PostRepository) LogsForPost(ctx context.Context, postID int64) ([]models.ModerationLog, error) {
	const query = `
		SELECT id, post_id, service, status, confidence, severity, categories, explanation, raw_response, notes, created_at
		FROM moderation_logs
		WHERE post_id = $1
		ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.ModerationLog
	index := make(map[int64]int)
	for rows.Next() {
		var entry models.ModerationLog
		var raw string
		if err := rows.Scan(
			&entry.ID, &entry.PostID, &entry.Service, &entry.Status, &entry.Confidence, &entry.Severity,
			&entry.Categories, &entry.Explanation, &raw, &entry.Notes, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.RawResponse = []byte(raw)
		index[entry.ID] = len(logs)
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return logs, nil
	}

	const flagQuery = `
		SELECT f.id, f.moderation_log_id, f.category, f.confidence, f.severity, f.detail::text
		FROM content_flags f
		JOIN moderation_logs l ON l.id = f.moderation_log_id
		WHERE l.post_id = $1
		ORDER BY f.id`
	flagRows, err := r.pool.Query(ctx, flagQuery, postID)
	if err != nil {
		return nil, err
	}
	defer flagRows.Close()

	for flagRows.Next() {
		var flag models.ContentFlag
		var detail string
		if err := flagRows.Scan(&flag.ID, &flag.ModerationLogID, &flag.Category, &flag.Confidence, &flag.Severity, &detail); err != nil {
			return nil, err
		}
		flag.Detail = []byte(detail)
		if i, ok := index[flag.ModerationLogID]; ok {
			logs[i].Flags = append(logs[i].Flags, flag)
		}
	}
	return logs, flagRows.Err()
}
