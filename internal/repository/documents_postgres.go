package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caselens/timeline-back/internal/domain"
)

type PostgresDocumentsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresDocumentsRepository(ctx context.Context, databaseURL string) (*PostgresDocumentsRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresDocumentsRepository{pool: pool}, nil
}

func (r *PostgresDocumentsRepository) Close() {
	r.pool.Close()
}

func (r *PostgresDocumentsRepository) CreateDocument(ctx context.Context, document *domain.Document) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO documents (
			id,
			owner_id,
			filename,
			status,
			error_message,
			created_at,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		document.ID,
		document.OwnerID,
		document.Filename,
		string(document.Status),
		document.ErrorMessage,
		document.CreatedAt,
		document.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *PostgresDocumentsRepository) GetDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	var (
		document domain.Document
		status   string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, filename, status, error_message, created_at, updated_at
		FROM documents
		WHERE id = $1
	`, documentID).Scan(
		&document.ID,
		&document.OwnerID,
		&document.Filename,
		&status,
		&document.ErrorMessage,
		&document.CreatedAt,
		&document.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query document: %w", err)
	}
	document.Status = domain.DocumentStatus(status)
	return &document, nil
}

func (r *PostgresDocumentsRepository) ListDocuments(ctx context.Context, ownerID string) ([]domain.Document, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, filename, status, error_message, created_at, updated_at
		FROM documents
		WHERE ($1 = '' OR owner_id = $1)
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	documents := make([]domain.Document, 0)
	for rows.Next() {
		var (
			document domain.Document
			status   string
		)
		if err := rows.Scan(
			&document.ID,
			&document.OwnerID,
			&document.Filename,
			&status,
			&document.ErrorMessage,
			&document.CreatedAt,
			&document.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		document.Status = domain.DocumentStatus(status)
		documents = append(documents, document)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate documents: %w", rows.Err())
	}
	return documents, nil
}

// TransitionStatus is a single conditional UPDATE, so two concurrent callers
// racing on the same expected status cannot both win.
func (r *PostgresDocumentsRepository) TransitionStatus(
	ctx context.Context,
	documentID string,
	from, to domain.DocumentStatus,
	errorMessage string,
) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET status = $3,
			error_message = $4,
			updated_at = $5
		WHERE id = $1 AND status = $2
	`, documentID, string(from), string(to), errorMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("transition status: %w", err)
	}
	if command.RowsAffected() == 0 {
		return r.classifyConditionalMiss(ctx, documentID)
	}
	return nil
}

// CommitTimeline writes the timeline row and flips the document to completed
// in one transaction: the all-or-nothing contract for timelines.
func (r *PostgresDocumentsRepository) CommitTimeline(
	ctx context.Context,
	documentID string,
	timeline domain.Timeline,
) error {
	encodedEvents, err := json.Marshal(timeline.Events)
	if err != nil {
		return fmt.Errorf("encode timeline events: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin timeline tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	command, err := tx.Exec(ctx, `
		UPDATE documents
		SET status = $2,
			error_message = '',
			updated_at = $3
		WHERE id = $1 AND status = $4
	`,
		documentID,
		string(domain.DocumentStatusCompleted),
		time.Now().UTC(),
		string(domain.DocumentStatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("complete document: %w", err)
	}
	if command.RowsAffected() == 0 {
		return r.classifyConditionalMiss(ctx, documentID)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO timelines (document_id, events, created_at)
		VALUES ($1, $2, $3)
	`, documentID, encodedEvents, timeline.CreatedAt); err != nil {
		return fmt.Errorf("insert timeline: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit timeline tx: %w", err)
	}
	return nil
}

func (r *PostgresDocumentsRepository) GetTimeline(ctx context.Context, documentID string) (*domain.Timeline, error) {
	var (
		timeline      domain.Timeline
		encodedEvents []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT document_id, events, created_at
		FROM timelines
		WHERE document_id = $1
	`, documentID).Scan(&timeline.DocumentID, &encodedEvents, &timeline.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	if err := json.Unmarshal(encodedEvents, &timeline.Events); err != nil {
		return nil, fmt.Errorf("decode timeline events: %w", err)
	}
	return &timeline, nil
}

func (r *PostgresDocumentsRepository) classifyConditionalMiss(ctx context.Context, documentID string) error {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM documents WHERE id = $1`, documentID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("inspect document status: %w", err)
	}
	return ErrStatusConflict
}
