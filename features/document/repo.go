package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/lib/pq"

	"scholaria/backend/internal/retrieval"
)

var ErrNotFound = errors.New("document not found")

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, doc *Document) error {
	sections, err := json.Marshal(doc.Sections)
	if err != nil {
		return err
	}
	query := `INSERT INTO documents (user_id, title, doc_type, content, content_hash, status, sections)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query,
		doc.UserID, doc.Title, doc.DocType, doc.Content, doc.ContentHash, doc.Status, sections).
		Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Document, error) {
	doc := &Document{}
	var sections []byte
	query := `SELECT id, user_id, title, doc_type, content, content_hash, status, sections, created_at, updated_at
		FROM documents WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID, &doc.UserID, &doc.Title, &doc.DocType, &doc.Content, &doc.ContentHash,
		&doc.Status, &sections, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(sections) > 0 {
		if err := json.Unmarshal(sections, &doc.Sections); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (r *PostgresRepo) List(ctx context.Context, userID string) ([]Document, error) {
	query := `SELECT id, user_id, title, doc_type, status, created_at, updated_at
		FROM documents WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.UserID, &d.Title, &d.DocType, &d.Status, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) ExistsByHash(ctx context.Context, userID, hash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM documents WHERE user_id = $1 AND content_hash = $2)`
	err := r.db.QueryRowContext(ctx, query, userID, hash).Scan(&exists)
	return exists, err
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE documents SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	return err
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// SearchLexical is the query path's lexical leg: a plain title/content
// pattern match. The full-text document search with its own scoring lives
// behind a separate engine and is not this path.
func (r *PostgresRepo) SearchLexical(ctx context.Context, query string, scope retrieval.Scope) ([]retrieval.LexicalHit, error) {
	sqlQuery := `SELECT id, title, LEFT(content, 500) FROM documents
		WHERE user_id = $1 AND (title ILIKE '%' || $2 || '%' OR content ILIKE '%' || $2 || '%')`
	args := []interface{}{scope.UserID, query}
	if len(scope.DocumentIDs) > 0 {
		sqlQuery += ` AND id = ANY($3)`
		args = append(args, pq.Array(scope.DocumentIDs))
	}
	sqlQuery += ` LIMIT 20`

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []retrieval.LexicalHit
	for rows.Next() {
		var h retrieval.LexicalHit
		if err := rows.Scan(&h.DocumentID, &h.Title, &h.Content); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
