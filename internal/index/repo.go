package index

import (
	"context"
	"database/sql"

	"scholaria/backend/internal/text"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) SaveChunks(ctx context.Context, documentID string, chunks []text.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO document_chunks
		(document_id, chunk_index, content, token_count, kind, section_title, section_level, start_offset, end_offset)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, documentID, c.Index, c.Content, c.TokenCount,
			string(c.Kind), c.SectionTitle, c.SectionLevel, c.StartOffset, c.EndOffset); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *PostgresRepo) SaveMappings(ctx context.Context, mappings []Mapping) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO vector_mappings
		(document_id, chunk_index, vector_id, created_at) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range mappings {
		if _, err := stmt.ExecContext(ctx, m.DocumentID, m.ChunkIndex, m.VectorID, m.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *PostgresRepo) ListMappings(ctx context.Context, documentID string) ([]Mapping, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT document_id, chunk_index, vector_id, created_at FROM vector_mappings WHERE document_id = $1 ORDER BY chunk_index`,
		documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.DocumentID, &m.ChunkIndex, &m.VectorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func (r *PostgresRepo) DeleteMappings(ctx context.Context, documentID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM vector_mappings WHERE document_id = $1`, documentID)
	return err
}

func (r *PostgresRepo) DeleteChunks(ctx context.Context, documentID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	return err
}

func (r *PostgresRepo) CountChunks(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&count)
	return count, err
}
