package document

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, doc *Document) error {
	query := `INSERT INTO documents (name, content_type, storage_path, document_type, content_hash, status) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	return r.db.QueryRowContext(ctx, query, doc.Name, doc.ContentType, doc.StoragePath, doc.DocumentType, doc.ContentHash, doc.Status).Scan(&doc.ID)
}

func (r *PostgresRepo) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM documents WHERE content_hash = $1 AND deleted_at IS NULL)`
	err := r.db.QueryRowContext(ctx, query, hash).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Document, error) {
	doc := &Document{}
	query := `SELECT id, name, content_type, storage_path, document_type, status, created_at, updated_at FROM documents WHERE id = $1 AND deleted_at IS NULL`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&doc.ID, &doc.Name, &doc.ContentType, &doc.StoragePath, &doc.DocumentType, &doc.Status, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Document, error) {
	query := `SELECT id, name, content_type, document_type, status, created_at, updated_at FROM documents WHERE deleted_at IS NULL ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Name, &d.ContentType, &d.DocumentType, &d.Status, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, id)
	return err
}

func (r *PostgresRepo) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE documents SET deleted_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE deleted_at IS NULL`).Scan(&count)
	return count, err
}
