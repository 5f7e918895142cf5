package job

import (
	"context"
	"database/sql"
	"encoding/json"
)

type Repository interface {
	Save(ctx context.Context, job *Job) error
	List(ctx context.Context) ([]Job, error)
	Get(ctx context.Context, id string) (*Job, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const jobColumns = `id, document_id, topic, payload, error, retries, created_at`

// Save inserts the dead letter. An empty document id is stored as NULL so
// the ledger still accepts messages whose document could not be identified.
func (r *PostgresRepo) Save(ctx context.Context, job *Job) error {
	query := `INSERT INTO failed_jobs (document_id, topic, payload, error) VALUES (NULLIF($1, '')::uuid, $2, $3, $4) RETURNING id, created_at, retries`
	return r.db.QueryRowContext(ctx, query, job.DocumentID, job.Topic, []byte(job.Payload), job.Error).
		Scan(&job.ID, &job.CreatedAt, &job.Retries)
}

func (r *PostgresRepo) List(ctx context.Context) ([]Job, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM failed_jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM failed_jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM failed_jobs WHERE id = $1`, id)
	return err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failed_jobs`).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var docID sql.NullString
	var payload []byte
	if err := row.Scan(&j.ID, &docID, &j.Topic, &payload, &j.Error, &j.Retries, &j.CreatedAt); err != nil {
		return Job{}, err
	}
	j.DocumentID = docID.String
	j.Payload = json.RawMessage(payload)
	return j, nil
}
