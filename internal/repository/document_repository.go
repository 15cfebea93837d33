package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/doc-history/internal/domain"
)

var (
	// ErrNotFound is returned when no document matches.
	ErrNotFound = errors.New("document not found")
	// ErrVersionConflict is returned when the stored version moved since the document was loaded.
	ErrVersionConflict = errors.New("document version conflict")
)

// DocumentFilter narrows Find.
type DocumentFilter struct {
	Collection string
	// Match is a JSON object the stored fields must contain.
	Match  []byte
	Limit  int
	Offset int
}

// DocumentRepository persists documents together with their history.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	// Update saves doc if the stored version equals expectedVersion.
	Update(ctx context.Context, doc *domain.Document, expectedVersion int) error
	GetByID(ctx context.Context, collection, id string) (*domain.Document, error)
	Find(ctx context.Context, filter DocumentFilter) ([]*domain.Document, error)
	Delete(ctx context.Context, collection, id string) error
}

type documentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository instantiates the Postgres repository.
func NewDocumentRepository(pool *pgxpool.Pool) DocumentRepository {
	return &documentRepository{pool: pool}
}

const documentColumns = `id::text, collection, version, fields, history, created_at, updated_at`

func (r *documentRepository) Create(ctx context.Context, doc *domain.Document) error {
	fields, history, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO documents (id, collection, version, fields, history)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at, updated_at`
	if err := r.pool.QueryRow(ctx, query,
		doc.ID,
		doc.Collection,
		doc.Version,
		fields,
		history,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return errors.Wrapf(err, "insert document %s", doc.ID)
	}
	return nil
}

func (r *documentRepository) Update(ctx context.Context, doc *domain.Document, expectedVersion int) error {
	fields, history, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	const query = `
        UPDATE documents SET version=$1, fields=$2, history=$3, updated_at=NOW()
        WHERE id=$4 AND collection=$5 AND version=$6
        RETURNING updated_at`
	err = r.pool.QueryRow(ctx, query,
		doc.Version,
		fields,
		history,
		doc.ID,
		doc.Collection,
		expectedVersion,
	).Scan(&doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, doc.Collection, doc.ID); getErr != nil {
			return getErr
		}
		return errors.Wrapf(ErrVersionConflict, "document %s expected version %d", doc.ID, expectedVersion)
	}
	if err != nil {
		return errors.Wrapf(err, "update document %s", doc.ID)
	}
	return nil
}

func (r *documentRepository) GetByID(ctx context.Context, collection, id string) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE collection=$1 AND id::text=$2`
	doc, err := scanDocument(r.pool.QueryRow(ctx, query, collection, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "%s/%s", collection, id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load document %s/%s", collection, id)
	}
	return doc, nil
}

func (r *documentRepository) Find(ctx context.Context, filter DocumentFilter) ([]*domain.Document, error) {
	args := []any{filter.Collection}
	where := "collection=$1"
	if len(filter.Match) > 0 {
		args = append(args, string(filter.Match))
		where += fmt.Sprintf(" AND fields @> $%d::jsonb", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM documents WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		documentColumns, where, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "find documents")
	}
	defer rows.Close()

	var result []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, doc)
	}
	return result, rows.Err()
}

func (r *documentRepository) Delete(ctx context.Context, collection, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE collection=$1 AND id::text=$2`, collection, id)
	if err != nil {
		return errors.Wrapf(err, "delete document %s/%s", collection, id)
	}
	if cmd.RowsAffected() == 0 {
		return errors.Wrapf(ErrNotFound, "%s/%s", collection, id)
	}
	return nil
}

func encodeDocument(doc *domain.Document) ([]byte, []byte, error) {
	fields, err := json.Marshal(doc.Fields)
	if err != nil {
		return nil, nil, errors.Wrap(err, "encode fields")
	}
	events := doc.History
	if events == nil {
		events = []domain.HistoryEvent{}
	}
	history, err := json.Marshal(events)
	if err != nil {
		return nil, nil, errors.Wrap(err, "encode history")
	}
	return fields, history, nil
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var (
		doc     domain.Document
		fields  []byte
		history []byte
	)
	if err := row.Scan(
		&doc.ID,
		&doc.Collection,
		&doc.Version,
		&fields,
		&history,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := decodeDocument(&doc, fields, history); err != nil {
		return nil, err
	}
	return &doc, nil
}

// decodeDocument fills fields and history from their JSON columns and marks the
// result as recorded, so the next record cycle diffs against the stored state.
func decodeDocument(doc *domain.Document, fields, history []byte) error {
	doc.Fields = map[string]any{}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &doc.Fields); err != nil {
			return errors.Wrapf(err, "decode fields of %s", doc.ID)
		}
	}
	doc.History = []domain.HistoryEvent{}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &doc.History); err != nil {
			return errors.Wrapf(err, "decode history of %s", doc.ID)
		}
	}
	doc.MarkRecorded()
	return nil
}
