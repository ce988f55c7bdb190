package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/core/ports"
)

var _ ports.ChunkRepository = (*ChunkRepository)(nil)

// ChunkRepository keeps the validated, embedded chunk set of every contract.
type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS contract_chunks (
	contract_id TEXT NOT NULL,
	chunk_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	article_num INTEGER NOT NULL DEFAULT 0,
	section_num INTEGER NOT NULL DEFAULT 0,
	subsection TEXT NOT NULL DEFAULT '',
	article_title TEXT NOT NULL DEFAULT '',
	citation TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	content_with_tables TEXT NOT NULL DEFAULT '',
	doc_type TEXT NOT NULL DEFAULT '',
	alternative_names JSONB NOT NULL DEFAULT '[]'::jsonb,
	worker_questions JSONB NOT NULL DEFAULT '[]'::jsonb,
	embedding JSONB,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (contract_id, chunk_id)
);

CREATE INDEX IF NOT EXISTS idx_contract_chunks_article ON contract_chunks(contract_id, article_num);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// ReplaceChunks swaps the stored chunk set of a contract in one transaction.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, contractID string, chunks []domain.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM contract_chunks WHERE contract_id = $1`, contractID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO contract_chunks (
	contract_id, chunk_id, position, article_num, section_num, subsection, article_title, citation,
	content, content_with_tables, doc_type, alternative_names, worker_questions, embedding
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`)
	if err != nil {
		return fmt.Errorf("prepare insert chunk: %w", err)
	}
	defer stmt.Close()

	for i, ch := range chunks {
		names, err := json.Marshal(nonNil(ch.AlternativeNames))
		if err != nil {
			return fmt.Errorf("marshal alternative names: %w", err)
		}
		questions, err := json.Marshal(nonNil(ch.WorkerQuestions))
		if err != nil {
			return fmt.Errorf("marshal worker questions: %w", err)
		}
		var embedding []byte
		if len(ch.Embedding) > 0 {
			if embedding, err = json.Marshal(ch.Embedding); err != nil {
				return fmt.Errorf("marshal embedding: %w", err)
			}
		}
		if _, err := stmt.ExecContext(ctx,
			contractID, ch.ID, i, ch.Article, ch.Section, ch.Subsection, ch.Title, ch.Citation,
			ch.Content, ch.ContentWithTables, string(ch.DocType), names, questions, embedding,
		); err != nil {
			return fmt.Errorf("insert chunk %s: %w", ch.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace tx: %w", err)
	}
	return nil
}

// LoadChunks returns the stored chunks in ingestion order. A contract with no
// rows is unknown.
func (r *ChunkRepository) LoadChunks(ctx context.Context, contractID string) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT chunk_id, article_num, section_num, subsection, article_title, citation,
	content, content_with_tables, doc_type, alternative_names, worker_questions, embedding
FROM contract_chunks
WHERE contract_id = $1
ORDER BY position
`, contractID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var out []domain.Chunk
	for rows.Next() {
		ch := domain.Chunk{ContractID: contractID}
		var docType string
		var names, questions, embedding []byte
		if err := rows.Scan(
			&ch.ID, &ch.Article, &ch.Section, &ch.Subsection, &ch.Title, &ch.Citation,
			&ch.Content, &ch.ContentWithTables, &docType, &names, &questions, &embedding,
		); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		ch.DocType = domain.DocType(docType)
		if err := unmarshalIfPresent(names, &ch.AlternativeNames); err != nil {
			return nil, fmt.Errorf("unmarshal alternative names: %w", err)
		}
		if err := unmarshalIfPresent(questions, &ch.WorkerQuestions); err != nil {
			return nil, fmt.Errorf("unmarshal worker questions: %w", err)
		}
		if err := unmarshalIfPresent(embedding, &ch.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding: %w", err)
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	if len(out) == 0 {
		return nil, domain.WrapError(domain.ErrUnknownContract, "load chunks", fmt.Errorf("no chunks stored for %q", contractID))
	}
	return out, nil
}

// Contracts lists every contract with stored chunks.
func (r *ChunkRepository) Contracts(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT contract_id FROM contract_chunks ORDER BY contract_id`)
	if err != nil {
		return nil, fmt.Errorf("query contracts: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contracts: %w", err)
	}
	return out, nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

func unmarshalIfPresent(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
