package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over the notes fts column, scoped to the
// query's owner set, with ts_headline snippets ranked by ts_rank.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || len(q.Owners) == 0 {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	const where = `n.fts @@ plainto_tsquery('english', $1) AND n.owner_username = ANY($2)`

	var total int
	countSQL := `SELECT count(*) FROM notes n WHERE ` + where
	if err := p.db.QueryRow(countSQL, q.Text, q.Owners).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT n.id, n.title,
			ts_headline('english', coalesce(n.content, ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			n.owner_username
		FROM notes n
		WHERE %s
		ORDER BY ts_rank(n.fts, plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.Query(dataSQL, q.Text, q.Owners)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.OwnerUsername); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgfts iterate: %w", err)
	}
	return results, total, nil
}

// LoadAllRecords reads every note from Postgres for bulk reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]NoteRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, content, tags, owner_username FROM notes
	`)
	if err != nil {
		return nil, fmt.Errorf("pgfts load notes: %w", err)
	}
	defer rows.Close()

	var records []NoteRecord
	for rows.Next() {
		var (
			record  NoteRecord
			rawTags []byte
		)
		if err := rows.Scan(&record.ID, &record.Title, &record.Content, &rawTags, &record.OwnerUsername); err != nil {
			return nil, fmt.Errorf("pgfts scan note: %w", err)
		}
		record.Tags = decodeTags(rawTags)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgfts iterate notes: %w", err)
	}
	return records, nil
}
