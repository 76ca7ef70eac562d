package llmcall

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
)

// Store persists recorded calls.
type Store interface {
	Insert(ctx context.Context, calls []Call) error
}

// Lister queries stored calls.
type Lister interface {
	List(ctx context.Context, filter QueryFilter) ([]Call, error)
}

// QueryFilter specifies filters for listing calls.
type QueryFilter struct {
	RequestID string
	Method    string
	After     *time.Time
	Success   *bool
	Limit     int
}

const schemaSQL = `
create table if not exists llm_calls (
	id            text primary key,
	ts            timestamptz not null,
	latency_ms    integer not null,
	request_id    text,
	page_num      integer not null,
	attempt       integer not null,
	method        text not null,
	model         text not null,
	prompt_type   text not null,
	output_tokens integer not null,
	finish_reason text,
	success       boolean not null,
	error         text
)`

// PostgresStore keeps calls in a Postgres table.
type PostgresStore struct {
	DB *sql.DB
}

// OpenPostgres connects to dsn, checks the connection and creates the
// llm_calls table if needed.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}

	s := &PostgresStore{DB: db}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create llm_calls: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *PostgresStore) Close() error {
	return s.DB.Close()
}

// Insert writes calls in one transaction.
func (s *PostgresStore) Insert(ctx context.Context, calls []Call) error {
	if len(calls) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const q = `
insert into llm_calls (id, ts, latency_ms, request_id, page_num, attempt, method, model,
                       prompt_type, output_tokens, finish_reason, success, error)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
on conflict (id) do nothing`
	for _, c := range calls {
		if _, err := tx.ExecContext(ctx, q,
			c.ID, c.Timestamp, c.LatencyMs, c.RequestID, c.PageNum, c.Attempt, c.Method, c.Model,
			c.PromptType, c.OutputTokens, c.FinishReason, c.Success, c.Error); err != nil {
			return fmt.Errorf("insert %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// List returns calls matching filter, newest first.
func (s *PostgresStore) List(ctx context.Context, filter QueryFilter) ([]Call, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.RequestID != "" {
		add("request_id = $%d", filter.RequestID)
	}
	if filter.Method != "" {
		add("method = $%d", filter.Method)
	}
	if filter.After != nil {
		add("ts > $%d", *filter.After)
	}
	if filter.Success != nil {
		add("success = $%d", *filter.Success)
	}

	q := `select id, ts, latency_ms, coalesce(request_id,''), page_num, attempt, method, model,
       prompt_type, output_tokens, coalesce(finish_reason,''), success, coalesce(error,'')
from llm_calls`
	if len(where) > 0 {
		q += " where " + strings.Join(where, " and ")
	}
	q += " order by ts desc"
	if filter.Limit > 0 {
		q += fmt.Sprintf(" limit %d", filter.Limit)
	}

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		var c Call
		if err := rows.Scan(&c.ID, &c.Timestamp, &c.LatencyMs, &c.RequestID, &c.PageNum, &c.Attempt,
			&c.Method, &c.Model, &c.PromptType, &c.OutputTokens, &c.FinishReason, &c.Success, &c.Error); err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

// MemoryStore keeps calls in memory. Used by tests and when no database is
// configured but calls should still be inspectable.
type MemoryStore struct {
	mu    sync.Mutex
	calls []Call
}

// Insert appends calls.
func (s *MemoryStore) Insert(_ context.Context, calls []Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, calls...)
	return nil
}

// Calls returns a copy of every stored call.
func (s *MemoryStore) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// List returns calls matching filter, newest first.
func (s *MemoryStore) List(_ context.Context, filter QueryFilter) ([]Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Call
	for _, c := range s.calls {
		if filter.RequestID != "" && c.RequestID != filter.RequestID {
			continue
		}
		if filter.Method != "" && c.Method != filter.Method {
			continue
		}
		if filter.After != nil && !c.Timestamp.After(*filter.After) {
			continue
		}
		if filter.Success != nil && c.Success != *filter.Success {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

var (
	_ Lister = (*PostgresStore)(nil)
	_ Lister = (*MemoryStore)(nil)
)
