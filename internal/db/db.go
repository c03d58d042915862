package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to the SQLite request-accounting database.
type DB struct {
	conn *sql.DB
}

// Request is one served chat completion: token usage and outcome, not
// conversation content.
type Request struct {
	ID               string
	Model            string
	ChatFormat       string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	FinishReason     string
	ToolCall         *string // name of the invoked function, if any
	DurationMs       int64
	CreatedAt        string
}

// UsageTotals aggregates token counts across all recorded requests.
type UsageTotals struct {
	Requests         int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Open creates a new DB connection and runs all pending migrations.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := migrate(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &DB{conn: conn}, nil
}

// migrate applies the embedded goose migrations.
func migrate(conn *sql.DB) error {
	goose.SetBaseFS(migrationFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(conn, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB for use by other packages if needed.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

const requestColumns = `id, model, chat_format, prompt_tokens, completion_tokens, total_tokens, finish_reason, tool_call, duration_ms, created_at`

func scanRequest(scanner interface{ Scan(...any) error }, r *Request) error {
	return scanner.Scan(&r.ID, &r.Model, &r.ChatFormat, &r.PromptTokens, &r.CompletionTokens, &r.TotalTokens, &r.FinishReason, &r.ToolCall, &r.DurationMs, &r.CreatedAt)
}

// InsertRequest records a served completion.
func (d *DB) InsertRequest(r *Request) error {
	createdAt := r.CreatedAt
	if createdAt == "" {
		createdAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := d.conn.Exec(
		`INSERT INTO requests (id, model, chat_format, prompt_tokens, completion_tokens, total_tokens, finish_reason, tool_call, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Model, r.ChatFormat, r.PromptTokens, r.CompletionTokens, r.TotalTokens, r.FinishReason, r.ToolCall, r.DurationMs, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// ListRequests returns requests ordered by created_at descending, with a
// limit and offset.
func (d *DB) ListRequests(limit, offset int) ([]Request, error) {
	rows, err := d.conn.Query(
		`SELECT `+requestColumns+` FROM requests ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var requests []Request
	for rows.Next() {
		var r Request
		if err := scanRequest(rows, &r); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// GetRequest retrieves a single request by ID, or nil if not found.
func (d *DB) GetRequest(id string) (*Request, error) {
	r := &Request{}
	row := d.conn.QueryRow(`SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	if err := scanRequest(row, r); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("get request %q: %w", id, err)
	}
	return r, nil
}

// Totals aggregates usage across all recorded requests.
func (d *DB) Totals() (*UsageTotals, error) {
	t := &UsageTotals{}
	err := d.conn.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(prompt_tokens), 0),
		        COALESCE(SUM(completion_tokens), 0),
		        COALESCE(SUM(total_tokens), 0)
		 FROM requests`,
	).Scan(&t.Requests, &t.PromptTokens, &t.CompletionTokens, &t.TotalTokens)
	if err != nil {
		return nil, fmt.Errorf("usage totals: %w", err)
	}
	return t, nil
}
