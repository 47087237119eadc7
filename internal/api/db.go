package api

import (
	"context"
	"database/sql"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// DBHandler exposes the drawings database for inspection.
type DBHandler struct {
	db *sql.DB
}

// NewDBHandler creates a new database handler. A nil db answers 503.
func NewDBHandler(db *sql.DB) *DBHandler {
	return &DBHandler{db: db}
}

// RegisterRoutes registers database routes with Huma.
func (h *DBHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/tables", h.ListTables, huma.OperationTags("database"))
	huma.Post(api, "/api/v1/query", h.Query, huma.OperationTags("database"))
}

// Table describes one DuckDB table.
type Table struct {
	Name string `json:"name" example:"drawings"`
	Rows int64  `json:"rows" doc:"Estimated row count"`
}

// TablesBody lists the tables of the database.
type TablesBody struct {
	Tables []Table `json:"tables"`
}

type TablesOutput struct {
	Body TablesBody
}

func (h *DBHandler) available() error {
	if h.db == nil {
		return huma.Error503ServiceUnavailable("Database not available")
	}
	return nil
}

// ListTables returns the DuckDB tables, e.g. drawings.
func (h *DBHandler) ListTables(ctx context.Context, input *struct{}) (*TablesOutput, error) {
	if err := h.available(); err != nil {
		return nil, err
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT table_name, estimated_size FROM duckdb_tables() ORDER BY table_name`)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	defer rows.Close()

	out := &TablesOutput{Body: TablesBody{Tables: []Table{}}}
	for rows.Next() {
		var t Table
		if err := rows.Scan(&t.Name, &t.Rows); err != nil {
			return nil, huma.Error500InternalServerError("Failed to read tables", err)
		}
		out.Body.Tables = append(out.Body.Tables, t)
	}
	return out, rows.Err()
}

type QueryInput struct {
	Body struct {
		Query string `json:"query" required:"true" minLength:"1" doc:"Read-only SQL query" example:"SELECT view_id, count(*) FROM drawings GROUP BY view_id"`
	}
}

// QueryBody holds a query result, one map per row keyed by column.
type QueryBody struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Count   int              `json:"count"`
}

type QueryOutput struct {
	Body QueryBody
}

// readOnly reports whether q is a single statement that cannot write.
func readOnly(q string) bool {
	q = strings.TrimSuffix(strings.TrimSpace(q), ";")
	if strings.Contains(q, ";") {
		return false
	}
	fields := strings.Fields(strings.ToUpper(q))
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "SELECT", "WITH", "DESCRIBE", "SHOW", "SUMMARIZE":
		return true
	}
	return false
}

// Query runs a read-only statement against DuckDB.
func (h *DBHandler) Query(ctx context.Context, input *QueryInput) (*QueryOutput, error) {
	if err := h.available(); err != nil {
		return nil, err
	}
	if !readOnly(input.Body.Query) {
		return nil, huma.Error400BadRequest("Only single read-only statements are allowed")
	}

	rows, err := h.db.QueryContext(ctx, input.Body.Query)
	if err != nil {
		return nil, huma.Error400BadRequest("Query failed: " + err.Error())
	}
	defer rows.Close()

	body, err := scanRows(rows)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to read rows", err)
	}
	return &QueryOutput{Body: body}, nil
}

func scanRows(rows *sql.Rows) (QueryBody, error) {
	columns, err := rows.Columns()
	if err != nil {
		return QueryBody{}, err
	}
	body := QueryBody{Columns: columns, Rows: []map[string]any{}}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return QueryBody{}, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		body.Rows = append(body.Rows, row)
	}
	body.Count = len(body.Rows)
	return body, rows.Err()
}
