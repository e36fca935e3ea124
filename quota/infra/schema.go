package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Column declara uma coluna da tabela. DataType é o valor esperado em
// information_schema.columns.data_type.
type Column struct {
	Name     string
	DDL      string
	DataType string
	Nullable bool
}

// Schema é a declaração estática e versionada de uma tabela.
type Schema struct {
	Version int
	Table   string
	Columns []Column
	Indexes []string
}

// LogsSchema é a tabela append-only de registros aceitos.
var LogsSchema = Schema{
	Version: 1,
	Table:   "logs",
	Columns: []Column{
		{Name: "id", DDL: "UUID PRIMARY KEY", DataType: "uuid"},
		{Name: "identifier", DDL: "TEXT NOT NULL", DataType: "text"},
		{Name: "content", DDL: "TEXT NOT NULL", DataType: "text"},
		{Name: "recorded_at", DDL: "TIMESTAMPTZ NOT NULL DEFAULT now()", DataType: "timestamp with time zone"},
	},
	Indexes: []string{
		"CREATE INDEX IF NOT EXISTS logs_identifier_recorded_at ON logs (identifier, recorded_at)",
	},
}

var ErrSchemaMismatch = errors.New("schema mismatch")

const schemaVersionTable = "schema_version"

// CreateStatements devolve o DDL idempotente da tabela, índices e versão.
func (s Schema) CreateStatements() []string {
	cols := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		cols = append(cols, c.Name+" "+c.DDL)
	}
	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", s.Table, strings.Join(cols, ",\n\t")),
	}
	stmts = append(stmts, s.Indexes...)
	stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (tbl TEXT PRIMARY KEY, version INT NOT NULL)", schemaVersionTable))
	return stmts
}

// EnsureSchema cria a tabela se não existir e registra a versão.
// Não migra versões antigas: se a versão gravada for outra, CheckSchema falha.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, s Schema) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storageErr("begin schema tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range s.CreateStatements() {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return storageErr("create schema", err)
		}
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO "+schemaVersionTable+" (tbl, version) VALUES ($1, $2) ON CONFLICT (tbl) DO NOTHING",
		s.Table, s.Version,
	); err != nil {
		return storageErr("record schema version", err)
	}
	return storageErr("commit schema tx", tx.Commit(ctx))
}

type columnInfo struct {
	dataType string
	nullable bool
}

// CheckSchema confere versão e colunas contra a declaração.
func CheckSchema(ctx context.Context, pool *pgxpool.Pool, s Schema) error {
	var version int
	err := pool.QueryRow(ctx, "SELECT version FROM "+schemaVersionTable+" WHERE tbl = $1", s.Table).Scan(&version)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%w: no version recorded for table %q", ErrSchemaMismatch, s.Table)
	case err != nil:
		return storageErr("read schema version", err)
	case version != s.Version:
		return fmt.Errorf("%w: table %q at version %d, want %d", ErrSchemaMismatch, s.Table, version, s.Version)
	}

	rows, err := pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1`, s.Table)
	if err != nil {
		return storageErr("read columns", err)
	}
	defer rows.Close()

	got := make(map[string]columnInfo)
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return storageErr("scan columns", err)
		}
		got[name] = columnInfo{dataType: dataType, nullable: nullable == "YES"}
	}
	if err := rows.Err(); err != nil {
		return storageErr("read columns", err)
	}
	return s.diff(got)
}

func (s Schema) diff(got map[string]columnInfo) error {
	if len(got) == 0 {
		return fmt.Errorf("%w: table %q not found", ErrSchemaMismatch, s.Table)
	}
	var problems []string
	for _, c := range s.Columns {
		info, ok := got[c.Name]
		switch {
		case !ok:
			problems = append(problems, "missing column "+c.Name)
		case info.dataType != c.DataType:
			problems = append(problems, fmt.Sprintf("column %s is %s, want %s", c.Name, info.dataType, c.DataType))
		case info.nullable != c.Nullable:
			problems = append(problems, fmt.Sprintf("column %s nullable=%v, want %v", c.Name, info.nullable, c.Nullable))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: table %q: %s", ErrSchemaMismatch, s.Table, strings.Join(problems, "; "))
	}
	return nil
}
