package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// QueryParams filters, orders and pages the rows returned by Query.
type QueryParams struct {
	// Where is an SQL condition without the WHERE keyword, for example
	// "Tick > ? AND Overrun = ?".
	Where string

	// Args fill the placeholders of Where.
	Args []any

	// Limit caps the number of rows returned. Zero means no cap.
	Limit int

	// Offset skips rows. It only applies together with Limit.
	Offset int

	// OrderBy is an SQL ordering without the ORDER BY keywords.
	OrderBy string
}

// DataReader reads the tables written by a DataRecorder back into structs.
type DataReader interface {
	// MapTable binds a table to the struct type its rows decode into. It
	// panics if the struct could not have been recorded.
	MapTable(tableName string, sampleEntry any)

	// ListTables returns the mapped tables in name order.
	ListTables() []string

	// Query returns pointers to the decoded rows together with the number
	// of rows matching the filter before paging.
	Query(ctx context.Context, tableName string, params QueryParams) (
		results []any,
		totalCount int,
		err error,
	)

	Close() error
}

type mapping struct {
	structType reflect.Type
	columns    []string
}

type sqliteReader struct {
	db       *sql.DB
	mappings map[string]mapping
}

// NewReader opens an SQLite file for reading.
func NewReader(dbFilename string) DataReader {
	db, err := sql.Open("sqlite3", dbFilename)
	if err != nil {
		panic(err)
	}

	return NewReaderWithDB(db)
}

// NewReaderWithDB reads from an open database.
func NewReaderWithDB(db *sql.DB) DataReader {
	return &sqliteReader{
		db:       db,
		mappings: make(map[string]mapping),
	}
}

func (r *sqliteReader) MapTable(tableName string, sampleEntry any) {
	columns, err := columnsOf(sampleEntry)
	if err != nil {
		panic(fmt.Errorf("mapping table %s: %w", tableName, err))
	}

	r.mappings[tableName] = mapping{
		structType: reflect.TypeOf(sampleEntry),
		columns:    columns,
	}
}

func (r *sqliteReader) ListTables() []string {
	tables := make([]string, 0, len(r.mappings))
	for table := range r.mappings {
		tables = append(tables, table)
	}

	sort.Strings(tables)

	return tables
}

func (r *sqliteReader) Query(
	ctx context.Context,
	tableName string,
	params QueryParams,
) ([]any, int, error) {
	m, ok := r.mappings[tableName]
	if !ok {
		return nil, 0, fmt.Errorf("table %s is not mapped", tableName)
	}

	// Count and rows come from the same snapshot.
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	var total int
	err = tx.QueryRowContext(ctx, countQuery(tableName, params),
		params.Args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting rows of %s: %w", tableName, err)
	}

	rows, err := tx.QueryContext(ctx, selectQuery(tableName, m, params),
		params.Args...)
	if err != nil {
		return nil, 0, fmt.Errorf("reading rows of %s: %w", tableName, err)
	}
	defer rows.Close()

	results, err := decodeRows(rows, m.structType)
	if err != nil {
		return nil, 0, fmt.Errorf("decoding rows of %s: %w", tableName, err)
	}

	return results, total, nil
}

func (r *sqliteReader) Close() error {
	return r.db.Close()
}

func countQuery(tableName string, params QueryParams) string {
	var b strings.Builder

	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(tableName)
	writeWhere(&b, params)

	return b.String()
}

func selectQuery(tableName string, m mapping, params QueryParams) string {
	var b strings.Builder

	b.WriteString("SELECT ")
	b.WriteString(strings.Join(m.columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(tableName)
	writeWhere(&b, params)

	if params.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(params.OrderBy)
	}

	if params.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(params.Limit))

		if params.Offset > 0 {
			b.WriteString(" OFFSET ")
			b.WriteString(strconv.Itoa(params.Offset))
		}
	}

	return b.String()
}

func writeWhere(b *strings.Builder, params QueryParams) {
	if params.Where == "" {
		return
	}

	b.WriteString(" WHERE ")
	b.WriteString(params.Where)
}

// decodeRows relies on the selected columns following the field order of
// structType.
func decodeRows(rows *sql.Rows, structType reflect.Type) ([]any, error) {
	var results []any

	for rows.Next() {
		entry := reflect.New(structType)
		fields := entry.Elem()

		targets := make([]any, fields.NumField())
		for i := range targets {
			targets[i] = fields.Field(i).Addr().Interface()
		}

		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}

		results = append(results, entry.Interface())
	}

	return results, rows.Err()
}
