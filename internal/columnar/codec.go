// Package columnar reads and writes frames as parquet files through an
// embedded DuckDB. Index levels are stored as ordinary leading columns and
// restored by name on read.
package columnar

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/risksharing/replication/internal/frame"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
)

// RowLevel names the synthetic index used when a file is read without levels.
const RowLevel = "row"

// Codec converts between parquet files and frames.
type Codec struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// Open starts an in-memory DuckDB used only for file conversion.
func Open() (*Codec, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("columnar: failed to open duckdb: %w", err)
	}
	return &Codec{db: db}, nil
}

func (c *Codec) handle() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.db == nil {
		return nil, fmt.Errorf("columnar: codec is closed")
	}
	return c.db, nil
}

// ReadFile reads a parquet file. The named columns become the index levels,
// in the given order; the remaining columns keep their file order.
func (c *Codec) ReadFile(ctx context.Context, path string, levels ...string) (*frame.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("columnar: context error: %w", err)
	}
	db, err := c.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT * FROM read_parquet("+quoteLiteral(path)+")")
	if err != nil {
		return nil, fmt.Errorf("columnar: failed to read %s: %w", path, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columnar: failed to get columns: %w", err)
	}

	data := make([][]any, len(names))
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("columnar: context error during row iteration: %w", err)
		}
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("columnar: failed to scan row: %w", err)
		}
		for i, v := range values {
			data[i] = append(data[i], normalize(v))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("columnar: error during row iteration: %w", err)
	}

	return assemble(names, data, levels)
}

func assemble(names []string, data [][]any, levels []string) (*frame.Table, error) {
	nrows := 0
	if len(data) > 0 {
		nrows = len(data[0])
	}

	pos := make(map[string]int, len(names))
	for i, n := range names {
		pos[n] = i
	}

	isLevel := make(map[string]bool, len(levels))
	var levelCols [][]any
	for _, l := range levels {
		i, ok := pos[l]
		if !ok {
			return nil, fmt.Errorf("columnar: index level %q not present in file", l)
		}
		isLevel[l] = true
		levelCols = append(levelCols, data[i])
	}

	keys := make([][]any, nrows)
	for r := 0; r < nrows; r++ {
		if len(levels) == 0 {
			keys[r] = []any{int64(r)}
			continue
		}
		k := make([]any, len(levels))
		for j := range levels {
			k[j] = levelCols[j][r]
		}
		keys[r] = k
	}
	indexNames := levels
	if len(indexNames) == 0 {
		indexNames = []string{RowLevel}
	}
	idx, err := frame.NewIndex(indexNames, keys)
	if err != nil {
		return nil, err
	}

	var cols []frame.Column
	for i, n := range names {
		if isLevel[n] {
			continue
		}
		vals := data[i]
		if vals == nil {
			vals = []any{}
		}
		cols = append(cols, frame.Column{Name: n, Values: vals})
	}
	return frame.New(idx, cols...)
}

// WriteFile writes t to path as parquet, replacing any existing file. Index
// levels are written first. The file appears atomically.
func (c *Codec) WriteFile(ctx context.Context, path string, t *frame.Table) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("columnar: context error: %w", err)
	}
	db, err := c.handle()
	if err != nil {
		return err
	}

	names, data := flatten(t)
	types := make([]string, len(names))
	for i := range names {
		types[i] = sqlType(data[i])
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("columnar: failed to create directory: %w", err)
	}

	// Temp tables are per connection, so the whole write stays on one.
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("columnar: failed to acquire connection: %w", err)
	}
	defer conn.Close()

	defs := make([]string, len(names))
	for i, n := range names {
		defs[i] = quoteIdent(n) + " " + types[i]
	}
	if _, err := conn.ExecContext(ctx, "CREATE OR REPLACE TEMP TABLE frame_out ("+strings.Join(defs, ", ")+")"); err != nil {
		return fmt.Errorf("columnar: failed to create staging table: %w", err)
	}
	defer conn.ExecContext(context.Background(), "DROP TABLE IF EXISTS frame_out")

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("columnar: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := make([]string, len(names))
	for i := range placeholders {
		placeholders[i] = "?"
		if types[i] == typeUbigint {
			placeholders[i] = "CAST(? AS UBIGINT)"
		}
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO frame_out VALUES ("+strings.Join(placeholders, ", ")+")")
	if err != nil {
		return fmt.Errorf("columnar: failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(names))
	for r := 0; r < t.Len(); r++ {
		for i := range names {
			args[i] = convert(data[i][r], types[i])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("columnar: failed to stage row %d: %w", r, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("columnar: failed to commit staging rows: %w", err)
	}

	tmp := fmt.Sprintf("%s.tmp-%d", path, os.Getpid())
	if _, err := conn.ExecContext(ctx, "COPY frame_out TO "+quoteLiteral(tmp)+" (FORMAT PARQUET)"); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("columnar: failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("columnar: failed to move %s into place: %w", path, err)
	}
	return nil
}

// EngineVersion reports the embedded DuckDB version, e.g. "v1.1.3".
func (c *Codec) EngineVersion(ctx context.Context) (string, error) {
	db, err := c.handle()
	if err != nil {
		return "", err
	}
	var v string
	if err := db.QueryRowContext(ctx, "SELECT version()").Scan(&v); err != nil {
		return "", fmt.Errorf("columnar: failed to query engine version: %w", err)
	}
	return v, nil
}

// Close releases the DuckDB handle. Close is idempotent.
func (c *Codec) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func flatten(t *frame.Table) ([]string, [][]any) {
	idx := t.Index()
	levels := idx.Names()
	names := make([]string, 0, len(levels)+len(t.Columns()))
	data := make([][]any, 0, cap(names))
	for j, l := range levels {
		vals := make([]any, idx.Len())
		for r := 0; r < idx.Len(); r++ {
			vals[r] = idx.Key(r)[j]
		}
		names = append(names, l)
		data = append(data, vals)
	}
	for _, n := range t.Columns() {
		vals, _ := t.Column(n)
		names = append(names, n)
		data = append(data, vals)
	}
	return names, data
}

const (
	typeBigint    = "BIGINT"
	typeUbigint   = "UBIGINT"
	typeDouble    = "DOUBLE"
	typeBoolean   = "BOOLEAN"
	typeTimestamp = "TIMESTAMP"
	typeVarchar   = "VARCHAR"
)

// sqlType picks the narrowest DuckDB type holding every non-missing value.
// Unsigned values beyond BIGINT need UBIGINT, or DOUBLE next to negatives.
func sqlType(values []any) string {
	var ints, floats, bools, times, others, seen, huge, negative int
	for _, v := range values {
		switch n := v.(type) {
		case nil:
			continue
		case int, int8, int16, int32, int64, uint8, uint16, uint32:
			ints++
			if toInt64(n) < 0 {
				negative++
			}
		case uint, uint64, uintptr:
			ints++
			if toUint64(n) > math.MaxInt64 {
				huge++
			}
		case float32, float64:
			floats++
		case bool:
			bools++
		case time.Time:
			times++
		default:
			others++
		}
		seen++
	}
	switch {
	case seen == 0 || others > 0:
		return typeVarchar
	case ints == seen && huge > 0 && negative > 0:
		return typeDouble
	case ints == seen && huge > 0:
		return typeUbigint
	case ints == seen:
		return typeBigint
	case ints+floats == seen:
		return typeDouble
	case bools == seen:
		return typeBoolean
	case times == seen:
		return typeTimestamp
	default:
		return typeVarchar
	}
}

func convert(v any, typ string) any {
	if v == nil {
		return nil
	}
	switch typ {
	case typeBigint:
		return toInt64(v)
	case typeUbigint:
		return strconv.FormatUint(toUint64(v), 10)
	case typeDouble:
		if f, ok := v.(float64); ok {
			if math.IsNaN(f) {
				return nil
			}
			return f
		}
		if f, ok := v.(float32); ok {
			return float64(f)
		}
		if u := toUint64(v); u > math.MaxInt64 {
			return float64(u)
		}
		return float64(toInt64(v))
	case typeVarchar:
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	default:
		return v
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint, uint64, uintptr:
		if u := toUint64(n); u <= math.MaxInt64 {
			return int64(u)
		}
	}
	return 0
}

// toUint64 widens unsigned values; anything else is 0.
func toUint64(v any) uint64 {
	switch n := v.(type) {
	case uint:
		return uint64(n)
	case uint64:
		return n
	case uintptr:
		return uint64(n)
	}
	return 0
}

// normalize maps driver values onto the frame's value vocabulary:
// int64, float64, bool, string, time.Time or nil. UBIGINT values beyond
// int64 stay uint64.
func normalize(v any) any {
	switch n := v.(type) {
	case int8, int16, int32, uint8, uint16, uint32:
		return toInt64(n)
	case uint64:
		if n > math.MaxInt64 {
			return n
		}
		return int64(n)
	case float32:
		return float64(n)
	case []byte:
		return string(n)
	}
	return v
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
