package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// ErrOracleUnavailable is returned by backends that cannot introspect the
// schema; callers fall back to untyped encoding
var ErrOracleUnavailable = errors.New("schema oracle is not available on this backend")

// Queryer is satisfied by *sql.DB, *sql.Conn and *sql.Tx
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const columnsQuery = `SELECT column_name, data_type, udt_name
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

// Oracle answers column type questions from information_schema
type Oracle struct {
	db    Queryer
	cache *Cache
}

// NewOracle creates an oracle. A nil cache disables caching.
func NewOracle(db Queryer, cache *Cache) *Oracle {
	return &Oracle{db: db, cache: cache}
}

// Columns returns the column types of a table. Unqualified names are looked
// up in the public schema. A table without columns yields an empty map.
func (o *Oracle) Columns(ctx context.Context, table string) (Columns, error) {
	if cols, ok := o.cache.Get(table); ok {
		return cols, nil
	}

	schemaName, tableName := SplitQualified(table)
	if schemaName == "" {
		schemaName = "public"
	}

	rows, err := o.db.QueryContext(ctx, columnsQuery, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(Columns)
	for rows.Next() {
		var name, dataType, udtName string
		if err := rows.Scan(&name, &dataType, &udtName); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		cols[name] = Resolve(name, dataType, udtName)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}

	o.cache.Put(table, cols)
	return cols, nil
}

// Cache holds resolved column types for the duration of one restore run.
// It is passed explicitly to whoever needs it; the zero value is not usable,
// use NewCache. A nil *Cache is a valid no-op cache.
type Cache struct {
	mu     sync.RWMutex
	tables map[string]Columns
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{tables: make(map[string]Columns)}
}

// Get returns the cached columns of a table
func (c *Cache) Get(table string) (Columns, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	cols, ok := c.tables[table]
	return cols, ok
}

// Put stores the columns of a table
func (c *Cache) Put(table string, cols Columns) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[table] = cols
}

// Invalidate drops one table, or everything when table is empty
func (c *Cache) Invalidate(table string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if table == "" {
		c.tables = make(map[string]Columns)
		return
	}
	delete(c.tables, table)
}

// Len returns the number of cached tables
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tables)
}
