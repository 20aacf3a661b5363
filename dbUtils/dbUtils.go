package dbutils

import (
	"connbench/benchmark"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
)

// A single physical connection. database/sql only hands out pooled connections, so each
// Connection owns a pool capped at one connection and pins it.
type Connection struct {
	db   *sql.DB
	conn *sql.Conn
}

// Opens a new physical connection through the connector
func Open(ctx context.Context, connector driver.Connector) (*Connection, error) {
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Connection{db: db, conn: conn}, nil
}

// Sends the query and advances the cursor until it is exhausted. Rows are discarded.
func (c *Connection) Drain(ctx context.Context, query string) error {
	rows, err := c.conn.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: %w", benchmark.ErrQuery, err)
	}
	defer rows.Close()

	for rows.Next() {
		// discard
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %w", benchmark.ErrCursor, err)
	}
	return nil
}

// Releases the connection and its pool
func (c *Connection) Close() error {
	return errors.Join(c.conn.Close(), c.db.Close())
}
