// Package dbtest provides databases for tests: SQLite files shaped like the benchmark
// schema, a connector that counts physical connections, and a scripted PostgreSQL server.
package dbtest

import (
	"connbench/benchmark"
	dbutils "connbench/dbUtils"
	"connbench/util"
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgmock"
	"github.com/jackc/pgproto3/v2"
	_ "github.com/mattn/go-sqlite3"
)

// Creates a SQLite database with a populated Submissions table, plus SalesTable when
// withSales is set. Returns the connection config pointing at it.
func NewSqlite(t testing.TB, withSales bool) dbutils.ConnectionConfig {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bench.db")
	db := util.Try(sql.Open("sqlite3", path))
	defer db.Close()

	util.Try(db.Exec("create table Submissions(Id integer primary key, Title text, SubmittedAt text)"))
	for i := 0; i < 20; i++ {
		util.Try(db.Exec("insert into Submissions(Title, SubmittedAt) values (?, ?)",
			fmt.Sprintf("submission %d", i), "2024-01-01"))
	}

	if withSales {
		util.Try(db.Exec("create table SalesTable(SalesPersonID integer, SalesAmount real)"))
		for i := 0; i < 100; i++ {
			util.Try(db.Exec("insert into SalesTable values (?, ?)", i%12, float64(i*37)))
		}
	}

	return dbutils.ConnectionConfig{Driver: "sqlite3", Server: path}
}

// SQLite has no dbo schema
func SqliteQueries() benchmark.Queries {
	return benchmark.Queries{
		Simple:  "SELECT * FROM Submissions",
		Complex: benchmark.ComplexQuery,
	}
}

// Wraps a connector and counts the physical connections opened and closed through it
type CountingConnector struct {
	driver.Connector
	opened atomic.Int32
	closed atomic.Int32
}

func NewCountingConnector(t testing.TB, cfg dbutils.ConnectionConfig) *CountingConnector {
	t.Helper()
	connector, err := dbutils.Connector(cfg)
	if err != nil {
		t.Fatalf("creating connector: %v", err)
	}
	return &CountingConnector{Connector: connector}
}

func (c *CountingConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.Connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	c.opened.Add(1)
	return &countingConn{Conn: conn, closed: &c.closed}, nil
}

func (c *CountingConnector) Opened() int {
	return int(c.opened.Load())
}

func (c *CountingConnector) Closed() int {
	return int(c.closed.Load())
}

// Connections opened and not yet closed
func (c *CountingConnector) Live() int {
	return c.Opened() - c.Closed()
}

// Only exposes driver.Conn, so database/sql goes through Prepare for queries
type countingConn struct {
	driver.Conn
	closed *atomic.Int32
	once   sync.Once
}

func (c *countingConn) Close() error {
	c.once.Do(func() { c.closed.Add(1) })
	return c.Conn.Close()
}

// A PostgreSQL server that accepts a single connection and follows a pgmock script
type MockServer struct {
	Script   *pgmock.Script
	Listener net.Listener
}

func NewMockServer(t testing.TB, steps ...pgmock.Step) *MockServer {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	return &MockServer{
		Script:   &pgmock.Script{Steps: steps},
		Listener: listener,
	}
}

func (m *MockServer) Addr() string {
	return m.Listener.Addr().String()
}

// Serves one connection in the background; the channel receives the script result
func (m *MockServer) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		conn, err := m.Listener.Accept()
		if err != nil {
			errCh <- err
			return
		}
		defer conn.Close()

		backend := pgproto3.NewBackend(pgproto3.NewChunkReader(conn), conn)
		errCh <- m.Script.Run(backend)
	}()
	return errCh
}

// Connection config for the mock server; the mock does not speak TLS
func (m *MockServer) Config() dbutils.ConnectionConfig {
	return dbutils.ConnectionConfig{
		Driver:   "postgres",
		Server:   m.Addr(),
		Catalog:  "postgres",
		User:     "postgres",
		Password: "postgres",
		Params:   map[string]string{"sslmode": "disable"},
	}
}

// Steps answering a query with a single text column and one data row per value
func SelectSteps(query string, column string, values ...string) []pgmock.Step {
	steps := []pgmock.Step{
		pgmock.ExpectMessage(&pgproto3.Query{String: query}),
		pgmock.SendMessage(&pgproto3.RowDescription{Fields: []pgproto3.FieldDescription{{
			Name:         []byte(column),
			DataTypeOID:  25, // text
			DataTypeSize: -1,
			TypeModifier: -1,
		}}}),
	}
	for _, v := range values {
		steps = append(steps, pgmock.SendMessage(&pgproto3.DataRow{Values: [][]byte{[]byte(v)}}))
	}
	return append(steps,
		pgmock.SendMessage(&pgproto3.CommandComplete{CommandTag: []byte(fmt.Sprintf("SELECT %d", len(values)))}),
		pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'I'}),
	)
}

// Steps rejecting a query with an error response
func ErrorSteps(query string, code string, message string) []pgmock.Step {
	return []pgmock.Step{
		pgmock.ExpectMessage(&pgproto3.Query{String: query}),
		pgmock.SendMessage(&pgproto3.ErrorResponse{Severity: "ERROR", Code: code, Message: message}),
		pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'I'}),
	}
}
