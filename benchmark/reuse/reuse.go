package reuse

import (
	"connbench/benchmark"
	dbutils "connbench/dbUtils"
	"context"
	"database/sql/driver"
	"fmt"
)

// Compares reusing one connection with opening a new one for every query
type ConnectionReuse struct {
	connector driver.Connector
	queries   benchmark.Queries
	shared    *SharedConnection
}

func New(connector driver.Connector, queries benchmark.Queries) *ConnectionReuse {
	return &ConnectionReuse{
		connector: connector,
		queries:   queries.WithDefaults(),
		shared:    newSharedConnection(connector),
	}
}

func (r *ConnectionReuse) Shared() *SharedConnection {
	return r.shared
}

func (r *ConnectionReuse) reused(ctx context.Context, query string) error {
	conn, err := r.shared.Conn()
	if err != nil {
		return err
	}
	return conn.Drain(ctx, query)
}

func (r *ConnectionReuse) fresh(ctx context.Context, query string) (err error) {
	conn, err := dbutils.Open(ctx, r.connector)
	if err != nil {
		return fmt.Errorf("%w: %w", benchmark.ErrConnect, err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("%w: %w", benchmark.ErrConnect, closeErr)
		}
	}()

	return conn.Drain(ctx, query)
}

func (r *ConnectionReuse) ReusedSimple(ctx context.Context) error {
	return r.reused(ctx, r.queries.Simple)
}

func (r *ConnectionReuse) FreshSimple(ctx context.Context) error {
	return r.fresh(ctx, r.queries.Simple)
}

func (r *ConnectionReuse) ReusedComplex(ctx context.Context) error {
	return r.reused(ctx, r.queries.Complex)
}

func (r *ConnectionReuse) FreshComplex(ctx context.Context) error {
	return r.fresh(ctx, r.queries.Complex)
}

// Returns the four scenarios. Only the reused ones depend on the shared connection.
func (r *ConnectionReuse) Scenarios() []benchmark.Scenario {
	return []benchmark.Scenario{
		{
			Name:     "ReusedConnectionQuery",
			Strategy: benchmark.Reused,
			Query:    benchmark.Simple,
			Fixture:  r.shared,
			Op:       r.ReusedSimple,
		},
		{
			Name:     "NewConnectionEveryTimeQuery",
			Strategy: benchmark.Fresh,
			Query:    benchmark.Simple,
			Op:       r.FreshSimple,
		},
		{
			Name:     "ReusedConnectionComplexQuery",
			Strategy: benchmark.Reused,
			Query:    benchmark.Complex,
			Fixture:  r.shared,
			Op:       r.ReusedComplex,
		},
		{
			Name:     "NewConnectionComplexQuery",
			Strategy: benchmark.Fresh,
			Query:    benchmark.Complex,
			Op:       r.FreshComplex,
		},
	}
}

// Returns the benchmark-specific configurations
func (r *ConnectionReuse) GetConfigs() map[string]string {
	return map[string]string{
		"simpleQueryLength":  fmt.Sprint(len(r.queries.Simple)),
		"complexQueryLength": fmt.Sprint(len(r.queries.Complex)),
	}
}
