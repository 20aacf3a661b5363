package reuse

import (
	"connbench/benchmark"
	dbutils "connbench/dbUtils"
	"context"
	"database/sql/driver"
	"fmt"

	zlog "github.com/rs/zerolog/log"
)

// Owns the connection shared by the reused scenarios. Setup opens it, Teardown closes it
// at most once no matter how many times it is called. Not safe for concurrent use; the
// harness runs scenarios one at a time.
type SharedConnection struct {
	connector driver.Connector
	conn      *dbutils.Connection
}

func newSharedConnection(connector driver.Connector) *SharedConnection {
	return &SharedConnection{connector: connector}
}

func (s *SharedConnection) log(msg string) {
	zlog.Info().Str("fixture", "sharedConnection").Msg(msg)
}

func (s *SharedConnection) Setup(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}

	conn, err := dbutils.Open(ctx, s.connector)
	if err != nil {
		return fmt.Errorf("%w: opening shared connection: %w", benchmark.ErrSetup, err)
	}
	s.conn = conn
	s.log("Opened")

	return nil
}

func (s *SharedConnection) Teardown() error {
	if s.conn == nil {
		return nil
	}

	// cleared first, so a failed close is never retried
	conn := s.conn
	s.conn = nil
	s.log("Closing")

	if err := conn.Close(); err != nil {
		return fmt.Errorf("%w: closing shared connection: %w", benchmark.ErrTeardown, err)
	}
	return nil
}

// Reports whether Setup opened the connection and Teardown has not closed it yet
func (s *SharedConnection) IsOpen() bool {
	return s.conn != nil
}

// Returns the open connection
func (s *SharedConnection) Conn() (*dbutils.Connection, error) {
	if s.conn == nil {
		return nil, fmt.Errorf("%w: shared connection is not open", benchmark.ErrSetup)
	}
	return s.conn, nil
}
