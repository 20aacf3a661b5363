package reuse

import (
	"connbench/benchmark"
	dbutils "connbench/dbUtils"
	"connbench/dbUtils/dbtest"
	"connbench/worker"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReuse(t *testing.T, withSales bool) (*ConnectionReuse, *dbtest.CountingConnector) {
	t.Helper()
	connector := dbtest.NewCountingConnector(t, dbtest.NewSqlite(t, withSales))
	return New(connector, dbtest.SqliteQueries()), connector
}

func TestScenarios(t *testing.T) {
	r, _ := newReuse(t, true)
	scenarios := r.Scenarios()
	require.Len(t, scenarios, 4)

	expected := []struct {
		name     string
		strategy benchmark.Strategy
		query    benchmark.Complexity
	}{
		{"ReusedConnectionQuery", benchmark.Reused, benchmark.Simple},
		{"NewConnectionEveryTimeQuery", benchmark.Fresh, benchmark.Simple},
		{"ReusedConnectionComplexQuery", benchmark.Reused, benchmark.Complex},
		{"NewConnectionComplexQuery", benchmark.Fresh, benchmark.Complex},
	}

	for i, e := range expected {
		s := scenarios[i]
		assert.Equal(t, e.name, s.Name)
		assert.Equal(t, e.strategy, s.Strategy)
		assert.Equal(t, e.query, s.Query)
		if e.strategy == benchmark.Reused {
			assert.Same(t, r.Shared(), s.Fixture, "%s should depend on the shared connection", s.Name)
		} else {
			assert.Nil(t, s.Fixture, "%s should not depend on a fixture", s.Name)
		}
	}
}

func TestNew_DefaultsEmptyQueries(t *testing.T) {
	r := New(nil, benchmark.Queries{Simple: "SELECT 1"})
	assert.Equal(t, "SELECT 1", r.queries.Simple)
	assert.Equal(t, benchmark.ComplexQuery, r.queries.Complex)
}

func TestReused_RequiresSetup(t *testing.T) {
	r, connector := newReuse(t, true)

	err := r.ReusedSimple(context.Background())
	assert.True(t, errors.Is(err, benchmark.ErrSetup), "got %v", err)
	err = r.ReusedComplex(context.Background())
	assert.True(t, errors.Is(err, benchmark.ErrSetup), "got %v", err)
	assert.Equal(t, 0, connector.Opened())
}

func TestReused_SharesOneConnection(t *testing.T) {
	ctx := context.Background()
	r, connector := newReuse(t, true)

	require.NoError(t, r.Shared().Setup(ctx))
	for i := 0; i < 5; i++ {
		require.NoError(t, r.ReusedSimple(ctx))
		require.NoError(t, r.ReusedComplex(ctx))
	}
	assert.Equal(t, 1, connector.Opened())
	assert.Equal(t, 1, connector.Live())

	require.NoError(t, r.Shared().Teardown())
	assert.Equal(t, 0, connector.Live())
}

func TestFresh_OpensAndClosesPerInvocation(t *testing.T) {
	ctx := context.Background()
	r, connector := newReuse(t, true)

	for i := 0; i < 3; i++ {
		require.NoError(t, r.FreshSimple(ctx))
		assert.Equal(t, 0, connector.Live(), "connection leaked after invocation %d", i)
	}
	require.NoError(t, r.FreshComplex(ctx))

	assert.Equal(t, 4, connector.Opened())
	assert.Equal(t, 4, connector.Closed())
	assert.False(t, r.Shared().IsOpen(), "fresh scenarios must not open the shared connection")
}

func TestFresh_DoesNotTouchSharedConnection(t *testing.T) {
	ctx := context.Background()
	r, connector := newReuse(t, true)

	require.NoError(t, r.Shared().Setup(ctx))
	shared, err := r.Shared().Conn()
	require.NoError(t, err)

	require.NoError(t, r.FreshSimple(ctx))
	require.NoError(t, r.FreshComplex(ctx))

	// the shared connection plus one per fresh invocation
	assert.Equal(t, 3, connector.Opened())
	assert.Equal(t, 1, connector.Live())
	current, err := r.Shared().Conn()
	require.NoError(t, err)
	assert.Same(t, shared, current)

	require.NoError(t, r.Shared().Teardown())
}

func TestFresh_ReleasesConnectionOnQueryFailure(t *testing.T) {
	r, connector := newReuse(t, false)

	err := r.FreshComplex(context.Background())
	assert.True(t, errors.Is(err, benchmark.ErrQuery), "got %v", err)
	assert.Equal(t, 1, connector.Opened())
	assert.Equal(t, 0, connector.Live())
}

func TestFresh_ConnectFailure(t *testing.T) {
	cfg := dbutils.ConnectionConfig{Driver: "sqlite3", Server: t.TempDir() + "/missing/bench.db"}
	connector := dbtest.NewCountingConnector(t, cfg)
	r := New(connector, dbtest.SqliteQueries())

	err := r.FreshSimple(context.Background())
	assert.True(t, errors.Is(err, benchmark.ErrConnect), "got %v", err)
	assert.Equal(t, 0, connector.Live())
}

func TestComplexQuery_MissingSalesTable(t *testing.T) {
	ctx := context.Background()
	r, _ := newReuse(t, false)
	require.NoError(t, r.Shared().Setup(ctx))
	defer r.Shared().Teardown()

	err := r.ReusedComplex(ctx)
	assert.True(t, errors.Is(err, benchmark.ErrQuery), "reused: got %v", err)
	err = r.FreshComplex(ctx)
	assert.True(t, errors.Is(err, benchmark.ErrQuery), "fresh: got %v", err)

	// simple scenarios are unaffected
	require.NoError(t, r.ReusedSimple(ctx))
	require.NoError(t, r.FreshSimple(ctx))
}

func TestSharedConnection_SetupFailure(t *testing.T) {
	cfg := dbutils.ConnectionConfig{Driver: "sqlite3", Server: t.TempDir() + "/missing/bench.db"}
	r := New(dbtest.NewCountingConnector(t, cfg), dbtest.SqliteQueries())

	err := r.Shared().Setup(context.Background())
	assert.True(t, errors.Is(err, benchmark.ErrSetup), "got %v", err)
	assert.False(t, r.Shared().IsOpen())
	assert.NoError(t, r.Shared().Teardown())
}

func TestSharedConnection_SetupTwiceKeepsConnection(t *testing.T) {
	ctx := context.Background()
	r, connector := newReuse(t, true)

	require.NoError(t, r.Shared().Setup(ctx))
	require.NoError(t, r.Shared().Setup(ctx))
	assert.Equal(t, 1, connector.Opened())
	require.NoError(t, r.Shared().Teardown())
}

func TestSharedConnection_TeardownTwice(t *testing.T) {
	ctx := context.Background()
	r, connector := newReuse(t, true)
	require.NoError(t, r.Shared().Setup(ctx))
	require.NoError(t, r.ReusedSimple(ctx))

	assert.NoError(t, r.Shared().Teardown())
	assert.NoError(t, r.Shared().Teardown())
	assert.Equal(t, 1, connector.Closed())
	assert.False(t, r.Shared().IsOpen())

	// other scenarios keep working
	require.NoError(t, r.FreshSimple(ctx))
}

func TestRun_ReusedSimpleSamples(t *testing.T) {
	r, connector := newReuse(t, true)
	scenarios, err := benchmark.Filter(r.Scenarios(), []string{"ReusedConnectionQuery"})
	require.NoError(t, err)

	policy := worker.DefaultPolicy()
	results := worker.NewWorker(policy).Run(context.Background(), scenarios)
	require.Len(t, results, 1)

	metric := results[0].Metric
	require.NoError(t, metric.Err)
	assert.Len(t, metric.Rts, policy.Iterations)
	assert.Equal(t, policy.Iterations, metric.CompleteCount)
	assert.Equal(t, policy.Warmup, metric.WarmupCount)
	assert.Equal(t, 1, connector.Opened())
	assert.Equal(t, 0, connector.Live(), "shared connection should be closed after the run")
}

func TestRun_MissingSalesTableRecordsFailures(t *testing.T) {
	r, connector := newReuse(t, false)

	results := worker.NewWorker(worker.Policy{Warmup: 1, Iterations: 3}).Run(context.Background(), r.Scenarios())
	require.Len(t, results, 4)

	byName := map[string]*worker.Result{}
	for _, result := range results {
		byName[result.Scenario.Name] = result
	}

	for _, name := range []string{"ReusedConnectionQuery", "NewConnectionEveryTimeQuery"} {
		assert.False(t, byName[name].Failed(), name)
		assert.Len(t, byName[name].Metric.Rts, 3, name)
	}
	for _, name := range []string{"ReusedConnectionComplexQuery", "NewConnectionComplexQuery"} {
		metric := byName[name].Metric
		assert.True(t, byName[name].Failed(), name)
		assert.True(t, errors.Is(metric.Err, benchmark.ErrQuery), "%s: got %v", name, metric.Err)
		assert.Equal(t, 1, metric.AbortCount, name)
		assert.Empty(t, metric.Rts, name)
	}

	assert.False(t, r.Shared().IsOpen())
	assert.Equal(t, 0, connector.Live())
}

func TestGetConfigs(t *testing.T) {
	r, _ := newReuse(t, true)
	configs := r.GetConfigs()
	assert.Equal(t, "25", configs["simpleQueryLength"])
	assert.NotEmpty(t, configs["complexQueryLength"])
}
