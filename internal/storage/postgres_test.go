package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartclass/telemetry-server/internal/models"
)

// fakeConn records executed statements and can be failed on demand.
type fakeConn struct {
	mu       sync.Mutex
	execSQL  []string
	execArgs [][]any
	execErr  error
	execTag  pgconn.CommandTag
	queryErr error
	rows     *fakeRows
	closed   bool
}

func (c *fakeConn) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execSQL = append(c.execSQL, sql)
	c.execArgs = append(c.execArgs, arguments)
	if c.execErr != nil {
		return pgconn.CommandTag{}, c.execErr
	}
	return c.execTag, nil
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	if c.rows == nil {
		return &fakeRows{}, nil
	}
	return c.rows, nil
}

func (c *fakeConn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) setExecErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execErr = err
}

func (c *fakeConn) lastExec() (string, []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.execSQL) == 0 {
		return "", nil
	}
	return c.execSQL[len(c.execSQL)-1], c.execArgs[len(c.execArgs)-1]
}

// fakeRows is a minimal pgx.Rows over fixed reading tuples.
type fakeRows struct {
	data [][]any
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx <= len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	*(dest[0].(*string)) = row[0].(string)
	*(dest[1].(*float64)) = row[1].(float64)
	*(dest[2].(*float64)) = row[2].(float64)
	*(dest[3].(**float64)) = row[3].(*float64)
	*(dest[4].(*time.Time)) = row[4].(time.Time)
	return nil
}

func newTestGateway(connect func(ctx context.Context) (dbConn, error)) *PostgresGateway {
	return &PostgresGateway{
		connect:          connect,
		connectTimeout:   time.Second,
		queryTimeout:     time.Second,
		reconnectBackoff: 10 * time.Millisecond,
		logger:           zerolog.Nop(),
	}
}

func waitConnected(t *testing.T, g *PostgresGateway) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if g.Connected() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("gateway never connected")
}

// TestGateway_UnavailableWhenDisconnected verifies every operation
// returns the soft error while the connection is down.
func TestGateway_UnavailableWhenDisconnected(t *testing.T) {
	g := newTestGateway(func(ctx context.Context) (dbConn, error) {
		return nil, errors.New("no store")
	})
	ctx := context.Background()

	err := g.Insert(ctx, models.Reading{Room: "ClassA"})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = g.LatestPerRoom(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = g.History(ctx, "ClassA")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = g.DeleteOlderThan(ctx, time.Hour)
	assert.ErrorIs(t, err, ErrUnavailable)
}

// TestGateway_SingleReconnectInFlight verifies concurrent failure
// signals collapse into one connection attempt.
func TestGateway_SingleReconnectInFlight(t *testing.T) {
	var attempts atomic.Int32
	release := make(chan struct{})

	g := newTestGateway(func(ctx context.Context) (dbConn, error) {
		attempts.Add(1)
		<-release
		return &fakeConn{}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.triggerReconnect()
		}()
	}
	wg.Wait()

	// All triggers fired; only one dial may be in flight.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), attempts.Load())

	close(release)
	waitConnected(t, g)
	assert.Equal(t, int32(1), attempts.Load())
	g.Close()
}

// TestGateway_ConnectEnsuresSchema verifies a successful connection
// runs the idempotent table and index creation.
func TestGateway_ConnectEnsuresSchema(t *testing.T) {
	conn := &fakeConn{}
	g := newTestGateway(func(ctx context.Context) (dbConn, error) {
		return conn, nil
	})

	g.Connect()
	waitConnected(t, g)

	conn.mu.Lock()
	require.Len(t, conn.execSQL, 2)
	assert.Contains(t, conn.execSQL[0], "CREATE TABLE IF NOT EXISTS readings")
	assert.Contains(t, conn.execSQL[1], "CREATE INDEX IF NOT EXISTS")
	conn.mu.Unlock()

	g.Close()
}

// TestGateway_InsertWritesOneRow verifies the insert statement and its
// arguments.
func TestGateway_InsertWritesOneRow(t *testing.T) {
	conn := &fakeConn{}
	g := newTestGateway(func(ctx context.Context) (dbConn, error) {
		return conn, nil
	})
	g.Connect()
	waitConnected(t, g)

	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	err := g.Insert(context.Background(), models.Reading{
		Room:        "ClassA",
		Temperature: 21.5,
		Humidity:    48,
		Timestamp:   ts,
	})
	require.NoError(t, err)

	sql, args := conn.lastExec()
	assert.Contains(t, sql, "INSERT INTO readings")
	assert.Equal(t, []any{"ClassA", 21.5, 48.0, (*float64)(nil), ts}, args)

	g.Close()
}

// TestGateway_FailureTriggersReconnect verifies a failed operation
// surfaces a soft error and brings the connection back by itself.
func TestGateway_FailureTriggersReconnect(t *testing.T) {
	var attempts atomic.Int32
	g := newTestGateway(nil)
	g.connect = func(ctx context.Context) (dbConn, error) {
		attempts.Add(1)
		return &fakeConn{}, nil
	}

	g.Connect()
	waitConnected(t, g)
	require.Equal(t, int32(1), attempts.Load())

	// Break the live connection.
	g.mu.Lock()
	g.conn.(*fakeConn).setExecErr(errors.New("connection lost"))
	g.mu.Unlock()

	err := g.Insert(context.Background(), models.Reading{Room: "ClassA"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.True(t, strings.Contains(err.Error(), "connection lost"))

	// The reconnect loop replaces the connection without being called
	// again by anyone.
	waitConnected(t, g)
	assert.Equal(t, int32(2), attempts.Load())

	// And the gateway works again.
	assert.NoError(t, g.Insert(context.Background(), models.Reading{Room: "ClassA"}))
	g.Close()
}

// TestGateway_DeleteOlderThanReportsRows verifies the sweep delete
// passes a cutoff and reports affected rows.
func TestGateway_DeleteOlderThanReportsRows(t *testing.T) {
	conn := &fakeConn{execTag: pgconn.NewCommandTag("DELETE 2")}
	g := newTestGateway(func(ctx context.Context) (dbConn, error) {
		return conn, nil
	})
	g.Connect()
	waitConnected(t, g)

	removed, err := g.DeleteOlderThan(context.Background(), 6*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	sql, args := conn.lastExec()
	assert.Contains(t, sql, "DELETE FROM readings WHERE recorded_at <")
	require.Len(t, args, 1)
	cutoff := args[0].(time.Time)
	assert.WithinDuration(t, time.Now().Add(-6*time.Hour), cutoff, time.Minute)

	g.Close()
}

// TestGateway_LatestPerRoomScansRows verifies query results map back
// into readings, including a NULL co2.
func TestGateway_LatestPerRoomScansRows(t *testing.T) {
	co2 := 640.0
	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	conn := &fakeConn{rows: &fakeRows{data: [][]any{
		{"ClassA", 21.5, 48.0, &co2, ts},
		{"ClassB", 19.0, 52.0, (*float64)(nil), ts.Add(time.Minute)},
	}}}

	g := newTestGateway(func(ctx context.Context) (dbConn, error) {
		return conn, nil
	})
	g.Connect()
	waitConnected(t, g)

	readings, err := g.LatestPerRoom(context.Background())
	require.NoError(t, err)
	require.Len(t, readings, 2)

	assert.Equal(t, "ClassA", readings[0].Room)
	require.NotNil(t, readings[0].CO2)
	assert.Equal(t, 640.0, *readings[0].CO2)

	assert.Equal(t, "ClassB", readings[1].Room)
	assert.Nil(t, readings[1].CO2)

	g.Close()
}
