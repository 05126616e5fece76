package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/smartclass/telemetry-server/internal/models"
)

const (
	createTableSQL = `
		CREATE TABLE IF NOT EXISTS readings (
			id BIGSERIAL PRIMARY KEY,
			room TEXT NOT NULL,
			temperature DOUBLE PRECISION NOT NULL,
			humidity DOUBLE PRECISION NOT NULL,
			co2 DOUBLE PRECISION,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`

	createIndexSQL = `
		CREATE INDEX IF NOT EXISTS readings_room_recorded_at_idx
		ON readings (room, recorded_at)`

	insertSQL = `
		INSERT INTO readings (room, temperature, humidity, co2, recorded_at)
		VALUES ($1, $2, $3, $4, $5)`

	latestSQL = `
		SELECT DISTINCT ON (room) room, temperature, humidity, co2, recorded_at
		FROM readings
		ORDER BY room, recorded_at DESC`

	historySQL = `
		SELECT room, temperature, humidity, co2, recorded_at
		FROM readings
		WHERE room = $1
		ORDER BY recorded_at`

	deleteSQL = `DELETE FROM readings WHERE recorded_at < $1`
)

// dbConn is the slice of *pgx.Conn the gateway uses.
type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close(ctx context.Context) error
}

// Options configures a PostgresGateway.
type Options struct {
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	TLS              *tls.Config // nil disables TLS
	ConnectTimeout   time.Duration
	QueryTimeout     time.Duration
	ReconnectBackoff time.Duration
}

// PostgresGateway implements Gateway over a single pgx connection.
// All operations serialize on the connection mutex, so the store only
// ever sees one writer. Connection loss flips the gateway into a
// background reconnect loop; at most one such loop runs at a time.
type PostgresGateway struct {
	connect          func(ctx context.Context) (dbConn, error)
	connectTimeout   time.Duration
	queryTimeout     time.Duration
	reconnectBackoff time.Duration
	logger           zerolog.Logger

	mu   sync.Mutex
	conn dbConn

	connected    atomic.Bool
	reconnecting atomic.Bool
	closed       atomic.Bool
	wg           sync.WaitGroup
}

// NewPostgresGateway builds a gateway for the given store. No
// connection is attempted until Connect is called.
func NewPostgresGateway(opts Options, logger zerolog.Logger) (*PostgresGateway, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		opts.Host, opts.Port, opts.User, opts.Password, opts.Database)

	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse store config: %w", err)
	}
	connCfg.TLSConfig = opts.TLS
	connCfg.ConnectTimeout = opts.ConnectTimeout

	g := &PostgresGateway{
		connectTimeout:   opts.ConnectTimeout,
		queryTimeout:     opts.QueryTimeout,
		reconnectBackoff: opts.ReconnectBackoff,
		logger:           logger,
	}
	g.connect = func(ctx context.Context) (dbConn, error) {
		return pgx.ConnectConfig(ctx, connCfg)
	}
	return g, nil
}

// Connect starts the initial connection attempt in the background. The
// server keeps serving while the store is still coming up; operations
// return ErrUnavailable until the connection lands.
func (g *PostgresGateway) Connect() {
	g.triggerReconnect()
}

// Connected reports whether the store connection is currently up.
func (g *PostgresGateway) Connected() bool {
	return g.connected.Load()
}

// Close shuts the gateway down and waits for any reconnect loop to
// notice and exit.
func (g *PostgresGateway) Close() {
	g.closed.Store(true)
	g.connected.Store(false)

	g.mu.Lock()
	if g.conn != nil {
		_ = g.conn.Close(context.Background())
		g.conn = nil
	}
	g.mu.Unlock()

	g.wg.Wait()
}

// Insert persists one reading.
func (g *PostgresGateway) Insert(ctx context.Context, reading models.Reading) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn == nil || !g.connected.Load() {
		return ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, g.queryTimeout)
	defer cancel()

	_, err := g.conn.Exec(ctx, insertSQL,
		reading.Room, reading.Temperature, reading.Humidity, reading.CO2, reading.Timestamp)
	if err != nil {
		g.fail(err)
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// LatestPerRoom returns the most recent reading for every room,
// ordered by room identifier.
func (g *PostgresGateway) LatestPerRoom(ctx context.Context) ([]models.Reading, error) {
	return g.queryReadings(ctx, latestSQL)
}

// History returns all readings for one room in chronological order.
func (g *PostgresGateway) History(ctx context.Context, room string) ([]models.Reading, error) {
	return g.queryReadings(ctx, historySQL, room)
}

func (g *PostgresGateway) queryReadings(ctx context.Context, sql string, args ...any) ([]models.Reading, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn == nil || !g.connected.Load() {
		return nil, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, g.queryTimeout)
	defer cancel()

	rows, err := g.conn.Query(ctx, sql, args...)
	if err != nil {
		g.fail(err)
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	readings := make([]models.Reading, 0)
	for rows.Next() {
		var r models.Reading
		if err := rows.Scan(&r.Room, &r.Temperature, &r.Humidity, &r.CO2, &r.Timestamp); err != nil {
			g.fail(err)
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		g.fail(err)
		return nil, fmt.Errorf("failed to read query result: %w", err)
	}
	return readings, nil
}

// DeleteOlderThan removes readings older than age.
func (g *PostgresGateway) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn == nil || !g.connected.Load() {
		return 0, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, g.queryTimeout)
	defer cancel()

	cutoff := time.Now().Add(-age)
	tag, err := g.conn.Exec(ctx, deleteSQL, cutoff)
	if err != nil {
		g.fail(err)
		return 0, fmt.Errorf("failed to delete old readings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// fail records a fatal operation error and kicks off reconnection.
// Callers hold the connection mutex.
func (g *PostgresGateway) fail(err error) {
	g.logger.Error().Err(err).Msg("Store operation failed, scheduling reconnect")

	g.connected.Store(false)
	if g.conn != nil {
		_ = g.conn.Close(context.Background())
		g.conn = nil
	}
	g.triggerReconnect()
}

// triggerReconnect starts the reconnect loop unless one is already in
// flight. Concurrent failure signals collapse into the single attempt.
func (g *PostgresGateway) triggerReconnect() {
	if g.closed.Load() {
		return
	}
	if !g.reconnecting.CompareAndSwap(false, true) {
		return
	}

	g.wg.Add(1)
	go g.reconnectLoop()
}

// reconnectLoop dials the store until it succeeds or the gateway
// closes. Iterative with a fixed backoff between attempts; never
// recursive, never a busy loop.
func (g *PostgresGateway) reconnectLoop() {
	defer g.wg.Done()
	defer g.reconnecting.Store(false)

	for !g.closed.Load() {
		g.logger.Info().Msg("Connecting to the readings store")

		ctx, cancel := context.WithTimeout(context.Background(), g.connectTimeout)
		conn, err := g.connect(ctx)
		cancel()

		if err != nil {
			g.logger.Error().Err(err).
				Dur("backoff", g.reconnectBackoff).
				Msg("Store connection failed, backing off")
			time.Sleep(g.reconnectBackoff)
			continue
		}

		if err := g.ensureSchema(conn); err != nil {
			g.logger.Error().Err(err).Msg("Failed to ensure readings schema")
			_ = conn.Close(context.Background())
			time.Sleep(g.reconnectBackoff)
			continue
		}

		g.mu.Lock()
		if g.conn != nil {
			_ = g.conn.Close(context.Background())
		}
		g.conn = conn
		g.mu.Unlock()

		g.connected.Store(true)
		g.logger.Info().Msg("Connected to the readings store")
		return
	}
}

// ensureSchema creates the readings table and index if absent.
// Idempotent, run once per successful connection.
func (g *PostgresGateway) ensureSchema(conn dbConn) error {
	ctx, cancel := context.WithTimeout(context.Background(), g.queryTimeout)
	defer cancel()

	if _, err := conn.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create readings table: %w", err)
	}
	if _, err := conn.Exec(ctx, createIndexSQL); err != nil {
		return fmt.Errorf("failed to create readings index: %w", err)
	}
	return nil
}
