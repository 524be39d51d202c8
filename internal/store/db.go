// Package store provides the MySQL-backed write store (bookings,
// booking_events, seat_availability, booking_outbox) and read store
// (user_tickets_view, schedule_availability_view, projection_checkpoints)
// repositories. Connection handling follows the teacher's
// internal/database/db.go's approach — database/sql + go-sql-driver/mysql,
// a tuned pool, a context-bounded ping at startup — generalized to take
// its DSN and pool tuning from config.DBConfig/config.PoolConfig so the
// write-store and read-store pools (spec §6's "two database endpoints")
// share one constructor instead of five positional strings apiece.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/transit-systems/ticketing-core/internal/config"
)

// Open connects to MySQL and verifies the connection is live. Called once
// for the write-store DSN and once for the read-store DSN; pool applies
// the same tuning to both since neither has a distinguishable load
// profile yet.
func Open(db config.DBConfig, pool config.PoolConfig) (*sql.DB, error) {
	auth := db.User
	if db.Pass != "" {
		auth = fmt.Sprintf("%s:%s", db.User, db.Pass)
	}
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, db.Host, db.Port, db.Name)

	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	conn.SetMaxOpenConns(pool.MaxOpenConns)
	conn.SetMaxIdleConns(pool.MaxIdleConns)
	conn.SetConnMaxLifetime(pool.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pool.PingTimeout)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}
