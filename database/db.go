package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Session is one live server session. *sql.Conn satisfies it.
type Session interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PingContext(ctx context.Context) error
	Close() error
}

// Dialer opens a new session.
type Dialer func(ctx context.Context) (Session, error)

type DB struct {
	db *sql.DB
}

// Options describes the target server.
type Options struct {
	Host     string
	Port     int
	Socket   string
	User     string
	Password string
	// MaxConns bounds the sessions the driver may hold open.
	MaxConns int
}

func New(opts Options) (*DB, error) {
	cfg := mysql.NewConfig()
	cfg.User = opts.User
	cfg.Passwd = opts.Password
	if opts.Socket != "" {
		cfg.Net = "unix"
		cfg.Addr = opts.Socket
	} else {
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	}
	cfg.AllowAllFiles = false
	cfg.Timeout = 30 * time.Second

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}
	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(opts.MaxConns + 2)
		db.SetMaxIdleConns(opts.MaxConns + 2)
	}
	db.SetConnMaxIdleTime(0)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL server: %w", err)
	}
	return &DB{db: db}, nil
}

// Dial opens a dedicated session.
func (d *DB) Dial(ctx context.Context) (Session, error) {
	return d.db.Conn(ctx)
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Version returns the server version string.
func (d *DB) Version(ctx context.Context) (string, error) {
	var v string
	err := d.db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&v)
	return v, err
}
