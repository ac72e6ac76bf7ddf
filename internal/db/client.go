// Package db stores the catalog and ingestion jobs in SurrealDB over an
// auto-reconnecting WebSocket.
package db

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/surrealcbor"
)

func init() {
	// WSS must negotiate HTTP/1.1: the WebSocket upgrade fails under HTTP/2 ALPN.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// Auth levels accepted in Config.AuthLevel.
const (
	AuthRoot     = "root"
	AuthDatabase = "database"
)

const dialTimeout = 5 * time.Second

// Config holds SurrealDB connection configuration.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	AuthLevel string // AuthRoot (default) or AuthDatabase
}

// credentials builds the sign-in request for the configured auth level.
// Database users are scoped to the namespace and database they sign in to.
func (cfg Config) credentials() (surrealdb.Auth, error) {
	switch cfg.AuthLevel {
	case "", AuthRoot:
		return surrealdb.Auth{Username: cfg.Username, Password: cfg.Password}, nil
	case AuthDatabase:
		return surrealdb.Auth{
			Namespace: cfg.Namespace,
			Database:  cfg.Database,
			Username:  cfg.Username,
			Password:  cfg.Password,
		}, nil
	default:
		return surrealdb.Auth{}, fmt.Errorf("unknown SurrealDB auth level %q", cfg.AuthLevel)
	}
}

// rpcBase strips a trailing /rpc; gorillaws appends it on every dial.
func rpcBase(url string) string {
	return strings.TrimSuffix(strings.TrimRight(url, "/"), "/rpc")
}

// Client is the SurrealDB-backed catalog and job store.
type Client struct {
	conn   *rews.Connection[*gorillaws.Connection]
	db     *surrealdb.DB
	cfg    Config
	logger logger.Logger
}

// NewClient connects, signs in and selects the namespace and database.
// Dropped sockets are redialed with exponential backoff.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	auth, err := cfg.credentials()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	// The SDK logs through our handler so reconnects show up in the same sink.
	sdkLogger := logger.New(log.Handler())

	conn := dial(rpcBase(cfg.URL), sdkLogger)
	sdkLogger.Info("connecting to SurrealDB", "url", cfg.URL)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.URL, err)
	}

	c := &Client{conn: conn, cfg: cfg, logger: sdkLogger}
	if err := c.open(ctx, auth); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	sdkLogger.Info("SurrealDB ready", "namespace", cfg.Namespace, "database", cfg.Database)
	return c, nil
}

// dial builds the reconnecting connection. surrealcbor understands the
// SurrealDB CBOR tags for record ids, datetimes and NONE.
func dial(baseURL string, sdkLogger logger.Logger) *rews.Connection[*gorillaws.Connection] {
	codec := surrealcbor.New()
	conn := rews.New(
		func(ctx context.Context) (*gorillaws.Connection, error) {
			return gorillaws.New(&connection.Config{
				BaseURL:     baseURL,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			}), nil
		},
		dialTimeout,
		codec,
		sdkLogger,
	)

	retryer := rews.NewExponentialBackoffRetryer()
	retryer.InitialDelay = time.Second
	retryer.MaxDelay = 30 * time.Second
	retryer.Multiplier = 2.0
	retryer.MaxRetries = 10
	conn.Retryer = retryer
	return conn
}

func (c *Client) open(ctx context.Context, auth surrealdb.Auth) error {
	db, err := surrealdb.FromConnection(ctx, c.conn)
	if err != nil {
		return fmt.Errorf("from connection: %w", err)
	}

	c.logger.Info("authenticating", "user", c.cfg.Username, "auth_level", c.cfg.AuthLevel)
	if _, err := db.SignIn(ctx, auth); err != nil {
		return fmt.Errorf("signin as %s: %w", c.cfg.Username, err)
	}
	if err := db.Use(ctx, c.cfg.Namespace, c.cfg.Database); err != nil {
		return fmt.Errorf("use %s/%s: %w", c.cfg.Namespace, c.cfg.Database, err)
	}
	c.db = db
	return nil
}

// Close closes the SurrealDB connection.
func (c *Client) Close(ctx context.Context) error {
	c.logger.Info("closing SurrealDB connection")
	return c.conn.Close(ctx)
}

// InitSchema defines the catalog and job tables. dimension sizes the HNSW
// index and must match the embedder; an existing index keeps its size.
func (c *Client) InitSchema(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("init schema: dimension must be positive, got %d", dimension)
	}
	c.logger.Info("initializing database schema", "dimension", dimension)
	if _, err := surrealdb.Query[any](ctx, c.db, SchemaSQL(dimension), nil); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// WipeData deletes all catalog items and jobs while preserving schema.
func (c *Client) WipeData(ctx context.Context) error {
	c.logger.Warn("wiping all data from database")

	for _, table := range []string{tableCatalogItem, tableIngestJob} {
		if _, err := surrealdb.Query[any](ctx, c.db, "DELETE "+table, nil); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}
