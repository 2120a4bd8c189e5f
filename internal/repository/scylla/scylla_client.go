package scylla

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"access-gate/internal/config"
	"access-gate/internal/model"
	"access-gate/internal/util"
)

// Statements holds the CQL used by the repositories. gocql prepares and
// caches each statement on first use.
type Statements struct {
	InsertCode       string
	InsertCodeLog    string
	SelectCodes      string
	MarkCodeUsed     string
	MarkCodeLogUsed  string
	SelectCodeLog    string
	SelectCodeLogAgg string

	InsertSession     string
	SelectSession     string
	DeactivateSession string
}

var statements = Statements{
	InsertCode: `
        INSERT INTO access_codes (
            contact_hash, created_at, code_id, code_hash, code_salt, pepper_version,
            code_enc, contact_enc, contact_type, site, ip_enc, used, is_admin
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, false, ?) IF NOT EXISTS`,

	InsertCodeLog: `
        INSERT INTO access_code_log (
            log_bucket, created_at, code_id, contact_hash, code_enc, contact_enc,
            contact_type, site, ip_enc, used, is_admin
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, false, ?)`,

	SelectCodes: `
        SELECT code_id, created_at, code_hash, code_salt, pepper_version, code_enc,
            contact_enc, contact_type, site, ip_enc, used, used_at, used_ip_enc, is_admin
        FROM access_codes WHERE contact_hash = ? AND created_at >= ?`,

	MarkCodeUsed: `
        UPDATE access_codes SET used = true, used_at = ?, used_ip_enc = ?
        WHERE contact_hash = ? AND created_at = ? AND code_id = ? IF used = false`,

	MarkCodeLogUsed: `
        UPDATE access_code_log SET used = true, used_at = ?, used_ip_enc = ?
        WHERE log_bucket = ? AND created_at = ? AND code_id = ?`,

	SelectCodeLog: `
        SELECT code_id, created_at, contact_hash, code_enc, contact_enc, contact_type,
            site, ip_enc, used, used_at, used_ip_enc, is_admin
        FROM access_code_log WHERE log_bucket = ? LIMIT ?`,

	SelectCodeLogAgg: `
        SELECT contact_hash, used FROM access_code_log WHERE log_bucket = ?`,

	InsertSession: `
        INSERT INTO access_sessions (
            token, site, contact_hash, contact_enc, contact_type, ip_enc,
            created_at, expires_at, active, is_admin
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, true, ?) IF NOT EXISTS`,

	SelectSession: `
        SELECT site, contact_hash, contact_enc, contact_type, ip_enc,
            created_at, expires_at, active, is_admin
        FROM access_sessions WHERE token = ?`,

	DeactivateSession: `
        UPDATE access_sessions SET active = false WHERE token = ? IF active = true`,
}

// schema is applied in order when SCYLLA_CREATE_SCHEMA is set.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS access_codes (
        contact_hash text,
        created_at timestamp,
        code_id text,
        code_hash text,
        code_salt text,
        pepper_version int,
        code_enc text,
        contact_enc text,
        contact_type text,
        site text,
        ip_enc text,
        used boolean,
        used_at timestamp,
        used_ip_enc text,
        is_admin boolean,
        PRIMARY KEY ((contact_hash), created_at, code_id)
    ) WITH CLUSTERING ORDER BY (created_at DESC, code_id ASC)`,

	`CREATE TABLE IF NOT EXISTS access_code_log (
        log_bucket int,
        created_at timestamp,
        code_id text,
        contact_hash text,
        code_enc text,
        contact_enc text,
        contact_type text,
        site text,
        ip_enc text,
        used boolean,
        used_at timestamp,
        used_ip_enc text,
        is_admin boolean,
        PRIMARY KEY ((log_bucket), created_at, code_id)
    ) WITH CLUSTERING ORDER BY (created_at DESC, code_id ASC)`,

	`CREATE TABLE IF NOT EXISTS access_sessions (
        token text PRIMARY KEY,
        site text,
        contact_hash text,
        contact_enc text,
        contact_type text,
        ip_enc text,
        created_at timestamp,
        expires_at timestamp,
        active boolean,
        is_admin boolean
    )`,
}

type ScyllaClient struct {
	Session *gocql.Session
	config  *config.ScyllaConfig
	Stmts   Statements
}

func newCluster(cfg *config.Config, keyspace string) *gocql.ClusterConfig {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 2
	cluster.SocketKeepalive = 30 * time.Second
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
		NumRetries: 3,
	}

	if cfg.IsProduction() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 getEnv("SCYLLA_CA_FILE", "/app/certs/ca.pem"),
			CertPath:               getEnv("SCYLLA_CERT_FILE", "/app/certs/client.pem"),
			KeyPath:                getEnv("SCYLLA_KEY_FILE", "/app/certs/client.key"),
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}
	return cluster
}

func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	if scyllaConfig.CreateSchema && !cfg.IsProduction() {
		if err := createKeyspace(cfg); err != nil {
			return nil, err
		}
	}

	session, err := newCluster(cfg, scyllaConfig.Keyspace).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
		Stmts:   statements,
	}

	if scyllaConfig.CreateSchema {
		if err := client.createTables(); err != nil {
			session.Close()
			return nil, err
		}
	}

	util.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func createKeyspace(cfg *config.Config) error {
	session, err := newCluster(cfg, "").CreateSession()
	if err != nil {
		return fmt.Errorf("failed to create bootstrap scylla session: %w", err)
	}
	defer session.Close()

	stmt := fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s
        WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`, cfg.Scylla.Keyspace)
	if err := session.Query(stmt).Exec(); err != nil {
		return fmt.Errorf("failed to create keyspace: %w", err)
	}
	return nil
}

func (s *ScyllaClient) createTables() error {
	for _, stmt := range schema {
		if err := s.Session.Query(stmt).Exec(); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	util.Info("ScyllaDB schema applied", zap.Int("tables", len(schema)))
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(ctx context.Context, stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...).WithContext(ctx)
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

// ExecuteWithRetry retries non-conditional writes with a linear backoff.
// Conditional (IF ...) statements must not go through here.
func (s *ScyllaClient) ExecuteWithRetry(ctx context.Context, query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		lastErr = query.Exec()
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
			}
		}
	}
	return lastErr
}

// ScanWithRetry maps gocql.ErrNotFound to model.ErrNotFound without retrying.
func (s *ScyllaClient) ScanWithRetry(ctx context.Context, query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		lastErr = query.Scan(dest...)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, gocql.ErrNotFound) {
			return model.ErrNotFound
		}
		if i < 2 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
			}
		}
	}
	return lastErr
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
