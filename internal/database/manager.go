// Package database implements the user directory on sqlite.
package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	dbconfig "liveroom/pkg/database"
	"liveroom/pkg/interfaces"
	"liveroom/pkg/types"
)

var ErrClosed = errors.New("user directory is closed")

// Manager is the sqlite-backed interfaces.UserDirectory. Reads use the
// connection pool directly; writes are funnelled through one goroutine
// because sqlite allows a single writer.
type Manager struct {
	db     *sql.DB
	config *dbconfig.Config
	logger *zap.Logger

	writeCh  chan writeOperation
	shutdown chan struct{}
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var _ interfaces.UserDirectory = (*Manager)(nil)

type writeOperation struct {
	ctx       context.Context
	operation func(ctx context.Context, db *sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pending migrations and validates
// the schema.
func NewManager(ctx context.Context, config *dbconfig.Config, logger *zap.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid database config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("database")

	if dir := filepath.Dir(config.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create database directory %s", dir)
		}
	}

	db, err := dbconfig.Open(config)
	if err != nil {
		return nil, err
	}

	applied, err := dbconfig.NewMigrationManager(db).ApplyMigrations(ctx)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate database")
	}
	if len(applied) > 0 {
		logger.Info("applied migrations", zap.Strings("versions", applied))
	}
	if err := dbconfig.NewSchemaValidator(db).Validate(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "validate schema")
	}

	m := &Manager{
		db:       db,
		config:   config,
		logger:   logger,
		writeCh:  make(chan writeOperation, 100),
		shutdown: make(chan struct{}),
	}
	m.wg.Add(1)
	go m.writeLoop()

	logger.Info("user directory ready", zap.String("path", config.Path))
	return m, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeCh:
			if err := op.ctx.Err(); err != nil {
				op.result <- err
				continue
			}
			err := op.operation(op.ctx, m.db)
			if err != nil {
				m.logger.Warn("database write failed", zap.Error(err))
			}
			op.result <- err

		case <-m.shutdown:
			m.logger.Debug("write loop shutting down")
			return
		}
	}
}

// executeWrite queues operation on the writer goroutine and waits for it.
func (m *Manager) executeWrite(ctx context.Context, operation func(ctx context.Context, db *sql.DB) error) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.WriteTimeout)
	defer cancel()

	result := make(chan error, 1)
	select {
	case m.writeCh <- writeOperation{ctx: ctx, operation: operation, result: result}:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "queue write")
	case <-m.shutdown:
		return ErrClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for write")
	}
}

func (m *Manager) GetUser(ctx context.Context, userID string) (*types.User, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, name, role, establishment_id
		FROM users
		WHERE id = ?
	`, userID)

	var u types.User
	if err := row.Scan(&u.ID, &u.Name, &u.Role, &u.EstablishmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrUserNotFound
		}
		return nil, errors.Wrapf(err, "query user %s", userID)
	}
	return &u, nil
}

// UpsertUser inserts user or replaces the stored descriptor.
func (m *Manager) UpsertUser(ctx context.Context, user *types.User) error {
	if user == nil {
		return interfaces.ErrInvalidArgument
	}
	if err := user.Validate(); err != nil {
		return errors.Mark(err, interfaces.ErrInvalidArgument)
	}

	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO users (id, name, role, establishment_id, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				role = excluded.role,
				establishment_id = excluded.establishment_id,
				updated_at = excluded.updated_at
		`, user.ID, user.Name, user.Role, user.EstablishmentID, time.Now().UTC())
		if err != nil {
			return errors.Wrapf(err, "upsert user %s", user.ID)
		}
		return nil
	})
}

func (m *Manager) DeleteUser(ctx context.Context, userID string) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		if _, err := db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", userID); err != nil {
			return errors.Wrapf(err, "delete user %s", userID)
		}
		return nil
	})
}

// CountUsers reports the number of directory entries.
func (m *Manager) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count users")
	}
	return n, nil
}

func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if err := m.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "database ping failed")
	}
	if _, err := m.CountUsers(ctx); err != nil {
		return errors.Wrap(err, "database read test failed")
	}
	return nil
}

// Close stops the writer and closes the pool. It is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return errors.Wrap(err, "close database")
	}
	return nil
}
