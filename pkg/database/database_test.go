package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := map[string]func(c *Config){
		"empty path":       func(c *Config) { c.Path = "" },
		"no connections":   func(c *Config) { c.MaxConnections = 0 },
		"no lifetime":      func(c *Config) { c.ConnMaxLifetime = 0 },
		"no idle time":     func(c *Config) { c.ConnMaxIdleTime = 0 },
		"negative busy":    func(c *Config) { c.BusyTimeout = -time.Second },
		"no write timeout": func(c *Config) { c.WriteTimeout = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	c := DefaultConfig()
	c.Path = "/tmp/x.db"
	dsn := c.DSN()
	assert.Contains(t, dsn, "file:/tmp/x.db?")
	assert.Contains(t, dsn, "_busy_timeout=5000")
	assert.Contains(t, dsn, "_journal_mode=WAL")
	assert.Contains(t, dsn, "_foreign_keys=on")
}

// Every pooled connection gets the tuning pragmas, not only the first.
func TestOpen_TunesEveryConnection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "pool.db")
	db, err := Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	conns := make([]*sql.Conn, 3)
	for i := range conns {
		conns[i], err = db.Conn(ctx)
		require.NoError(t, err)
		defer conns[i].Close()
	}

	for i, conn := range conns {
		var cacheSize, tempStore int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA cache_size").Scan(&cacheSize))
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA temp_store").Scan(&tempStore))
		assert.Equal(t, -16000, cacheSize, "connection %d", i)
		assert.Equal(t, 2, tempStore, "connection %d", i)
	}
}

type MigrationSuite struct {
	suite.Suite
	db  *sql.DB
	ctx context.Context
}

func (s *MigrationSuite) SetupTest() {
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(s.T().TempDir(), "test.db")
	db, err := Open(cfg)
	s.Require().NoError(err)
	s.db = db
	s.ctx = context.Background()
}

func (s *MigrationSuite) TearDownTest() {
	s.NoError(s.db.Close())
}

func (s *MigrationSuite) TestEmbeddedMigrationsApplyOnce() {
	mm := NewMigrationManager(s.db)

	applied, err := mm.ApplyMigrations(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"001", "002"}, applied)

	applied, err = mm.ApplyMigrations(s.ctx)
	s.Require().NoError(err)
	s.Empty(applied)

	versions, err := mm.AppliedVersions(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"001", "002"}, versions)

	s.NoError(NewSchemaValidator(s.db).Validate(s.ctx))
}

func (s *MigrationSuite) TestLoadMigrationsSortsByVersion() {
	source := fstest.MapFS{
		"010_later.sql": {Data: []byte("CREATE TABLE later (id TEXT);")},
		"002_first.sql": {Data: []byte("CREATE TABLE first (id TEXT);")},
		"README.md":     {Data: []byte("ignored")},
	}
	migrations, err := NewMigrationManagerFS(s.db, source).LoadMigrations()
	s.Require().NoError(err)
	s.Require().Len(migrations, 2)
	s.Equal("002", migrations[0].Version)
	s.Equal("first", migrations[0].Description)
	s.Equal("010", migrations[1].Version)
}

func (s *MigrationSuite) TestBadFileNameIsRejected() {
	source := fstest.MapFS{"users.sql": {Data: []byte("SELECT 1;")}}
	_, err := NewMigrationManagerFS(s.db, source).LoadMigrations()
	s.Error(err)
}

func (s *MigrationSuite) TestFailedMigrationRollsBack() {
	source := fstest.MapFS{
		"001_ok.sql":     {Data: []byte("CREATE TABLE ok (id TEXT);")},
		"002_broken.sql": {Data: []byte("CREATE TABLE broken (id TEXT; nonsense")},
	}
	mm := NewMigrationManagerFS(s.db, source)

	applied, err := mm.ApplyMigrations(s.ctx)
	s.Error(err)
	s.Equal([]string{"001"}, applied)

	versions, err := mm.AppliedVersions(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"001"}, versions)
}

func (s *MigrationSuite) TestValidatorDetectsMissingSchema() {
	v := NewSchemaValidator(s.db)
	s.Error(v.ValidateTablesExist(s.ctx))

	_, err := s.db.Exec(`CREATE TABLE schema_migrations (version TEXT PRIMARY KEY, applied_at DATETIME);
		CREATE TABLE users (id TEXT PRIMARY KEY, name TEXT)`)
	s.Require().NoError(err)

	s.NoError(v.ValidateTablesExist(s.ctx))
	s.Error(v.ValidateTableStructure(s.ctx))
	s.Error(v.ValidateIndexes(s.ctx))
}

func TestMigrationSuite(t *testing.T) {
	suite.Run(t, new(MigrationSuite))
}
