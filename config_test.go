package orm_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywasm/orm/v2"
)

func unsetOnCleanup(t *testing.T, names ...string) {
	t.Helper()
	t.Cleanup(func() {
		for _, n := range names {
			os.Unsetenv(n)
		}
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("dotenv file", func(t *testing.T) {
		unsetOnCleanup(t, "ORM_DIALECT", "ORM_DEBUG", "ORM_TRANSACTIONAL")
		path := filepath.Join(t.TempDir(), "orm.env")
		require.NoError(t, os.WriteFile(path, []byte("ORM_DIALECT=postgres\nORM_DEBUG=true\nORM_TRANSACTIONAL=false\n"), 0o644))

		cfg, err := orm.LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.Dialect)
		assert.True(t, cfg.Debug)
		assert.False(t, cfg.Transactional)
		assert.True(t, cfg.AllOrNothing)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := orm.LoadConfig(filepath.Join(t.TempDir(), "absent.env"))
		assert.Error(t, err)
	})

	t.Run("optional dotenv absent", func(t *testing.T) {
		t.Chdir(t.TempDir())
		cfg, err := orm.LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, orm.DefaultConfig(), cfg)
	})

	t.Run("optional dotenv malformed", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ORM-DEBUG=true\n"), 0o644))
		t.Chdir(dir)
		_, err := orm.LoadConfig()
		require.Error(t, err)
		assert.NotErrorIs(t, err, orm.ErrValidation)
		assert.Contains(t, err.Error(), "variable name")
	})

	t.Run("unsupported dialect", func(t *testing.T) {
		t.Setenv("ORM_DIALECT", "oracle")
		_, err := orm.LoadConfig()
		assert.ErrorIs(t, err, orm.ErrValidation)
	})

	t.Run("bad boolean", func(t *testing.T) {
		t.Setenv("ORM_DEBUG", "maybe")
		_, err := orm.LoadConfig()
		assert.ErrorIs(t, err, orm.ErrValidation)
	})
}

func TestDebugLogging(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(logrus.DebugLevel)
	log.SetOutput(&buf)

	cfg := orm.DefaultConfig()
	cfg.Debug = true
	em, exec := newMockManager(t, orm.WithConfig(cfg), orm.WithLogger(log))
	exec.Results = []*MockRows{productRow(1, "p1", nil)}

	_, err := em.FindOne(context.Background(), "Product", 1)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"msg":"orm statement"`)
	assert.Contains(t, buf.String(), em.ID().String())
}
