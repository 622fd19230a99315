package circulate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/poiesic/circulate/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_Backends(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name string
		cfg  *Config
	}{
		{"memory", NewConfig()},
		{"badger in memory", NewConfig(WithBackend(BackendBadger), WithInMemory(true))},
		{"badger on disk", NewConfig(WithBackend(BackendBadger), WithPath(filepath.Join(t.TempDir(), "badger")))},
		{"sqlite", NewConfig(WithBackend(BackendSQLite), WithPath(filepath.Join(t.TempDir(), "catalog.db")))},
		{"redis", NewConfig(WithBackend(BackendRedis), WithRedis(mr.Addr(), "", 0))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			lib, err := Open(ctx, tt.cfg)
			require.NoError(t, err)
			defer lib.Close()

			require.NoError(t, lib.DropDB(ctx))
			require.NoError(t, lib.AddBook(ctx, core.Book{ISBN: "1", Title: "T", PageNum: 10}))
			got, err := lib.GetBook(ctx, "1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, 1, got.Copies())
		})
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	lib, err := Open(context.Background(), NewConfig(WithBackend("etcd")))
	assert.Error(t, err)
	assert.Nil(t, lib)
}
