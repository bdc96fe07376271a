package app_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/trailhawk/common/logging"
	"github.com/telhawk-systems/trailhawk/internal/app"
	"github.com/telhawk-systems/trailhawk/internal/config"
	"github.com/telhawk-systems/trailhawk/internal/dlq"
	"github.com/telhawk-systems/trailhawk/internal/models"
	"github.com/telhawk-systems/trailhawk/internal/parser"
	"github.com/telhawk-systems/trailhawk/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Store.Backend = config.BackendMemory
	return cfg
}

func record(id string) *models.PersistenceRecord {
	return &models.PersistenceRecord{
		EventID:   id,
		EventTime: "2024-03-01T12:00:00Z",
		User:      models.Unattributed,
		Event:     "{}",
		Expiry:    time.Now().Add(models.RetentionWindow).Unix(),
	}
}

func TestStore_Backends(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		a := app.New(testConfig(t), logging.Discard())
		s, err := a.Store(ctx)
		require.NoError(t, err)
		assert.Equal(t, "memory", s.Name())
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig(t)
		cfg.Store.Backend = config.BackendRedis
		cfg.Redis.URL = "redis://" + mr.Addr() + "/0"

		a := app.New(cfg, logging.Discard())
		s, err := a.Store(ctx)
		require.NoError(t, err)
		assert.Equal(t, "redis", s.Name())

		_, err = s.Put(ctx, record("e1"))
		require.NoError(t, err)

		// Close releases the store's connection.
		require.NoError(t, a.Close())
		_, err = s.Put(ctx, record("e2"))
		assert.Error(t, err)
	})

	t.Run("opensearch", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Store.Backend = config.BackendOpenSearch
		s, err := app.New(cfg, logging.Discard()).Store(ctx)
		require.NoError(t, err)
		assert.Equal(t, "opensearch", s.Name())
	})

	t.Run("dynamodb with static credentials", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Store.Backend = config.BackendDynamoDB
		cfg.Store.Table = "cloudtrail-events"
		cfg.AWS.Region = "us-east-1"
		cfg.AWS.Endpoint = "http://localhost:4566"
		cfg.AWS.AccessKeyID = "AKIDEXAMPLE"
		cfg.AWS.SecretAccessKey = "secret"

		a := app.New(cfg, logging.Discard())
		s, err := a.Store(ctx)
		require.NoError(t, err)
		assert.Equal(t, "dynamodb", s.Name())

		awsCfg, err := a.AWSConfig(ctx)
		require.NoError(t, err)
		assert.Equal(t, "us-east-1", awsCfg.Region)
		creds, err := awsCfg.Credentials.Retrieve(ctx)
		require.NoError(t, err)
		assert.Equal(t, "AKIDEXAMPLE", creds.AccessKeyID)
	})

	t.Run("dynamodb requires a table", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Store.Backend = config.BackendDynamoDB
		cfg.AWS.Region = "us-east-1"
		cfg.AWS.AccessKeyID = "AKIDEXAMPLE"
		cfg.AWS.SecretAccessKey = "secret"

		_, err := app.New(cfg, logging.Discard()).Store(ctx)
		assert.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Store.Backend = "cassandra"
		_, err := app.New(cfg, logging.Discard()).Store(ctx)
		assert.Error(t, err)
	})
}

func TestDeadLetters(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig(t)
	q, err := app.New(cfg, logging.Discard()).DeadLetters(ctx)
	require.NoError(t, err)
	assert.Nil(t, q)

	cfg.DLQ.Backend = config.DLQFile
	cfg.DLQ.Path = t.TempDir()
	q, err = app.New(cfg, logging.Discard()).DeadLetters(ctx)
	require.NoError(t, err)
	assert.IsType(t, &dlq.FileQueue{}, q)
}

func TestPipelineOn(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	a := app.New(cfg, logging.Discard())
	s := store.NewMemoryStore()

	p, err := a.PipelineOn(ctx, s, "gzip", parser.FormatRecords)
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err = zw.Write([]byte(`{"Records":[{"eventID":"a1","eventTime":"t"}]}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	outcomes, err := p.Run(ctx, buf.Bytes())
	require.NoError(t, err)
	assert.Len(t, outcomes, 1)
	assert.Equal(t, 1, s.Len())
}

func TestPipelineOn_ConfigOverrides(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig(t)
	cfg.Pipeline.Decoder = "auto"
	cfg.Pipeline.Format = "auto"
	s := store.NewMemoryStore()

	p, err := app.New(cfg, logging.Discard()).PipelineOn(ctx, s, "base64-gzip", parser.FormatLogEvents)
	require.NoError(t, err)

	_, err = p.Run(ctx, []byte(`{"Records":[{"eventID":"a1","eventTime":"t"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	cfg.Pipeline.Decoder = "zstd"
	_, err = app.New(cfg, logging.Discard()).PipelineOn(ctx, s, "gzip", parser.FormatRecords)
	assert.Error(t, err)

	cfg.Pipeline.Decoder = ""
	cfg.Pipeline.Format = "csv"
	_, err = app.New(cfg, logging.Discard()).PipelineOn(ctx, s, "gzip", parser.FormatRecords)
	assert.Error(t, err)
}
