// Package app wires configuration into stores, queues and pipelines.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/telhawk-systems/trailhawk/common/logging"
	natsmsg "github.com/telhawk-systems/trailhawk/common/messaging/nats"
	"github.com/telhawk-systems/trailhawk/internal/config"
	"github.com/telhawk-systems/trailhawk/internal/decoder"
	"github.com/telhawk-systems/trailhawk/internal/dlq"
	"github.com/telhawk-systems/trailhawk/internal/parser"
	"github.com/telhawk-systems/trailhawk/internal/persist"
	"github.com/telhawk-systems/trailhawk/internal/pipeline"
	"github.com/telhawk-systems/trailhawk/internal/source"
	"github.com/telhawk-systems/trailhawk/internal/store"
	"github.com/telhawk-systems/trailhawk/internal/transform"
)

// App builds components from a Config and owns their connections.
type App struct {
	Config *config.Config
	Logger *logging.Logger

	mu        sync.Mutex
	awsCfg    *aws.Config
	jetstream *natsmsg.JetStreamClient
	closers   []func() error
}

// New creates an App. A nil logger is built from cfg.Logging.
func New(cfg *config.Config, logger *logging.Logger) *App {
	if logger == nil {
		logger = logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	}
	return &App{Config: cfg, Logger: logger}
}

// AWSConfig loads the shared AWS configuration once. Static credentials
// from config take precedence over the default chain.
func (a *App) AWSConfig(ctx context.Context) (aws.Config, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.awsCfg != nil {
		return *a.awsCfg, nil
	}

	c := a.Config.AWS
	var opts []func(*awsconfig.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	a.awsCfg = &cfg
	return cfg, nil
}

// DynamoDBClient returns a client honouring aws.endpoint.
func (a *App) DynamoDBClient(ctx context.Context) (*dynamodb.Client, error) {
	cfg, err := a.AWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if a.Config.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(a.Config.AWS.Endpoint)
		}
	}), nil
}

// S3Fetcher returns a fetcher on an S3 client honouring aws.endpoint and
// aws.s3_path_style.
func (a *App) S3Fetcher(ctx context.Context) (*source.S3Fetcher, error) {
	cfg, err := a.AWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if a.Config.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(a.Config.AWS.Endpoint)
		}
		o.UsePathStyle = a.Config.AWS.S3PathStyle
	})
	return source.NewS3Fetcher(client, a.Config.Pipeline.MaxBatchBytes), nil
}

// Store builds the configured backend. Backends holding connections are
// released by Close.
func (a *App) Store(ctx context.Context) (store.Store, error) {
	s, err := a.newStore(ctx)
	if err != nil {
		return nil, err
	}
	if c, ok := s.(store.Closer); ok {
		a.onClose(c.Close)
	}
	return s, nil
}

func (a *App) newStore(ctx context.Context) (store.Store, error) {
	cfg := a.Config
	switch cfg.Store.Backend {
	case config.BackendDynamoDB:
		client, err := a.DynamoDBClient(ctx)
		if err != nil {
			return nil, err
		}
		return store.NewDynamoDBStore(client, cfg.Store.Table)

	case config.BackendRedis:
		return store.NewRedisStoreFromURL(ctx, cfg.Redis.URL, cfg.Redis.KeyPrefix)

	case config.BackendPostgres:
		return store.NewPostgresStore(ctx, cfg.Postgres.URL, cfg.Postgres.MaxConns)

	case config.BackendOpenSearch:
		return store.NewOpenSearchStore(store.OpenSearchConfig{
			URL:           cfg.OpenSearch.URL,
			Username:      cfg.OpenSearch.Username,
			Password:      cfg.OpenSearch.Password,
			TLSSkipVerify: cfg.OpenSearch.TLSSkipVerify,
			Index:         cfg.OpenSearch.Index,
			Logger:        a.Logger,
		})

	case config.BackendMemory:
		return store.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// JetStream returns the shared JetStream connection, connecting on first use.
func (a *App) JetStream() (*natsmsg.JetStreamClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.jetstream != nil {
		return a.jetstream, nil
	}

	c := a.Config.NATS
	natsCfg := natsmsg.DefaultConfig()
	natsCfg.URL = c.URL
	natsCfg.Name = c.Name
	natsCfg.Username = c.Username
	natsCfg.Password = c.Password
	natsCfg.Token = c.Token
	natsCfg.Logger = a.Logger

	js, err := natsmsg.NewJetStreamClient(natsCfg)
	if err != nil {
		return nil, err
	}
	a.jetstream = js
	a.closers = append(a.closers, js.Close)
	return js, nil
}

// DeadLetters builds the configured DLQ. It returns nil when disabled.
func (a *App) DeadLetters(ctx context.Context) (dlq.Queue, error) {
	switch a.Config.DLQ.Backend {
	case config.DLQNone, "":
		return nil, nil
	case config.DLQFile:
		return dlq.NewFileQueue(a.Config.DLQ.Path, a.Logger)
	case config.DLQJetStream:
		js, err := a.JetStream()
		if err != nil {
			return nil, err
		}
		return dlq.NewJetStreamQueue(ctx, js, a.Logger)
	default:
		return nil, fmt.Errorf("unknown dlq backend %q", a.Config.DLQ.Backend)
	}
}

// Pipeline builds a pipeline on the configured store. pipeline.decoder and
// pipeline.format override the entry point's defaults.
func (a *App) Pipeline(ctx context.Context, defaultDecoder string, defaultFormat parser.Format) (*pipeline.Pipeline, error) {
	s, err := a.Store(ctx)
	if err != nil {
		return nil, fmt.Errorf("build store: %w", err)
	}
	return a.PipelineOn(ctx, s, defaultDecoder, defaultFormat)
}

// PipelineOn builds a pipeline writing to s.
func (a *App) PipelineOn(ctx context.Context, s store.Store, defaultDecoder string, defaultFormat parser.Format) (*pipeline.Pipeline, error) {
	pc := a.Config.Pipeline

	decoderName := defaultDecoder
	if pc.Decoder != "" {
		decoderName = pc.Decoder
	}
	d, err := decoder.ForName(decoderName, pc.MaxBatchBytes)
	if err != nil {
		return nil, err
	}

	format := defaultFormat
	if pc.Format != "" {
		if format, err = parser.ParseFormat(pc.Format); err != nil {
			return nil, err
		}
	}

	opts := []persist.Option{
		persist.WithLogger(a.Logger),
		persist.WithConcurrency(pc.MaxConcurrency),
	}
	deadLetters, err := a.DeadLetters(ctx)
	if err != nil {
		return nil, fmt.Errorf("build dlq: %w", err)
	}
	if deadLetters != nil {
		opts = append(opts, persist.WithDeadLetters(deadLetters))
	}

	persister := persist.New(s, transform.New(), opts...)
	return pipeline.New(d, parser.New(format), persister, pipeline.WithLogger(a.Logger)), nil
}

// Close releases every connection the App opened.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	a.jetstream = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func() error) {
	a.mu.Lock()
	a.closers = append(a.closers, fn)
	a.mu.Unlock()
}
