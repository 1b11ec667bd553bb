package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/rulecache"
	"github.com/hupe1980/rulecache/blobstore"
	miniostore "github.com/hupe1980/rulecache/blobstore/minio"
	s3store "github.com/hupe1980/rulecache/blobstore/s3"
	"github.com/hupe1980/rulecache/internal/cache"
	"github.com/hupe1980/rulecache/internal/compress"
)

// Config is the YAML configuration of the CLI.
type Config struct {
	Name        string      `yaml:"name"`
	Compression string      `yaml:"compression"`
	IOLimit     int64       `yaml:"io_limit"`
	BlockCache  int64       `yaml:"block_cache"`
	Store       StoreConfig `yaml:"store"`
}

// StoreConfig selects and configures the blob store.
type StoreConfig struct {
	Type string `yaml:"type"` // local | minio | s3

	Path string `yaml:"path"`

	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`

	// DynamoDBTable commits CURRENT through DynamoDB when set (s3 only).
	DynamoDBTable string `yaml:"dynamodb_table"`
}

// LoadConfig reads a config file. A missing file yields the defaults: a
// local store in the working directory.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{Compression: "none", Store: StoreConfig{Type: "local", Path: "."}}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Options returns the manager options of cfg.
func (c *Config) Options() ([]rulecache.Option, error) {
	t, err := compress.ParseType(c.Compression)
	if err != nil {
		return nil, err
	}
	opts := []rulecache.Option{
		rulecache.WithName(c.Name),
		rulecache.WithCompression(t),
		rulecache.WithIOLimit(c.IOLimit),
	}
	if c.BlockCache > 0 {
		opts = append(opts, rulecache.WithBlobCache(cache.NewLRUBlockCache(c.BlockCache, nil), 0))
	}
	return opts, nil
}

// OpenStore creates the configured blob store.
func (c *Config) OpenStore(ctx context.Context) (blobstore.BlobStore, error) {
	sc := c.Store
	switch sc.Type {
	case "", "local":
		return blobstore.NewLocalStore(sc.Path), nil
	case "minio":
		client, err := minio.New(sc.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(sc.AccessKey, sc.SecretKey, ""),
			Secure: sc.Secure,
			Region: sc.Region,
		})
		if err != nil {
			return nil, err
		}
		return miniostore.NewStore(client, sc.Bucket, sc.Prefix), nil
	case "s3":
		var opts []s3store.Option
		if sc.Prefix != "" {
			opts = append(opts, s3store.WithPrefix(sc.Prefix))
		}
		if sc.Region != "" {
			opts = append(opts, s3store.WithRegion(sc.Region))
		}
		if sc.Endpoint != "" {
			opts = append(opts, s3store.WithEndpoint(sc.Endpoint))
		}
		store, err := s3store.New(ctx, sc.Bucket, opts...)
		if err != nil {
			return nil, err
		}
		if sc.DynamoDBTable == "" {
			return store, nil
		}
		var lopts []func(*config.LoadOptions) error
		if sc.Region != "" {
			lopts = append(lopts, config.WithRegion(sc.Region))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, lopts...)
		if err != nil {
			return nil, err
		}
		ddb := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if sc.Endpoint != "" {
				o.BaseEndpoint = aws.String(sc.Endpoint)
			}
		})
		baseURI := "s3://" + sc.Bucket + "/" + sc.Prefix
		return s3store.NewDDBCommitStore(store, ddb, sc.DynamoDBTable, baseURI), nil
	default:
		return nil, fmt.Errorf("unknown store type %q", sc.Type)
	}
}

// Manager opens the configured store and creates a manager over it.
func (o *RootOptions) Manager(ctx context.Context) (*rulecache.Manager, *Config, error) {
	cfg, err := LoadConfig(o.Config)
	if err != nil {
		return nil, nil, err
	}
	store, err := cfg.OpenStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	opts, err := cfg.Options()
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, rulecache.WithLogger(o.Logger()))
	return rulecache.New(store, opts...), cfg, nil
}
