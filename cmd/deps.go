package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/bwmarrin/snowflake"
	"github.com/spf13/viper"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/vectorstores"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"pdfqa/src/core/pdfqa"
	"pdfqa/src/fsutil"
	jobctrl "pdfqa/src/infrastructure/job"
	"pdfqa/src/log"
	"pdfqa/src/ollama"
	"pdfqa/src/storage/chromemctrl"
	"pdfqa/src/storage/elasticctrl"
	"pdfqa/src/storage/minioctrl"
	"pdfqa/src/storage/weaviate"
)

func newProvider() (*ollama.Provider, error) {
	return ollama.NewProvider(ollama.Config{
		URL:            viper.GetString("ollama.url"),
		Model:          viper.GetString("ollama.model"),
		EmbeddingModel: viper.GetString("ollama.embedding_model"),
		KeepAlive:      viper.GetString("ollama.keep_alive"),
	})
}

func newIDNode() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(viper.GetInt64("vectorstore.node_id"))
	if err != nil {
		return nil, fmt.Errorf("failed to create id generator: %w", err)
	}
	return node, nil
}

// newVectorStore opens the configured backend once for the whole process.
func newVectorStore(ctx context.Context, embedder embeddings.Embedder) (vectorstores.VectorStore, error) {
	switch backend := viper.GetString("vectorstore.backend"); backend {
	case "", "chromem":
		node, err := newIDNode()
		if err != nil {
			return nil, err
		}
		return chromemctrl.NewStore(chromemctrl.Config{
			Path:       viper.GetString("vectorstore.path"),
			Collection: viper.GetString("vectorstore.collection"),
			Compress:   viper.GetBool("vectorstore.compress"),
		}, embedder, node)
	case "weaviate":
		client, err := weaviate.NewClient(weaviate.Config{
			Scheme: viper.GetString("weaviate.scheme"),
			Host:   viper.GetString("weaviate.host"),
			APIKey: viper.GetString("weaviate.api_key"),
		})
		if err != nil {
			return nil, err
		}
		return weaviate.NewStore(ctx, weaviate.NewSDK(client), viper.GetString("weaviate.class"), embedder)
	case "elasticsearch":
		client, err := elasticctrl.NewClient(elasticctrl.Config{
			Addresses: splitList(viper.GetString("elasticsearch.addresses")),
			Username:  viper.GetString("elasticsearch.username"),
			Password:  viper.GetString("elasticsearch.password"),
			APIKey:    viper.GetString("elasticsearch.api_key"),
		})
		if err != nil {
			return nil, err
		}
		return elasticctrl.NewStore(elasticctrl.NewSDK(client), viper.GetString("elasticsearch.index"), embedder)
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", backend)
	}
}

// splitList splits a comma separated config value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func newService(provider *ollama.Provider, store vectorstores.VectorStore, opts ...pdfqa.Option) (*pdfqa.Service, error) {
	return pdfqa.NewService(provider.LLM(), store, fsutil.NewLocalFileStore(), pdfqa.Config{
		UploadDir:      viper.GetString("storage.upload_dir"),
		TopK:           viper.GetInt("retrieval.k"),
		ScoreThreshold: float32(viper.GetFloat64("retrieval.score_threshold")),
		ChunkSize:      viper.GetInt("chunk.size"),
		ChunkOverlap:   viper.GetInt("chunk.overlap"),
	}, opts...)
}

// newJobRepository connects to PostgreSQL when postgres.host is set and keeps
// jobs in memory otherwise.
func newJobRepository(ctx context.Context) (jobctrl.JobRepository, func(), error) {
	host := viper.GetString("postgres.host")
	if host == "" {
		log.Info("postgres.host not set, keeping archive jobs in memory")
		return jobctrl.NewMemoryJobRepository(), func() {}, nil
	}

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		host,
		viper.GetString("postgres.user"),
		viper.GetString("postgres.password"),
		viper.GetString("postgres.db"),
		viper.GetString("postgres.port"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}

	repo := jobctrl.NewPostgresJobRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, nil, err
	}

	return repo, func() { sqlDB.Close() }, nil
}

// newPubSub returns an AMQP publisher and subscriber when amqp.url is set and
// one in-process channel for both otherwise.
func newPubSub(logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, func(), error) {
	if viper.GetString("amqp.url") == "" {
		pubSub := gochannel.NewGoChannel(gochannel.Config{}, logger)
		return pubSub, pubSub, func() { pubSub.Close() }, nil
	}

	publisher, closePublisher, err := newAMQPPublisher(logger)
	if err != nil {
		return nil, nil, nil, err
	}

	subscriberConfig := amqp.NewDurableQueueConfig(viper.GetString("amqp.url"))
	subscriberConfig.Consume.NoRequeueOnNack = true
	subscriber, err := amqp.NewSubscriber(subscriberConfig, logger)
	if err != nil {
		closePublisher()
		return nil, nil, nil, fmt.Errorf("failed to create amqp subscriber: %w", err)
	}

	return publisher, subscriber, func() {
		subscriber.Close()
		closePublisher()
	}, nil
}

func newAMQPPublisher(logger watermill.LoggerAdapter) (message.Publisher, func(), error) {
	publisher, err := amqp.NewPublisher(amqp.NewDurableQueueConfig(viper.GetString("amqp.url")), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create amqp publisher: %w", err)
	}
	return publisher, func() { publisher.Close() }, nil
}

// checkArchiveConfig rejects a broker without PostgreSQL: serve would keep job
// rows in memory where the worker can never read them.
func checkArchiveConfig() error {
	if viper.GetString("amqp.url") != "" && viper.GetString("postgres.host") == "" {
		return errArchiveNeedsDatabase
	}
	return nil
}

func newArchiveTask(ctx context.Context) (*jobctrl.ArchiveTask, error) {
	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio service: %w", err)
	}

	bucket := viper.GetString("minio.pdf_bucket")
	if bucket == "" {
		bucket = minioctrl.DefaultPDFBucket
	}
	if err := minioService.EnsureBucketExists(ctx, bucket); err != nil {
		return nil, err
	}

	node, err := newIDNode()
	if err != nil {
		return nil, err
	}

	return jobctrl.NewArchiveTask(fsutil.NewLocalFileStore(), minioService, bucket, node), nil
}

type closer struct {
	fns []func()
}

func (c *closer) add(fn func()) {
	c.fns = append(c.fns, fn)
}

// close runs the hooks in reverse order of registration.
func (c *closer) close() {
	for i := len(c.fns) - 1; i >= 0; i-- {
		c.fns[i]()
	}
}

var (
	errArchiveNeedsBroker   = errors.New("the worker needs amqp.url and postgres.host, the in-process queue only works inside serve")
	errArchiveNeedsDatabase = errors.New("archiving through amqp.url needs postgres.host so the worker can read the jobs")
)
