package cmd

import "github.com/spf13/viper"

func settingDefaultConfig() {
	// Enable automatic environment variable binding
	viper.AutomaticEnv()

	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.shutdown_timeout", "SERVER_SHUTDOWN_TIMEOUT")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.shutdown_timeout", "5s")

	// Logging
	viper.BindEnv("log.format", "LOG_FORMAT")
	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.level", "info")

	// Ollama
	viper.BindEnv("ollama.url", "OLLAMA_URL")
	viper.BindEnv("ollama.model", "OLLAMA_MODEL")
	viper.BindEnv("ollama.embedding_model", "OLLAMA_EMBEDDING_MODEL")
	viper.BindEnv("ollama.keep_alive", "OLLAMA_KEEP_ALIVE")
	viper.SetDefault("ollama.url", "http://localhost:11434")
	viper.SetDefault("ollama.model", "mistral")
	viper.SetDefault("ollama.embedding_model", "nomic-embed-text")

	// Uploads and retrieval
	viper.BindEnv("storage.upload_dir", "UPLOAD_DIR")
	viper.SetDefault("storage.upload_dir", "pdf")
	viper.SetDefault("retrieval.k", 20)
	viper.SetDefault("retrieval.score_threshold", 0.1)
	viper.SetDefault("chunk.size", 1024)
	viper.SetDefault("chunk.overlap", 80)

	// Vector store
	viper.BindEnv("vectorstore.backend", "VECTORSTORE_BACKEND")
	viper.BindEnv("vectorstore.path", "VECTORSTORE_PATH")
	viper.SetDefault("vectorstore.backend", "chromem")
	viper.SetDefault("vectorstore.path", "db")
	viper.SetDefault("vectorstore.collection", "pdfqa")
	viper.SetDefault("vectorstore.compress", false)
	viper.SetDefault("vectorstore.node_id", 1)

	viper.BindEnv("weaviate.scheme", "WEAVIATE_SCHEME")
	viper.BindEnv("weaviate.host", "WEAVIATE_HOST")
	viper.BindEnv("weaviate.api_key", "WEAVIATE_API_KEY")
	viper.SetDefault("weaviate.scheme", "http")
	viper.SetDefault("weaviate.host", "localhost:8081")
	viper.SetDefault("weaviate.class", "PdfChunk")

	viper.BindEnv("elasticsearch.addresses", "ELASTICSEARCH_ADDRESSES")
	viper.BindEnv("elasticsearch.username", "ELASTICSEARCH_USERNAME")
	viper.BindEnv("elasticsearch.password", "ELASTICSEARCH_PASSWORD")
	viper.BindEnv("elasticsearch.api_key", "ELASTICSEARCH_API_KEY")
	viper.SetDefault("elasticsearch.addresses", "http://localhost:9200")
	viper.SetDefault("elasticsearch.index", "pdfqa-chunks")

	// Upload archive
	viper.BindEnv("archive.enabled", "ARCHIVE_ENABLED")
	viper.SetDefault("archive.enabled", false)

	// Map environment variables to Viper keys for RabbitMQ
	viper.BindEnv("amqp.url", "AMQP_URL")
	viper.SetDefault("amqp.url", "")

	// Map environment variables to Viper keys for PostgreSQL
	viper.BindEnv("postgres.host", "POSTGRES_HOST")
	viper.BindEnv("postgres.port", "POSTGRES_PORT")
	viper.BindEnv("postgres.user", "POSTGRES_USER")
	viper.BindEnv("postgres.password", "POSTGRES_PASSWORD")
	viper.BindEnv("postgres.db", "POSTGRES_DB")
	viper.SetDefault("postgres.host", "")
	viper.SetDefault("postgres.port", "5432")
	viper.SetDefault("postgres.user", "postgres")
	viper.SetDefault("postgres.password", "postgres")
	viper.SetDefault("postgres.db", "pdfqa")

	// Map environment variables to Viper keys for MinIO
	viper.BindEnv("minio.endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("minio.access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("minio.secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("minio.pdf_bucket", "MINIO_PDF_BUCKET")
	viper.BindEnv("minio.use_ssl", "MINIO_USE_SSL")
	viper.SetDefault("minio.endpoint", "localhost:9000")
	viper.SetDefault("minio.access_key", "minioadmin")
	viper.SetDefault("minio.secret_key", "minioadmin")
	viper.SetDefault("minio.pdf_bucket", "pdfs")
	viper.SetDefault("minio.use_ssl", false)
}
