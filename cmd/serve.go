/*
Copyright © 2024 Dean
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	httpHdlr "pdfqa/handler/http"
	"pdfqa/src/core/pdfqa"
	jobctrl "pdfqa/src/infrastructure/job"
	"pdfqa/src/log"
	"pdfqa/src/ollama"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the PDF question answering server",
	Long:  `The serve command starts an HTTP server that indexes uploaded PDFs and answers questions about them.`,
	RunE:  RunServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func RunServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var resources closer
	defer resources.close()

	provider, err := newProvider()
	if err != nil {
		return err
	}
	resources.add(func() {
		if err := provider.Close(); err != nil {
			log.Error(err, "failed to close ollama provider")
		}
	})

	ollamaClient, err := ollama.NewClient(provider.URL(), provider.HTTPClient())
	if err != nil {
		return err
	}

	store, err := newVectorStore(ctx, provider.Embedder())
	if err != nil {
		return err
	}

	opts := []pdfqa.Option{pdfqa.WithPinger(ollamaClient)}
	if viper.GetBool("archive.enabled") {
		archiver, err := startArchiver(ctx, &resources)
		if err != nil {
			return err
		}
		opts = append(opts, pdfqa.WithArchiver(archiver))
	}

	svc, err := newService(provider, store, opts...)
	if err != nil {
		return err
	}

	if viper.GetString("log.level") != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := httpHdlr.NewRouter(httpHdlr.NewHandler(svc))

	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr, "model", viper.GetString("ollama.model"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	timeout, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		log.Error(err, "Invalid shutdown timeout, using default 5s")
		timeout = 5 * time.Second
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	log.Info("Server exited")
	return nil
}

// startArchiver wires the archive job queue. With amqp.url set this process
// only publishes and the worker command consumes; otherwise the queue is an
// in-process channel and the consumer runs here.
func startArchiver(ctx context.Context, resources *closer) (*jobctrl.JobService, error) {
	if err := checkArchiveConfig(); err != nil {
		return nil, err
	}
	logger := log.NewWatermillAdapter("jobs")

	repo, closeRepo, err := newJobRepository(ctx)
	if err != nil {
		return nil, err
	}
	resources.add(closeRepo)

	if viper.GetString("amqp.url") != "" {
		publisher, closePublisher, err := newAMQPPublisher(logger)
		if err != nil {
			return nil, err
		}
		resources.add(closePublisher)
		return jobctrl.NewJobService(publisher, repo, logger, nil), nil
	}

	publisher, subscriber, closePubSub, err := newPubSub(logger)
	if err != nil {
		return nil, err
	}
	resources.add(closePubSub)

	task, err := newArchiveTask(ctx)
	if err != nil {
		return nil, err
	}
	svc := jobctrl.NewJobService(publisher, repo, logger, task)

	router, err := jobctrl.NewRouter(subscriber, svc, logger)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := router.Run(ctx); err != nil {
			log.Error(err, "job router stopped")
		}
	}()
	<-router.Running()

	return svc, nil
}
