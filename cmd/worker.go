package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	jobctrl "pdfqa/src/infrastructure/job"
	"pdfqa/src/log"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background job worker",
	Long:  `The worker consumes archive jobs from AMQP and copies uploaded PDFs into MinIO.`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	if viper.GetString("amqp.url") == "" || viper.GetString("postgres.host") == "" {
		return errArchiveNeedsBroker
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var resources closer
	defer resources.close()

	logger := log.NewWatermillAdapter("worker")

	repo, closeRepo, err := newJobRepository(ctx)
	if err != nil {
		return err
	}
	resources.add(closeRepo)

	publisher, subscriber, closePubSub, err := newPubSub(logger)
	if err != nil {
		return err
	}
	resources.add(closePubSub)

	task, err := newArchiveTask(ctx)
	if err != nil {
		return err
	}

	jobService := jobctrl.NewJobService(publisher, repo, logger, task)
	router, err := jobctrl.NewRouter(subscriber, jobService, logger)
	if err != nil {
		return err
	}

	log.Info("worker started", "topic", jobctrl.Topic)
	if err := router.Run(ctx); err != nil {
		return err
	}
	log.Info("Router stopped")

	return nil
}
