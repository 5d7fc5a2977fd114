package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pdfqa/src/log"
	"pdfqa/src/ollama"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull the chat and embedding models into Ollama",
	Long:  `The pull command downloads the configured chat and embedding models when the Ollama server does not have them yet.`,
	RunE:  runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)
}

func runPull(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := ollama.NewClient(viper.GetString("ollama.url"), nil)
	if err != nil {
		return err
	}
	if err := client.Heartbeat(ctx); err != nil {
		return err
	}

	var (
		bar     *progressbar.ProgressBar
		current string
	)
	finish := func() {
		if bar != nil {
			bar.Finish()
			bar = nil
		}
	}
	defer finish()

	models := []string{viper.GetString("ollama.model"), viper.GetString("ollama.embedding_model")}
	return client.EnsureModels(ctx, models, func(p ollama.Progress) error {
		if p.Total == 0 {
			finish()
			log.Info("pull", "model", p.Model, "status", p.Status)
			return nil
		}
		if bar == nil || current != p.Model+p.Status {
			finish()
			bar = progressbar.DefaultBytes(p.Total, p.Model+": "+p.Status)
			current = p.Model + p.Status
		}
		return bar.Set64(p.Completed)
	})
}
