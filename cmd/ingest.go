package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pdfqa/src/core/pdfqa"
	"pdfqa/src/log"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.pdf>...",
	Short: "Index local PDF files",
	Long:  `The ingest command copies PDF files into the upload directory and indexes them, exactly like an upload through the API.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := newProvider()
	if err != nil {
		return err
	}
	defer provider.Close()

	store, err := newVectorStore(ctx, provider.Embedder())
	if err != nil {
		return err
	}

	svc, err := newService(provider, store)
	if err != nil {
		return err
	}

	bar := progressbar.Default(int64(len(args)), "indexing")
	var chunks int
	for _, path := range args {
		res, err := ingestFile(ctx, svc, viper.GetString("storage.upload_dir"), path)
		if err != nil {
			return err
		}
		chunks += res.Chunks
		log.Debug("indexed", "file", res.Filename, "pages", res.DocLen, "chunks", res.Chunks)
		bar.Add(1)
	}

	log.Info("ingest finished", "files", len(args), "chunks", chunks)
	return nil
}

// ingestFile indexes files already in the upload directory in place, since
// copying them onto themselves would truncate them.
func ingestFile(ctx context.Context, svc *pdfqa.Service, uploadDir, path string) (*pdfqa.IngestResult, error) {
	src, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	dst, err := filepath.Abs(filepath.Join(uploadDir, filepath.Base(path)))
	if err != nil {
		return nil, err
	}
	if src == dst {
		return svc.IngestFile(ctx, filepath.Join(uploadDir, filepath.Base(path)))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	res, err := svc.Ingest(ctx, filepath.Base(path), f)
	if err != nil {
		return nil, fmt.Errorf("failed to ingest %s: %w", path, err)
	}
	return res, nil
}
