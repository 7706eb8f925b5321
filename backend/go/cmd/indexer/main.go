package main

import (
	"Neurologix/backend/go/internal/config"
	"Neurologix/backend/go/internal/database/mysql"
	"Neurologix/backend/go/internal/search_service/rag/catalog"
	"Neurologix/backend/go/internal/search_service/rag/dal"
	"Neurologix/backend/go/internal/search_service/rag/loaders"
	"Neurologix/backend/go/internal/search_service/rag/pipeline"
	"Neurologix/backend/go/internal/search_service/rag/sampledata"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"Neurologix/backend/go/internal/search_service/service"
	"Neurologix/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	file       string
	sample     bool
	summaries  bool
}

func main() {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "indexer",
		Short:         "Load assessment documents into the semantic index",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config/config.yaml", "path to the YAML configuration file")

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Embed documents and write them to the doc store and vector store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.file == "" && !opts.sample {
				return errors.New("one of --file or --sample is required")
			}
			return runIndex(cmd.Context(), opts)
		},
	}
	indexCmd.Flags().StringVarP(&opts.file, "file", "f", "", "JSON or JSON Lines file of assessment documents")
	indexCmd.Flags().BoolVar(&opts.sample, "sample", false, "index the bundled sample documents")
	indexCmd.Flags().BoolVar(&opts.summaries, "summaries", false, "also index a narrative summary of every sample assessment row")

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert or refresh the sample assessments in MySQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), opts)
		},
	}

	rootCmd.AddCommand(indexCmd, seedCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setup(opts *options) (*config.AppConfig, *logger.Logger, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	return cfg, logger.New("Indexer", "", ""), nil
}

func runIndex(ctx context.Context, opts *options) error {
	cfg, log, err := setup(opts)
	if err != nil {
		return err
	}
	if cfg.Pipeline.WithDefaults().VectorStore != "milvus" {
		log.Warn("Vector store is not milvus; indexed documents will not outlive this process")
	}

	var docs []*schema.Document
	if opts.file != "" {
		loaded, err := loaders.NewJSONLoader().Load(ctx, opts.file)
		if err != nil {
			return err
		}
		log.Info(fmt.Sprintf("Loaded %d documents from %s", len(loaded), opts.file))
		docs = append(docs, loaded...)
	}
	if opts.sample {
		docs = append(docs, sampledata.Documents()...)
		if opts.summaries {
			docs = append(docs, loaders.RowSummaries(sampledata.Rows(), catalog.Default())...)
		}
	}

	svc, err := service.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	progress := make(chan pipeline.Progress, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progress {
			log.Info(fmt.Sprintf("[%3d%%] %s", p.Progress, p.Message))
		}
	}()
	err = svc.Indexer.Run(ctx, docs, progress)
	<-done
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	if err := svc.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush vector store: %w", err)
	}
	log.Info(fmt.Sprintf("Indexed %d documents", len(docs)))
	return nil
}

func runSeed(ctx context.Context, opts *options) error {
	cfg, log, err := setup(opts)
	if err != nil {
		return err
	}
	db, err := mysql.GetDB(&cfg.Databases.MySQL)
	if err != nil {
		return fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	defer mysql.Close()

	rows := sampledata.Rows()
	if err := dal.NewAssessmentDAL(db, catalog.Default()).Upsert(ctx, rows); err != nil {
		return err
	}
	log.Info(fmt.Sprintf("Seeded %d sample assessments", len(rows)))
	return nil
}
