package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/internal/config"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/s3types"
)

var (
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
	client     *s3transfer.Client
)

var rootCmd = &cobra.Command{
	Use:   "s3transfer",
	Short: "Resumable multipart transfers for S3-compatible storage",
	Long: "s3transfer uploads, downloads and copies large objects in parts.\n" +
		"Interrupted transfers resume from their checkpoint when the same command is run again.",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	flags.String("region", "", "AWS region")
	flags.String("endpoint", "", "custom S3 endpoint URL")
	flags.Bool("force-path-style", false, "use path-style addressing")
	flags.Int("max-retries", 3, "retries per request after the first attempt")
	flags.Duration("timeout", 0, "timeout of a single HTTP request")
	flags.Int64("part-size", 0, "part size in bytes (0 chooses automatically)")
	flags.Int("task-num", 3, "parts in flight at once")
	flags.String("checkpoint-dir", config.DefaultCheckpointDir(), "directory for checkpoint files")
	flags.Bool("no-checkpoint", false, "disable checkpoints and resume")
	flags.Bool("strict-resume", false, "fail instead of restarting when the part size changed")
	flags.Int64("rate-limit", 0, "throughput limit in bytes per second (0 is unlimited)")
	flags.String("log-level", "warn", "log level: debug, info, warn or error")
	flags.BoolP("quiet", "q", false, "do not show a progress bar")

	rootCmd.AddCommand(uploadCmd, downloadCmd, copyCmd, putCmd)
}

// setup loads the configuration and builds the shared client.
func setup(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	opts := []s3types.Option{
		s3transfer.WithLogger(logger),
		s3transfer.WithMaxRetries(cfg.MaxRetries),
		s3transfer.WithForcePathStyle(cfg.ForcePathStyle),
		s3transfer.WithDefaultTaskNum(cfg.TaskNum),
	}
	if cfg.Region != "" {
		opts = append(opts, s3transfer.WithRegion(cfg.Region))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, s3transfer.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, s3transfer.WithTimeout(cfg.Timeout))
	}

	client, err = s3transfer.New(opts...)
	return err
}

// transferOptions builds the options shared by every subcommand.
func transferOptions(progress *progressReporter) ([]s3types.TransferOption, error) {
	opts := []s3types.TransferOption{
		s3transfer.WithPartSize(cfg.PartSize),
		s3transfer.WithTaskNum(cfg.TaskNum),
		s3transfer.WithEventListener(progress),
		s3transfer.WithProgressListener(progress),
		s3transfer.WithDataTransferListener(progress),
	}
	if path := cfg.CheckpointPath(); path != "" {
		dir, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create checkpoint directory: %w", err)
		}
		opts = append(opts, s3transfer.WithCheckpoint(dir+string(filepath.Separator)))
	}
	if cfg.StrictResume {
		opts = append(opts, s3transfer.WithStrictResume())
	}
	if cfg.RateLimit > 0 {
		limiter, err := s3transfer.NewRateLimiter(cfg.RateLimit, cfg.RateLimit)
		if err != nil {
			return nil, err
		}
		opts = append(opts, s3transfer.WithRateLimiter(limiter))
	}
	return opts, nil
}

// explain turns a transfer error into advice for the user.
func explain(err error) error {
	var te *errors.TransferError
	if !stderrors.As(err, &te) {
		return err
	}
	switch {
	case te.Resumable():
		return fmt.Errorf("%w\n%d parts are saved in %s; run the same command again to resume",
			err, te.PartsCompleted, te.CheckpointFile)
	case errors.IsSourceChanged(err):
		return fmt.Errorf("%w\nthe source object changed during the transfer; it will start over next time", err)
	default:
		return err
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", explain(err))
		stop()
		os.Exit(1)
	}
}
