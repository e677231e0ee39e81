package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/s3types"
)

// Local paths are made absolute because the client filesystem is rooted at /.

var uploadCmd = &cobra.Command{
	Use:   "upload <file> <s3://bucket/key>",
	Short: "Upload a local file as a resumable multipart upload",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dst, err := parseS3URL(args[1])
		if err != nil {
			return err
		}
		opts, err := transferOptions(newProgressReporter("uploading", cfg.Quiet))
		if err != nil {
			return err
		}
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		res, err := client.Upload(cmd.Context(), dst.Bucket, dst.Key, path, opts...)
		if err != nil {
			return err
		}
		printResult(cmd, res)
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <s3://bucket/key> <file>",
	Short: "Download an object with concurrent ranged reads",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := parseS3URL(args[0])
		if err != nil {
			return err
		}
		path, err := filepath.Abs(args[1])
		if err != nil {
			return err
		}
		opts, err := transferOptions(newProgressReporter("downloading", cfg.Quiet))
		if err != nil {
			return err
		}
		res, err := client.Download(cmd.Context(), src.Bucket, src.Key, path, opts...)
		if err != nil {
			return err
		}
		printResult(cmd, res)
		return nil
	},
}

var copyCmd = &cobra.Command{
	Use:   "copy <s3://bucket/key> <s3://bucket/key>",
	Short: "Copy an object server-side in parts",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := parseS3URL(args[0])
		if err != nil {
			return err
		}
		dst, err := parseS3URL(args[1])
		if err != nil {
			return err
		}
		opts, err := transferOptions(newProgressReporter("copying", cfg.Quiet))
		if err != nil {
			return err
		}
		res, err := client.Copy(cmd.Context(), src.Bucket, src.Key, dst.Bucket, dst.Key, opts...)
		if err != nil {
			return err
		}
		printResult(cmd, res)
		return nil
	},
}

var putCmd = &cobra.Command{
	Use:   "put <file> <s3://bucket/key>",
	Short: "Upload a small file in a single request",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dst, err := parseS3URL(args[1])
		if err != nil {
			return err
		}
		opts, err := transferOptions(newProgressReporter("putting", cfg.Quiet))
		if err != nil {
			return err
		}
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		res, err := client.PutObject(cmd.Context(), dst.Bucket, dst.Key, path, opts...)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bytes in %s (etag %s)\n",
			dst, res.Size, res.Duration.Round(time.Millisecond), res.ETag)
		return nil
	},
}

func printResult(cmd *cobra.Command, res *s3types.TransferResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s: %d bytes, %d parts", res.Kind, res.Location, res.Size, res.PartsTotal)
	if res.PartsResumed > 0 {
		fmt.Fprintf(out, " (%d resumed)", res.PartsResumed)
	}
	fmt.Fprintf(out, " in %s\n", res.Duration.Round(time.Millisecond))
}
