package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/observability"
)

// newDownloadCmd creates and configures the `download` command.
func newDownloadCmd() *cobra.Command {
	downloadCmd := &cobra.Command{
		Use:   "download <server-relative-path>",
		Short: "Fetches a single document from the site to a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := appCfg

			if err := cfg.Validate(); err != nil {
				return err
			}

			dest, _ := cmd.Flags().GetString("dest")
			if dest == "" {
				dest = filepath.Base(args[0])
			}

			conn, closeAll, err := newConnector(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to establish session: %w", err)
			}
			defer closeAll()

			written, err := conn.Download(ctx, args[0], dest)
			if err != nil {
				return fmt.Errorf("download failed: %w", err)
			}

			logger.Info("Download complete",
				zap.String("path", args[0]),
				zap.String("dest", dest),
				zap.Int64("bytes", written),
			)
			fmt.Printf("Downloaded %s (%d bytes) to %s\n", args[0], written, dest)
			return nil
		},
	}

	downloadCmd.Flags().StringP("dest", "d", "", "Destination file path. Defaults to the document name in the current directory.")
	return downloadCmd
}
