package cmd

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/observability"
)

// newDiscoverCmd creates and configures the `discover` command.
func newDiscoverCmd() *cobra.Command {
	discoverCmd := &cobra.Command{
		Use:   "discover [library-path]",
		Short: "Authenticates against the site and enumerates documents in a library",
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("site.recursive", cmd.Flags().Lookup("recursive")); err != nil {
				return err
			}
			if err := viper.BindPFlag("site.max_files", cmd.Flags().Lookup("max-files")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := appCfg

			cfg.Site.Recursive = viper.GetBool("site.recursive")
			cfg.Site.MaxFiles = viper.GetInt("site.max_files")
			if err := cfg.Validate(); err != nil {
				return err
			}

			startPath := cfg.Site.LibraryPath
			if len(args) > 0 {
				startPath = args[0]
			}

			logger.Info("Starting discovery",
				zap.String("site", cfg.Site.URL),
				zap.String("path", startPath),
				zap.Bool("recursive", cfg.Site.Recursive),
				zap.Int("max_files", cfg.Site.MaxFiles),
			)

			conn, closeAll, err := newConnector(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to establish session: %w", err)
			}
			defer closeAll()

			result, err := conn.ConnectAndDiscover(ctx, startPath, cfg.Site.Recursive, cfg.Site.MaxFiles)
			if err != nil {
				return fmt.Errorf("discovery failed: %w", err)
			}

			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			fmt.Printf("Site:    %s\n", result.Title)
			fmt.Printf("Library: %s\n", result.ResolvedPath)
			fmt.Printf("Auth:    %s\n", conn.AuthMethod())
			if conn.InsecureFallback() {
				fmt.Println("Warning: completed with TLS verification disabled")
			}
			fmt.Printf("Files:   %d\n\n", len(result.Files))
			for _, f := range result.Files {
				fmt.Printf("  %-60s %10d  %s\n", f.ServerRelativePath, f.Size, f.Modified.Format("2006-01-02 15:04"))
			}
			for _, note := range result.Diagnostics.Notes {
				fmt.Printf("\nNote: %s\n", note)
			}
			return nil
		},
	}

	discoverCmd.Flags().BoolP("recursive", "r", false, "Walk subfolders recursively. (Overrides config/env)")
	discoverCmd.Flags().Int("max-files", 0, "Stop after this many files. (Overrides config/env)")
	discoverCmd.Flags().Bool("json", false, "Emit the discovery result as JSON.")

	return discoverCmd
}
