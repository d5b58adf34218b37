package cmd

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/linkcheck"
	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/observability"
)

// newValidateCmd creates and configures the `validate` command.
func newValidateCmd() *cobra.Command {
	validateCmd := &cobra.Command{
		Use:   "validate [urls...]",
		Short: "Classifies document links as working, broken, or auth-gated",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := appCfg

			urls := args
			if inputFile, _ := cmd.Flags().GetString("input"); inputFile != "" {
				fromFile, err := readURLList(inputFile)
				if err != nil {
					return err
				}
				urls = append(urls, fromFile...)
			}
			if len(urls) == 0 {
				return fmt.Errorf("no URLs given; pass them as arguments or via --input")
			}

			concurrency, _ := cmd.Flags().GetInt("concurrency")
			if concurrency < 1 {
				concurrency = 1
			}

			registry, cleanup := buildRegistry(cfg, logger)
			defer cleanup()
			validator := linkcheck.NewValidator(cfg, registry, logger)

			logger.Info("Validating links", zap.Int("count", len(urls)), zap.Int("concurrency", concurrency))

			results := make([]linkcheck.Result, len(urls))
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(concurrency)
			for i, u := range urls {
				g.Go(func() error {
					results[i] = validator.Validate(gctx, u)
					return gctx.Err()
				})
			}
			if err := g.Wait(); err != nil {
				return fmt.Errorf("validation aborted: %w", err)
			}

			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				for _, res := range results {
					line := fmt.Sprintf("%-13s %s", res.Status, res.URL)
					if res.Detail != "" {
						line += "  (" + res.Detail + ")"
					}
					fmt.Println(line)
				}
			}

			counts := map[linkcheck.Status]int{}
			for _, res := range results {
				counts[res.Status]++
			}
			logger.Info("Validation complete",
				zap.Int("working", counts[linkcheck.StatusWorking]),
				zap.Int("ssl_warning", counts[linkcheck.StatusSSLWarning]),
				zap.Int("auth_required", counts[linkcheck.StatusAuthRequired]),
				zap.Int("broken", counts[linkcheck.StatusBroken]),
				zap.Int("timeout", counts[linkcheck.StatusTimeout]),
				zap.Int("error", counts[linkcheck.StatusError]),
			)

			if counts[linkcheck.StatusBroken]+counts[linkcheck.StatusError] > 0 {
				return fmt.Errorf("%d of %d links failed validation",
					counts[linkcheck.StatusBroken]+counts[linkcheck.StatusError], len(results))
			}
			return nil
		},
	}

	validateCmd.Flags().StringP("input", "i", "", "File with one URL per line ('#' comments allowed).")
	validateCmd.Flags().IntP("concurrency", "j", 4, "Number of URLs validated in parallel.")
	validateCmd.Flags().Bool("json", false, "Emit results as JSON.")
	return validateCmd
}
