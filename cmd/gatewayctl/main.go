// Command gatewayctl inspects a gateway catalog offline: it dry-runs routing
// decisions, prices token counts and validates catalog files.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/upb/llm-gateway/config"
	"github.com/upb/llm-gateway/internal/observability"
	"github.com/upb/llm-gateway/repositories/memory"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalOptions struct {
	catalogPath string
	verbose     bool
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "gatewayctl",
		Short:         "Inspect LLM gateway catalogs offline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.catalogPath, "catalog", "catalog.yaml", "path to the YAML catalog")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log routing internals to stderr")

	root.AddCommand(
		newRouteCommand(opts),
		newPriceCommand(opts),
		newCatalogCommand(opts),
	)
	return root
}

func (o *globalOptions) logger() (*zap.Logger, error) {
	if !o.verbose {
		return zap.NewNop(), nil
	}
	return observability.NewLogger(config.ObservabilityConfig{LogLevel: "debug", LogFormat: "console"})
}

func (o *globalOptions) loadCatalog() (*memory.CatalogRepository, error) {
	return memory.LoadCatalogFile(o.catalogPath)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
