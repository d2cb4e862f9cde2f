package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/upb/llm-gateway/services/capabilities"
)

func newCatalogCommand(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Catalog file utilities",
	}
	cmd.AddCommand(newCatalogValidateCommand(global))
	return cmd
}

func newCatalogValidateCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load a catalog and report its models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := global.loadCatalog()
			if err != nil {
				return err
			}
			list, err := repo.ListModels(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			variants := 0
			for _, m := range list {
				variants += len(m.Variants)
				state := "enabled"
				if !m.Enabled {
					state = "disabled"
				}
				fmt.Fprintf(out, "%s (%s)\n", m.PublicName, state)
				for _, v := range m.Variants {
					supports := capabilities.Merge(m.Capabilities, v.CapabilitiesOverride).Supports
					fmt.Fprintf(out, "  %-40s enabled=%-5t streaming=%-5t tools=%-5t regions=%s\n",
						v.ID, v.Enabled, supports.Streaming, supports.Tools,
						strings.Join(v.Regions.AvailableRegions, ","))
				}
			}
			fmt.Fprintf(out, "catalog ok: %d models, %d variants\n", len(list), variants)
			return nil
		},
	}
}
