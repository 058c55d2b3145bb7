package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rjw57/componentsdb/internal/auth/oidc"
)

func newProvidersCommand(opts *globalOptions) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List configured federated identity providers",
		Long: `List the federated identity providers from the configuration.

With --check, each provider's discovery document and key set are fetched
and validated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			providers, err := cfg.Auth.Providers()
			if err != nil {
				return err
			}
			resolver, cache := newResolver(cfg)
			defer cache.Stop()
			registry, err := oidc.NewRegistry(resolver, providers)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext()
			defer cancel()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tISSUER\tAUDIENCE\tPOLICIES\tSTATUS")
			var failed int
			for _, name := range registry.List() {
				p, _, _ := registry.Get(name)
				status := "-"
				if check {
					keys, err := resolver.ResolveFresh(ctx, p.Issuer)
					if err != nil {
						status = err.Error()
						failed++
					} else {
						status = fmt.Sprintf("ok (%d keys)", keys.Len())
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", p.Name, p.Issuer, p.Audience, len(p.PostPolicies), status)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d providers failed the check", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Fetch and validate each provider's discovery document and key set")
	return cmd
}
