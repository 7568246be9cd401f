package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/app"
	"github.com/tphakala/vigil/internal/errors"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and every rule definition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, _, err := root.load()
			if err != nil {
				return err
			}
			configs, err := app.RuleConfigs(settings)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			invalid := 0
			seen := make(map[string]string, len(configs))
			for _, cfg := range configs {
				rule, err := alerting.ParseRule(cfg)
				if err == nil {
					if prev, dup := seen[rule.ID]; dup {
						err = fmt.Errorf("duplicate rule id %q (also used by %q)", rule.ID, prev)
					} else {
						seen[rule.ID] = rule.Name
					}
				}
				if err != nil {
					invalid++
					fmt.Fprintf(out, "FAIL  %-32s %v\n", cfg.Name, err)
					continue
				}
				fmt.Fprintf(out, "ok    %-32s %s, %d condition(s)\n", rule.Name, rule.Severity, len(rule.Conditions))
			}

			if invalid > 0 {
				return errors.Newf("%d of %d rules invalid", invalid, len(configs)).
					Component("cli").
					Category(errors.CategoryConfiguration).
					Build()
			}
			fmt.Fprintf(out, "%d rules valid\n", len(configs))
			return nil
		},
	}
}
