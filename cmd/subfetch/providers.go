package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/subfetch/internal/config"
)

func newProvidersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "列出内置 provider 与当前回退顺序",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.open(cmd, config.CLIArgs{})
			if err != nil {
				return err
			}

			order := make(map[string]int, len(sess.eff.Providers))
			for i, name := range sess.eff.Providers {
				order[name] = i + 1
			}

			rows := make([][]string, 0)
			for _, name := range sess.reg.Names() {
				pos := "-"
				if n, ok := order[name]; ok {
					pos = strconv.Itoa(n)
				}
				base := sess.eff.ProviderSettings[name].BaseURL
				rows = append(rows, []string{name, pos, orAny(base)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Provider", "Order", "Base URL"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}
