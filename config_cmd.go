package main

import (
	"github.com/spf13/cobra"

	"github.com/tonimelisma/davharness/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if cc.Flags.JSON {
		// Marshal a copy with passwords dropped.
		redacted := *cc.Cfg.Config
		redacted.Admin.Password = ""
		redacted.Users = make(map[string]config.Account, len(cc.Cfg.Users))

		for name, acct := range cc.Cfg.Users {
			acct.Password = ""
			redacted.Users[name] = acct
		}

		return printJSON(cc.Out, redacted)
	}

	return config.RenderEffective(cc.Cfg, cc.Out)
}
