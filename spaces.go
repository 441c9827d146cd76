package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/davharness/internal/config"
	"github.com/tonimelisma/davharness/internal/graph"
)

func newSpaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "space",
		Short: "Create, find and remove project spaces",
	}

	cmd.AddCommand(newSpaceCreateCmd())
	cmd.AddCommand(newSpaceListCmd())
	cmd.AddCommand(newSpaceWaitCmd())
	cmd.AddCommand(newSpaceGoneCmd())
	cmd.AddCommand(newSpaceRmCmd())

	return cmd
}

// spaceJSON is the --json rendering of a space.
type spaceJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DriveType  string `json:"drive_type"`
	QuotaTotal int64  `json:"quota_total,omitempty"`
	QuotaUsed  int64  `json:"quota_used,omitempty"`
	Trashed    bool   `json:"trashed,omitempty"`
}

func printSpaces(cc *CLIContext, spaces []graph.Space) error {
	out := make([]spaceJSON, 0, len(spaces))
	for _, sp := range spaces {
		out = append(out, spaceJSON{
			ID: sp.ID, Name: sp.Name, DriveType: sp.DriveType,
			QuotaTotal: sp.QuotaTotal, QuotaUsed: sp.QuotaUsed, Trashed: sp.Trashed,
		})
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, out)
	}

	rows := make([][]string, 0, len(out))
	for _, sp := range out {
		quota := "unlimited"
		if sp.QuotaTotal > 0 {
			quota = formatSize(sp.QuotaUsed) + " / " + formatSize(sp.QuotaTotal)
		}

		rows = append(rows, []string{sp.Name, sp.DriveType, sp.ID, quota, strconv.FormatBool(sp.Trashed)})
	}

	printTable(cc.Out, []string{"NAME", "TYPE", "ID", "QUOTA", "TRASHED"}, rows)

	return nil
}

func newSpaceCreateCmd() *cobra.Command {
	var quota string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project space and record it for cleanup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			bytes, err := config.ParseSize(quota)
			if err != nil {
				return err
			}

			return withHarness(cmd.Context(), func(h *Harness) error {
				sp, err := h.Resource.CreateSpace(cmd.Context(), cc.Flags.Actor, args[0], bytes)
				if err != nil {
					return err
				}

				return printSpaces(cc, []graph.Space{*sp})
			})
		},
	}

	cmd.Flags().StringVar(&quota, "quota", "", "space quota (e.g. 10GiB); unlimited when empty")

	return cmd
}

func newSpaceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the drives visible to the actor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			creds, err := cc.Cfg.Credentials(cc.Flags.Actor)
			if err != nil {
				return err
			}

			return withHarness(cmd.Context(), func(h *Harness) error {
				spaces, err := h.Graph.Spaces(cmd.Context(), creds)
				if err != nil {
					return err
				}

				return printSpaces(cc, spaces)
			})
		},
	}
}

func newSpaceWaitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wait <name>",
		Short: "Poll until the actor can see the space, then cache its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			creds, err := cc.Cfg.Credentials(cc.Flags.Actor)
			if err != nil {
				return err
			}

			return withHarness(cmd.Context(), func(h *Harness) error {
				sp, err := h.Graph.WaitForSpace(cmd.Context(), creds, args[0])
				if err != nil {
					return err
				}

				h.State().SetSpaceID(cc.Flags.Actor, args[0], sp.ID)

				return printSpaces(cc, []graph.Space{sp})
			})
		},
	}
}

func newSpaceGoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gone <name>",
		Short: "Poll until the space is no longer listed for the actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			creds, err := cc.Cfg.Credentials(cc.Flags.Actor)
			if err != nil {
				return err
			}

			return withHarness(cmd.Context(), func(h *Harness) error {
				if err := h.Graph.WaitForSpaceGone(cmd.Context(), creds, args[0]); err != nil {
					return err
				}

				cc.Statusf("Space %q is gone\n", args[0])

				return nil
			})
		},
	}
}

func newSpaceRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>",
		Short: "Disable and purge a space",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			return withHarness(cmd.Context(), func(h *Harness) error {
				if err := h.Resource.RemoveSpace(cmd.Context(), cc.Flags.Actor, args[0]); err != nil {
					return err
				}

				cc.Statusf("Removed space %q\n", args[0])

				return nil
			})
		},
	}
}

func newShareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Inspect shares received by an actor",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "wait <name>",
		Short: "Poll until the share is listed as synchronized for the actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			creds, err := cc.Cfg.Credentials(cc.Flags.Actor)
			if err != nil {
				return err
			}

			return withHarness(cmd.Context(), func(h *Harness) error {
				item, err := h.Graph.WaitForShareSynced(cmd.Context(), creds, args[0])
				if err != nil {
					return err
				}

				if cc.Flags.JSON {
					return printJSON(cc.Out, item)
				}

				printTable(cc.Out, []string{"NAME", "ID", "REMOTE ID", "SYNCED"},
					[][]string{{item.Name, item.ID, item.RemoteID, strconv.FormatBool(item.Synchronize)}})

				return nil
			})
		},
	})

	return cmd
}
