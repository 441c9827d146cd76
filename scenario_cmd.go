package main

import (
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/davharness/internal/davpath"
	"github.com/tonimelisma/davharness/internal/scenario"
)

func newScenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Inspect and reset the persisted scenario state",
	}

	cmd.AddCommand(newScenarioShowCmd())
	cmd.AddCommand(newScenarioModeCmd())
	cmd.AddCommand(newScenarioCleanupCmd())
	cmd.AddCommand(newScenarioResetCmd())

	return cmd
}

// scenarioJSON is the --json rendering of the scenario state.
type scenarioJSON struct {
	Mode          string                  `json:"mode"`
	InfiniteDepth bool                    `json:"infinite_depth"`
	CreatedSpaces []scenario.CreatedSpace `json:"created_spaces"`
	Sessions      int                     `json:"sessions"`
	ETags         int                     `json:"etags"`
	FileIDs       int                     `json:"file_ids"`
}

func newScenarioShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Summarize the scenario state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			return withHarness(cmd.Context(), func(h *Harness) error {
				snap := h.State().Snapshot()

				out := scenarioJSON{
					Mode:          snap.Mode.String(),
					InfiniteDepth: snap.InfiniteDepth,
					CreatedSpaces: snap.Created,
					Sessions:      len(snap.Sessions),
					ETags:         len(snap.ETags),
					FileIDs:       len(snap.FileIDs),
				}

				if cc.Flags.JSON {
					return printJSON(cc.Out, out)
				}

				ew := &errWriter{w: cc.Out}
				ew.printf("mode            %s\n", out.Mode)
				ew.printf("infinite depth  %s\n", strconv.FormatBool(out.InfiniteDepth))
				ew.printf("upload sessions %d\n", out.Sessions)
				ew.printf("stored etags    %d\n", out.ETags)
				ew.printf("stored file ids %d\n", out.FileIDs)

				if ew.err != nil || len(out.CreatedSpaces) == 0 {
					return ew.err
				}

				ew.printf("\n")

				rows := make([][]string, 0, len(out.CreatedSpaces))
				for _, sp := range out.CreatedSpaces {
					rows = append(rows, []string{sp.Name, sp.ID, sp.Owner})
				}

				sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
				printTable(cc.Out, []string{"CREATED SPACE", "ID", "OWNER"}, rows)

				return ew.err
			})
		},
	}
}

func newScenarioModeCmd() *cobra.Command {
	var infiniteDepth string

	cmd := &cobra.Command{
		Use:   "mode [old|new|spaces|public]",
		Short: "Show or set the addressing mode for the rest of the scenario",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			return withHarness(cmd.Context(), func(h *Harness) error {
				state := h.State()

				if len(args) == 1 {
					m, err := davpath.ParseMode(args[0])
					if err != nil {
						return err
					}

					h.SetMode(m)
				}

				if infiniteDepth != "" {
					enabled, err := strconv.ParseBool(infiniteDepth)
					if err != nil {
						return err
					}

					h.SetInfiniteDepth(enabled)
				}

				ew := &errWriter{w: cc.Out}
				ew.printf("%s infinite-depth=%s\n", state.Mode(), strconv.FormatBool(state.InfiniteDepth()))

				return ew.err
			})
		},
	}

	cmd.Flags().StringVar(&infiniteDepth, "set-infinite-depth", "", "enable or disable Depth: infinity (true/false)")

	return cmd
}

func newScenarioCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove every space the scenario created, then reset the state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			return withHarness(cmd.Context(), func(h *Harness) error {
				n := len(h.State().CreatedSpaces())

				if err := h.Resource.Cleanup(cmd.Context()); err != nil {
					return err
				}

				cc.Statusf("Cleaned up %d space(s)\n", n)

				return nil
			})
		},
	}
}

func newScenarioResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the scenario state without touching the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			return withHarness(cmd.Context(), func(h *Harness) error {
				h.State().Reset()
				cc.Statusf("Scenario state reset\n")

				return nil
			})
		},
	}
}
