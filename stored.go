package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/davharness/internal/resource"
)

// errAssertionFailed is returned when a check command observes the
// opposite of what --expect-* asked for.
var errAssertionFailed = errors.New("assertion failed")

// expectBool turns a tri-state expectation flag pair into an assertion.
func expectBool(what string, got bool, wantTrue, wantFalse bool) error {
	switch {
	case wantTrue && !got:
		return fmt.Errorf("%w: expected %s", errAssertionFailed, what)
	case wantFalse && got:
		return fmt.Errorf("%w: expected not %s", errAssertionFailed, what)
	default:
		return nil
	}
}

func newETagCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "etag",
		Short: "Remember an etag and later check whether it changed",
	}

	cmd.AddCommand(newStorePropCmd("store <path>", "Read and remember the etag of a resource",
		func(h *Harness, cmd *cobra.Command, ref resource.Ref) (string, error) {
			v, _, err := h.Resource.StoreETag(cmd.Context(), ref)
			return v, err
		}))
	cmd.AddCommand(newETagCheckCmd())

	return cmd
}

func newFileIDCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fileid",
		Short: "Remember a file id and later compare it",
	}

	cmd.AddCommand(newStorePropCmd("store <path>", "Read and remember the file id of a resource",
		func(h *Harness, cmd *cobra.Command, ref resource.Ref) (string, error) {
			v, _, err := h.Resource.StoreFileID(cmd.Context(), ref)
			return v, err
		}))
	cmd.AddCommand(newFileIDCheckCmd())

	return cmd
}

// newStorePropCmd builds the "store" subcommands, which print the
// remembered value.
func newStorePropCmd(
	use, short string, store func(h *Harness, cmd *cobra.Command, ref resource.Ref) (string, error),
) *cobra.Command {
	var rf refFlags

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			ref, err := rf.ref(cc.Flags.Actor, args[0])
			if err != nil {
				return err
			}

			return withHarness(cmd.Context(), func(h *Harness) error {
				v, err := store(h, cmd, ref)
				if err != nil {
					return err
				}

				fmt.Fprintln(cc.Out, v)

				return nil
			})
		},
	}

	rf.bind(cmd, "", "target")

	return cmd
}

func newETagCheckCmd() *cobra.Command {
	var (
		rf             refFlags
		wantChanged    bool
		wantNotChanged bool
	)

	cmd := &cobra.Command{
		Use:   "check <path>",
		Short: "Report whether the etag differs from the remembered one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			ref, err := rf.ref(cc.Flags.Actor, args[0])
			if err != nil {
				return err
			}

			return withHarness(cmd.Context(), func(h *Harness) error {
				changed, err := h.Resource.ETagChanged(cmd.Context(), ref)
				if err != nil {
					return err
				}

				fmt.Fprintf(cc.Out, "changed=%s\n", strconv.FormatBool(changed))

				return expectBool("etag of "+ref.Path+" to change", changed, wantChanged, wantNotChanged)
			})
		},
	}

	rf.bind(cmd, "", "target")
	cmd.Flags().BoolVar(&wantChanged, "expect-changed", false, "fail unless the etag changed")
	cmd.Flags().BoolVar(&wantNotChanged, "expect-unchanged", false, "fail if the etag changed")
	cmd.MarkFlagsMutuallyExclusive("expect-changed", "expect-unchanged")

	return cmd
}

func newFileIDCheckCmd() *cobra.Command {
	var (
		rf           refFlags
		stored       refFlags
		storedPath   string
		storedActor  string
		wantMatch    bool
		wantMismatch bool
	)

	cmd := &cobra.Command{
		Use:   "check <path>",
		Short: "Report whether the file id equals one remembered earlier",
		Long: `Compare the current file id of <path> with the id remembered for
--stored-path (default: <path> itself), e.g. after a move.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			ref, err := rf.ref(cc.Flags.Actor, args[0])
			if err != nil {
				return err
			}

			if storedPath == "" {
				storedPath = args[0]
			}

			if storedActor == "" {
				storedActor = cc.Flags.Actor
			}

			storedRef, err := stored.ref(storedActor, storedPath)
			if err != nil {
				return err
			}

			return withHarness(cmd.Context(), func(h *Harness) error {
				match, err := h.Resource.FileIDMatches(cmd.Context(), ref, storedRef)
				if err != nil {
					return err
				}

				fmt.Fprintf(cc.Out, "match=%s\n", strconv.FormatBool(match))

				return expectBool("file id of "+ref.Path+" to match", match, wantMatch, wantMismatch)
			})
		},
	}

	rf.bind(cmd, "", "target")
	stored.bind(cmd, "stored-", "remembered resource")
	cmd.Flags().StringVar(&storedPath, "stored-path", "", "path the file id was remembered under")
	cmd.Flags().StringVar(&storedActor, "stored-as", "", "actor the file id was remembered by")
	cmd.Flags().BoolVar(&wantMatch, "expect-match", false, "fail unless the ids match")
	cmd.Flags().BoolVar(&wantMismatch, "expect-mismatch", false, "fail if the ids match")
	cmd.MarkFlagsMutuallyExclusive("expect-match", "expect-mismatch")

	return cmd
}
