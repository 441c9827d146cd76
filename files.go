package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/davharness/internal/dav"
	"github.com/tonimelisma/davharness/internal/davpath"
	"github.com/tonimelisma/davharness/internal/poll"
	"github.com/tonimelisma/davharness/internal/resource"
)

// refFlags address a resource beyond its path: which space, which mode and,
// for public links, which token.
type refFlags struct {
	space     string
	spaceID   string
	principal string
	mode      string
}

func (rf *refFlags) bind(cmd *cobra.Command, prefix, what string) {
	f := cmd.Flags()
	f.StringVar(&rf.space, prefix+"space", "", what+" space name (personal, shares or a project space)")
	f.StringVar(&rf.spaceID, prefix+"space-id", "", what+" space id, skipping the name lookup")
	f.StringVar(&rf.principal, prefix+"principal", "", what+" principal (user name, or share token in public mode)")
	f.StringVar(&rf.mode, prefix+"mode", "", what+" addressing mode for this request only")
}

// ref builds the resource reference for actor and path.
func (rf *refFlags) ref(actor, path string) (resource.Ref, error) {
	ref := resource.Ref{
		Actor:     actor,
		Principal: rf.principal,
		Space:     rf.space,
		SpaceID:   rf.spaceID,
		Path:      path,
	}

	if rf.mode != "" {
		m, err := davpath.ParseMode(rf.mode)
		if err != nil {
			return resource.Ref{}, err
		}

		ref.Mode = m
	}

	return ref, nil
}

// parseHeaders turns repeated "Name: value" flags into a header.
func parseHeaders(values []string) (http.Header, error) {
	h := make(http.Header)

	for _, v := range values {
		name, value, ok := strings.Cut(v, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q: want \"Name: value\"", v)
		}

		h.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	return h, nil
}

// parseMtime parses a Unix epoch seconds value; empty means unset.
func parseMtime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid mtime %q: want Unix seconds", s)
	}

	return time.Unix(secs, 0), nil
}

// parseOverwrite maps "T"/"F" (or true/false) to the Overwrite option.
func parseOverwrite(s string) (*bool, error) {
	switch strings.ToUpper(s) {
	case "":
		return nil, nil
	case "T", "TRUE":
		v := true
		return &v, nil
	case "F", "FALSE":
		v := false
		return &v, nil
	default:
		return nil, fmt.Errorf("invalid overwrite %q: want T or F", s)
	}
}

// untilPredicate builds the poll acceptance for --until-status and
// --until-not-status. Nil means no polling.
func untilPredicate(until, untilNot int) func(*dav.Response) bool {
	switch {
	case until != 0 && untilNot != 0:
		return poll.All(poll.StatusIs(until), poll.NotStatus(untilNot))
	case until != 0:
		return poll.StatusIs(until)
	case untilNot != 0:
		return poll.NotStatus(untilNot)
	default:
		return nil
	}
}

func newPropfindCmd() *cobra.Command {
	var (
		rf       refFlags
		depth    string
		props    []string
		until    int
		untilNot int
	)

	cmd := &cobra.Command{
		Use:   "propfind <path>",
		Short: "Issue PROPFIND and print the multistatus response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			d, err := dav.ParseDepth(depth)
			if err != nil {
				return err
			}

			ref, err := rf.ref(cc.Flags.Actor, args[0])
			if err != nil {
				return err
			}

			return withHarness(cmd.Context(), func(h *Harness) error {
				var resp *dav.Response

				if accept := untilPredicate(until, untilNot); accept != nil {
					resp, err = h.Resource.PropfindUntil(cmd.Context(), ref, d, props, accept)
				} else {
					resp, err = h.Resource.Propfind(cmd.Context(), ref, d, props)
				}

				if err != nil {
					return err
				}

				return cc.report(resp)
			})
		},
	}

	rf.bind(cmd, "", "target")
	cmd.Flags().StringVarP(&depth, "depth", "d", "1", "Depth header: 0, 1 or infinity")
	cmd.Flags().StringArrayVarP(&props, "prop", "p", nil, "property to request (d:getetag, oc:fileid, {ns}name)")
	cmd.Flags().IntVar(&until, "until-status", 0, "re-issue until the response has this status")
	cmd.Flags().IntVar(&untilNot, "until-not-status", 0, "re-issue while the response has this status")

	return cmd
}

func newGetCmd() *cobra.Command {
	var (
		rf       refFlags
		output   string
		headers  []string
		until    int
		untilNot int
	)

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Download a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			header, err := parseHeaders(headers)
			if err != nil {
				return err
			}

			ref, err := rf.ref(cc.Flags.Actor, args[0])
			if err != nil {
				return err
			}

			return withHarness(cmd.Context(), func(h *Harness) error {
				var resp *dav.Response

				if accept := untilPredicate(until, untilNot); accept != nil {
					resp, err = h.Resource.GetUntil(cmd.Context(), ref, header, accept)
				} else {
					resp, err = h.Resource.Get(cmd.Context(), ref, header)
				}

				if err != nil {
					return err
				}

				if output == "" || !resp.Success() {
					return cc.report(resp)
				}

				if err := os.WriteFile(output, resp.Body, 0o600); err != nil {
					return fmt.Errorf("writing %s: %w", output, err)
				}

				cc.Statusf("Downloaded %s to %s (%s)\n", args[0], output, formatSize(int64(len(resp.Body))))

				return checkExpect(cc.Flags.Expect, resp)
			})
		},
	}

	rf.bind(cmd, "", "target")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the body to this local file")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra request header \"Name: value\"")
	cmd.Flags().IntVar(&until, "until-status", 0, "re-issue until the response has this status")
	cmd.Flags().IntVar(&untilNot, "until-not-status", 0, "re-issue while the response has this status")

	return cmd
}

func newPutCmd() *cobra.Command {
	var (
		rf      refFlags
		data    string
		mtime   string
		headers []string
	)

	cmd := &cobra.Command{
		Use:   "put <path> [local-file]",
		Short: "Upload content in a single PUT",
		Long: `Upload a local file, or the --data string, to <path> in one request.
With neither, an empty body is sent.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			if len(args) == 2 && data != "" {
				return fmt.Errorf("--data and a local file are mutually exclusive")
			}

			header, err := parseHeaders(headers)
			if err != nil {
				return err
			}

			mt, err := parseMtime(mtime)
			if err != nil {
				return err
			}

			ref, err := rf.ref(cc.Flags.Actor, args[0])
			if err != nil {
				return err
			}

			opts := resource.PutOptions{Mtime: mt, Header: header}

			return withHarness(cmd.Context(), func(h *Harness) error {
				var resp *dav.Response

				if len(args) == 2 {
					resp, err = h.Resource.PutFile(cmd.Context(), ref, args[1], opts)
				} else {
					resp, err = h.Resource.Put(cmd.Context(), ref, []byte(data), opts)
				}

				if err != nil {
					return err
				}

				return cc.report(resp)
			})
		},
	}

	rf.bind(cmd, "", "target")
	cmd.Flags().StringVar(&data, "data", "", "upload this string as the body")
	cmd.Flags().StringVar(&mtime, "mtime", "", "X-OC-Mtime in Unix seconds")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra request header \"Name: value\"")

	return cmd
}

// newSimpleCmd builds a one-request command whose only input is a path.
func newSimpleCmd(
	use, short string,
	send func(h *Harness, cmd *cobra.Command, ref resource.Ref, header http.Header) (*dav.Response, error),
) *cobra.Command {
	var (
		rf      refFlags
		headers []string
	)

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			header, err := parseHeaders(headers)
			if err != nil {
				return err
			}

			ref, err := rf.ref(cc.Flags.Actor, args[0])
			if err != nil {
				return err
			}

			return withHarness(cmd.Context(), func(h *Harness) error {
				resp, err := send(h, cmd, ref, header)
				if err != nil {
					return err
				}

				return cc.report(resp)
			})
		},
	}

	rf.bind(cmd, "", "target")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra request header \"Name: value\"")

	return cmd
}

func newMkcolCmd() *cobra.Command {
	return newSimpleCmd("mkcol <path>", "Create a collection",
		func(h *Harness, cmd *cobra.Command, ref resource.Ref, header http.Header) (*dav.Response, error) {
			return h.Resource.Mkcol(cmd.Context(), ref, header)
		})
}

func newRmCmd() *cobra.Command {
	return newSimpleCmd("rm <path>", "Delete a resource",
		func(h *Harness, cmd *cobra.Command, ref resource.Ref, header http.Header) (*dav.Response, error) {
			return h.Resource.Delete(cmd.Context(), ref, header)
		})
}

func newMoveCmd() *cobra.Command {
	return newTransferCmd("move", "Move a resource", func(h *Harness) transferFunc {
		return h.Resource.Move
	})
}

func newCopyCmd() *cobra.Command {
	return newTransferCmd("copy", "Copy a resource", func(h *Harness) transferFunc {
		return h.Resource.Copy
	})
}

type transferFunc = func(ctx context.Context, src, dst resource.Ref, opts resource.MoveOptions) (*dav.Response, error)

// newTransferCmd builds move and copy. The destination takes its own
// actor, space and mode flags, so cross-mode transfers can be expressed.
func newTransferCmd(name, short string, pick func(h *Harness) transferFunc) *cobra.Command {
	var (
		src       refFlags
		dst       refFlags
		dstActor  string
		overwrite string
		headers   []string
	)

	cmd := &cobra.Command{
		Use:   name + " <src> <dst>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			header, err := parseHeaders(headers)
			if err != nil {
				return err
			}

			ow, err := parseOverwrite(overwrite)
			if err != nil {
				return err
			}

			srcRef, err := src.ref(cc.Flags.Actor, args[0])
			if err != nil {
				return err
			}

			dstRef, err := dst.ref(dstActor, args[1])
			if err != nil {
				return err
			}

			return withHarness(cmd.Context(), func(h *Harness) error {
				resp, err := pick(h)(cmd.Context(), srcRef, dstRef, resource.MoveOptions{Overwrite: ow, Header: header})
				if err != nil {
					return err
				}

				return cc.report(resp)
			})
		},
	}

	src.bind(cmd, "", "source")
	dst.bind(cmd, "dest-", "destination")
	cmd.Flags().StringVar(&dstActor, "dest-as", "", "destination actor (defaults to --as)")
	cmd.Flags().StringVar(&overwrite, "overwrite", "", "Overwrite header: T or F (omitted when unset)")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra request header \"Name: value\"")

	return cmd
}
