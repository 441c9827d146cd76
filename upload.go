package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/davharness/internal/chunk"
	"github.com/tonimelisma/davharness/internal/config"
	"github.com/tonimelisma/davharness/internal/dav"
	"github.com/tonimelisma/davharness/internal/resource"
)

// errUnknownSession is returned for an upload id the scenario does not track.
var errUnknownSession = errors.New("no tracked upload session")

// readContent returns the local file's bytes when path is set, data
// otherwise.
func readContent(path, data string) ([]byte, error) {
	if path == "" {
		return []byte(data), nil
	}

	if data != "" {
		return nil, errors.New("--data and a local file are mutually exclusive")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return content, nil
}

// parseOrder parses "3,2,1,0" into chunk indices.
func parseOrder(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}

	fields := strings.Split(s, ",")
	order := make([]int, 0, len(fields))

	for _, f := range fields {
		i, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("invalid chunk order %q: %w", s, err)
		}

		order = append(order, i)
	}

	return order, nil
}

func newPutChunkedCmd() *cobra.Command {
	var (
		rf        refFlags
		data      string
		protocol  string
		chunks    int
		chunkSize string
		order     string
		id        string
		overwrite string
		checksum  string
		lazy      bool
		mtime     string
		headers   []string
	)

	cmd := &cobra.Command{
		Use:   "put-chunked <path> [local-file]",
		Short: "Upload content in chunks with the legacy or session protocol",
		Long: `Split content into chunks and upload them with the chosen protocol.
--chunks takes precedence over --chunk-size; with neither, the configured
chunk size is used. --order sends chunks in the given index order and may
repeat an index.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			var local string
			if len(args) == 2 {
				local = args[1]
			}

			content, err := readContent(local, data)
			if err != nil {
				return err
			}

			opts, err := chunkedOptions(cc.Cfg, chunkedFlags{
				protocol: protocol, chunks: chunks, chunkSize: chunkSize, order: order, id: id,
				overwrite: overwrite, checksum: checksum, lazy: lazy, mtime: mtime, headers: headers,
			})
			if err != nil {
				return err
			}

			ref, err := rf.ref(cc.Flags.Actor, args[0])
			if err != nil {
				return err
			}

			return withHarness(cmd.Context(), func(h *Harness) error {
				res, err := h.Resource.PutChunked(cmd.Context(), ref, content, opts)
				if err != nil {
					return err
				}

				return reportChunked(cc, res)
			})
		},
	}

	rf.bind(cmd, "", "target")
	f := cmd.Flags()
	f.StringVar(&data, "data", "", "upload this string as the content")
	f.StringVar(&protocol, "protocol", "", "chunking protocol: legacy or session (default from config)")
	f.IntVar(&chunks, "chunks", 0, "split into exactly this many chunks")
	f.StringVar(&chunkSize, "chunk-size", "", "split into chunks of this size (e.g. 1MiB)")
	f.StringVar(&order, "order", "", "comma-separated chunk index order")
	f.StringVar(&id, "id", "", "transfer or session id (generated when empty)")
	f.StringVar(&overwrite, "overwrite", "", "Overwrite header on assembly: T or F")
	f.StringVar(&checksum, "checksum", "", "OC-Checksum on assembly, e.g. SHA1:...")
	f.BoolVar(&lazy, "lazy", false, "request asynchronous assembly (OC-LazyOps)")
	f.StringVar(&mtime, "mtime", "", "X-OC-Mtime in Unix seconds")
	f.StringArrayVarP(&headers, "header", "H", nil, "extra header on every chunk \"Name: value\"")

	return cmd
}

// chunkedFlags are the raw put-chunked flag values.
type chunkedFlags struct {
	protocol  string
	chunks    int
	chunkSize string
	order     string
	id        string
	overwrite string
	checksum  string
	lazy      bool
	mtime     string
	headers   []string
}

// chunkedOptions parses flags into upload options, filling protocol and
// chunk size from the configuration.
func chunkedOptions(cfg *config.Resolved, f chunkedFlags) (resource.ChunkedOptions, error) {
	opts := resource.ChunkedOptions{
		Protocol:  cfg.Protocol,
		Chunks:    f.chunks,
		SessionID: f.id,
		Checksum:  f.checksum,
		LazyOps:   f.lazy,
	}

	var err error

	if f.protocol != "" {
		if opts.Protocol, err = chunk.ParseProtocol(f.protocol); err != nil {
			return opts, err
		}
	}

	size := cfg.ChunkSize
	if f.chunkSize != "" {
		if size, err = config.ParseSize(f.chunkSize); err != nil {
			return opts, err
		}
	}

	if opts.Chunks == 0 {
		opts.ChunkSize = int(size)
	}

	if opts.Order, err = parseOrder(f.order); err != nil {
		return opts, err
	}

	if opts.Overwrite, err = parseOverwrite(f.overwrite); err != nil {
		return opts, err
	}

	if opts.Mtime, err = parseMtime(f.mtime); err != nil {
		return opts, err
	}

	if opts.Header, err = parseHeaders(f.headers); err != nil {
		return opts, err
	}

	return opts, nil
}

// chunkedJSON is the --json rendering of a chunked upload.
type chunkedJSON struct {
	Session string         `json:"session"`
	State   string         `json:"state"`
	Chunks  []responseJSON `json:"chunks"`
	Final   *responseJSON  `json:"final,omitempty"`
	Job     *responseJSON  `json:"job,omitempty"`
}

func toResponseJSON(resp *dav.Response) *responseJSON {
	if resp == nil {
		return nil
	}

	return &responseJSON{
		Method:     resp.Method,
		URL:        resp.URL,
		Status:     resp.StatusCode,
		Headers:    resp.Header,
		Body:       string(resp.Body),
		DurationMS: resp.Duration.Milliseconds(),
	}
}

// reportChunked prints the per-chunk statuses and the final response.
// --expect applies to the job status when assembly was asynchronous, the
// final response otherwise.
func reportChunked(cc *CLIContext, res *resource.ChunkedResult) error {
	last := res.Final
	if res.Job != nil {
		last = res.Job
	}

	if cc.Flags.JSON {
		out := chunkedJSON{
			Session: res.Session.ID,
			State:   res.Session.State().String(),
			Final:   toResponseJSON(res.Final),
			Job:     toResponseJSON(res.Job),
		}

		for _, r := range res.Chunks {
			out.Chunks = append(out.Chunks, *toResponseJSON(r))
		}

		if err := printJSON(cc.Out, out); err != nil {
			return err
		}

		return checkExpect(cc.Flags.Expect, last)
	}

	rows := make([][]string, 0, len(res.Chunks))
	for i, r := range res.Chunks {
		rows = append(rows, []string{strconv.Itoa(i), r.Method, strconv.Itoa(r.StatusCode), r.URL})
	}

	printTable(cc.Out, []string{"#", "METHOD", "STATUS", "URL"}, rows)
	cc.Statusf("Session %s (%s): %s\n", res.Session.ID, res.Session.Protocol, res.Session.State())

	if last == nil {
		return nil
	}

	return cc.report(last)
}

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Drive a chunked upload one protocol step at a time",
	}

	cmd.AddCommand(newUploadOpenCmd())
	cmd.AddCommand(newUploadChunkCmd())
	cmd.AddCommand(newUploadAssembleCmd())
	cmd.AddCommand(newUploadAwaitCmd())
	cmd.AddCommand(newUploadCancelCmd())
	cmd.AddCommand(newUploadListCmd())

	return cmd
}

// trackedSession looks up a session restored from the scenario state.
func trackedSession(h *Harness, id string) (*chunk.Session, error) {
	sess, ok := h.Resource.Session(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownSession, id)
	}

	return sess, nil
}

func newUploadOpenCmd() *cobra.Command {
	var (
		rf     refFlags
		id     string
		legacy bool
		total  int
	)

	cmd := &cobra.Command{
		Use:   "open <path>",
		Short: "Start tracking an upload; session uploads also MKCOL the upload collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			ref, err := rf.ref(cc.Flags.Actor, args[0])
			if err != nil {
				return err
			}

			return withHarness(cmd.Context(), func(h *Harness) error {
				if legacy {
					sess, err := h.Resource.StartLegacyUpload(cmd.Context(), ref, total, id)
					if err != nil {
						return err
					}

					fmt.Fprintln(cc.Out, sess.ID)

					return nil
				}

				sess, err := h.Resource.StartSessionUpload(cmd.Context(), ref, id)
				if err != nil {
					return err
				}

				resp, err := sess.Open(cmd.Context())
				if err != nil {
					return err
				}

				cc.Statusf("Session %s: %s\n", sess.ID, sess.State())

				return cc.report(resp)
			})
		},
	}

	rf.bind(cmd, "", "destination")
	cmd.Flags().StringVar(&id, "id", "", "transfer or session id (generated when empty)")
	cmd.Flags().BoolVar(&legacy, "legacy", false, "use the legacy protocol (nothing is sent until the first chunk)")
	cmd.Flags().IntVar(&total, "total", 0, "legacy: total chunk count (taken from the first chunk when 0)")

	return cmd
}

func newUploadChunkCmd() *cobra.Command {
	var (
		data    string
		total   int
		headers []string
	)

	cmd := &cobra.Command{
		Use:   "chunk <id> <index> [local-file]",
		Short: "Upload one chunk of a tracked upload",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid chunk index %q: %w", args[1], err)
			}

			var local string
			if len(args) == 3 {
				local = args[2]
			}

			content, err := readContent(local, data)
			if err != nil {
				return err
			}

			header, err := parseHeaders(headers)
			if err != nil {
				return err
			}

			return withHarness(cmd.Context(), func(h *Harness) error {
				sess, err := trackedSession(h, args[0])
				if err != nil {
					return err
				}

				var resp *dav.Response

				if sess.Protocol == chunk.ProtocolLegacy {
					resp, err = sess.UploadLegacyChunk(cmd.Context(), chunk.LegacyChunk{
						Index: index, Total: total, Content: content, Header: header,
					})
				} else {
					resp, err = sess.UploadChunk(cmd.Context(), index, content, header)
				}

				if err != nil {
					return err
				}

				h.Resource.Release(sess)

				return cc.report(resp)
			})
		},
	}

	cmd.Flags().StringVar(&data, "data", "", "chunk content as a string")
	cmd.Flags().IntVar(&total, "total", 0, "legacy: total chunk count to encode in the chunk name")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra request header \"Name: value\"")

	return cmd
}

func newUploadAssembleCmd() *cobra.Command {
	var (
		overwrite   string
		totalLength int64
		checksum    string
		lazy        bool
		mtime       string
		headers     []string
	)

	cmd := &cobra.Command{
		Use:   "assemble <id>",
		Short: "MOVE the session's .file node onto its destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			opts := chunk.AssembleOptions{Checksum: checksum, LazyOps: lazy}

			var err error

			if opts.Overwrite, err = parseOverwrite(overwrite); err != nil {
				return err
			}

			if opts.Mtime, err = parseMtime(mtime); err != nil {
				return err
			}

			if opts.Header, err = parseHeaders(headers); err != nil {
				return err
			}

			if cmd.Flags().Changed("total-length") {
				opts.TotalLength = &totalLength
			}

			return withHarness(cmd.Context(), func(h *Harness) error {
				sess, err := trackedSession(h, args[0])
				if err != nil {
					return err
				}

				resp, err := sess.Assemble(cmd.Context(), opts)
				if err != nil {
					return err
				}

				cc.Statusf("Session %s: %s\n", sess.ID, sess.State())
				h.Resource.Release(sess)

				return cc.report(resp)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&overwrite, "overwrite", "", "Overwrite header: T or F")
	f.Int64Var(&totalLength, "total-length", 0, "OC-Total-Length header")
	f.StringVar(&checksum, "checksum", "", "OC-Checksum header")
	f.BoolVar(&lazy, "lazy", false, "request asynchronous assembly (OC-LazyOps)")
	f.StringVar(&mtime, "mtime", "", "X-OC-Mtime in Unix seconds")
	f.StringArrayVarP(&headers, "header", "H", nil, "extra request header \"Name: value\"")

	return cmd
}

func newUploadAwaitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "await <id>",
		Short: "Poll the job status of an asynchronous assembly until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			return withHarness(cmd.Context(), func(h *Harness) error {
				sess, err := trackedSession(h, args[0])
				if err != nil {
					return err
				}

				resp, err := h.Resource.AwaitAssembly(cmd.Context(), sess)
				if err != nil {
					return err
				}

				cc.Statusf("Session %s: %s\n", sess.ID, sess.State())

				return cc.report(resp)
			})
		},
	}
}

func newUploadCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "DELETE the upload collection of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			return withHarness(cmd.Context(), func(h *Harness) error {
				sess, err := trackedSession(h, args[0])
				if err != nil {
					return err
				}

				resp, err := sess.Cancel(cmd.Context())
				if err != nil {
					return err
				}

				h.Resource.Release(sess)

				return cc.report(resp)
			})
		},
	}
}

// sessionJSON is the --json rendering of a tracked session.
type sessionJSON struct {
	ID          string `json:"id"`
	Owner       string `json:"owner,omitempty"`
	Protocol    string `json:"protocol"`
	State       string `json:"state"`
	TotalChunks int    `json:"total_chunks,omitempty"`
	Received    []int  `json:"received"`
	Destination string `json:"destination"`
}

func newUploadListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the upload sessions the scenario tracks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			return withHarness(cmd.Context(), func(h *Harness) error {
				sessions := h.State().Sessions()

				out := make([]sessionJSON, 0, len(sessions))
				for _, s := range sessions {
					out = append(out, sessionJSON{
						ID:          s.ID,
						Owner:       s.Owner,
						Protocol:    s.Protocol.String(),
						State:       s.State().String(),
						TotalChunks: s.TotalChunks,
						Received:    s.Received(),
						Destination: s.Destination.Path,
					})
				}

				if cc.Flags.JSON {
					return printJSON(cc.Out, out)
				}

				if len(out) == 0 {
					cc.Statusf("No tracked upload sessions\n")
					return nil
				}

				rows := make([][]string, 0, len(out))
				for _, s := range out {
					rows = append(rows, []string{
						s.ID, s.Owner, s.Protocol, s.State, strconv.Itoa(len(s.Received)), s.Destination,
					})
				}

				printTable(cc.Out, []string{"ID", "OWNER", "PROTOCOL", "STATE", "CHUNKS", "DESTINATION"}, rows)

				return nil
			})
		},
	}
}
