// Package davpath computes request paths for resources across the legacy
// per-user, new per-user, space-id and public-link WebDAV addressing
// schemes. Resolution is pure: no I/O, no caching, no shared state.
package davpath

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Default DAV roots. Both are relative to the server base URL.
const (
	DefaultLegacyRoot = "remote.php/webdav"
	DefaultNewRoot    = "remote.php/dav"
)

// Well-known space names.
const (
	SpacePersonal = "personal"
	SpaceShares   = "Shares"
)

// Sentinel errors for addressing contract violations. None of them are
// retryable; they indicate a caller bug, not a server condition.
var (
	ErrInvalidMode         = errors.New("davpath: invalid addressing mode")
	ErrInvalidKind         = errors.New("davpath: invalid resource kind")
	ErrSpaceIDRequired     = errors.New("davpath: space id required in spaces mode")
	ErrPrincipalRequired   = errors.New("davpath: principal required")
	ErrSpaceNotAddressable = errors.New("davpath: space is only addressable in spaces mode")
)

// alwaysEscaped escapes space and parentheses even when segment encoding is
// disabled, because some backends additionally encode brackets.
var alwaysEscaped = strings.NewReplacer(" ", "%20", "(", "%28", ")", "%29")

// Descriptor names a resource logically. Principal is a user name or, in
// public mode, a share token. Space is "personal", "Shares" or a project
// space name; SpaceID carries the resolved id used in spaces mode.
type Descriptor struct {
	Principal string
	Space     string
	SpaceID   string
	Path      string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRoots overrides the legacy and new DAV roots. Empty values keep the
// defaults.
func WithRoots(legacy, next string) Option {
	return func(r *Resolver) {
		if legacy != "" {
			r.legacyRoot = strings.Trim(legacy, "/")
		}

		if next != "" {
			r.newRoot = strings.Trim(next, "/")
		}
	}
}

// WithNormalization applies a Unicode normalization form to every path
// segment before encoding.
func WithNormalization(form norm.Form) Option {
	return func(r *Resolver) {
		r.normalize = &form
	}
}

// WithoutSegmentEncoding disables per-segment percent-encoding. Space and
// parentheses are still escaped.
func WithoutSegmentEncoding() Option {
	return func(r *Resolver) {
		r.encode = false
	}
}

// Resolver maps descriptors to request paths.
type Resolver struct {
	legacyRoot string
	newRoot    string
	normalize  *norm.Form
	encode     bool
}

// NewResolver creates a Resolver with the default roots and segment
// encoding enabled.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		legacyRoot: DefaultLegacyRoot,
		newRoot:    DefaultNewRoot,
		encode:     true,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve returns the request path for d under mode and kind. The result
// always starts with "/" and never includes scheme or host.
//
//	old:    /{legacy-root}/{kind}/{principal}/{path}
//	new:    /{new-root}/{kind}/{principal}/{path}
//	spaces: /{new-root}/spaces/{kind}/{space-id}/{path}
//	public: /{new-root}/public-files/{token}/{path}
func (r *Resolver) Resolve(d Descriptor, mode Mode, kind Kind) (string, error) {
	if !mode.Valid() {
		return "", fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}

	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	switch mode {
	case ModeLegacyUser, ModeNewUser:
		return r.resolveUser(d, mode, kind)
	case ModeSpaceID:
		return r.resolveSpace(d, kind)
	default:
		return r.resolvePublic(d)
	}
}

func (r *Resolver) resolveUser(d Descriptor, mode Mode, kind Kind) (string, error) {
	if d.Principal == "" {
		return "", fmt.Errorf("%w: %s mode", ErrPrincipalRequired, mode)
	}

	p := d.Path

	switch d.Space {
	case "", SpacePersonal:
	case SpaceShares:
		// User modes expose the shares jail as a subtree of the personal path.
		p = SpaceShares + "/" + strings.TrimLeft(p, "/")
	default:
		return "", fmt.Errorf("%w: %q", ErrSpaceNotAddressable, d.Space)
	}

	root := r.newRoot
	if mode == ModeLegacyUser {
		root = r.legacyRoot
	}

	return r.join(p, root, string(kind), r.encodeSegment(d.Principal)), nil
}

func (r *Resolver) resolveSpace(d Descriptor, kind Kind) (string, error) {
	id := d.SpaceID
	if id == "" && !isWellKnownSpace(d.Space) {
		id = d.Space
	}

	if id == "" {
		return "", fmt.Errorf("%w: space %q has no id", ErrSpaceIDRequired, d.Space)
	}

	return r.join(d.Path, r.newRoot, "spaces", string(kind), r.encodeSegment(id)), nil
}

func (r *Resolver) resolvePublic(d Descriptor) (string, error) {
	if d.Principal == "" {
		return "", fmt.Errorf("%w: public mode needs a share token", ErrPrincipalRequired)
	}

	return r.join(d.Path, r.newRoot, string(KindPublicFiles), r.encodeSegment(d.Principal)), nil
}

// join assembles prefix segments (already encoded) with the encoded
// resource path. A trailing slash on the resource path is preserved.
func (r *Resolver) join(resourcePath string, prefix ...string) string {
	var b strings.Builder

	for _, seg := range prefix {
		b.WriteByte('/')
		b.WriteString(seg)
	}

	encoded := r.EncodePath(resourcePath)
	if encoded != "" {
		b.WriteByte('/')
		b.WriteString(encoded)

		if strings.HasSuffix(resourcePath, "/") {
			b.WriteByte('/')
		}
	}

	return b.String()
}

// EncodePath encodes each segment of a slash-separated path individually,
// dropping empty segments. Literal slashes stay segment separators.
func (r *Resolver) EncodePath(p string) string {
	segments := strings.Split(p, "/")
	out := segments[:0]

	for _, seg := range segments {
		if seg == "" {
			continue
		}

		out = append(out, r.encodeSegment(seg))
	}

	return strings.Join(out, "/")
}

func (r *Resolver) encodeSegment(seg string) string {
	if r.normalize != nil {
		seg = r.normalize.String(seg)
	}

	if r.encode {
		seg = url.PathEscape(seg)
	}

	return alwaysEscaped.Replace(seg)
}

func isWellKnownSpace(space string) bool {
	return space == "" || space == SpacePersonal || space == SpaceShares
}

// Target pairs a descriptor with the mode it is addressed in. Source and
// destination of a MOVE may use different modes.
type Target struct {
	Mode Mode
	Descriptor
}

// ResolveTarget resolves t under its own mode.
func (r *Resolver) ResolveTarget(t Target, kind Kind) (string, error) {
	return r.Resolve(t.Descriptor, t.Mode, kind)
}
