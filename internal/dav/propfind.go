package dav

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Depth is the PROPFIND Depth header value.
type Depth string

// PROPFIND depths.
const (
	DepthZero     Depth = "0"
	DepthOne      Depth = "1"
	DepthInfinity Depth = "infinity"
)

// ErrInvalidDepth is returned by ParseDepth for anything but 0, 1 or infinity.
var ErrInvalidDepth = errors.New("dav: invalid depth")

// ErrUnknownPropertyPrefix is returned when a property uses a namespace
// prefix that is not registered.
var ErrUnknownPropertyPrefix = errors.New("dav: unknown property namespace prefix")

// Namespaces.
const (
	NamespaceDAV       = "DAV:"
	NamespaceOwnCloud  = "http://owncloud.org/ns"
	NamespaceNextcloud = "http://nextcloud.org/ns"
	NamespaceOCS       = "http://open-collaboration-services.org/ns"
)

// namespacePrefixes maps the short prefixes used in feature files to
// namespace URIs.
var namespacePrefixes = map[string]string{
	"d":   NamespaceDAV,
	"oc":  NamespaceOwnCloud,
	"nc":  NamespaceNextcloud,
	"ocs": NamespaceOCS,
}

// ParseDepth parses "0", "1" or "infinity" (case-insensitive).
func ParseDepth(s string) (Depth, error) {
	switch d := Depth(strings.ToLower(strings.TrimSpace(s))); d {
	case DepthZero, DepthOne, DepthInfinity:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDepth, s)
	}
}

// ParsePropertyName parses "prefix:name", "{namespace}name" or a bare
// name (DAV: namespace).
func ParsePropertyName(s string) (xml.Name, error) {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "{") {
		end := strings.Index(s, "}")
		if end < 0 || end == len(s)-1 {
			return xml.Name{}, fmt.Errorf("dav: malformed property %q", s)
		}

		return xml.Name{Space: s[1:end], Local: s[end+1:]}, nil
	}

	prefix, local, ok := strings.Cut(s, ":")
	if !ok {
		return xml.Name{Space: NamespaceDAV, Local: s}, nil
	}

	space, known := namespacePrefixes[prefix]
	if !known {
		return xml.Name{}, fmt.Errorf("%w: %q", ErrUnknownPropertyPrefix, prefix)
	}

	return xml.Name{Space: space, Local: local}, nil
}

// PropfindBody renders a PROPFIND request body asking for props. An empty
// list returns nil so the server answers with its default property set.
func PropfindBody(props []string) ([]byte, error) {
	if len(props) == 0 {
		return nil, nil
	}

	names := make([]xml.Name, 0, len(props))
	for _, p := range props {
		name, err := ParsePropertyName(p)
		if err != nil {
			return nil, err
		}

		names = append(names, name)
	}

	prefixes := prefixTable(names)

	var b bytes.Buffer

	b.WriteString(xml.Header)
	b.WriteString(`<d:propfind`)

	keys := make([]string, 0, len(prefixes))
	for ns := range prefixes {
		keys = append(keys, ns)
	}

	sort.Strings(keys)

	for _, ns := range keys {
		fmt.Fprintf(&b, ` xmlns:%s="%s"`, prefixes[ns], xmlEscape(ns))
	}

	b.WriteString(`><d:prop>`)

	for _, n := range names {
		fmt.Fprintf(&b, `<%s:%s/>`, prefixes[n.Space], n.Local)
	}

	b.WriteString(`</d:prop></d:propfind>`)

	return b.Bytes(), nil
}

// prefixTable assigns a prefix to every namespace used by names. Known
// namespaces keep their usual prefix; others get x0, x1, ...
func prefixTable(names []xml.Name) map[string]string {
	known := make(map[string]string, len(namespacePrefixes))
	for prefix, ns := range namespacePrefixes {
		known[ns] = prefix
	}

	table := map[string]string{NamespaceDAV: "d"}
	next := 0

	for _, n := range names {
		if _, ok := table[n.Space]; ok {
			continue
		}

		if prefix, ok := known[n.Space]; ok {
			table[n.Space] = prefix
			continue
		}

		table[n.Space] = fmt.Sprintf("x%d", next)
		next++
	}

	return table
}

func xmlEscape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s)) //nolint:errcheck // strings.Builder never fails

	return b.String()
}
