package dav

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Frequently inspected properties.
var (
	PropETag         = xml.Name{Space: NamespaceDAV, Local: "getetag"}
	PropResourceType = xml.Name{Space: NamespaceDAV, Local: "resourcetype"}
	PropFileID       = xml.Name{Space: NamespaceOwnCloud, Local: "fileid"}
	PropPermissions  = xml.Name{Space: NamespaceOwnCloud, Local: "permissions"}
)

// Multistatus is a decoded 207 response body.
type Multistatus struct {
	Responses []PropResponse
}

// PropResponse is one <d:response> element.
type PropResponse struct {
	Href      string
	Status    int
	Propstats []Propstat
}

// Propstat groups properties sharing one status.
type Propstat struct {
	Status     int
	Properties []Property
}

// Property is a single property value. Value is the trimmed character
// data; InnerXML keeps nested elements such as <d:collection/>.
type Property struct {
	Name     xml.Name
	Value    string
	InnerXML string
}

type xmlMultistatus struct {
	XMLName   xml.Name      `xml:"DAV: multistatus"`
	Responses []xmlResponse `xml:"DAV: response"`
}

type xmlResponse struct {
	Href      string        `xml:"DAV: href"`
	Status    string        `xml:"DAV: status"`
	Propstats []xmlPropstat `xml:"DAV: propstat"`
}

type xmlPropstat struct {
	Status string  `xml:"DAV: status"`
	Prop   xmlProp `xml:"DAV: prop"`
}

type xmlProp struct {
	Any []xmlAny `xml:",any"`
}

type xmlAny struct {
	XMLName  xml.Name
	CharData string `xml:",chardata"`
	InnerXML string `xml:",innerxml"`
}

// ParseMultistatus decodes a multistatus body.
func ParseMultistatus(body []byte) (*Multistatus, error) {
	var raw xmlMultistatus
	if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("dav: decoding multistatus: %w", err)
	}

	ms := &Multistatus{Responses: make([]PropResponse, 0, len(raw.Responses))}

	for _, r := range raw.Responses {
		pr := PropResponse{
			Href:      r.Href,
			Status:    statusCode(r.Status),
			Propstats: make([]Propstat, 0, len(r.Propstats)),
		}

		for _, ps := range r.Propstats {
			stat := Propstat{Status: statusCode(ps.Status)}
			for _, a := range ps.Prop.Any {
				stat.Properties = append(stat.Properties, Property{
					Name:     a.XMLName,
					Value:    strings.TrimSpace(a.CharData),
					InnerXML: a.InnerXML,
				})
			}

			pr.Propstats = append(pr.Propstats, stat)
		}

		ms.Responses = append(ms.Responses, pr)
	}

	return ms, nil
}

// Property returns the named property from a 2xx propstat.
func (r *PropResponse) Property(name xml.Name) (Property, bool) {
	for _, ps := range r.Propstats {
		if ps.Status < 200 || ps.Status >= 300 {
			continue
		}

		for _, p := range ps.Properties {
			if p.Name == name {
				return p, true
			}
		}
	}

	return Property{}, false
}

// Value returns the character data of a 2xx property, or "".
func (r *PropResponse) Value(name xml.Name) string {
	p, _ := r.Property(name)
	return p.Value
}

// IsCollection reports whether resourcetype contains <d:collection/>.
func (r *PropResponse) IsCollection() bool {
	p, ok := r.Property(PropResourceType)
	return ok && strings.Contains(p.InnerXML, "collection")
}

// Path returns the unescaped href path.
func (r *PropResponse) Path() string {
	if u, err := url.Parse(r.Href); err == nil {
		return u.Path
	}

	return r.Href
}

// First returns the first response, which for depth 0 is the resource
// itself.
func (m *Multistatus) First() (*PropResponse, bool) {
	if len(m.Responses) == 0 {
		return nil, false
	}

	return &m.Responses[0], true
}

// FindByName returns the response whose last path segment equals name.
func (m *Multistatus) FindByName(name string) (*PropResponse, bool) {
	for i := range m.Responses {
		p := strings.TrimRight(m.Responses[i].Path(), "/")
		if p[strings.LastIndex(p, "/")+1:] == name {
			return &m.Responses[i], true
		}
	}

	return nil, false
}

// statusCode extracts the code from a status line like "HTTP/1.1 200 OK".
// Unparseable lines yield 0.
func statusCode(line string) int {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}

	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0
	}

	return code
}
