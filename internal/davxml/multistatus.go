// Package davxml implements a permissive WebDAV/CalDAV multistatus parser
// and the matching request-body builder. The parser is regex-based by
// design: real-world CalDAV servers disagree wildly on namespace prefixes
// ("D:", "d:", "C:", no prefix at all), and a strict streaming XML decoder
// that insists on namespace-correct documents rejects perfectly usable
// responses. The tradeoff is documented in DESIGN.md.
package davxml

import (
	"regexp"
	"strconv"
	"strings"
)

// ParseError is returned only for catastrophic, unrecoverable input: a body
// containing no XML markup ('<') at all. UTF-8 validity is not checked.
// Anything else produces a possibly-empty result instead of an error.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "davxml: parse error: " + e.Reason }

// Response is a single per-resource result from a 207 Multi-Status body.
type Response struct {
	Href         string
	Status       int
	ETag         string
	CalendarData string
	// Properties holds the raw text of known leaf properties and the raw
	// inner XML of structural properties (resourcetype,
	// supported-calendar-component-set), keyed by lowercased local name.
	// Entities are not decoded here; only the lifted current-user-principal/
	// calendar-home-set hrefs are (CalendarData is decoded separately).
	Properties map[string]string
}

// MultiStatus is the parsed result of a single 207 response body.
type MultiStatus struct {
	Responses []Response
	SyncToken string
}

var (
	responseRe = regexp.MustCompile(`(?is)<(?:[a-zA-Z0-9]+:)?response\b[^>]*>(.*?)</(?:[a-zA-Z0-9]+:)?response\s*>`)
	hrefRe     = regexp.MustCompile(`(?is)<(?:[a-zA-Z0-9]+:)?href\b[^>]*>(.*?)</(?:[a-zA-Z0-9]+:)?href\s*>`)
	statusRe   = regexp.MustCompile(`(?is)<(?:[a-zA-Z0-9]+:)?status\b[^>]*>(.*?)</(?:[a-zA-Z0-9]+:)?status\s*>`)
	statusCode = regexp.MustCompile(`(?i)HTTP/\d(?:\.\d)?\s+(\d{3})`)
	propstatRe = regexp.MustCompile(`(?is)<(?:[a-zA-Z0-9]+:)?propstat\b[^>]*>(.*?)</(?:[a-zA-Z0-9]+:)?propstat\s*>`)
	propRe     = regexp.MustCompile(`(?is)<(?:[a-zA-Z0-9]+:)?prop\b[^>]*>(.*?)</(?:[a-zA-Z0-9]+:)?prop\s*>`)
	topSyncTok = regexp.MustCompile(`(?is)<(?:[a-zA-Z0-9]+:)?sync-token\b[^>]*>(.*?)</(?:[a-zA-Z0-9]+:)?sync-token\s*>`)
	cdataRe    = regexp.MustCompile(`(?is)<!\[CDATA\[(.*?)\]\]>`)

	// leafProp matches "<prefix:localname attrs>content</prefix:localname>"
	// or its self-closing form, for a single named child of <prop>.
	leafPropFmt = `(?is)<(?:[a-zA-Z0-9]+:)?%s\b([^>]*?)(?:/>|>(.*?)</(?:[a-zA-Z0-9]+:)?%s\s*>)`

	compNameRe = regexp.MustCompile(`(?is)<(?:[a-zA-Z0-9]+:)?comp\b[^>]*\bname\s*=\s*"([^"]*)"`)

	leafProps = []string{
		"getetag", "getctag", "displayname", "calendar-description",
		"calendar-color", "calendar-data", "current-user-principal",
		"calendar-home-set", "resourcetype", "supported-calendar-component-set",
	}
)

// ParseMultiStatus parses a 207 Multi-Status (or similar) response body.
// It never performs network I/O and never resolves external entities, DTDs,
// or parameter entities: inline DTDs/processing instructions are stripped
// before any tag matching happens, so they cannot trigger expansion.
func ParseMultiStatus(body []byte) (*MultiStatus, error) {
	if !strings.Contains(string(body), "<") {
		return nil, &ParseError{Reason: "no XML markup found"}
	}

	text := stripDTDAndPIs(string(body))

	ms := &MultiStatus{Responses: make([]Response, 0, 8)}
	if m := topSyncTok.FindStringSubmatch(text); m != nil {
		ms.SyncToken = decodeEntities(strings.TrimSpace(m[1]))
	}

	for _, block := range responseRe.FindAllStringSubmatch(text, -1) {
		resp, ok := parseResponse(block[1])
		if !ok {
			continue // no recoverable href: dropped silently
		}
		ms.Responses = append(ms.Responses, resp)
	}

	return ms, nil
}

func parseResponse(block string) (Response, bool) {
	hrefM := hrefRe.FindStringSubmatch(block)
	if hrefM == nil {
		return Response{}, false
	}
	resp := Response{
		Href:       decodeEntities(strings.TrimSpace(hrefM[1])),
		Status:     200,
		Properties: map[string]string{},
	}

	if sm := statusRe.FindStringSubmatch(block); sm != nil {
		if cm := statusCode.FindStringSubmatch(sm[1]); cm != nil {
			if code, err := strconv.Atoi(cm[1]); err == nil {
				resp.Status = code
			}
		}
	}

	propBlocks := propstatRe.FindAllStringSubmatch(block, -1)
	if len(propBlocks) == 0 {
		// Some servers (and sync-collection deletions) omit propstat
		// entirely and put <prop> directly under <response>.
		propBlocks = [][]string{{block, block}}
	}
	for _, pb := range propBlocks {
		propM := propRe.FindStringSubmatch(pb[1])
		if propM == nil {
			continue
		}
		extractLeafProps(propM[1], resp.Properties)
	}

	if v, ok := resp.Properties["getetag"]; ok {
		resp.ETag = strings.Trim(strings.TrimSpace(v), `"`)
	}
	if v, ok := resp.Properties["calendar-data"]; ok {
		resp.CalendarData = unwrapCalendarData(v)
	}
	// current-user-principal / calendar-home-set: lift the inner <href>.
	for _, wrapped := range []string{"current-user-principal", "calendar-home-set"} {
		if v, ok := resp.Properties[wrapped]; ok {
			if m := hrefRe.FindStringSubmatch(v); m != nil {
				resp.Properties[wrapped] = decodeEntities(strings.TrimSpace(m[1]))
			}
		}
	}

	return resp, true
}

func extractLeafProps(propContent string, out map[string]string) {
	for _, name := range leafProps {
		re := regexp.MustCompile(strings.ReplaceAll(leafPropFmt, "%s", regexp.QuoteMeta(name)))
		if m := re.FindStringSubmatch(propContent); m != nil {
			out[name] = m[2]
		}
	}
}

func unwrapCalendarData(raw string) string {
	if m := cdataRe.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return decodeEntities(raw)
}

func decodeEntities(s string) string {
	r := strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&", "&quot;", `"`, "&apos;", "'")
	return r.Replace(s)
}

// stripDTDAndPIs removes <!DOCTYPE ...> declarations and <? ... ?>
// processing instructions so they are treated as absent rather than
// interpreted, guaranteeing no entity/parameter-entity expansion occurs.
func stripDTDAndPIs(s string) string {
	s = regexp.MustCompile(`(?is)<!DOCTYPE.*?>`).ReplaceAllString(s, "")
	s = regexp.MustCompile(`(?is)<\?.*?\?>`).ReplaceAllString(s, "")
	s = regexp.MustCompile(`(?is)<!ENTITY.*?>`).ReplaceAllString(s, "")
	return s
}

// SupportedComponents extracts the VEVENT/VTODO/VJOURNAL component names
// from a raw supported-calendar-component-set property value.
func (r Response) SupportedComponents() []string {
	raw, ok := r.Properties["supported-calendar-component-set"]
	if !ok {
		return nil
	}
	var out []string
	for _, m := range compNameRe.FindAllStringSubmatch(raw, -1) {
		out = append(out, m[1])
	}
	return out
}

// IsCalendarCollection reports whether this response's resourcetype
// property contains a calendar marker (an empty "calendar" element under
// any namespace prefix, or none, per RFC 4791 section 4.2).
func (r Response) IsCalendarCollection() bool {
	raw, ok := r.Properties["resourcetype"]
	if !ok {
		return false
	}
	return regexp.MustCompile(`(?is)<(?:[a-zA-Z0-9]+:)?calendar\s*/?>`).MatchString(raw)
}
