package dav

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// XML namespaces used on the wire.
const (
	nsDAV    = "DAV:"
	nsOC     = "http://owncloud.org/ns"
	nsServer = "http://sabredav.org/ns"
)

var prefixes = map[string]string{
	nsDAV: "d",
	nsOC:  "oc",
}

// clark returns a property name in {namespace}local notation.
func clark(ns, local string) string {
	return "{" + ns + "}" + local
}

func splitClark(name string) (ns, local string) {
	if strings.HasPrefix(name, "{") {
		if i := strings.Index(name, "}"); i > 0 {
			return name[1:i], name[i+1:]
		}
	}
	return "", name
}

// Property names.
var (
	propResourceType = clark(nsDAV, "resourcetype")
	propDisplayName  = clark(nsDAV, "displayname")

	propReadMarker     = clark(nsOC, "readMarker")
	propCommentsUnread = clark(nsOC, "comments-unread")

	propID                  = clark(nsOC, "id")
	propParentID            = clark(nsOC, "parentId")
	propTopmostParentID     = clark(nsOC, "topmostParentId")
	propChildrenCount       = clark(nsOC, "childrenCount")
	propVerb                = clark(nsOC, "verb")
	propMessage             = clark(nsOC, "message")
	propActorType           = clark(nsOC, "actorType")
	propActorID             = clark(nsOC, "actorId")
	propActorDisplayName    = clark(nsOC, "actorDisplayName")
	propCreationDateTime    = clark(nsOC, "creationDateTime")
	propLatestChildDateTime = clark(nsOC, "latestChildDateTime")
	propObjectType          = clark(nsOC, "objectType")
	propObjectID            = clark(nsOC, "objectId")
	propMentions            = clark(nsOC, "mentions")
	propIsUnread            = clark(nsOC, "isUnread")
)

var filterCommentsReport = xml.Name{Space: nsOC, Local: "filter-comments"}

// prop is one property value of a resource. Inner holds pre-encoded child
// elements and takes precedence over Value.
type prop struct {
	Name  string
	Value string
	Inner []byte
}

func textProp(name, value string) prop {
	return prop{Name: name, Value: value}
}

func collectionType() prop {
	return prop{Name: propResourceType, Inner: []byte("<d:collection/>")}
}

// Outgoing documents use literal prefixes with the namespaces declared on
// the root element.
type multistatus struct {
	XMLName   xml.Name   `xml:"d:multistatus"`
	XmlnsD    string     `xml:"xmlns:d,attr"`
	XmlnsOC   string     `xml:"xmlns:oc,attr"`
	Responses []response `xml:"d:response"`
}

type response struct {
	Href     string     `xml:"d:href"`
	Propstat []propstat `xml:"d:propstat"`
}

type propstat struct {
	Prop   propList `xml:"d:prop"`
	Status string   `xml:"d:status"`
}

type propList struct {
	Props []propElement
}

type propElement struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
	Inner   []byte `xml:",innerxml"`
}

func (p prop) element() propElement {
	ns, local := splitClark(p.Name)
	name := local
	if prefix, ok := prefixes[ns]; ok {
		name = prefix + ":" + local
	}
	if len(p.Inner) > 0 {
		return propElement{XMLName: xml.Name{Local: name}, Inner: p.Inner}
	}
	return propElement{XMLName: xml.Name{Local: name}, Value: p.Value}
}

func statusLine(code int) string {
	return fmt.Sprintf("HTTP/1.1 %d %s", code, http.StatusText(code))
}

// propResponse builds a response for href. With requested nil every
// property is returned; otherwise missing ones are reported as 404.
func propResponse(href string, props []prop, requested []string) response {
	var found []propElement
	var missing []propElement

	if requested == nil {
		for _, p := range props {
			found = append(found, p.element())
		}
	} else {
		byName := make(map[string]prop, len(props))
		for _, p := range props {
			byName[p.Name] = p
		}
		for _, name := range requested {
			if p, ok := byName[name]; ok {
				found = append(found, p.element())
				continue
			}
			missing = append(missing, prop{Name: name}.element())
		}
	}

	resp := response{Href: href}
	if len(found) > 0 {
		resp.Propstat = append(resp.Propstat, propstat{Prop: propList{found}, Status: statusLine(http.StatusOK)})
	}
	if len(missing) > 0 {
		resp.Propstat = append(resp.Propstat, propstat{Prop: propList{missing}, Status: statusLine(http.StatusNotFound)})
	}
	return resp
}

func writeMultistatus(w http.ResponseWriter, responses []response) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)

	ms := multistatus{XmlnsD: nsDAV, XmlnsOC: nsOC, Responses: responses}
	_, _ = w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(ms); err != nil {
		slog.Warn("writing multistatus", "error", err)
	}
}

// Incoming documents are matched on real namespaces.
type anyElement struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

func (e anyElement) clark() string {
	return clark(e.XMLName.Space, e.XMLName.Local)
}

type propfindRequest struct {
	XMLName xml.Name  `xml:"DAV: propfind"`
	AllProp *struct{} `xml:"DAV: allprop"`
	Prop    *struct {
		Names []anyElement `xml:",any"`
	} `xml:"DAV: prop"`
}

// parsePropfind returns the requested property names, or nil for allprop
// and empty bodies.
func parsePropfind(body io.Reader) ([]string, error) {
	var req propfindRequest
	if err := xml.NewDecoder(body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, BadRequest("Invalid propfind body")
	}
	if req.AllProp != nil || req.Prop == nil {
		return nil, nil
	}
	names := make([]string, 0, len(req.Prop.Names))
	for _, n := range req.Prop.Names {
		names = append(names, n.clark())
	}
	return names, nil
}

type propBlock struct {
	Prop struct {
		Props []anyElement `xml:",any"`
	} `xml:"DAV: prop"`
}

type propertyUpdate struct {
	XMLName xml.Name    `xml:"DAV: propertyupdate"`
	Set     []propBlock `xml:"DAV: set"`
	Remove  []propBlock `xml:"DAV: remove"`
}

// propChange is a single PROPPATCH operation; Remove marks a <d:remove>.
type propChange struct {
	Name   string
	Value  string
	Remove bool
}

func parseProppatch(body io.Reader) ([]propChange, error) {
	var req propertyUpdate
	if err := xml.NewDecoder(body).Decode(&req); err != nil {
		return nil, BadRequest("Invalid proppatch body")
	}

	var changes []propChange
	for _, block := range req.Set {
		for _, p := range block.Prop.Props {
			changes = append(changes, propChange{Name: p.clark(), Value: p.Value})
		}
	}
	for _, block := range req.Remove {
		for _, p := range block.Prop.Props {
			changes = append(changes, propChange{Name: p.clark(), Remove: true})
		}
	}
	return changes, nil
}

type filterComments struct {
	Limit    string `xml:"http://owncloud.org/ns limit"`
	Offset   string `xml:"http://owncloud.org/ns offset"`
	Datetime string `xml:"http://owncloud.org/ns datetime"`
}

// parseReport decodes the report root element. Reports other than
// filter-comments fail with ReportNotSupported.
func parseReport(body io.Reader) (*filterComments, error) {
	dec := xml.NewDecoder(body)
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, BadRequest("Invalid report body")
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name != filterCommentsReport {
			return nil, ReportNotSupported()
		}
		var fc filterComments
		if err := dec.DecodeElement(&fc, &start); err != nil {
			return nil, BadRequest("Invalid report body")
		}
		return &fc, nil
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC1123Z,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTime accepts HTTP dates, RFC 3339 and plain SQL style timestamps.
// Values without a zone are read as UTC.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := http.ParseTime(s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}
