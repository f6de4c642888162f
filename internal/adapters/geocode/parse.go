package geocode

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/samirrijal/trackzone/internal/core/domain"
)

// node is a parsed XML element. Only element names and character data are
// kept; attributes never carry coordinates in either response format.
type node struct {
	name     string
	text     strings.Builder
	children []*node
}

// find returns the first element named name in document order, including n.
func (n *node) find(name string) *node {
	if n.name == name {
		return n
	}
	for _, c := range n.children {
		if f := c.find(name); f != nil {
			return f
		}
	}
	return nil
}

// findAll returns every descendant named name in document order.
func (n *node) findAll(name string) []*node {
	var out []*node
	for _, c := range n.children {
		if c.name == name {
			out = append(out, c)
		}
		out = append(out, c.findAll(name)...)
	}
	return out
}

// first returns the first descendant of n named name.
func (n *node) first(name string) *node {
	for _, c := range n.children {
		if f := c.find(name); f != nil {
			return f
		}
	}
	return nil
}

// value parses the element text as a finite number.
func (n *node) value() (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(n.text.String()), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// point reads a coordinate pair; both elements must hold a number.
func point(lat, lng *node) (domain.GeoPoint, bool) {
	if lat == nil || lng == nil {
		return domain.GeoPoint{}, false
	}
	la, ok := lat.value()
	if !ok {
		return domain.GeoPoint{}, false
	}
	lo, ok := lng.value()
	if !ok {
		return domain.GeoPoint{}, false
	}
	return domain.GeoPoint{Lat: la, Lon: lo}, true
}

// Parse extracts a coordinate from a geocode response body. Two shapes are
// understood: a <geocode> element holding <lat> and <lng> (or <lon>), and a
// GeoNames <geonames> document whose <code> or <geoname> children carry
// <lat>/<lng>. ok is false for empty or malformed bodies, for coordinates
// that are not numbers and for (0,0). A <code> or <geoname> entry whose
// numbers do not parse is skipped.
func Parse(body []byte) (domain.GeoPoint, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return domain.GeoPoint{}, false
	}
	root, err := parseTree(body)
	if err != nil {
		return domain.GeoPoint{}, false
	}

	var p domain.GeoPoint
	if gc := root.find("geocode"); gc != nil {
		lat := gc.first("lat")
		lng := gc.first("lng")
		if lng == nil {
			lng = gc.first("lon")
		}
		p, _ = point(lat, lng)
	} else if gn := root.find("geonames"); gn != nil {
		entries := gn.findAll("code")
		if len(entries) == 0 {
			entries = gn.findAll("geoname")
		}
		for _, e := range entries {
			if q, ok := point(e.first("lat"), e.first("lng")); ok {
				p = q
				break
			}
		}
	}

	if p.IsUnset() {
		return domain.GeoPoint{}, false
	}
	return p, true
}

func parseTree(body []byte) (*node, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }

	root := &node{}
	stack := []*node{root}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		top := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name.Local}
			top.children = append(top.children, n)
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			top.text.Write(t)
		}
	}
	if len(root.children) == 0 {
		return nil, errors.New("no elements")
	}
	return root, nil
}
