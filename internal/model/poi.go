package model

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mapmind/internal/geospatial"
)

// POI is one raw point of interest as returned in the analysis "pois"
// mapping. Lat and Lon are pointers so a missing coordinate can be told
// apart from zero.
type POI struct {
	Lat         *float64       `json:"lat,omitempty"`
	Lon         *float64       `json:"lon,omitempty"`
	Type        string         `json:"type,omitempty"`
	ID          any            `json:"id,omitempty"`
	Name        string         `json:"name,omitempty"`
	DisplayName string         `json:"display_name,omitempty"`
	Color       string         `json:"color,omitempty"`
	Address     map[string]any `json:"address,omitempty"`
	Operator    string         `json:"operator,omitempty"`
	Description string         `json:"description,omitempty"`
	Tags        map[string]any `json:"tags,omitempty"`
}

// Coordinate returns the point location. ok is false when either component
// is missing or out of range.
func (p POI) Coordinate() (c geospatial.Coordinate, ok bool) {
	if p.Lat == nil || p.Lon == nil {
		return geospatial.Coordinate{}, false
	}
	c = geospatial.Coordinate{Lng: *p.Lon, Lat: *p.Lat}
	if c.Validate() != nil {
		return geospatial.Coordinate{}, false
	}
	return c, true
}

// Label returns the name shown in marker popups, falling back to category.
func (p POI) Label(category string) string {
	if name, ok := p.Tags["name"].(string); ok && name != "" {
		return name
	}
	if p.Name != "" {
		return p.Name
	}
	return category
}

// POIGroup is one category with its ordered points.
type POIGroup struct {
	Category string
	Points   []POI
}

// POIGroups is the category → points mapping, kept in payload order so the
// category index used for palette cycling is stable.
type POIGroups []POIGroup

// Total counts points across all categories.
func (g POIGroups) Total() int {
	n := 0
	for _, group := range g {
		n += len(group.Points)
	}
	return n
}

// Categories returns category keys in order.
func (g POIGroups) Categories() []string {
	out := make([]string, 0, len(g))
	for _, group := range g {
		out = append(out, group.Category)
	}
	return out
}

// UnmarshalJSON decodes a JSON object preserving key order.
func (g *POIGroups) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*g = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return eris.Wrap(err, "model: read pois")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return eris.New("model: pois must be an object")
	}

	groups := POIGroups{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return eris.Wrap(err, "model: read pois category")
		}
		category, _ := keyTok.(string)

		var points []POI
		if err := dec.Decode(&points); err != nil {
			return eris.Wrapf(err, "model: decode pois for %q", category)
		}
		groups = append(groups, POIGroup{Category: category, Points: points})
	}
	if _, err := dec.Token(); err != nil {
		return eris.Wrap(err, "model: close pois")
	}

	*g = groups
	return nil
}

// MarshalJSON encodes the groups as an ordered JSON object.
func (g POIGroups) MarshalJSON() ([]byte, error) {
	if g == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, group := range g {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(group.Category)
		if err != nil {
			return nil, err
		}
		points := group.Points
		if points == nil {
			points = []POI{}
		}
		val, err := json.Marshal(points)
		if err != nil {
			return nil, eris.Wrapf(err, "model: encode pois for %q", group.Category)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
