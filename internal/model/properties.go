package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Feature kinds carried in the "type" property of boundary collections.
const (
	FeatureTypeBoundary = "boundary"
	FeatureTypePOI      = "poi"
)

// Address is the postal address attached to a point.
type Address struct {
	Street      string `json:"street,omitempty"`
	HouseNumber string `json:"housenumber,omitempty"`
	Postcode    string `json:"postcode,omitempty"`
	City        string `json:"city,omitempty"`
}

// Line joins the present parts in street, house number, postcode, city order.
func (a Address) Line() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Street, a.HouseNumber, a.Postcode, a.City} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// AQIInfo is the optional provider description of the index value.
type AQIInfo struct {
	Color       string `json:"color,omitempty"`
	Level       string `json:"level,omitempty"`
	Description string `json:"description,omitempty"`
}

// Measurement is one pollutant reading. Level is 1–5, 0 when unknown.
type Measurement struct {
	Key   string  `json:"key"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
	Level int     `json:"level,omitempty"`
}

// AirQuality is the air-quality snapshot embedded in a point.
type AirQuality struct {
	AQI          int           `json:"aqi"`
	Info         *AQIInfo      `json:"aqi_info,omitempty"`
	Measurements []Measurement `json:"components,omitempty"`
}

// PointProperties is the typed view of a point feature's property bag.
// Everything except Category and Color is display-only pass-through.
type PointProperties struct {
	Type         string
	Name         string
	DisplayName  string
	Category     string
	Color        string
	Address      Address
	Pollutants   []string
	AirQuality   *AirQuality
	Concerns     []string
	Description  string
	Operator     string
	OpeningHours string
	Capacity     string
	StartDate    string
	Phone        string
	Website      string
}

// PointPropertiesFrom reads a GeoJSON property bag. Nested objects may arrive
// JSON-encoded as strings (map engines flatten them in event payloads).
func PointPropertiesFrom(props map[string]any) PointProperties {
	tags := objectValue(props["tags"])
	addr := objectValue(props["address"])

	p := PointProperties{
		Type:        stringValue(props["type"]),
		Name:        stringValue(props["name"]),
		DisplayName: stringValue(props["display_name"]),
		Category:    stringValue(props["category"]),
		Color:       stringValue(props["color"]),
		Address: Address{
			Street:      stringValue(addr["street"]),
			HouseNumber: stringValue(addr["housenumber"]),
			Postcode:    stringValue(addr["postcode"]),
			City:        stringValue(addr["city"]),
		},
		Pollutants:   ParsePollutants(props["pollutants"]),
		AirQuality:   airQualityValue(props["air_quality"]),
		Concerns:     stringList(props["primary_concerns"]),
		Description:  stringValue(props["description"]),
		Operator:     firstNonEmpty(stringValue(props["operator"]), stringValue(tags["operator"])),
		OpeningHours: stringValue(tags["opening_hours"]),
		Capacity:     stringValue(tags["capacity"]),
		StartDate:    stringValue(tags["start_date"]),
		Phone:        stringValue(tags["phone"]),
		Website:      stringValue(tags["website"]),
	}
	return p
}

// ParsePollutants accepts a list or a JSON-encoded list. A string that does
// not parse as a list is returned as a single item.
func ParsePollutants(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		var list []any
		if err := json.Unmarshal([]byte(s), &list); err != nil {
			return []string{t}
		}
		return stringList(list)
	default:
		return stringList(v)
	}
}

func stringList(v any) []string {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case []string:
		return compact(t)
	case string:
		var decoded []any
		if json.Unmarshal([]byte(t), &decoded) != nil {
			return nil
		}
		items = decoded
	default:
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, stringValue(item))
	}
	return compact(out)
}

func compact(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func airQualityValue(v any) *AirQuality {
	obj := objectValue(v)
	if obj == nil {
		return nil
	}
	aq := &AirQuality{AQI: int(numberValue(obj["aqi"]))}

	if info := objectValue(obj["aqi_info"]); info != nil {
		aq.Info = &AQIInfo{
			Color:       stringValue(info["color"]),
			Level:       stringValue(info["level"]),
			Description: stringValue(info["description"]),
		}
	}

	components := objectValue(obj["components"])
	keys := make([]string, 0, len(components))
	for k := range components {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m := Measurement{Key: k, Name: k}
		switch c := components[k].(type) {
		case map[string]any:
			m.Name = firstNonEmpty(stringValue(c["name"]), k)
			m.Value = numberValue(c["value"])
			m.Unit = stringValue(c["unit"])
			m.Level = int(numberValue(c["level"]))
		default:
			// Raw provider readings are bare concentrations in μg/m³.
			m.Name = strings.ToUpper(strings.ReplaceAll(k, "_", "."))
			m.Value = numberValue(c)
			m.Unit = "μg/m³"
		}
		aq.Measurements = append(aq.Measurements, m)
	}
	return aq
}

func objectValue(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case string:
		var m map[string]any
		if json.Unmarshal([]byte(t), &m) == nil {
			return m
		}
	}
	return nil
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func numberValue(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	}
	return 0
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
