package annotate

import (
	"bytes"
	"html/template"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mapmind/internal/aqi"
	"github.com/sells-group/mapmind/internal/model"
)

const pointPopupHTML = `<div class="popup-content">
<h3>{{.Title}}</h3>
{{- if .Badge}}
<div class="category-label" style="background-color: {{.Color}}; color: white; padding: 4px 8px; border-radius: 4px; display: inline-block; margin-bottom: 8px;">{{.Badge}}</div>
{{- end}}
{{- if .CategoryLabel}}
<p class="category-name">{{.CategoryLabel}}</p>
{{- end}}
{{- with .Address}}
<p class="address"><strong>Address:</strong> {{.}}</p>
{{- end}}
{{- with .Pollutants}}
<div class="emissions-section">
<h4>Potential Pollutants:</h4>
<div class="pollutants-list">{{range .}}<span class="pollutant-item">{{.}}</span>{{end}}</div>
</div>
{{- end}}
{{- with .AirQuality}}
<div class="air-quality-section">
<h4>Current Air Quality:</h4>
<div class="aqi-indicator" style="background-color: {{.Color}}; color: white; padding: 8px; border-radius: 4px; margin-bottom: 10px;"><strong>AQI: {{.Index}}</strong>{{with .Level}} - {{.}}{{end}}</div>
{{- with .Description}}
<p class="aqi-description">{{.}}</p>
{{- end}}
{{- with .Rows}}
<div class="pollutant-measurements">
<h5>Pollutant Measurements:</h5>
<table class="measurements-table">
<tr><th>Pollutant</th><th>Value</th></tr>
{{- range .}}
<tr><td>{{.Name}}</td><td style="color: {{.Color}};"><strong>{{.Value}}</strong>{{with .Unit}} {{.}}{{end}}</td></tr>
{{- end}}
</table>
</div>
{{- end}}
</div>
{{- end}}
{{- with .Concerns}}
<div class="concerns-section">
<h4>Primary Concerns:</h4>
<ul>{{range .}}<li>{{.}}</li>{{end}}</ul>
</div>
{{- end}}
{{- with .Description}}
<p><strong>Description:</strong> {{.}}</p>
{{- end}}
{{- with .Operator}}
<p><strong>Operator:</strong> {{.}}</p>
{{- end}}
{{- with .OpeningHours}}
<p><strong>Hours:</strong> {{.}}</p>
{{- end}}
{{- with .Capacity}}
<p><strong>Capacity:</strong> {{.}}</p>
{{- end}}
{{- with .StartDate}}
<p><strong>Established:</strong> {{.}}</p>
{{- end}}
{{- if or .Phone .Website}}
<div class="popup-contact">
{{- with .Phone}}
<p><strong>Phone:</strong> {{.}}</p>
{{- end}}
{{- with .Website}}
<p><strong>Website:</strong> <a href="{{.}}" target="_blank">{{.}}</a></p>
{{- end}}
</div>
{{- end}}
</div>`

const markerPopupHTML = `<div class="popup-content">
<h4>{{.Label}}</h4>
<p>Category: {{.Category}}</p>
</div>`

var (
	pointPopupTmpl  = template.Must(template.New("point").Parse(pointPopupHTML))
	markerPopupTmpl = template.Must(template.New("marker").Parse(markerPopupHTML))
)

type popupView struct {
	Title         string
	Badge         string
	Color         string
	CategoryLabel string
	Address       string
	Pollutants    []string
	AirQuality    *airQualityView
	Concerns      []string
	Description   string
	Operator      string
	OpeningHours  string
	Capacity      string
	StartDate     string
	Phone         string
	Website       string
}

type airQualityView struct {
	Index       int
	Level       string
	Description string
	Color       string
	Rows        []measurementRow
}

type measurementRow struct {
	Name  string
	Value string
	Unit  string
	Color string
}

// ComposePopup renders the popup for a point feature. Sections appear in a
// fixed order and absent fields are left out.
func ComposePopup(p model.PointProperties) (string, error) {
	v := popupView{
		Title:         p.Name,
		Color:         p.Color,
		CategoryLabel: CategoryLabel(p.Category),
		Address:       p.Address.Line(),
		Pollutants:    p.Pollutants,
		AirQuality:    airQuality(p.AirQuality),
		Concerns:      p.Concerns,
		Description:   p.Description,
		Operator:      p.Operator,
		OpeningHours:  p.OpeningHours,
		Capacity:      p.Capacity,
		StartDate:     p.StartDate,
		Phone:         p.Phone,
		Website:       p.Website,
	}
	if v.Title == "" {
		v.Title = p.DisplayName
	}
	if v.Title == "" {
		v.Title = "Unnamed Location"
	}
	v.Badge = p.DisplayName
	if v.Badge == "" {
		v.Badge = v.CategoryLabel
	}
	if v.Color == "" {
		v.Color = aqi.UnknownColor
	}

	var buf bytes.Buffer
	if err := pointPopupTmpl.Execute(&buf, v); err != nil {
		return "", eris.Wrap(err, "annotate: compose popup")
	}
	return buf.String(), nil
}

func airQuality(aq *model.AirQuality) *airQualityView {
	if aq == nil {
		return nil
	}
	v := &airQualityView{Index: aq.AQI, Color: aqi.UnknownColor}
	if cat, ok := aqi.Lookup(aq.AQI); ok {
		v.Level = cat.Label
		v.Description = cat.Description
		v.Color = cat.Color
	}
	if info := aq.Info; info != nil {
		if info.Level != "" {
			v.Level = info.Level
		}
		if info.Description != "" {
			v.Description = info.Description
		}
		if info.Color != "" {
			v.Color = info.Color
		}
	}
	for _, m := range aq.Measurements {
		v.Rows = append(v.Rows, measurementRow{
			Name:  m.Name,
			Value: strconv.FormatFloat(m.Value, 'f', -1, 64),
			Unit:  m.Unit,
			Color: aqi.LevelColor(m.Level),
		})
	}
	return v
}

// markerPopup renders the short popup bound to a raw point marker.
func markerPopup(label, category string) (string, error) {
	var buf bytes.Buffer
	err := markerPopupTmpl.Execute(&buf, struct{ Label, Category string }{label, category})
	if err != nil {
		return "", eris.Wrap(err, "annotate: compose marker popup")
	}
	return buf.String(), nil
}
