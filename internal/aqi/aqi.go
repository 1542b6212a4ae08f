// Package aqi maps the provider-supplied 1–5 air quality index onto labels
// and display colors. The same five-step palette colors per-pollutant levels.
package aqi

// UnknownColor is used for indexes and levels outside 1–5.
const UnknownColor = "#808080"

// LevelColors is the fixed per-level palette, index 0 is level 1.
var LevelColors = [5]string{"#00E400", "#FFFF00", "#FF7E00", "#FF0000", "#99004C"}

// Category describes one step of the index.
type Category struct {
	Index       int    `json:"index"`
	Label       string `json:"label"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

var categories = [5]Category{
	{1, "Good", LevelColors[0], "Air quality is satisfactory and poses little or no risk."},
	{2, "Fair", LevelColors[1], "Air quality is acceptable; unusually sensitive people should limit prolonged exertion outdoors."},
	{3, "Moderate", LevelColors[2], "Sensitive groups may experience health effects."},
	{4, "Poor", LevelColors[3], "Everyone may begin to experience health effects."},
	{5, "Very Poor", LevelColors[4], "Health warnings of emergency conditions; everyone is likely to be affected."},
}

// Lookup returns the category for index. ok is false outside 1–5.
func Lookup(index int) (Category, bool) {
	if index < 1 || index > len(categories) {
		return Category{Index: index, Label: "Unknown", Color: UnknownColor}, false
	}
	return categories[index-1], true
}

// LevelColor returns the palette color for a pollutant level.
func LevelColor(level int) string {
	if level < 1 || level > len(LevelColors) {
		return UnknownColor
	}
	return LevelColors[level-1]
}
