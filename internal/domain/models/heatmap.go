package models

// Annotation is the numeric overlay text for one heatmap cell.
type Annotation struct {
	X    string `json:"x"`
	Y    string `json:"y"`
	Text string `json:"text"`
}

// Summary holds descriptive statistics of a submatrix.
type Summary struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// HeatmapFigure is everything a client needs to draw one industry heatmap.
type HeatmapFigure struct {
	Industry    string       `json:"industry"`
	Title       string       `json:"title"`
	X           []string     `json:"x"`
	Y           []string     `json:"y"`
	Z           [][]float64  `json:"z"`
	ZMin        float64      `json:"zmin"`
	ZMax        float64      `json:"zmax"`
	ColorScale  string       `json:"colorscale"`
	Annotations []Annotation `json:"annotations,omitempty"`
	Summary     *Summary     `json:"summary,omitempty"`
	Row         int          `json:"row"`
	Col         int          `json:"col"`
	DownloadURL string       `json:"download_url"`
}

// Grid is the subplot layout of a heatmap page.
type Grid struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// HeatmapPage is the response to a selection change.
type HeatmapPage struct {
	Figures []HeatmapFigure   `json:"figures"`
	Grid    Grid              `json:"grid"`
	Range   ColorRange        `json:"range"`
	Skipped []SkippedIndustry `json:"skipped,omitempty"`
	Message string            `json:"message,omitempty"`
}

// HeatmapQuery is a selection of industries plus rendering options.
type HeatmapQuery struct {
	Industries []string
	ColorScale string
	ShowValues bool
}
