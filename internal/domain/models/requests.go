package models

// Requests for the dashboard HTTP endpoints. An empty ColorScale falls back
// to the scale stored in the caller's session.

// HeatmapRequest may select nothing; the page then carries a prompt message.
type HeatmapRequest struct {
	Industries []string `query:"industry" json:"industries" validate:"max=50,dive,required"`
	ColorScale string   `query:"color_scale" json:"color_scale" validate:"omitempty,oneof=Viridis Cividis Blues YlGnBu RdBu"`
	ShowValues bool     `query:"show_values" json:"show_values"`
}

type HeatmapImageRequest struct {
	Industry   string `param:"industry" validate:"required"`
	ColorScale string `query:"color_scale" validate:"omitempty,oneof=Viridis Cividis Blues YlGnBu RdBu"`
	Cell       int    `query:"cell" default:"24" validate:"gte=4,lte=64"`
}

type ExportRequest struct {
	Industries []string `query:"industry" json:"industries" validate:"required,min=1,max=200,dive,required"`
}

type LinksRequest struct {
	Industries []string `query:"industry" json:"industries" validate:"required,min=1,max=50,dive,required"`
}
