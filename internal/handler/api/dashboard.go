package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"CovDash/internal/domain/models"
	"CovDash/internal/service/ratelimit"
	"CovDash/internal/usecase"
	xhttp "CovDash/pkg/http"
	xlogger "CovDash/pkg/logger"

	"github.com/labstack/echo/v4"
)

// HeaderExportSkipped carries the number of industries left out of a batch export.
const HeaderExportSkipped = "X-Export-Skipped"

// Config holds the transport settings of DashboardHandler.
type Config struct {
	SessionCookie string
	SessionTTL    time.Duration
	AdminToken    string
	AllowOrigins  []string
}

// DashboardHandler serves the dashboard REST, download and websocket routes.
type DashboardHandler struct {
	logger  *xlogger.Logger
	d       *usecase.Dashboard
	limiter *ratelimit.Limiter
	cfg     Config
	stream  *heatmapStream
}

func NewDashboardHandler(logger *xlogger.Logger, d *usecase.Dashboard, limiter *ratelimit.Limiter, cfg Config) *DashboardHandler {
	if cfg.SessionCookie == "" {
		cfg.SessionCookie = "covdash_session"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	h := &DashboardHandler{logger: logger, d: d, limiter: limiter, cfg: cfg}
	h.stream = newHeatmapStream(h, cfg.AllowOrigins)
	return h
}

func (h *DashboardHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api", h.withSession)
	g.GET("/industries", h.Industries)
	g.GET("/industries/:industry/submatrix", h.Submatrix)
	g.GET("/range", h.Range)
	g.GET("/heatmaps", h.Heatmaps)
	g.GET("/heatmaps/:industry/png", h.HeatmapPNG)
	g.GET("/links", h.Links, h.rateLimited)
	if h.cfg.AdminToken != "" {
		g.POST("/admin/reload", h.Reload, h.adminOnly)
	}

	// Static segments win over :industry, so "archive" and "workbook" are
	// reserved download names.
	dl := e.Group("/download", h.withSession, h.rateLimited)
	dl.GET("/archive", h.Archive)
	dl.POST("/archive", h.Archive)
	dl.GET("/workbook", h.Workbook)
	dl.POST("/workbook", h.Workbook)
	dl.GET("/:industry", h.CSV)

	e.GET("/ws/heatmaps", h.stream.Serve, h.withSession)
}

type healthResponse struct {
	Status   string    `json:"status"`
	Version  uint64    `json:"snapshot_version,omitempty"`
	Source   string    `json:"source,omitempty"`
	LoadedAt time.Time `json:"loaded_at,omitempty"`
}

func (h *DashboardHandler) Health(c echo.Context) error {
	snap, err := h.d.Snapshot()
	if err != nil {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, healthResponse{Status: "loading"})
	}
	return xhttp.SuccessResponse(c, healthResponse{
		Status:   "ok",
		Version:  snap.Version,
		Source:   snap.Source,
		LoadedAt: snap.LoadedAt,
	})
}

func (h *DashboardHandler) Industries(c echo.Context) error {
	opts, err := h.d.Industries()
	if err != nil {
		return h.fail(c, "industries", err)
	}
	return xhttp.SuccessResponse(c, opts)
}

func (h *DashboardHandler) Range(c echo.Context) error {
	rng, err := h.d.Range()
	if err != nil {
		return h.fail(c, "range", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, rng)
}

func (h *DashboardHandler) Submatrix(c echo.Context) error {
	sub, err := h.d.Submatrix(industryParam(c.Param("industry")))
	if err != nil {
		return h.fail(c, "submatrix", err)
	}
	return xhttp.SuccessResponse(c, sub)
}

func (h *DashboardHandler) Heatmaps(c echo.Context) error {
	req := &models.HeatmapRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	page, err := h.d.Heatmaps(c.Request().Context(), sessionID(c), models.HeatmapQuery{
		Industries: req.Industries,
		ColorScale: req.ColorScale,
		ShowValues: req.ShowValues,
	})
	if err != nil {
		return h.fail(c, "heatmaps", err)
	}
	return xhttp.SuccessResponse(c, page)
}

func (h *DashboardHandler) HeatmapPNG(c echo.Context) error {
	req := &models.HeatmapImageRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	b, err := h.d.HeatmapPNG(c.Request().Context(), sessionID(c), industryParam(req.Industry), req.ColorScale, req.Cell)
	if err != nil {
		return h.fail(c, "heatmap png", err)
	}
	return c.Blob(http.StatusOK, "image/png", b)
}

func (h *DashboardHandler) CSV(c echo.Context) error {
	art, err := h.d.CSV(c.Request().Context(), sessionID(c), industryParam(c.Param("industry")))
	if err != nil {
		return h.fail(c, "csv export", err)
	}
	return xhttp.AttachmentResponse(c, art.Filename, art.ContentType, art.Data)
}

func (h *DashboardHandler) Archive(c echo.Context) error {
	req := &models.ExportRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	art, err := h.d.Archive(c.Request().Context(), sessionID(c), req.Industries)
	if err != nil {
		return h.fail(c, "archive export", err)
	}
	c.Response().Header().Set(HeaderExportSkipped, strconv.Itoa(len(art.Skipped)))
	return xhttp.AttachmentResponse(c, art.Filename, art.ContentType, art.Data)
}

func (h *DashboardHandler) Workbook(c echo.Context) error {
	req := &models.ExportRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	art, err := h.d.Workbook(c.Request().Context(), sessionID(c), req.Industries)
	if err != nil {
		return h.fail(c, "workbook export", err)
	}
	c.Response().Header().Set(HeaderExportSkipped, strconv.Itoa(len(art.Skipped)))
	return xhttp.AttachmentResponse(c, art.Filename, art.ContentType, art.Data)
}

func (h *DashboardHandler) Links(c echo.Context) error {
	req := &models.LinksRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	links, err := h.d.Links(c.Request().Context(), sessionID(c), req.Industries)
	if err != nil {
		return h.fail(c, "links", err)
	}
	return xhttp.SuccessResponse(c, links)
}

type reloadResponse struct {
	Version    uint64            `json:"snapshot_version"`
	Source     string            `json:"source"`
	Tickers    int               `json:"tickers"`
	Industries int               `json:"industries"`
	Range      models.ColorRange `json:"range"`
	LoadedAt   time.Time         `json:"loaded_at"`
}

func (h *DashboardHandler) Reload(c echo.Context) error {
	snap, err := h.d.Reload(c.Request().Context())
	if err != nil {
		return h.fail(c, "reload", err)
	}
	h.logger.Info("snapshot reloaded via admin api", xlogger.Uint64("version", snap.Version))
	return xhttp.SuccessResponse(c, reloadResponse{
		Version:    snap.Version,
		Source:     snap.Source,
		Tickers:    snap.Matrix.Len(),
		Industries: len(snap.Industries),
		Range:      snap.Range,
		LoadedAt:   snap.LoadedAt,
	})
}

// industryParam undoes the escaping Echo leaves on path parameters when the
// request path carried an encoded slash.
func industryParam(raw string) string {
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
