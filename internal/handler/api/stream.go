package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"CovDash/internal/domain/models"
	xhttp "CovDash/pkg/http"
	xlogger "CovDash/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	wsReadTimeout  = 90 * time.Second
	wsPingEvery    = 45 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsMaxMessage   = 64 << 10
)

// streamMessage is one server → client frame.
type streamMessage struct {
	Type   string              `json:"type"` // heatmaps | error
	Page   *models.HeatmapPage `json:"page,omitempty"`
	Errors interface{}         `json:"errors,omitempty"`
}

// heatmapStream answers every selection message on a websocket with a
// freshly built heatmap page, the push counterpart of GET /api/heatmaps.
type heatmapStream struct {
	h        *DashboardHandler
	upgrader websocket.Upgrader
}

func newHeatmapStream(h *DashboardHandler, origins []string) *heatmapStream {
	return &heatmapStream{
		h: h,
		upgrader: websocket.Upgrader{
			CheckOrigin:       originChecker(origins),
			EnableCompression: true,
		},
	}
}

func originChecker(origins []string) func(*http.Request) bool {
	allowAll := len(origins) == 0 || slices.Contains(origins, "*")
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		o := r.Header.Get("Origin")
		return o == "" || slices.Contains(origins, o)
	}
}

func (s *heatmapStream) Serve(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		s.h.logger.Debug("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	session := sessionID(c)

	out := make(chan streamMessage, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.write(conn, out)
	}()

	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.h.logger.Debug("websocket closed", xlogger.Error(err))
			}
			break
		}
		if mt != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		select {
		case out <- s.handle(ctx, session, data):
		case <-done:
			return nil
		}
	}
	close(out)
	<-done
	return nil
}

func (s *heatmapStream) handle(ctx context.Context, session string, data []byte) streamMessage {
	req := &models.HeatmapRequest{}
	if err := json.Unmarshal(data, req); err != nil {
		return streamMessage{Type: "error", Errors: []*xhttp.AppError{xhttp.BadRequestErrorf("invalid message: %v", err)}}
	}
	if verr := xhttp.ValidateStruct(ctx, req); verr != nil {
		return streamMessage{Type: "error", Errors: verr}
	}

	page, err := s.h.d.Heatmaps(ctx, session, models.HeatmapQuery{
		Industries: req.Industries,
		ColorScale: req.ColorScale,
		ShowValues: req.ShowValues,
	})
	if err != nil {
		if appErr, ok := toAppError(err); ok {
			return streamMessage{Type: "error", Errors: []*xhttp.AppError{appErr}}
		}
		s.h.logger.Error("heatmap stream usecase error", xlogger.Error(err))
		return streamMessage{Type: "error", Errors: []*xhttp.AppError{xhttp.InternalError("Something went wrong")}}
	}
	return streamMessage{Type: "heatmaps", Page: page}
}

// write owns every write on conn. It returns when out is closed or a write
// fails; a failed write closes conn so the reader unblocks too.
func (s *heatmapStream) write(conn *websocket.Conn, out <-chan streamMessage) {
	ping := time.NewTicker(wsPingEvery)
	defer ping.Stop()

	for {
		select {
		case m, ok := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(m); err != nil {
				_ = conn.Close()
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
