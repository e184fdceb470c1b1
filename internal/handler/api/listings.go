package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"CoinPull/internal/domain/models"
	"CoinPull/internal/repository"
	"CoinPull/internal/usecase"
	xhttp "CoinPull/pkg/http"
	xlogger "CoinPull/pkg/logger"
	"CoinPull/pkg/util"
)

// HealthChecker is a dependency reported by /healthz.
type HealthChecker interface {
	Name() string
	Health(ctx context.Context) error
}

// TrendsRequest holds the validated /api/trends query. group_by is read
// separately because an empty value means "no grouping".
type TrendsRequest struct {
	Columns string `query:"columns" validate:"omitempty,columns"`
}

// SummaryRequest holds the /api/summary query.
type SummaryRequest struct {
	Top int `query:"top" default:"10" validate:"gte=1,lte=500"`
}

// TableRequest holds the /api/table query.
type TableRequest struct {
	Asset  string `query:"asset"`
	Since  string `query:"since" validate:"omitempty,timestamp"`
	Until  string `query:"until" validate:"omitempty,timestamp"`
	Limit  int    `query:"limit" default:"100" validate:"gte=1,lte=5000"`
	Offset int    `query:"offset" validate:"gte=0"`
}

// ListingsHandler serves the accumulated table and its analysis.
type ListingsHandler struct {
	logger   *xlogger.Logger
	reports  *usecase.ReportUseCase
	identity string
	checks   []HealthChecker
}

func NewListingsHandler(logger *xlogger.Logger, reports *usecase.ReportUseCase, identity string, checks ...HealthChecker) *ListingsHandler {
	if identity == "" {
		identity = models.DefaultIdentityField
	}
	return &ListingsHandler{logger: logger, reports: reports, identity: identity, checks: checks}
}

func (h *ListingsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/trends", h.Trends)
	g.GET("/summary", h.Summary)
	g.GET("/table", h.Table)
	g.GET("/export.csv", h.ExportCSV)
	e.GET("/healthz", h.Health)
}

func (h *ListingsHandler) Trends(c echo.Context) error {
	req := &TrendsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	q := usecase.TrendQuery{Columns: xhttp.ParseList(req.Columns)}
	if vals, ok := c.QueryParams()["group_by"]; ok {
		by := ""
		if len(vals) > 0 {
			by = strings.TrimSpace(vals[0])
		}
		q.GroupBy = &by
	}

	report, hit, err := h.reports.Trends(c.Request().Context(), q)
	if err != nil {
		h.logger.Error("trends usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("trend report unavailable").WithError(err))
	}
	if hit {
		c.Response().Header().Set("X-Cache", "HIT")
	} else {
		c.Response().Header().Set("X-Cache", "MISS")
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *ListingsHandler) Summary(c echo.Context) error {
	req := &SummaryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	s, err := h.reports.Summary(c.Request().Context(), req.Top)
	if err != nil {
		h.logger.Error("summary usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("summary unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, s)
}

// Table pages through rows, optionally filtered by asset and collection time.
func (h *ListingsHandler) Table(c echo.Context) error {
	req := &TableRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	// both already passed the timestamp rule
	since, _ := xhttp.ParseTime(req.Since)
	until, _ := xhttp.ParseTime(req.Until)

	matched := filterRows(h.reports.Table().Rows, h.identity, req.Asset, since, until)
	total := len(matched)
	start := req.Offset
	if start > total {
		start = total
	}
	end := start + req.Limit
	if end > total {
		end = total
	}

	page := make([]map[string]interface{}, 0, end-start)
	for _, r := range matched[start:end] {
		page = append(page, r.Map())
	}
	return xhttp.ListResponse(c, page, int64(total))
}

// ExportCSV streams the whole table in the typed CSV file format.
func (h *ListingsHandler) ExportCSV(c echo.Context) error {
	t := h.reports.Table()
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="crypto_data.csv"`)
	res.WriteHeader(http.StatusOK)
	if err := repository.WriteCSV(res, t); err != nil {
		// headers are already out; all that is left is to log
		h.logger.Error("csv export failed", xlogger.Error(err))
	}
	return nil
}

// Health reports 503 when any dependency fails its check.
func (h *ListingsHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	status := map[string]string{}
	healthy := true
	for _, chk := range h.checks {
		if err := chk.Health(ctx); err != nil {
			healthy = false
			status[chk.Name()] = err.Error()
			h.logger.Warn("health check failed", xlogger.String("dependency", chk.Name()), xlogger.Error(err))
			continue
		}
		status[chk.Name()] = "ok"
	}
	body := map[string]interface{}{
		"rows":         len(h.reports.Table().Rows),
		"dependencies": status,
	}
	if !healthy {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, body)
	}
	return xhttp.SuccessResponse(c, body)
}

func filterRows(rows []models.Row, identity, asset string, since, until time.Time) []models.Row {
	if asset == "" && since.IsZero() && until.IsZero() {
		return rows
	}
	var out []models.Row
	for _, r := range rows {
		if asset != "" {
			id, ok := r.Text(identity)
			if !ok || !strings.EqualFold(id, asset) {
				continue
			}
		}
		if !since.IsZero() || !until.IsZero() {
			at, ok := r.CollectedAt()
			if !ok || !util.InRange(at, since, until) {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}
