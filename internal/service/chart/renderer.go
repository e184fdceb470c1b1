package chart

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"CoinPull/internal/domain/models"
	domsvc "CoinPull/internal/domain/service"
	"CoinPull/pkg/logger"
)

const (
	defaultWidth  = 12 * vg.Inch
	defaultHeight = 6 * vg.Inch
	// vg.Length is measured in points
	barWidth = vg.Length(7)
	// maxTrendGroups caps the assets drawn on one trend chart.
	maxTrendGroups = 15
)

// Renderer draws PNG charts with gonum/plot. The image format follows the
// file extension.
type Renderer struct {
	width    vg.Length
	height   vg.Length
	identity string
	log      *logger.Logger
}

type Option func(*Renderer)

// WithSize sets the image size.
func WithSize(w, h vg.Length) Option {
	return func(r *Renderer) {
		r.width, r.height = w, h
	}
}

// WithIdentityField sets the column PriceChart matches the asset against.
func WithIdentityField(name string) Option {
	return func(r *Renderer) {
		if name != "" {
			r.identity = name
		}
	}
}

func New(log *logger.Logger, opts ...Option) *Renderer {
	r := &Renderer{width: defaultWidth, height: defaultHeight, identity: models.DefaultIdentityField, log: log}
	for _, o := range opts {
		o(r)
	}
	return r
}

var _ domsvc.ChartRenderer = (*Renderer)(nil)

// TrendChart draws the mean of every report column per group as grouped bars.
func (r *Renderer) TrendChart(ctx context.Context, report *models.TrendReport, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if report == nil || report.TableRows == 0 || len(report.Columns) == 0 {
		return fmt.Errorf("trend chart: %w", models.ErrNoData)
	}

	groups := report.Groups
	if len(groups) > maxTrendGroups {
		groups = groups[:maxTrendGroups]
	}
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.Key
	}

	p := plot.New()
	p.Title.Text = "Mean change by timeframe"
	p.Y.Label.Text = "Mean change (%)"
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	n := len(report.Columns)
	for ci, col := range report.Columns {
		values, missing := columnMeans(groups, col)
		bars, err := plotter.NewBarChart(values, barWidth)
		if err != nil {
			return fmt.Errorf("trend chart bars %s: %w", col, err)
		}
		bars.LineStyle.Width = vg.Length(0)
		bars.Color = plotutil.Color(ci)
		bars.Offset = barWidth * vg.Length(2*ci-n+1) / 2
		p.Add(bars)
		p.Legend.Add(shortColumn(col), bars)

		if len(missing) > 0 {
			// mark groups without data so they do not read as a 0% mean
			xys := make(plotter.XYs, len(missing))
			texts := make([]string, len(missing))
			for i, gi := range missing {
				xys[i].X = float64(gi)
				texts[i] = "n/a"
			}
			labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: texts})
			if err != nil {
				return fmt.Errorf("trend chart labels %s: %w", col, err)
			}
			labels.Offset = vg.Point{X: bars.Offset - barWidth/2}
			p.Add(labels)
		}
	}
	p.NominalX(names...)

	return r.save(p, path)
}

// PriceChart draws column over collection time for the rows of one asset.
func (r *Renderer) PriceChart(ctx context.Context, t models.Table, asset, column, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	type point struct {
		x, y float64
	}
	var pts []point
	for _, row := range t.Rows {
		id, ok := row.Text(r.identity)
		if !ok || !strings.EqualFold(id, asset) {
			continue
		}
		at, ok := row.CollectedAt()
		if !ok {
			continue
		}
		v, ok := row.Float(column)
		if !ok {
			continue
		}
		pts = append(pts, point{x: unixSeconds(at), y: v})
	}
	if len(pts) == 0 {
		return fmt.Errorf("price chart %s: %w", asset, models.ErrNoData)
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].x < pts[j].x })

	xys := make(plotter.XYs, len(pts))
	for i, pt := range pts {
		xys[i].X, xys[i].Y = pt.x, pt.y
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s %s", strings.ToUpper(asset), shortColumn(column))
	p.X.Label.Text = "Collected at"
	p.Y.Label.Text = column
	p.X.Tick.Marker = plot.TimeTicks{Format: "01-02 15:04"}
	p.Add(plotter.NewGrid())

	line, points, err := plotter.NewLinePoints(xys)
	if err != nil {
		return fmt.Errorf("price chart line: %w", err)
	}
	line.Color = plotutil.Color(0)
	points.Shape = plotutil.Shape(0)
	p.Add(line, points)

	return r.save(p, path)
}

func (r *Renderer) save(p *plot.Plot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := p.Save(r.width, r.height, path); err != nil {
		return fmt.Errorf("save chart: %w", err)
	}
	r.log.Info("chart written", logger.String("path", path))
	return nil
}

// columnMeans returns the mean of col for every group. Groups without a
// valid mean get a zero-height bar and are listed in missing.
func columnMeans(groups []models.GroupReport, col string) (plotter.Values, []int) {
	values := make(plotter.Values, len(groups))
	var missing []int
	for gi, g := range groups {
		if st, ok := g.Column(col); ok && st.Mean.Valid {
			values[gi] = st.Mean.Value
			continue
		}
		missing = append(missing, gi)
	}
	return values, missing
}

// unixSeconds keeps sub-second precision so close collections stay apart.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// shortColumn strips the quote prefix: quote.USD.percent_change_24h -> percent_change_24h.
func shortColumn(col string) string {
	if i := strings.LastIndex(col, "."); i >= 0 {
		return col[i+1:]
	}
	return col
}
