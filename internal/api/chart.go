package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/optical.position/internal/fusion"
	"github.com/banshee-data/optical.position/internal/httputil"
)

func (s *Server) attachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("correction-chart", "Recent corrections relative to the platform heading", s.handleCorrectionChart)
}

// fixToXY places a correction in the platform frame: +Y is straight ahead,
// +X is to starboard.
func fixToXY(fix fusion.CorrectionFix) (x, y float64) {
	theta := fix.RelativeBearingDegrees * math.Pi / 180
	return fix.DistanceMeters * math.Sin(theta), fix.DistanceMeters * math.Cos(theta)
}

// handleCorrectionChart renders recent corrections as a scatter plot around
// the platform. The newest correction is drawn as its own series.
func (s *Server) handleCorrectionChart(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		httputil.NotFound(w, "correction history is not enabled")
		return
	}
	recent := s.history.Recent()
	if len(recent) == 0 {
		httputil.NotFound(w, "no correction computed yet")
		return
	}

	maxAbs := 0.0
	points := make([]opts.ScatterData, 0, len(recent))
	for _, c := range recent {
		x, y := fixToXY(c.Fix)
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(x), math.Abs(y)))
		points = append(points, opts.ScatterData{Value: []interface{}{x, y}, Name: c.ID})
	}
	latest := recent[len(recent)-1]
	lx, ly := fixToXY(latest.Fix)

	pad := maxAbs * 1.1
	if pad == 0 {
		pad = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Corrections", Theme: "dark", Width: "800px", Height: "800px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Corrections (platform frame)",
			Subtitle: fmt.Sprintf("n=%d latest=%.2f m @ %.2f deg", len(recent), latest.Fix.DistanceMeters, latest.Fix.RelativeBearingDegrees),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "starboard (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "ahead (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("recent", points, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))
	scatter.AddSeries("latest", []opts.ScatterData{{Value: []interface{}{lx, ly}, Name: latest.ID}},
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
