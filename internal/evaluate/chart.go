package evaluate

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"clinical-ensemble/internal/ml"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// SaveImportanceChart renders a ranked importance vector as a bar chart. The
// image format follows the file extension.
func SaveImportanceChart(path, title string, ranked []ml.FeatureImportance) error {
	if len(ranked) == 0 {
		return fmt.Errorf("importance chart %s: no features", title)
	}

	values := make(plotter.Values, len(ranked))
	names := make([]string, len(ranked))
	for i, fi := range ranked {
		values[i] = fi.Score
		names[i] = fi.Name
	}

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "Relative importance"
	p.Y.Min = 0

	bars, err := plotter.NewBarChart(values, vg.Points(18))
	if err != nil {
		return fmt.Errorf("importance chart %s: %w", title, err)
	}
	bars.LineStyle.Width = vg.Length(0)
	bars.Color = color.RGBA{R: 46, G: 117, B: 182, A: 255}

	p.Add(bars)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	width := vg.Length(math.Max(5, 0.6*float64(len(names)))) * vg.Inch
	if err := p.Save(width, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}

	log.Info().Str("file", path).Msg("Importance chart saved")
	return nil
}
