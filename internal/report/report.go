// Package report renders training curves.
package report

import (
	"image/color"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/born-ml/fcnet/internal/solver"
)

// Figure size of SaveCurves.
var (
	Width  = 8 * vg.Inch
	Height = 8 * vg.Inch
)

var (
	trainColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	valColor   = color.RGBA{R: 255, G: 127, B: 14, A: 255}
)

// SaveCurves writes a PNG with two panels: the loss of every iteration on top
// and training / validation accuracy at every check below.
func SaveCurves(history *solver.History, path string) error {
	if history == nil || len(history.LossHistory) == 0 {
		return errors.New("no loss history to plot")
	}

	lossPlot, err := LossPlot(history.LossHistory)
	if err != nil {
		return err
	}
	accPlot, err := AccuracyPlot(history.TrainAccHistory, history.ValAccHistory)
	if err != nil {
		return err
	}

	img := vgimg.New(Width, Height)
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: 2, Cols: 1, PadY: vg.Centimeter, PadTop: vg.Millimeter, PadBottom: vg.Millimeter}
	canvases := plot.Align([][]*plot.Plot{{lossPlot}, {accPlot}}, tiles, dc)
	lossPlot.Draw(canvases[0][0])
	accPlot.Draw(canvases[1][0])

	//nolint:gosec // G304: output path comes from the user
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating plot file")
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	return errors.Wrapf(f.Close(), "closing %s", path)
}

// LossPlot plots loss against iteration.
func LossPlot(losses []float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Training loss"
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Loss"

	line, err := plotter.NewLine(series(losses))
	if err != nil {
		return nil, errors.Wrap(err, "loss curve")
	}
	line.LineStyle.Color = trainColor
	p.Add(line, plotter.NewGrid())
	return p, nil
}

// AccuracyPlot plots training and validation accuracy against check number.
func AccuracyPlot(trainAcc, valAcc []float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Classification accuracy"
	p.X.Label.Text = "Check"
	p.Y.Label.Text = "Accuracy"
	p.Y.Min, p.Y.Max = 0, 1
	p.Legend.Top = true
	p.Legend.Left = true

	p.Add(plotter.NewGrid())
	for _, curve := range []struct {
		name   string
		values []float64
		color  color.Color
	}{{"train", trainAcc, trainColor}, {"val", valAcc, valColor}} {
		if len(curve.values) == 0 {
			continue
		}
		line, points, err := plotter.NewLinePoints(series(curve.values))
		if err != nil {
			return nil, errors.Wrapf(err, "%s accuracy curve", curve.name)
		}
		line.LineStyle.Color = curve.color
		points.GlyphStyle.Color = curve.color
		p.Add(line, points)
		p.Legend.Add(curve.name, line, points)
	}
	return p, nil
}

func series(values []float64) plotter.XYs {
	xys := make(plotter.XYs, len(values))
	for i, v := range values {
		xys[i].X = float64(i)
		xys[i].Y = v
	}
	return xys
}
