package report

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/fcnet/internal/solver"
)

func TestSaveCurves(t *testing.T) {
	history := &solver.History{
		LossHistory:     []float64{2.3, 1.9, 1.2, 0.8, 0.5, 0.4},
		TrainAccHistory: []float64{0.1, 0.6, 0.9},
		ValAccHistory:   []float64{0.12, 0.55, 0.85},
	}
	path := filepath.Join(t.TempDir(), "curves.png")
	require.NoError(t, SaveCurves(history, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Positive(t, cfg.Width)
	assert.Positive(t, cfg.Height)
}

func TestSaveCurvesNeedsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curves.png")
	assert.Error(t, SaveCurves(nil, path))
	assert.Error(t, SaveCurves(&solver.History{}, path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAccuracyPlotSkipsEmptyCurves(t *testing.T) {
	p, err := AccuracyPlot([]float64{0.5}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.Y.Max)
}
