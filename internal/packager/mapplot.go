package packager

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/dataset.export/internal/fsutil"
	"github.com/banshee-data/dataset.export/internal/nuscenes"
)

// renderTrajectory plots the ego x/y track onto a square PNG at dest. The
// plot stands in for a semantic map; downstream tooling only requires that
// the referenced file exists and decodes.
func renderTrajectory(fsys fsutil.FileSystem, dest string, poses []nuscenes.EgoPose) error {
	p := plot.New()
	p.Title.Text = "Ego trajectory"
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"

	pts := make(plotter.XYs, 0, len(poses))
	for _, pose := range poses {
		pts = append(pts, plotter.XY{X: pose.Translation[0], Y: pose.Translation[1]})
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Width = vg.Points(1)
	p.Add(line)

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	scatter.GlyphStyle.Radius = vg.Points(2)
	p.Add(scatter)

	wt, err := p.WriterTo(8*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		return err
	}
	f, err := fsys.Create(dest)
	if err != nil {
		return err
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
