// Package packager owns the dataset output tree: payload materialization
// through the storage fetcher, per-channel sample_data chains, the
// trajectory map, table serialization, the structural audit, and the
// optional report and archive steps.
package packager

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/dataset.export/internal/convert"
	"github.com/banshee-data/dataset.export/internal/fsutil"
	"github.com/banshee-data/dataset.export/internal/nuscenes"
	"github.com/banshee-data/dataset.export/internal/report"
	"github.com/banshee-data/dataset.export/internal/security"
	"github.com/banshee-data/dataset.export/internal/storage"
)

const (
	tablesDir      = "v1.0-all"
	reportFilename = "report.html"
)

// Packager writes a conversion run's output under OutRoot. It implements
// convert.Packager.
type Packager struct {
	FS          fsutil.FileSystem
	Fetch       storage.Fetcher
	OutRoot     string
	MainChannel string
	Parallel    int

	// Report writes report.html beside the tables; Archive zips the
	// finished output root.
	Report  bool
	Archive bool
}

var _ convert.Packager = (*Packager)(nil)

// New builds a packager rooted at outRoot. mainChannel is the canonical
// channel the audit requires point clouds for. parallel bounds the fetch
// pool and is clamped to at least 1.
func New(fs fsutil.FileSystem, fetch storage.Fetcher, outRoot, mainChannel string, parallel int) *Packager {
	if parallel < 1 {
		parallel = 1
	}
	return &Packager{
		FS:          fs,
		Fetch:       fetch,
		OutRoot:     outRoot,
		MainChannel: mainChannel,
		Parallel:    parallel,
	}
}

// ArchivePath returns where the optional archive lands.
func (p *Packager) ArchivePath() string {
	return filepath.Clean(p.OutRoot) + ".zip"
}

// MaterializeFrame fetches one frame's payloads into the output tree. The
// fetches share a bounded worker pool; the first failure cancels the rest
// and the caller skips the frame.
func (p *Packager) MaterializeFrame(ctx context.Context, payloads []convert.Payload) error {
	if len(payloads) == 0 {
		return nil
	}

	workers := p.Parallel
	if workers < 1 {
		workers = 1
	}
	if workers > len(payloads) {
		workers = len(payloads)
	}

	jobs := make(chan convert.Payload)
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for _, pl := range payloads {
			select {
			case jobs <- pl:
			case <-gCtx.Done():
				return gCtx.Err()
			}
		}
		return nil
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for pl := range jobs {
				dest := filepath.Join(p.OutRoot, pl.RelPath)
				if err := security.ValidatePathWithinDirectory(dest, p.OutRoot); err != nil {
					return err
				}
				if err := p.Fetch.Fetch(gCtx, pl.Locator, dest); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// Finish completes the dataset once the table set is final: per-channel
// sample_data chains, directory layout, the trajectory map, the table
// files, the optional report, the structural audit, and the optional
// archive. Audit findings come back as warning strings.
func (p *Packager) Finish(ctx context.Context, tables *nuscenes.TableSet) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chainSampleData(tables.SampleData)

	if err := p.ensureLayout(tables); err != nil {
		return nil, err
	}
	for _, m := range tables.Maps {
		if err := renderTrajectory(p.FS, filepath.Join(p.OutRoot, m.Filename), tables.EgoPoses); err != nil {
			return nil, fmt.Errorf("render map %s: %w", m.Token, err)
		}
	}
	if err := p.writeTables(tables); err != nil {
		return nil, err
	}
	if p.Report {
		if err := p.writeReport(tables); err != nil {
			return nil, fmt.Errorf("write report: %w", err)
		}
	}

	findings := p.audit(tables)

	if p.Archive {
		files := manifestFiles(p.FS, p.OutRoot, tables)
		if err := writeArchive(p.FS, p.OutRoot, p.ArchivePath(), files); err != nil {
			return findings, err
		}
	}

	return findings, nil
}

// chainSampleData links prev/next within each physical channel, identified
// by calibrated-sensor token. Records are mutated in place; slice order is
// preserved.
func chainSampleData(records []nuscenes.SampleData) {
	byChannel := make(map[string][]int)
	for i, sd := range records {
		byChannel[sd.CalibratedSensorToken] = append(byChannel[sd.CalibratedSensorToken], i)
	}
	for _, idxs := range byChannel {
		sort.SliceStable(idxs, func(a, b int) bool {
			return records[idxs[a]].Timestamp < records[idxs[b]].Timestamp
		})
		for k, idx := range idxs {
			if k > 0 {
				records[idx].Prev = records[idxs[k-1]].Token
			}
			if k < len(idxs)-1 {
				records[idx].Next = records[idxs[k+1]].Token
			}
		}
	}
}

// ensureLayout creates the canonical directories, including a samples
// directory for every calibrated channel even when no payload landed in it.
func (p *Packager) ensureLayout(tables *nuscenes.TableSet) error {
	dirs := []string{
		filepath.Join(p.OutRoot, "sweeps"),
		filepath.Join(p.OutRoot, "maps"),
		filepath.Join(p.OutRoot, tablesDir),
	}
	for _, s := range tables.Sensors {
		dirs = append(dirs, filepath.Join(p.OutRoot, "samples", s.Channel))
	}
	for _, d := range dirs {
		if err := p.FS.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

// writeTables serializes the relations, one indented JSON array per file.
// Empty relations serialize as [] rather than null.
func (p *Packager) writeTables(tables *nuscenes.TableSet) error {
	for _, tf := range tables.Files() {
		data, err := json.MarshalIndent(tf.Records, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s: %w", tf.Name, err)
		}
		if string(data) == "null" {
			data = []byte("[]")
		}
		data = append(data, '\n')
		if err := p.FS.WriteFile(filepath.Join(p.OutRoot, tablesDir, tf.Name), data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", tf.Name, err)
		}
	}
	return nil
}

func (p *Packager) writeReport(tables *nuscenes.TableSet) error {
	f, err := p.FS.Create(filepath.Join(p.OutRoot, reportFilename))
	if err != nil {
		return err
	}
	if err := report.Render(f, tables); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// audit checks the finished tree without failing the run: directories
// present, table files present, every sample_data payload on disk, and at
// least one point cloud for the main channel.
func (p *Packager) audit(tables *nuscenes.TableSet) []string {
	var findings []string

	for _, dir := range []string{"samples", "sweeps", "maps", tablesDir} {
		if !p.FS.Exists(filepath.Join(p.OutRoot, dir)) {
			findings = append(findings, fmt.Sprintf("audit: directory %s missing", dir))
		}
	}
	for _, tf := range tables.Files() {
		if !p.FS.Exists(filepath.Join(p.OutRoot, tablesDir, tf.Name)) {
			findings = append(findings, fmt.Sprintf("audit: table file %s missing", tf.Name))
		}
	}

	mainPrefix := "samples/" + p.MainChannel + "/"
	mainSeen := false
	for _, sd := range tables.SampleData {
		if !p.FS.Exists(filepath.Join(p.OutRoot, sd.Filename)) {
			findings = append(findings, fmt.Sprintf("audit: payload %s missing", sd.Filename))
			continue
		}
		if sd.Fileformat == "pcd" && strings.HasPrefix(sd.Filename, mainPrefix) {
			mainSeen = true
		}
	}
	if !mainSeen {
		findings = append(findings, fmt.Sprintf("audit: no point clouds for main channel %s", p.MainChannel))
	}

	return findings
}
