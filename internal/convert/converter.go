// Package convert drives one scene-to-dataset conversion run: static table
// construction, the sequential frame loop with per-frame soft failures,
// instance finalization, cross-table validation, and the hand-off to the
// packager that owns the output tree.
package convert

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/banshee-data/dataset.export/internal/geom"
	"github.com/banshee-data/dataset.export/internal/monitoring"
	"github.com/banshee-data/dataset.export/internal/nuscenes"
	"github.com/banshee-data/dataset.export/internal/scene"
	"github.com/banshee-data/dataset.export/internal/timeutil"
)

// Payload is one sensor file to place into the dataset: the locator it is
// fetched from and the path it lands at relative to the output root.
type Payload struct {
	Locator string
	RelPath string
}

// Packager materializes payloads and writes the finished dataset. The
// converter stays oblivious to filesystems and transports behind it.
type Packager interface {
	// MaterializeFrame copies one frame's payloads into the output tree.
	// A returned error skips the frame; none of its records are committed.
	MaterializeFrame(ctx context.Context, payloads []Payload) error

	// Finish links per-channel sample_data chains, renders the map, writes
	// the table files and audits the tree. Returned findings are
	// warning-grade; the error is fatal.
	Finish(ctx context.Context, tables *nuscenes.TableSet) ([]string, error)
}

// FrameOutcome records how one selected frame fared in the loop.
type FrameOutcome struct {
	Index       int
	TimestampNs int64
	Emitted     bool
	SkipReason  string
	Warnings    []string
}

// Stats summarizes a conversion run. Soft failures and audit findings land
// in Errors; the error return of Run is reserved for fatal conditions.
type Stats struct {
	FramesProcessed      int
	FramesSkipped        int
	AnnotationsConverted int
	InstancesCreated     int
	RecordsWritten       int
	Errors               []string
	Outcomes             []FrameOutcome
}

// channelInfo caches per-channel derived values, keyed by the channel name
// as it appears in calibration and frame maps.
type channelInfo struct {
	canonical  string
	calToken   string
	ext        string
	fileformat string
}

// Converter transforms one annotated scene into a complete table set plus
// materialized payloads. It is built once per run and not reused.
type Converter struct {
	scene    *scene.Scene
	opts     scene.Options
	taxonomy *nuscenes.Taxonomy
	clock    timeutil.Clock
	packager Packager
	channels map[string]channelInfo
	progress func(done, total int)
}

// New validates the scene against the run preconditions and prepares the
// per-channel lookup table. A nil taxonomy defaults to the standard one; a
// nil clock uses the wall clock.
func New(sc *scene.Scene, opts scene.Options, tax *nuscenes.Taxonomy, clock timeutil.Clock, pkg Packager) (*Converter, error) {
	if sc == nil {
		return nil, fmt.Errorf("scene is nil")
	}
	if pkg == nil {
		return nil, fmt.Errorf("packager is nil")
	}
	if tax == nil {
		tax = nuscenes.Standard()
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	main, ok := sc.Calibration[sc.MainChannel]
	if !ok {
		return nil, fmt.Errorf("main channel %q has no calibration entry", sc.MainChannel)
	}
	if main.Modality != scene.ModalityLidar {
		return nil, fmt.Errorf("main channel %q is calibrated as %q, want lidar", sc.MainChannel, main.Modality)
	}

	channels := make(map[string]channelInfo, len(sc.Calibration))
	for name, cal := range sc.Calibration {
		var ext, format string
		switch cal.Modality {
		case scene.ModalityLidar:
			ext, format = ".pcd", "pcd"
		case scene.ModalityCamera:
			ext, format = ".jpg", "jpg"
		default:
			return nil, fmt.Errorf("channel %q: unsupported modality %q", name, cal.Modality)
		}
		canonical := CanonicalChannel(name, cal.Modality)
		channels[name] = channelInfo{
			canonical:  canonical,
			calToken:   nuscenes.CalibratedSensorToken(sc.Name, canonical),
			ext:        ext,
			fileformat: format,
		}
	}

	return &Converter{
		scene:    sc,
		opts:     opts,
		taxonomy: tax,
		clock:    clock,
		packager: pkg,
		channels: channels,
	}, nil
}

// SetProgress installs a callback invoked after each selected frame with the
// number of frames handled so far and the selection total.
func (c *Converter) SetProgress(fn func(done, total int)) { c.progress = fn }

// Run executes the conversion. The returned stats are populated even when
// the error is non-nil, so callers can record partial runs.
func (c *Converter) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	tables := &nuscenes.TableSet{}
	if err := c.staticTables(tables); err != nil {
		return stats, fmt.Errorf("build static tables: %w", err)
	}

	selected := c.opts.SelectFrames(c.scene.Frames)
	tracker := NewInstanceTracker()

	for i, frame := range selected {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		outcome := FrameOutcome{Index: i, TimestampNs: frame.TimestampNs}
		draft, err := c.buildFrame(i, frame)
		if err == nil {
			if merr := c.packager.MaterializeFrame(ctx, draft.payloads); merr != nil {
				err = fmt.Errorf("materialize payloads: %w", merr)
			}
		}
		outcome.Warnings = draft.warnings

		if err != nil {
			outcome.SkipReason = err.Error()
			stats.FramesSkipped++
			stats.Errors = append(stats.Errors,
				fmt.Sprintf("frame %d (ts %d) skipped: %v", i, frame.TimestampNs, err))
			monitoring.Logf("frame %d (ts %d) skipped: %v", i, frame.TimestampNs, err)
		} else {
			tables.EgoPoses = append(tables.EgoPoses, draft.egoPose)
			tables.Samples = append(tables.Samples, draft.sample)
			tables.SampleData = append(tables.SampleData, draft.sampleData...)
			for _, a := range draft.anns {
				tracker.Add(c.scene.Name, a.trackID, a.categoryToken, a.ann, frame.TimestampNs)
				stats.AnnotationsConverted++
			}
			outcome.Emitted = true
			stats.FramesProcessed++
		}

		stats.Errors = append(stats.Errors, outcome.Warnings...)
		stats.Outcomes = append(stats.Outcomes, outcome)
		if c.progress != nil {
			c.progress(i+1, len(selected))
		}
	}

	if stats.FramesProcessed == 0 {
		return stats, fmt.Errorf("no frames emitted (%d selected, all skipped)", len(selected))
	}

	// Samples were appended in timestamp order, so slice neighbours are the
	// emitted neighbours.
	for i := range tables.Samples {
		if i > 0 {
			tables.Samples[i].Prev = tables.Samples[i-1].Token
		}
		if i < len(tables.Samples)-1 {
			tables.Samples[i].Next = tables.Samples[i+1].Token
		}
	}

	sceneRec, err := nuscenes.NewScene(
		nuscenes.SceneToken(c.scene.Name),
		c.scene.Name,
		"Exported scene "+c.scene.Name,
		nuscenes.LogToken(c.scene.Name),
		len(tables.Samples),
		tables.Samples[0].Token,
		tables.Samples[len(tables.Samples)-1].Token,
	)
	if err != nil {
		return stats, fmt.Errorf("finalize scene: %w", err)
	}
	tables.Scenes = append(tables.Scenes, sceneRec)

	instances, annotations, err := tracker.Finalize()
	if err != nil {
		return stats, fmt.Errorf("finalize instances: %w", err)
	}
	tables.Instances = instances
	tables.SampleAnnotations = annotations
	stats.InstancesCreated = len(instances)

	if errs := nuscenes.Validate(tables); len(errs) > 0 {
		return stats, fmt.Errorf("cross-table validation: %w", errors.Join(errs...))
	}
	stats.RecordsWritten = tables.RecordCount()

	findings, err := c.packager.Finish(ctx, tables)
	stats.Errors = append(stats.Errors, findings...)
	if err != nil {
		return stats, fmt.Errorf("package dataset: %w", err)
	}

	return stats, nil
}

// staticTables fills the relations that do not depend on frame content:
// taxonomy categories, attributes, visibility levels, the sensor pair per
// calibrated channel, the log, and the map. Any constructor failure here is
// fatal for the run.
func (c *Converter) staticTables(ts *nuscenes.TableSet) error {
	for _, name := range c.taxonomy.Categories {
		rec, err := nuscenes.NewCategory(nuscenes.CategoryToken(name), name, "NuScenes category: "+name)
		if err != nil {
			return err
		}
		ts.Categories = append(ts.Categories, rec)
	}
	for _, name := range c.taxonomy.Attributes {
		rec, err := nuscenes.NewAttribute(nuscenes.AttributeToken(name), name, "NuScenes attribute: "+name)
		if err != nil {
			return err
		}
		ts.Attributes = append(ts.Attributes, rec)
	}
	for _, level := range c.taxonomy.VisibilityLevels {
		rec, err := nuscenes.NewVisibility(nuscenes.VisibilityToken(level), level, "Visibility: "+level)
		if err != nil {
			return err
		}
		ts.Visibility = append(ts.Visibility, rec)
	}

	for _, name := range c.scene.SortedChannels() {
		cal := c.scene.Calibration[name]
		info := c.channels[name]

		sensor, err := nuscenes.NewSensor(nuscenes.SensorToken(info.canonical), info.canonical, cal.Modality)
		if err != nil {
			return fmt.Errorf("channel %q: %w", name, err)
		}
		ts.Sensors = append(ts.Sensors, sensor)

		var intrinsic [][]float64
		if cal.Modality == scene.ModalityCamera {
			intrinsic = cal.Intrinsic
		}
		calRec, err := nuscenes.NewCalibratedSensor(info.calToken, sensor.Token,
			cal.Translation[:], cal.Rotation[:], intrinsic)
		if err != nil {
			return fmt.Errorf("channel %q: %w", name, err)
		}
		ts.CalibratedSensors = append(ts.CalibratedSensors, calRec)
	}

	logToken := nuscenes.LogToken(c.scene.Name)
	logRec, err := nuscenes.NewLog(logToken, c.scene.Name+".log", "vehicle",
		c.clock.Now().UTC().Format("2006-01-02"), "unknown")
	if err != nil {
		return err
	}
	ts.Logs = append(ts.Logs, logRec)

	mapToken := nuscenes.MapToken(c.scene.Name)
	mapRec, err := nuscenes.NewMap(mapToken, []string{logToken}, "semantic_prior", "maps/"+mapToken+".png")
	if err != nil {
		return err
	}
	ts.Maps = append(ts.Maps, mapRec)

	return nil
}

// annDraft is one converted annotation waiting for its frame to commit.
type annDraft struct {
	ann           nuscenes.SampleAnnotation
	trackID       string
	categoryToken string
}

// frameDraft holds everything one frame produces. Nothing in it touches the
// table set until the frame's payloads have materialized, so a skipped frame
// leaves no trace beyond its outcome.
type frameDraft struct {
	egoPose    nuscenes.EgoPose
	sample     nuscenes.Sample
	sampleData []nuscenes.SampleData
	payloads   []Payload
	anns       []annDraft
	warnings   []string
}

// buildFrame converts one frame into draft records. An error means the frame
// must be skipped; warnings collected up to that point survive in the draft.
func (c *Converter) buildFrame(index int, f scene.Frame) (frameDraft, error) {
	var draft frameDraft
	tsNs := f.TimestampNs
	tsUs := tsNs / 1000

	if f.Lidar[c.scene.MainChannel] == "" {
		return draft, fmt.Errorf("main channel %q has no payload", c.scene.MainChannel)
	}

	pose := f.EgoPose.Pose()
	egoToken := nuscenes.EgoPoseToken(c.scene.Name, tsNs)
	egoPose, err := nuscenes.NewEgoPose(egoToken, tsUs, pose.Rotation.Slice(), pose.Translation[:])
	if err != nil {
		return draft, err
	}
	draft.egoPose = egoPose

	sampleToken := nuscenes.SampleToken(c.scene.Name, tsNs)
	sample, err := nuscenes.NewSample(sampleToken, tsUs, nuscenes.SceneToken(c.scene.Name))
	if err != nil {
		return draft, err
	}
	draft.sample = sample

	for _, fp := range framePayloads(f) {
		info, ok := c.channels[fp.channel]
		if !ok {
			draft.warnings = append(draft.warnings,
				fmt.Sprintf("frame %d: channel %q has no calibration, payload skipped", index, fp.channel))
			continue
		}
		filename := fmt.Sprintf("samples/%s/%s_%s_%d%s",
			info.canonical, c.scene.Name, info.canonical, tsNs, info.ext)
		sd, err := nuscenes.NewSampleData(
			nuscenes.SampleDataToken(c.scene.Name, tsNs, info.canonical),
			sampleToken, egoToken, info.calToken, tsUs, info.fileformat, true, filename)
		if err != nil {
			return draft, err
		}
		draft.sampleData = append(draft.sampleData, sd)
		draft.payloads = append(draft.payloads, Payload{Locator: fp.locator, RelPath: filename})
	}

	for _, ann := range f.Annotations {
		if !c.opts.AllowsType(ann.ObjType) || !c.opts.EnoughPoints(ann.NumPts) {
			continue
		}

		category := c.taxonomy.MapCategory(ann.ObjType)
		position, size, rotation := geom.Compose(ann.PSR.Geom(), pose)
		if !c.taxonomy.SizeWithin(category, size) {
			draft.warnings = append(draft.warnings,
				fmt.Sprintf("frame %d: object %s (%s): size [%.2f %.2f %.2f] implausible for %s",
					index, ann.ObjID, ann.ObjType, size[0], size[1], size[2], category))
		}

		attrs := []string{}
		if attr, ok := c.taxonomy.DefaultAttribute(category); ok {
			attrs = append(attrs, nuscenes.AttributeToken(attr))
		}

		// The schema stores size as (width, length, height).
		rec, err := nuscenes.NewSampleAnnotation(
			nuscenes.AnnotationToken(c.scene.Name, tsNs, ann.ObjID),
			sampleToken,
			nuscenes.VisibilityToken(nuscenes.DefaultVisibilityLevel),
			attrs,
			position[:],
			[]float64{size[1], size[0], size[2]},
			rotation.Slice(),
			ann.NumPts, 0)
		if err != nil {
			draft.warnings = append(draft.warnings,
				fmt.Sprintf("frame %d: object %s dropped: %v", index, ann.ObjID, err))
			continue
		}
		draft.anns = append(draft.anns, annDraft{
			ann:           rec,
			trackID:       ann.ObjID,
			categoryToken: nuscenes.CategoryToken(category),
		})
	}

	return draft, nil
}

// framePayload pairs a frame channel with its payload locator.
type framePayload struct {
	channel string
	locator string
}

// framePayloads flattens a frame's channel maps into a deterministic list:
// lidar channels first, then cameras, each name-sorted. Empty locators are
// treated as absent.
func framePayloads(f scene.Frame) []framePayload {
	out := make([]framePayload, 0, len(f.Lidar)+len(f.Cameras))
	for _, name := range sortedKeys(f.Lidar) {
		if loc := f.Lidar[name]; loc != "" {
			out = append(out, framePayload{channel: name, locator: loc})
		}
	}
	for _, name := range sortedKeys(f.Cameras) {
		if loc := f.Cameras[name]; loc != "" {
			out = append(out, framePayload{channel: name, locator: loc})
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
