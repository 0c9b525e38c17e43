package packager

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dataset.export/internal/convert"
	"github.com/banshee-data/dataset.export/internal/fsutil"
	"github.com/banshee-data/dataset.export/internal/nuscenes"
	"github.com/banshee-data/dataset.export/internal/scene"
	"github.com/banshee-data/dataset.export/internal/storage"
	"github.com/banshee-data/dataset.export/internal/timeutil"
)

// stubFetcher writes fixed bytes to the destination, failing on one locator
// when configured. Calls are recorded under a lock because the pool fetches
// concurrently.
type stubFetcher struct {
	fs   fsutil.FileSystem
	fail string

	mu    sync.Mutex
	calls []string
}

func (s *stubFetcher) Fetch(ctx context.Context, locator, dest string) error {
	s.mu.Lock()
	s.calls = append(s.calls, locator)
	s.mu.Unlock()
	if s.fail != "" && locator == s.fail {
		return fmt.Errorf("fetch %s: boom", locator)
	}
	return s.fs.WriteFile(dest, []byte("payload:"+locator), 0644)
}

func (s *stubFetcher) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func frameTs(i int) int64 { return int64(1000000000 + i*100000000) }

func seedRawFiles(t *testing.T, memfs *fsutil.MemoryFileSystem, frames int) {
	t.Helper()
	for i := 0; i < frames; i++ {
		ts := frameTs(i)
		require.NoError(t, memfs.WriteFile(fmt.Sprintf("/raw/lidar/%d.pcd", ts), []byte(fmt.Sprintf("pcd %d", ts)), 0644))
		require.NoError(t, memfs.WriteFile(fmt.Sprintf("/raw/front/%d.jpg", ts), []byte(fmt.Sprintf("jpg %d", ts)), 0644))
	}
}

func exportScene(frames int, withAnns bool) *scene.Scene {
	fs := make([]scene.Frame, 0, frames)
	for i := 0; i < frames; i++ {
		ts := frameTs(i)
		f := scene.Frame{
			TimestampNs: ts,
			Lidar:       map[string]string{"LIDAR_TOP": fmt.Sprintf("/raw/lidar/%d.pcd", ts)},
			Cameras:     map[string]string{"front": fmt.Sprintf("/raw/front/%d.jpg", ts)},
			EgoPose: &scene.EgoPose{
				Translation: [3]float64{float64(i) * 4, float64(i), 0},
				Rotation:    [4]float64{1, 0, 0, 0},
			},
		}
		if withAnns {
			f.Annotations = []scene.Annotation{{
				ObjID:   "7",
				ObjType: "Car",
				NumPts:  321,
				PSR: scene.PSR{
					Position: scene.Vector{X: 12, Y: 1, Z: 0.7},
					Scale:    scene.Vector{X: 4.4, Y: 1.8, Z: 1.5},
					Rotation: scene.Rotation{W: 1},
				},
			}}
		}
		fs = append(fs, f)
	}
	return &scene.Scene{
		Name:        "lot_b",
		MainChannel: "LIDAR_TOP",
		Calibration: map[string]scene.Calibration{
			"LIDAR_TOP": {Modality: scene.ModalityLidar, Rotation: [4]float64{1, 0, 0, 0}},
			"front": {
				Modality:  scene.ModalityCamera,
				Rotation:  [4]float64{0.5, -0.5, 0.5, -0.5},
				Intrinsic: [][]float64{{1000, 0, 640}, {0, 1000, 360}, {0, 0, 1}},
			},
		},
		Frames: fs,
	}
}

// runExport drives a full conversion against an in-memory tree.
func runExport(t *testing.T, frames int, withAnns bool, configure func(*Packager)) (*fsutil.MemoryFileSystem, convert.Stats) {
	t.Helper()
	memfs := fsutil.NewMemoryFileSystem()
	seedRawFiles(t, memfs, frames)

	pkg := New(memfs, &storage.Router{Local: &storage.LocalFetcher{FS: memfs}}, "out", "LIDAR_TOP", 2)
	if configure != nil {
		configure(pkg)
	}

	clock := timeutil.NewMockClock(time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC))
	conv, err := convert.New(exportScene(frames, withAnns), scene.Options{}, nil, clock, pkg)
	require.NoError(t, err)

	stats, err := conv.Run(context.Background())
	require.NoError(t, err)
	return memfs, stats
}

func readTable(t *testing.T, memfs *fsutil.MemoryFileSystem, name string, dst any) {
	t.Helper()
	data, err := memfs.ReadFile("out/v1.0-all/" + name)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, dst))
}

func TestExportWritesTree(t *testing.T) {
	memfs, stats := runExport(t, 3, true, nil)

	assert.Empty(t, stats.Errors, "a clean run must pass its own audit")
	assert.Equal(t, 3, stats.FramesProcessed)

	// Payloads land under their canonical channel names with the raw bytes.
	lidarFile := "out/samples/LIDAR_TOP/lot_b_LIDAR_TOP_1000000000.pcd"
	require.True(t, memfs.Exists(lidarFile))
	data, err := memfs.ReadFile(lidarFile)
	require.NoError(t, err)
	assert.Equal(t, "pcd 1000000000", string(data))
	assert.True(t, memfs.Exists("out/samples/CAM_FRONT/lot_b_CAM_FRONT_1200000000.jpg"))

	for _, dir := range []string{"out/sweeps", "out/maps", "out/v1.0-all", "out/samples/CAM_FRONT"} {
		assert.True(t, memfs.Exists(dir), dir)
	}

	tables := (&nuscenes.TableSet{}).Files()
	require.Len(t, tables, 13)
	for _, tf := range tables {
		assert.True(t, memfs.Exists("out/v1.0-all/"+tf.Name), tf.Name)
	}

	mapFile := "out/maps/" + nuscenes.MapToken("lot_b") + ".png"
	require.True(t, memfs.Exists(mapFile))
	png, err := memfs.ReadFile(mapFile)
	require.NoError(t, err)
	require.Greater(t, len(png), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}

func TestSampleDataChainPerChannel(t *testing.T) {
	memfs, _ := runExport(t, 3, false, nil)

	var sds []nuscenes.SampleData
	readTable(t, memfs, "sample_data.json", &sds)
	require.Len(t, sds, 6)

	byChannel := make(map[string][]nuscenes.SampleData)
	for _, sd := range sds {
		byChannel[sd.CalibratedSensorToken] = append(byChannel[sd.CalibratedSensorToken], sd)
	}
	require.Len(t, byChannel, 2)

	tokens := make(map[string]string, len(sds))
	for _, sd := range sds {
		tokens[sd.Token] = sd.CalibratedSensorToken
	}

	for _, chain := range byChannel {
		require.Len(t, chain, 3)
		assert.Empty(t, chain[0].Prev)
		assert.Equal(t, chain[1].Token, chain[0].Next)
		assert.Equal(t, chain[0].Token, chain[1].Prev)
		assert.Equal(t, chain[2].Token, chain[1].Next)
		assert.Equal(t, chain[1].Token, chain[2].Prev)
		assert.Empty(t, chain[2].Next)

		// A chain must never cross into another channel.
		for _, sd := range chain {
			if sd.Next != "" {
				assert.Equal(t, sd.CalibratedSensorToken, tokens[sd.Next])
			}
		}
	}
}

func TestTablesAreIndentedJSON(t *testing.T) {
	memfs, _ := runExport(t, 1, false, nil)

	data, err := memfs.ReadFile("out/v1.0-all/scene.json")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("[\n  {")), "expected a two-space indented array, got %q", data[:10])
	assert.True(t, bytes.HasSuffix(data, []byte("]\n")))

	var scenes []nuscenes.Scene
	require.NoError(t, json.Unmarshal(data, &scenes))
	require.Len(t, scenes, 1)
	assert.Equal(t, "lot_b", scenes[0].Name)
}

func TestEmptyRelationWritesEmptyArray(t *testing.T) {
	memfs, stats := runExport(t, 2, false, nil)
	assert.Equal(t, 0, stats.AnnotationsConverted)

	for _, name := range []string{"instance.json", "sample_annotation.json"} {
		data, err := memfs.ReadFile("out/v1.0-all/" + name)
		require.NoError(t, err)
		assert.Equal(t, "[]\n", string(data), name)
	}
}

func TestReportWritten(t *testing.T) {
	memfs, _ := runExport(t, 2, true, func(p *Packager) { p.Report = true })

	data, err := memfs.ReadFile("out/report.html")
	require.NoError(t, err)
	assert.Contains(t, string(data), "Annotations per sample")
	assert.Contains(t, string(data), "Instances per category")
}

func TestReportSkippedByDefault(t *testing.T) {
	memfs, _ := runExport(t, 1, false, nil)
	assert.False(t, memfs.Exists("out/report.html"))
}

func TestArchiveContents(t *testing.T) {
	memfs, _ := runExport(t, 2, true, func(p *Packager) {
		p.Report = true
		p.Archive = true
	})

	data, err := memfs.ReadFile("out.zip")
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	// 4 payloads + 1 map + 13 tables + report.html
	require.Len(t, zr.File, 19)

	names := make(map[string]bool, len(zr.File))
	for _, f := range zr.File {
		names[f.Name] = true
	}
	assert.True(t, names["samples/LIDAR_TOP/lot_b_LIDAR_TOP_1000000000.pcd"])
	assert.True(t, names["maps/"+nuscenes.MapToken("lot_b")+".png"])
	assert.True(t, names["v1.0-all/scene.json"])
	assert.True(t, names["report.html"])

	for _, f := range zr.File {
		if f.Name != "samples/LIDAR_TOP/lot_b_LIDAR_TOP_1000000000.pcd" {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		content := new(bytes.Buffer)
		_, err = content.ReadFrom(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, "pcd 1000000000", content.String())
	}
}

func TestArchiveSkippedByDefault(t *testing.T) {
	memfs, _ := runExport(t, 1, false, nil)
	assert.False(t, memfs.Exists("out.zip"))
}

func TestArchivePath(t *testing.T) {
	assert.Equal(t, "out.zip", New(nil, nil, "out", "L", 1).ArchivePath())
	assert.Equal(t, "out.zip", New(nil, nil, "out/", "L", 1).ArchivePath())
	assert.Equal(t, "export/run1.zip", New(nil, nil, "export/run1", "L", 1).ArchivePath())
}

func TestChainSampleData(t *testing.T) {
	sd := func(token, cal string, ts int64) nuscenes.SampleData {
		return nuscenes.SampleData{Token: token, CalibratedSensorToken: cal, Timestamp: ts}
	}
	records := []nuscenes.SampleData{
		sd("a2", "lidar", 200),
		sd("b1", "cam", 100),
		sd("a1", "lidar", 100),
		sd("b2", "cam", 200),
	}

	chainSampleData(records)

	byToken := make(map[string]nuscenes.SampleData, len(records))
	for _, r := range records {
		byToken[r.Token] = r
	}

	assert.Empty(t, byToken["a1"].Prev)
	assert.Equal(t, "a2", byToken["a1"].Next)
	assert.Equal(t, "a1", byToken["a2"].Prev)
	assert.Empty(t, byToken["a2"].Next)

	assert.Empty(t, byToken["b1"].Prev)
	assert.Equal(t, "b2", byToken["b1"].Next)
	assert.Equal(t, "b1", byToken["b2"].Prev)
	assert.Empty(t, byToken["b2"].Next)
}

func TestMaterializeFrameWritesPayloads(t *testing.T) {
	memfs := fsutil.NewMemoryFileSystem()
	fetch := &stubFetcher{fs: memfs}
	p := New(memfs, fetch, "out", "LIDAR_TOP", 4)

	payloads := []convert.Payload{
		{Locator: "/a", RelPath: "samples/L/one.pcd"},
		{Locator: "/b", RelPath: "samples/C/two.jpg"},
		{Locator: "/c", RelPath: "samples/L/three.pcd"},
	}
	require.NoError(t, p.MaterializeFrame(context.Background(), payloads))

	assert.True(t, memfs.Exists("out/samples/L/one.pcd"))
	assert.True(t, memfs.Exists("out/samples/C/two.jpg"))
	assert.True(t, memfs.Exists("out/samples/L/three.pcd"))
	assert.Len(t, fetch.Calls(), 3)
}

func TestMaterializeFrameFailurePropagates(t *testing.T) {
	memfs := fsutil.NewMemoryFileSystem()
	fetch := &stubFetcher{fs: memfs, fail: "/b"}
	p := New(memfs, fetch, "out", "LIDAR_TOP", 2)

	payloads := []convert.Payload{
		{Locator: "/a", RelPath: "samples/L/one.pcd"},
		{Locator: "/b", RelPath: "samples/C/two.jpg"},
	}
	err := p.MaterializeFrame(context.Background(), payloads)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestMaterializeFrameEmptyIsNoop(t *testing.T) {
	p := New(fsutil.NewMemoryFileSystem(), nil, "out", "LIDAR_TOP", 2)
	assert.NoError(t, p.MaterializeFrame(context.Background(), nil))
}

func TestMaterializeFrameRejectsEscapingPath(t *testing.T) {
	memfs := fsutil.NewMemoryFileSystem()
	fetch := &stubFetcher{fs: memfs}
	p := New(memfs, fetch, "out", "LIDAR_TOP", 1)

	payloads := []convert.Payload{
		{Locator: "/a", RelPath: "../outside.pcd"},
	}
	err := p.MaterializeFrame(context.Background(), payloads)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path traversal")
	assert.Empty(t, fetch.Calls(), "nothing may be fetched to an escaping destination")
}

func TestFinishCanceledContext(t *testing.T) {
	p := New(fsutil.NewMemoryFileSystem(), nil, "out", "LIDAR_TOP", 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Finish(ctx, &nuscenes.TableSet{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAuditFindings(t *testing.T) {
	memfs := fsutil.NewMemoryFileSystem()
	p := New(memfs, nil, "out", "LIDAR_TOP", 1)

	tables := &nuscenes.TableSet{
		SampleData: []nuscenes.SampleData{{
			Token:                 "t",
			CalibratedSensorToken: "c",
			Fileformat:            "pcd",
			Filename:              "samples/LIDAR_TOP/lot_b_LIDAR_TOP_1.pcd",
		}},
	}

	findings := p.audit(tables)
	assert.Contains(t, findings, "audit: directory samples missing")
	assert.Contains(t, findings, "audit: table file scene.json missing")
	assert.Contains(t, findings, "audit: payload samples/LIDAR_TOP/lot_b_LIDAR_TOP_1.pcd missing")
	assert.Contains(t, findings, "audit: no point clouds for main channel LIDAR_TOP")
}
