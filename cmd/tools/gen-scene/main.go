// Command gen-scene generates a synthetic annotated scene for exercising the
// exporter end to end without real sensor captures.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"github.com/banshee-data/dataset.export/internal/scene"
)

const frameIntervalNs = 100_000_000 // 10 Hz

func main() {
	output := flag.String("o", "sample_scene", "output directory")
	frames := flag.Int("n", 20, "number of frames")
	name := flag.String("name", "synthetic", "scene name")
	flag.Parse()

	if err := run(*output, *name, *frames); err != nil {
		log.Fatalf("gen-scene: %v", err)
	}
}

func run(dir, name string, frames int) error {
	if frames < 1 {
		return fmt.Errorf("need at least one frame, got %d", frames)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	for _, d := range []string{"lidar", "front"} {
		if err := os.MkdirAll(filepath.Join(absDir, d), 0755); err != nil {
			return err
		}
	}

	sc := scene.Scene{
		Name:        name,
		MainChannel: "LIDAR_TOP",
		Calibration: map[string]scene.Calibration{
			"LIDAR_TOP": {
				Modality:    scene.ModalityLidar,
				Translation: [3]float64{0.94, 0, 1.84},
				Rotation:    [4]float64{1, 0, 0, 0},
			},
			"front": {
				Modality:    scene.ModalityCamera,
				Translation: [3]float64{1.72, 0, 1.51},
				Rotation:    [4]float64{0.5, -0.5, 0.5, -0.5},
				Intrinsic: [][]float64{
					{1266.42, 0, 816.27},
					{0, 1266.42, 491.51},
					{0, 0, 1},
				},
			},
		},
	}

	// Ego drives down a straight lane at 5 m/s past a parked car while a
	// pedestrian crosses from the right.
	const startNs = int64(1700000000000000000)
	for i := 0; i < frames; i++ {
		ts := startNs + int64(i)*frameIntervalNs
		egoX := 0.5 * float64(i)

		lidarPath := filepath.Join(absDir, "lidar", fmt.Sprintf("%d.pcd", ts))
		imagePath := filepath.Join(absDir, "front", fmt.Sprintf("%d.jpg", ts))
		if err := os.WriteFile(lidarPath, pointCloud(i), 0644); err != nil {
			return err
		}
		if err := os.WriteFile(imagePath, imageStub(i), 0644); err != nil {
			return err
		}

		sc.Frames = append(sc.Frames, scene.Frame{
			TimestampNs: ts,
			Lidar:       map[string]string{"LIDAR_TOP": lidarPath},
			Cameras:     map[string]string{"front": imagePath},
			EgoPose: &scene.EgoPose{
				Translation: [3]float64{egoX, 0, 0},
				Rotation:    [4]float64{1, 0, 0, 0},
			},
			Annotations: []scene.Annotation{
				{
					ObjID:   "1",
					ObjType: "Car",
					NumPts:  420,
					PSR: scene.PSR{
						Position: scene.Vector{X: 15 - egoX, Y: 3, Z: 0.8},
						Scale:    scene.Vector{X: 4.5, Y: 1.9, Z: 1.6},
						Rotation: scene.Rotation{W: 1},
					},
				},
				{
					ObjID:   "2",
					ObjType: "Pedestrian",
					NumPts:  90,
					PSR: scene.PSR{
						Position: scene.Vector{X: 8 - egoX, Y: -4 + 0.3*float64(i), Z: 0.9},
						Scale:    scene.Vector{X: 0.6, Y: 0.6, Z: 1.7},
						Rotation: scene.Rotation{W: 1},
					},
				},
			},
		})
	}

	data, err := json.MarshalIndent(&sc, "", "  ")
	if err != nil {
		return err
	}
	docPath := filepath.Join(absDir, "scene.json")
	if err := os.WriteFile(docPath, append(data, '\n'), 0644); err != nil {
		return err
	}

	log.Printf("✓ Created: %s (%d frames)", docPath, frames)
	return nil
}

// pointCloud renders a small ascii PCD: a ring of points around the sensor,
// radius drifting per frame so files differ.
func pointCloud(frame int) []byte {
	const n = 64
	var b bytes.Buffer
	fmt.Fprintf(&b, "# .PCD v0.7 - Point Cloud Data file format\n")
	fmt.Fprintf(&b, "VERSION 0.7\nFIELDS x y z intensity\nSIZE 4 4 4 4\nTYPE F F F F\nCOUNT 1 1 1 1\n")
	fmt.Fprintf(&b, "WIDTH %d\nHEIGHT 1\nVIEWPOINT 0 0 0 1 0 0 0\nPOINTS %d\nDATA ascii\n", n, n)
	for p := 0; p < n; p++ {
		angle := 2 * math.Pi * float64(p) / n
		r := 10 + 0.05*float64(frame)
		fmt.Fprintf(&b, "%.3f %.3f %.3f %.1f\n", r*math.Cos(angle), r*math.Sin(angle), 0.2, 50.0)
	}
	return b.Bytes()
}

// imageStub is marker bytes only, not a decodable JPEG. The exporter copies
// payloads without inspecting them.
func imageStub(frame int) []byte {
	return []byte{0xff, 0xd8, 0xff, 0xe0, byte(frame), 0xff, 0xd9}
}
