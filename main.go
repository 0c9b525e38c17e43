package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"

	"github.com/banshee-data/dataset.export/internal/config"
	"github.com/banshee-data/dataset.export/internal/convert"
	"github.com/banshee-data/dataset.export/internal/fsutil"
	"github.com/banshee-data/dataset.export/internal/httputil"
	"github.com/banshee-data/dataset.export/internal/packager"
	"github.com/banshee-data/dataset.export/internal/runstore"
	"github.com/banshee-data/dataset.export/internal/scene"
	"github.com/banshee-data/dataset.export/internal/storage"
	"github.com/banshee-data/dataset.export/internal/version"
)

var (
	scenePath   = flag.String("scene", "", "scene document to export (JSON)")
	outRoot     = flag.String("out", "", "output directory for the dataset")
	mainChannel = flag.String("main-channel", "", "override the scene's main lidar channel")
	objectTypes = flag.String("object-types", "", "comma-separated annotation types to keep (empty keeps all)")
	minPoints   = flag.Int("min-points", 0, "drop annotations with fewer lidar points")
	frameStep   = flag.Int("frame-step", 1, "export every Nth frame")
	maxFrames   = flag.Int("max-frames", 0, "stop after this many frames (0 = all)")
	parallel    = flag.Int("parallel", 0, "concurrent payload fetches (0 = config default)")
	withArchive = flag.Bool("archive", false, "zip the finished dataset next to the output directory")
	withReport  = flag.Bool("report", false, "write report.html into the dataset")
	listRuns    = flag.Int("runs", 0, "print the most recent export runs and exit")
	configPath  = flag.String("config", "", "export settings file (JSON)")
	showVersion = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("dataset-export %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg := config.EmptyExportConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadExportConfig(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	if *listRuns > 0 {
		if err := printRuns(cfg.GetLedgerPath(), *listRuns); err != nil {
			log.Fatalf("list runs: %v", err)
		}
		return
	}

	if *scenePath == "" || *outRoot == "" {
		log.Fatal("both -scene and -out are required")
	}

	fs := fsutil.OSFileSystem{}
	sc, err := scene.Load(fs, *scenePath)
	if err != nil {
		log.Fatalf("load scene: %v", err)
	}
	if *mainChannel != "" {
		sc.MainChannel = *mainChannel
	}

	workers := *parallel
	if workers <= 0 {
		workers = cfg.GetParallelFetch()
	}

	opts := scene.Options{
		ObjectTypes:   splitTypes(*objectTypes),
		MinPoints:     *minPoints,
		FrameStep:     *frameStep,
		MaxFrames:     *maxFrames,
		ParallelFetch: workers,
		Archive:       *withArchive,
		Report:        *withReport,
	}

	fetcher := &storage.Router{
		Local: &storage.LocalFetcher{FS: fs},
		HTTP: &storage.HTTPFetcher{
			Client: httputil.NewStandardClient(&http.Client{Timeout: cfg.GetFetchTimeout()}),
			FS:     fs,
		},
		COS: &storage.COSFetcher{
			FS:        fs,
			Region:    cfg.GetCOSRegion(),
			SecretID:  cfg.GetCOSSecretID(),
			SecretKey: cfg.GetCOSSecretKey(),
			Timeout:   cfg.GetFetchTimeout(),
		},
	}

	pkg := packager.New(fs, fetcher, *outRoot, sc.MainChannel, workers)
	pkg.Report = opts.Report
	pkg.Archive = opts.Archive

	conv, err := convert.New(sc, opts, nil, nil, pkg)
	if err != nil {
		log.Fatalf("configure conversion: %v", err)
	}

	bar := pb.Full.Start(len(opts.SelectFrames(sc.Frames)))
	bar.Set("prefix", "Exporting frames: ")
	bar.Set(pb.CleanOnFinish, true)
	conv.SetProgress(func(done, _ int) { bar.SetCurrent(int64(done)) })

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	stats, runErr := conv.Run(ctx)
	bar.Finish()

	recordRun(cfg.GetLedgerPath(), sc.Name, *outRoot, stats, started, runErr)

	if runErr != nil {
		log.Fatalf("export failed: %v", runErr)
	}

	fmt.Printf("Exported scene %s to %s\n", sc.Name, *outRoot)
	fmt.Printf("  frames:      %s (%s skipped)\n",
		humanize.Comma(int64(stats.FramesProcessed)), humanize.Comma(int64(stats.FramesSkipped)))
	fmt.Printf("  annotations: %s across %s instances\n",
		humanize.Comma(int64(stats.AnnotationsConverted)), humanize.Comma(int64(stats.InstancesCreated)))
	fmt.Printf("  records:     %s\n", humanize.Comma(int64(stats.RecordsWritten)))
	if *withArchive {
		fmt.Printf("  archive:     %s\n", pkg.ArchivePath())
	}
	for _, warning := range stats.Errors {
		log.Printf("warning: %s", warning)
	}
}

// splitTypes parses the comma-separated -object-types value.
func splitTypes(s string) []string {
	if s == "" {
		return nil
	}
	var types []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	return types
}

// recordRun appends the run to the ledger. Ledger trouble must not fail an
// export that already finished, so it only logs.
func recordRun(ledgerPath, sceneName, outRoot string, stats convert.Stats, started time.Time, runErr error) {
	store, err := runstore.Open(ledgerPath)
	if err != nil {
		log.Printf("open run ledger: %v", err)
		return
	}
	defer store.Close()

	status := runstore.StatusCompleted
	if runErr != nil {
		status = runstore.StatusFailed
	}
	run := runstore.Run{
		SceneName:   sceneName,
		OutputRoot:  outRoot,
		Frames:      stats.FramesProcessed,
		Annotations: stats.AnnotationsConverted,
		Instances:   stats.InstancesCreated,
		ErrorCount:  len(stats.Errors),
		Status:      status,
		StartedAt:   started,
		FinishedAt:  time.Now(),
	}
	if _, err := store.RecordRun(run); err != nil {
		log.Printf("record run: %v", err)
	}
}

// printRuns lists the most recent ledger entries, newest first.
func printRuns(ledgerPath string, limit int) error {
	store, err := runstore.Open(ledgerPath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no export runs recorded")
		return nil
	}

	fmt.Printf("%-4s %-20s %-10s %10s %12s %10s  %s\n",
		"ID", "SCENE", "STATUS", "FRAMES", "ANNOTATIONS", "DURATION", "FINISHED")
	for _, r := range runs {
		fmt.Printf("%-4d %-20s %-10s %10s %12s %10s  %s\n",
			r.ID, r.SceneName, r.Status,
			humanize.Comma(int64(r.Frames)),
			humanize.Comma(int64(r.Annotations)),
			r.Duration().Round(time.Second),
			humanize.Time(r.FinishedAt))
	}
	return nil
}
