package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"

	plt "github.com/phil-mansfield/pyplot"

	"github.com/phil-mansfield/tgem"
	"github.com/phil-mansfield/tgem/avalanche"
	"github.com/phil-mansfield/tgem/h5out"
	"github.com/phil-mansfield/tgem/io"
	"github.com/phil-mansfield/tgem/logging"
	"github.com/phil-mansfield/tgem/render"
	"github.com/phil-mansfield/tgem/store"
	"github.com/phil-mansfield/tgem/telemetry"
)

const (
	gainBins        = 50
	hdf5Compression = 4
)

type FileGroup struct {
	log, prof *os.File
}

func (fg *FileGroup) Close() {
	if fg.log != nil {
		err := fg.log.Close()
		if err != nil { log.Fatal(err.Error()) }
	}

	if fg.prof != nil {
		pprof.StopCPUProfile()
		err := fg.prof.Close()
		if err != nil { log.Fatal(err.Error()) }
	}
}

func main() {
	var (
		avalancheFile, plotGain string
		exampleConfig           string
		verbose                 bool
	)
	vars := map[string]*string{
		"Avalanche":     &avalancheFile,
		"PlotGain":      &plotGain,
		"ExampleConfig": &exampleConfig,
	}

	flag.StringVar(
		&avalancheFile, "Avalanche", "",
		"Configuration file for [Avalanche] mode.",
	)
	flag.StringVar(
		&plotGain, "PlotGain", "",
		"Configuration file for [PlotGain] mode.",
	)
	flag.StringVar(
		&exampleConfig,
		"ExampleConfig", "", "Prints an example configuration file of the " +
			"specified type to stdout. Accepted arguments are 'Avalanche' " +
			"and 'PlotGain'.",
	)
	flag.BoolVar(&verbose, "Verbose", false, "Log debugging messages.")

	flag.Parse()

	modeName, err := getModeName(vars)
	if err != nil { log.Fatal(err.Error()) }

	level := slog.LevelInfo
	if verbose { level = slog.LevelDebug }

	switch modeName {
	case "Avalanche":
		wrap, err := io.ReadAvalancheConfig(avalancheFile)
		if err != nil { log.Fatal(err.Error()) }

		fg := setupFiles(&wrap.Output.SharedConfig, level)
		defer fg.Close()

		avalancheMain(wrap)

	case "PlotGain":
		con, err := io.ReadPlotGainConfig(plotGain)
		if err != nil { log.Fatal(err.Error()) }
		slog.SetDefault(logging.New(os.Stderr, level))

		plotGainMain(con)

	case "ExampleConfig":
		switch exampleConfig {
		case "Avalanche":
			fmt.Println(io.ExampleAvalancheFile)
		case "PlotGain":
			fmt.Println(io.ExamplePlotGainFile)
		default:
			log.Fatal(
				"Unrecognized 'ExampleConfig' argument. Only recognized " +
					"arguments are 'Avalanche' and 'PlotGain'.",
			)
		}
	default:
		panic("Impossible")
	}
}

func getModeName(vars map[string]*string) (string, error) {
	setNames := []string{}

	for name, varPtr := range vars {
		if *varPtr != "" { setNames = append(setNames, name) }
	}

	if len(setNames) == 0 {
		return "", fmt.Errorf("No flags have been set.")
	}

	if len(setNames) > 1 {
		return "", fmt.Errorf(
			"The following flags were set: %s, but tgem " +
				"only accepts one flag at a time.",
			strings.Join(setNames, ", "),
		)
	}

	return setNames[0], nil
}

// setupFiles opens the log and profile files and installs the default
// logger.
func setupFiles(con *io.SharedConfig, level slog.Level) *FileGroup {
	var err error
	fg := new(FileGroup)

	out := os.Stderr
	if con.ValidLogFile() {
		fg.log, err = os.Create(con.LogFile)
		if err != nil { log.Fatal(err.Error()) }
		out = fg.log
	}
	slog.SetDefault(logging.New(out, level))

	if con.ValidProfileFile() {
		fg.prof, err = os.Create(con.ProfileFile)
		if err != nil { log.Fatal(err.Error()) }
		err = pprof.StartCPUProfile(fg.prof)
		if err != nil { log.Fatal(err.Error()) }
	}

	return fg
}

func avalancheMain(wrap *io.AvalancheWrapper) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := &wrap.Output
	shutdown, err := telemetry.Setup(ctx, out.TraceEndpoint, "tgem")
	if err != nil { log.Fatal(err.Error()) }
	defer shutdown(context.Background())

	a := &wrap.Avalanche
	sinks := []tgem.Sink{}
	opts := []avalanche.Option{}
	if out.HDF5File != "" {
		w, err := h5out.Create(out.HDF5File, hdf5Compression)
		if err != nil { log.Fatal(err.Error()) }
		defer w.Close()
		sinks = append(sinks, w)
		if out.Trajectories { opts = append(opts, avalanche.WithObserver(w)) }
	}

	det, err := tgem.NewDetector(wrap, slog.Default(), opts...)
	if err != nil { log.Fatal(err.Error()) }

	if out.ValidDatabase() && out.DSN != "" {
		db, err := store.Open(out.Driver, out.DSN)
		if err != nil { log.Fatal(err.Error()) }
		defer db.Close()
		if err = db.Migrate(ctx); err != nil { log.Fatal(err.Error()) }
		camp, err := db.NewCampaign(ctx, uint64(a.Seed), a.Runs)
		if err != nil { log.Fatal(err.Error()) }
		sinks = append(sinks, camp)
		fmt.Printf("# Campaign %d\n", camp.ID)
	}

	c := &tgem.Campaign{
		Tracker: det.Tracker, Start: tgem.Start(a),
		Runs: a.Runs, Seed: uint64(a.Seed), Parallel: a.Parallel,
		Sinks: sinks,
	}
	sum, err := c.Run(ctx)
	if err != nil { log.Fatal(err.Error()) }

	if det.Map != nil && det.Map.Warnings() > 0 {
		slog.Warn("field map warnings", "count", det.Map.Warnings())
	}

	fmt.Printf("# %d avalanches\n", a.Runs)
	fmt.Printf("# Mean electrons: %.6g\n", sum.Mean)
	fmt.Printf("# Variance: %.6g\n", sum.Variance)
	fmt.Printf("# Truncated: %d\n", sum.Truncated)
	fmt.Println("# Run Electrons Ions")
	for i := range sum.Electrons {
		fmt.Printf("%6d %9d %9d\n", i, sum.Electrons[i], sum.Ions[i])
	}

	if out.GainPlot != "" {
		plotGain(sum.Electrons, out.GainPlot, gainBins, false)
	}
}

func plotGainMain(con *io.PlotGainConfig) {
	db, err := store.Open(con.Driver, con.DSN)
	if err != nil { log.Fatal(err.Error()) }
	defer db.Close()

	sizes, err := db.RunSizes(context.Background(), con.Campaign)
	if err != nil { log.Fatal(err.Error()) }

	plotGain(sizes, con.Output, con.Bins, con.LogY)
}

func plotGain(sizes []int, fname string, bins int, logY bool) {
	h, err := render.NewGainHistogram(sizes, bins)
	if err != nil { log.Fatal(err.Error()) }
	h.PlotGain(fname, logY)
	plt.Execute()
	slog.Info("wrote gain histogram", "file", fname, "runs", h.Runs)
}
