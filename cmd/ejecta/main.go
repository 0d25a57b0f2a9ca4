package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/ejecta/internal/analysis"
	"github.com/san-kum/ejecta/internal/automation"
	"github.com/san-kum/ejecta/internal/config"
	"github.com/san-kum/ejecta/internal/dynamo"
	"github.com/san-kum/ejecta/internal/experiment"
	"github.com/san-kum/ejecta/internal/export"
	"github.com/san-kum/ejecta/internal/optim"
	"github.com/san-kum/ejecta/internal/sim"
	"github.com/san-kum/ejecta/internal/storage"
	"github.com/san-kum/ejecta/internal/telemetry"
	"github.com/san-kum/ejecta/internal/tui"
	"github.com/spf13/cobra"
)

var (
	dataDir     string
	verbose     bool
	metricsFile string

	preset    string
	model     string
	density   float64
	tempRef   float64
	holdTemp  bool
	timeUnit  string
	startTime float64
	endTime   float64
	points    int
	rtol      float64
	atol      float64
	maxSteps  int
	saveCfg   string

	live      bool
	frameRate int

	densities []float64
	parallel  int

	plotSpecies []string
	plotHeight  int
	plotWidth   int
	svgOut      string

	trials  int
	perturb float64
	seed    int64

	samples int
	top     int

	gridDensity []float64
	gridTemp    []float64
	gridEnd     []float64
	metricName  string
	maximize    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ejecta",
		Short: "chemical kinetics of supernova ejecta",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := tea.NewProgram(tui.NewInteractiveApp(experiment.NewRegistry()), tea.WithAltScreen()).Run()
			return err
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".ejecta", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write prometheus textfile metrics here")

	runCmd := &cobra.Command{
		Use:   "run [config]",
		Short: "integrate a network and store the trajectory",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addConfigFlags(runCmd)
	runCmd.Flags().StringVar(&saveCfg, "save-config", "", "write the resolved config to this path")
	runCmd.Flags().BoolVar(&live, "live", false, "draw abundances while integrating")
	runCmd.Flags().IntVar(&frameRate, "fps", 20, "frame rate for --live")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot log10 abundances of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&plotSpecies, "species", nil, "species to plot (default: all)")
	plotCmd.Flags().IntVar(&plotHeight, "height", 10, "plot height")
	plotCmd.Flags().IntVar(&plotWidth, "width", 80, "plot width")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export a stored trajectory as CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run metadata and trajectory as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "render log10 abundances of a stored run as SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().StringSliceVar(&plotSpecies, "species", nil, "species to draw (default: all)")
	exportSVGCmd.Flags().IntVar(&plotWidth, "width", 900, "image width")
	exportSVGCmd.Flags().IntVar(&plotHeight, "height", 500, "image height")
	exportSVGCmd.Flags().StringVarP(&svgOut, "out", "o", "", "output file (default: stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	speciesCmd := &cobra.Command{
		Use:   "species [config]",
		Short: "show the network species and check atom balance",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showSpecies,
	}
	addConfigFlags(speciesCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep [config]",
		Short: "run one network at several reference densities",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	addConfigFlags(sweepCmd)
	sweepCmd.Flags().Float64SliceVar(&densities, "densities", nil, "reference densities in cm^-3")
	sweepCmd.Flags().IntVar(&parallel, "parallel", 0, "concurrent runs (0 = unbounded)")
	_ = sweepCmd.MarkFlagRequired("densities")

	watchCmd := &cobra.Command{
		Use:   "watch [config]",
		Short: "integrate in an interactive progress view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  watch,
	}
	addConfigFlags(watchCmd)

	batchCmd := &cobra.Command{
		Use:   "batch [scenario]",
		Short: "run the steps of a yaml scenario in order",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo [config]",
		Short: "perturb initial abundances and report the spread of final abundances",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMonteCarlo,
	}
	addConfigFlags(monteCarloCmd)
	monteCarloCmd.Flags().IntVar(&trials, "trials", 20, "number of trials")
	monteCarloCmd.Flags().Float64Var(&perturb, "perturb", 0.1, "relative perturbation of initial abundances")
	monteCarloCmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 = time based)")
	monteCarloCmd.Flags().IntVar(&parallel, "parallel", 0, "concurrent runs (0 = unbounded)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [config]",
		Short: "integrate, then report stiffness and dominant reactions along the run",
		Args:  cobra.MaximumNArgs(1),
		RunE:  analyzeRun,
	}
	addConfigFlags(analyzeCmd)
	analyzeCmd.Flags().IntVar(&samples, "samples", 6, "trajectory points to analyze")
	analyzeCmd.Flags().IntVar(&top, "top", 5, "reactions to list per point")

	optimizeCmd := &cobra.Command{
		Use:   "optimize [config]",
		Short: "grid search density, temperature or end time for the best metric",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runOptimize,
	}
	addConfigFlags(optimizeCmd)
	optimizeCmd.Flags().Float64SliceVar(&gridDensity, "grid-density", nil, "reference densities to try")
	optimizeCmd.Flags().Float64SliceVar(&gridTemp, "grid-temperature", nil, "reference temperatures to try")
	optimizeCmd.Flags().Float64SliceVar(&gridEnd, "grid-end", nil, "end times to try")
	optimizeCmd.Flags().StringVar(&metricName, "metric", "y_CO", "metric to optimize")
	optimizeCmd.Flags().BoolVar(&maximize, "maximize", true, "maximize instead of minimize")

	rootCmd.AddCommand(analyzeCmd, optimizeCmd, runCmd, listCmd, plotCmd, exportCSVCmd, exportJSONCmd, exportSVGCmd, presetsCmd,
		speciesCmd, sweepCmd, watchCmd, batchCmd, monteCarloCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addConfigFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&preset, "preset", "", "preset as model/name, e.g. adiabatic/co")
	f.StringVar(&model, "model", config.DefaultModel, "physical model")
	f.Float64Var(&density, "density", config.DefaultDensity, "reference number density (cm^-3)")
	f.Float64Var(&tempRef, "temperature", 0, "reference temperature override (K)")
	f.BoolVar(&holdTemp, "hold-temperature", false, "keep T fixed (constant-density model)")
	f.StringVar(&timeUnit, "time-unit", config.DefaultTimeUnit, "time unit (years or days)")
	f.Float64Var(&startTime, "start", config.DefaultStartTime, "start time")
	f.Float64Var(&endTime, "end", config.DefaultEndTime, "end time")
	f.IntVar(&points, "points", config.DefaultReportPoints, "report points")
	f.Float64Var(&rtol, "rtol", config.DefaultRelTol, "relative tolerance")
	f.Float64Var(&atol, "atol", config.DefaultAbsTol, "absolute tolerance")
	f.IntVar(&maxSteps, "max-steps", config.DefaultMaxSteps, "step budget per report interval")
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig resolves the preset or config file and applies the flags the
// user actually set. With neither, the adiabatic CO preset is used.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case preset != "" && len(args) > 0:
		return nil, errors.New("give either a config file or --preset, not both")
	case preset != "":
		m, name, ok := strings.Cut(preset, "/")
		if !ok {
			return nil, fmt.Errorf("preset %q: want model/name", preset)
		}
		if cfg = config.GetPreset(m, name); cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available for %s: %v)", preset, m, config.ListPresets(m))
		}
	case len(args) > 0:
		loaded, err := config.Load(args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	default:
		cfg = config.GetPreset(config.DefaultModel, "co")
	}

	f := cmd.Flags()
	if f.Changed("model") {
		cfg.Model = model
	}
	if f.Changed("density") {
		cfg.ReferenceDensity = density
	}
	if f.Changed("temperature") {
		cfg.ReferenceTemperature = tempRef
	}
	if f.Changed("hold-temperature") {
		cfg.HoldTemperature = holdTemp
	}
	if f.Changed("time-unit") {
		cfg.TimeUnit = timeUnit
	}
	if f.Changed("start") {
		cfg.StartTime = startTime
	}
	if f.Changed("end") {
		cfg.EndTime = endTime
	}
	if f.Changed("points") {
		cfg.ReportPoints = points
	}
	if f.Changed("rtol") {
		cfg.RelTol = rtol
	}
	if f.Changed("atol") {
		cfg.AbsTol = atol
	}
	if f.Changed("max-steps") {
		cfg.MaxSteps = maxSteps
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func recordTelemetry(name string, res *sim.Result, err error) error {
	if metricsFile == "" {
		return nil
	}
	rec := telemetry.New()
	rec.Observe(name, res, err)
	return rec.WriteTextfile(metricsFile)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	if saveCfg != "" {
		if err := config.Save(saveCfg, cfg); err != nil {
			return err
		}
	}

	exp, err := experiment.Build(cfg)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	opts := []sim.Option{sim.WithLogger(newLogger().With("run", cfg.Name))}
	names := exp.Network().Names()
	var renderer *tui.LiveRenderer
	if live {
		renderer = tui.NewLiveRenderer(os.Stdout, cfg.Name, names, cfg.EndTime, frameRate)
		opts = append(opts, sim.WithObserver(renderer))
		renderer.Start()
	}

	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("integrating %s (%s, %d species, %d reactions)...\n",
		cfg.Name, cfg.Model, len(exp.Network().Species()), len(exp.Network().Reactions()))
	result, err := exp.Run(ctx, experiment.NewRegistry(), opts...)
	if renderer != nil {
		renderer.Stop()
	}
	if terr := recordTelemetry(cfg.Name, result, err); terr != nil {
		fmt.Fprintf(os.Stderr, "telemetry: %v\n", terr)
	}
	if err != nil {
		var simErr *dynamo.SimulationError
		if errors.As(err, &simErr) {
			return fmt.Errorf("integration failed after %d steps at t=%g: %w", simErr.Step, simErr.Time, simErr.Unwrap())
		}
		return err
	}

	runID, err := st.Save(cfg, names, result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", result.Elapsed)
	fmt.Printf("run id: %s\n", runID)
	printStats(result.Stats)
	printMetrics(result.Metrics)
	fmt.Println("\nfinal abundances:")
	return printAbundances(names, result.Final)
}

func printStats(st dynamo.Stats) {
	fmt.Printf("steps: %d (rejected %d)  rhs: %d  jacobians: %d  lu: %d\n",
		st.Steps, st.Rejected, st.Evaluations, st.JacobianEvaluations, st.LUDecompositions)
}

func printMetrics(m map[string]float64) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Println("\nmetrics:")
	for _, k := range keys {
		fmt.Printf("  %s: %.6e\n", k, m[k])
	}
}

func printAbundances(names []string, y dynamo.State) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  INDEX\tSPECIES\tABUNDANCE")
	for i := 1; i < len(y); i++ {
		if names[i] == "" {
			continue
		}
		fmt.Fprintf(w, "  %d\t%s\t%.6e\n", i, names[i], y[i])
	}
	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tTIME\tSPECIES\tSTEPS\tELAPSED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.2fs\n",
			run.ID,
			run.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			len(run.Species),
			run.Stats.Steps,
			run.Elapsed,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	tr, err := st.LoadTrajectory(args[0])
	if err != nil {
		return err
	}
	if len(tr.Times) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Model)
	fmt.Printf("samples: %d, t = %g .. %g %s\n\n", len(tr.Times), tr.Times[0], tr.Times[len(tr.Times)-1], meta.TimeUnit)

	species := plotSpecies
	if len(species) == 0 {
		species = tr.Species
	}
	for _, name := range species {
		series, err := tr.Series(name)
		if err != nil {
			return err
		}
		data := make([]float64, len(series))
		for i, v := range series {
			data[i] = math.Log10(math.Max(v, 1e-30))
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(plotHeight),
			asciigraph.Width(plotWidth),
			asciigraph.Caption("log10 "+name),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	tr, err := storage.New(dataDir).LoadTrajectory(args[0])
	if err != nil {
		return err
	}
	return storage.ExportCSV(os.Stdout, tr)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	tr, err := st.LoadTrajectory(args[0])
	if err != nil {
		return err
	}
	return storage.ExportJSON(os.Stdout, meta, tr)
}

func listPresets(cmd *cobra.Command, args []string) error {
	models := config.Models()
	if len(args) > 0 {
		models = args
	}
	for _, m := range models {
		presets := config.ListPresets(m)
		if len(presets) == 0 {
			fmt.Printf("no presets for model: %s\n", m)
			continue
		}
		fmt.Printf("presets for %s:\n", m)
		for _, p := range presets {
			cfg := config.GetPreset(m, p)
			fmt.Printf("  %-10s %d species, %d reactions\n", p, len(cfg.Species), len(cfg.Reactions))
		}
	}
	return nil
}

func showSpecies(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.Build(cfg)
	if err != nil {
		return err
	}
	net := exp.Network()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tSPECIES\tATOMS\tINITIAL")
	y0 := exp.InitialState()
	for _, s := range net.Species() {
		fmt.Fprintf(w, "%d\t%s\t%d\t%g\n", s.Index, s.Name, s.AtomCount, y0[s.Index])
	}
	if err := w.Flush(); err != nil {
		return err
	}

	pool := make([]string, 0, len(net.Pool()))
	names := net.Names()
	for _, i := range net.Pool() {
		pool = append(pool, names[i])
	}
	fmt.Printf("\n%d reactions, background pool M = %s\n", len(net.Reactions()), strings.Join(pool, " + "))

	bad := net.Unbalanced()
	if len(bad) == 0 {
		fmt.Println("all reactions conserve atoms")
		return nil
	}
	fmt.Printf("%d reactions do not conserve atoms:\n", len(bad))
	for _, r := range bad {
		fmt.Printf("  %4d  %s  (%+d)\n", r.ID, net.Label(r), net.Balance(r))
	}
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	base, err := experiment.Build(cfg)
	if err != nil {
		return err
	}

	reg := experiment.NewRegistry()
	logger := newLogger()
	jobs := make([]sim.Job, 0, len(densities))
	for _, n := range densities {
		exp, err := base.WithDensity(n)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("%s@%g", cfg.Name, n)
		s, err := exp.NewSimulator(reg, sim.WithLogger(logger.With("run", name)))
		if err != nil {
			return err
		}
		jobs = append(jobs, sim.Job{Name: name, Sim: s, Y0: exp.InitialState()})
	}

	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("sweeping %s over %d densities...\n", cfg.Name, len(jobs))
	results, err := sim.Sweep(ctx, jobs, base.Span(), parallel)
	if err != nil {
		return err
	}

	rec := telemetry.New()
	names := base.Network().Names()
	molecules := make([]int, 0)
	for _, s := range base.Network().Species() {
		if s.AtomCount >= 2 {
			molecules = append(molecules, s.Index)
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	header := []string{"DENSITY", "STEPS", "ELAPSED"}
	for _, i := range molecules {
		header = append(header, names[i])
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for k, res := range results {
		rec.Observe(jobs[k].Name, res, nil)
		row := []string{
			fmt.Sprintf("%.3e", densities[k]),
			fmt.Sprintf("%d", res.Stats.Steps),
			res.Elapsed.Round(time.Millisecond).String(),
		}
		for _, i := range molecules {
			row = append(row, fmt.Sprintf("%.4e", res.Final[i]))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if metricsFile != "" {
		return rec.WriteTextfile(metricsFile)
	}
	return nil
}

func watch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.Build(cfg)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(tui.NewWatch(experiment.NewRegistry(), exp), tea.WithAltScreen()).Run()
	return err
}

func exportSVG(cmd *cobra.Command, args []string) error {
	tr, err := storage.New(dataDir).LoadTrajectory(args[0])
	if err != nil {
		return err
	}
	svg, err := export.TrajectoryToSVG(tr, plotSpecies, plotWidth, plotHeight)
	if err != nil {
		return err
	}
	if svgOut == "" {
		_, err = fmt.Print(svg)
		return err
	}
	if err := os.WriteFile(svgOut, []byte(svg), 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", svgOut)
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("scenario %s: %d steps\n", sc.Name, len(sc.Steps))
	results, runErr := automation.RunScenario(ctx, sc, experiment.NewRegistry(), newLogger())

	st := storage.New(dataDir)
	rec := telemetry.New()
	for i, r := range results {
		rec.Observe(r.Config.Name, r.Result, nil)
		line := fmt.Sprintf("  %-20s steps=%-8d elapsed=%v", r.Config.Name, r.Result.Stats.Steps,
			r.Result.Elapsed.Round(time.Millisecond))
		if sc.Steps[i].Save {
			if err := st.Init(); err != nil {
				return err
			}
			id, err := st.Save(r.Config, r.Names, r.Result)
			if err != nil {
				return err
			}
			line += "  run id: " + id
		}
		fmt.Println(line)
	}
	if metricsFile != "" {
		if err := rec.WriteTextfile(metricsFile); err != nil {
			return err
		}
	}
	return runErr
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.Build(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("monte carlo %s: %d trials, perturbation %g\n", cfg.Name, trials, perturb)
	results, err := automation.RunMonteCarlo(ctx, exp, automation.MonteCarloConfig{
		Perturbation: perturb,
		NumTrials:    trials,
		Seed:         seed,
		Parallel:     parallel,
	}, experiment.NewRegistry())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SPECIES\tMEAN\tSTDDEV\tMIN\tMAX")
	for _, s := range automation.MonteCarloStats(results, exp.Network().Names()) {
		fmt.Fprintf(w, "%s\t%.4e\t%.2e\t%.4e\t%.4e\n", s.Name, s.Mean, s.StdDev, s.Min, s.Max)
	}
	return w.Flush()
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.Build(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	result, err := exp.Run(ctx, experiment.NewRegistry(), sim.WithLogger(newLogger().With("run", cfg.Name)))
	if err != nil {
		return err
	}

	profile, err := analysis.StiffnessProfile(exp.Assembler(), result.Times, result.States, samples)
	if err != nil {
		return err
	}

	unit := exp.Unit()
	for _, sp := range profile {
		c := exp.Provider().Conditions(sp.T)
		fmt.Printf("t=%-10.4g T=%-9.4g n=%-10.4e stiffness=%.3e  fastest=%.3e %s  slowest=%.3e %s\n",
			sp.T, c.Temperature, c.Density, sp.StiffnessRatio,
			sp.FastestTimescale(), unit, sp.SlowestTimescale(), unit)

		idx := sort.SearchFloat64s(result.Times, sp.T)
		fluxes, err := analysis.DominantReactions(exp.Assembler(), result.States[idx], sp.T, top)
		if err != nil {
			return err
		}
		for _, f := range fluxes {
			fmt.Printf("    %5.1f%%  %+.3e  %s\n", 100*f.Share, f.Flux, f.Label)
		}
	}
	return nil
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	var params []string
	var ranges [][]float64
	for _, g := range []struct {
		name   string
		values []float64
	}{
		{"density", gridDensity},
		{"temperature", gridTemp},
		{"end_time", gridEnd},
	} {
		if len(g.values) > 0 {
			params = append(params, g.name)
			ranges = append(ranges, g.values)
		}
	}
	if len(params) == 0 {
		return errors.New("give at least one of --grid-density, --grid-temperature, --grid-end")
	}

	search, err := optim.NewGridSearch(params, ranges, maximize)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	best, all, err := search.Search(ctx, cfg, experiment.NewRegistry(), metricName)
	for _, p := range all {
		if p.Err != nil {
			fmt.Printf("  %v  failed: %v\n", p.Params, p.Err)
			continue
		}
		fmt.Printf("  %v  %s=%.6e\n", p.Params, metricName, p.Value)
	}
	if err != nil {
		return err
	}
	fmt.Printf("best: %v  %s=%.6e\n", best.Params, metricName, best.Value)
	return nil
}
