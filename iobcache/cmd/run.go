package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sarchlab/iobcache/cache"
	"github.com/sarchlab/iobcache/datarecording"
	"github.com/sarchlab/iobcache/monitoring"
	"github.com/sarchlab/iobcache/sim"
	"github.com/sarchlab/iobcache/testbench"
	"github.com/sarchlab/iobcache/tracing"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run test programs against a simulated cache.",
	Long: `Run builds a cache over an ideal memory, runs the selected test ` +
		`programs, and prints PASS or FAIL for each, followed by the ` +
		`control registers of every cache level.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts, err := readRunOptions(cmd.Flags())
		if err != nil {
			return err
		}

		return runTests(cmd.OutOrStdout(), opts)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd.Flags())
}

func addRunFlags(f *pflag.FlagSet) {
	d := cache.DefaultConfig()

	f.StringSlice("test", []string{"all"},
		"Programs to run: simple, data, address, lru, ctrl, random or all.")
	f.Int("ways", d.NumWays, "Number of ways.")
	f.Int("lines", d.NumLines, "Number of lines per way.")
	f.Int("line-size", d.LineSize, "Line size in bytes.")
	f.Int("word-size", d.WordSize, "Word size in bytes, 4 or 8.")
	f.Int("addr-width", d.AddressWidth, "Front-end byte address width.")
	f.Int("wtb-depth", d.WriteBufferDepth, "Write buffer depth.")
	f.String("write-policy", string(d.WritePolicy),
		"Write policy: write_back or write_through.")
	f.String("replacement", string(d.ReplacementPolicy),
		"Replacement policy: lru, plru_mru or plru_tree.")
	f.String("front-end", string(d.FrontEnd), "Front end: iob or port.")
	f.Bool("no-ctrl", false, "Do not map the control registers.")
	f.Bool("no-ctrl-cnt", false, "Disable the hit and miss counters.")

	f.Bool("l2", false, "Add a write-back L2 cache below the cache.")
	f.Int("l2-ways", 8, "Number of ways of the L2 cache.")
	f.Int("l2-lines", 256, "Number of lines per way of the L2 cache.")
	f.Int("l2-line-size", 32, "Line size of the L2 cache in bytes.")

	f.Int("mem-latency", 10, "Memory latency in cycles.")
	f.Int("mem-jitter", 0, "Maximum random extra memory latency in cycles.")
	f.Int("burst-width", 0, "Bytes the memory moves per cycle, 0 for all.")
	f.Int64("seed", 1, "Seed of the random program and the memory jitter.")

	f.String("trace-db", "", "Record the request tasks into this SQLite file.")
	f.String("record-db", "",
		"Record the reports and the registers into this SQLite file.")

	f.Bool("monitor", false, "Serve the monitoring web page.")
	f.Int("monitor-port", 0, "Port of the monitoring server.")
	f.Bool("open-browser", false, "Open the monitoring page in a browser.")
	f.Bool("hold", false,
		"Keep the monitoring server running after the programs finish.")

	f.Bool("log-events", false, "Log every event.")
	f.Bool("log-transactions", false, "Log every completed request.")
	f.Bool("log-states", false, "Also log the state transitions.")
	f.Bool("log-msgs", false, "Log the messages sent through every port.")
}

type runOptions struct {
	tests    []string
	config   cache.Config
	l2       *cache.Config
	latency  int
	jitter   int
	burst    int
	seed     int64
	traceDB  string
	recordDB string

	monitor     bool
	monitorPort int
	openBrowser bool
	hold        bool

	logEvents       bool
	logTransactions bool
	logStates       bool
	logMsgs         bool
}

type flagReader struct {
	f   *pflag.FlagSet
	err error
}

func (r *flagReader) getInt(name string) int {
	v, err := r.f.GetInt(name)
	r.keep(err)

	return v
}

func (r *flagReader) getBool(name string) bool {
	v, err := r.f.GetBool(name)
	r.keep(err)

	return v
}

func (r *flagReader) getString(name string) string {
	v, err := r.f.GetString(name)
	r.keep(err)

	return v
}

func (r *flagReader) keep(err error) {
	if r.err == nil {
		r.err = err
	}
}

func readRunOptions(f *pflag.FlagSet) (runOptions, error) {
	r := &flagReader{f: f}
	opts := runOptions{}

	opts.config = cache.Config{
		NumWays:           r.getInt("ways"),
		NumLines:          r.getInt("lines"),
		LineSize:          r.getInt("line-size"),
		WordSize:          r.getInt("word-size"),
		AddressWidth:      r.getInt("addr-width"),
		WriteBufferDepth:  r.getInt("wtb-depth"),
		WritePolicy:       cache.WritePolicy(r.getString("write-policy")),
		ReplacementPolicy: cache.ReplacementPolicy(r.getString("replacement")),
		UseCtrl:           !r.getBool("no-ctrl"),
		UseCtrlCnt:        !r.getBool("no-ctrl-cnt"),
		FrontEnd:          cache.FrontEndKind(r.getString("front-end")),
	}

	if r.getBool("l2") {
		l2 := opts.config
		l2.NumWays = r.getInt("l2-ways")
		l2.NumLines = r.getInt("l2-lines")
		l2.LineSize = r.getInt("l2-line-size")
		l2.WritePolicy = cache.WriteBack
		l2.FrontEnd = cache.FrontEndPort
		opts.l2 = &l2
	}

	opts.latency = r.getInt("mem-latency")
	opts.jitter = r.getInt("mem-jitter")
	opts.burst = r.getInt("burst-width")
	opts.traceDB = r.getString("trace-db")
	opts.recordDB = r.getString("record-db")
	opts.monitor = r.getBool("monitor")
	opts.monitorPort = r.getInt("monitor-port")
	opts.openBrowser = r.getBool("open-browser")
	opts.hold = r.getBool("hold")
	opts.logEvents = r.getBool("log-events")
	opts.logTransactions = r.getBool("log-transactions")
	opts.logStates = r.getBool("log-states")
	opts.logMsgs = r.getBool("log-msgs")

	seed, err := f.GetInt64("seed")
	r.keep(err)
	opts.seed = seed

	tests, err := f.GetStringSlice("test")
	r.keep(err)
	opts.tests = tests

	if r.err != nil {
		return opts, r.err
	}

	if err := opts.config.Validate(); err != nil {
		return opts, fmt.Errorf("invalid cache: %w", err)
	}

	if opts.l2 != nil {
		if err := opts.l2.Validate(); err != nil {
			return opts, fmt.Errorf("invalid L2 cache: %w", err)
		}

		if err := opts.config.ValidateLower(*opts.l2); err != nil {
			return opts, fmt.Errorf("invalid L2 cache: %w", err)
		}
	}

	return opts, nil
}

func selectPrograms(
	names []string,
	cfg cache.Config,
	seed int64,
) ([]testbench.Program, error) {
	var programs []testbench.Program

	for _, name := range names {
		if name == "all" {
			programs = append(programs, testbench.AllTests(cfg, seed)...)
			continue
		}

		p, err := testbench.ProgramByName(name, cfg, seed)
		if err != nil {
			return nil, err
		}

		programs = append(programs, p)
	}

	return programs, nil
}

func buildPlatform(opts runOptions) *testbench.Platform {
	b := testbench.MakePlatformBuilder().
		WithCacheConfig(opts.config).
		WithMemLatency(opts.latency).
		WithMemJitter(opts.jitter).
		WithBurstWidth(opts.burst).
		WithSeed(opts.seed)

	if opts.l2 != nil {
		b = b.WithL2(*opts.l2)
	}

	return b.Build("TB")
}

type stats struct {
	cache   *cache.Comp
	steps   *tracing.StepCountTracer
	latency *tracing.AverageTimeTracer
	drains  *tracing.TotalTimeTracer
}

func attachStats(p *testbench.Platform) []stats {
	var all []stats

	for _, c := range p.Caches() {
		s := stats{
			cache:   c,
			steps:   tracing.NewStepCountTracer(tracing.KindIs("req_in")),
			latency: tracing.NewAverageTimeTracer(p.Engine, tracing.KindIs("req_in")),
			drains:  tracing.NewTotalTimeTracer(p.Engine, tracing.KindIs("wb_drain")),
		}
		tracing.CollectTrace(c, s.steps)
		tracing.CollectTrace(c, s.latency)
		tracing.CollectTrace(c, s.drains)

		all = append(all, s)
	}

	return all
}

func attachLoggers(p *testbench.Platform, opts runOptions) {
	logger := log.New(os.Stdout, "", 0)

	if opts.logEvents {
		p.Engine.AcceptHook(sim.NewEventLogger(logger))
	}

	if opts.logTransactions {
		for _, c := range p.Caches() {
			h := cache.NewTransactionLogger(logger)
			h.LogStates = opts.logStates
			c.AcceptHook(h)
		}
	}

	if opts.logMsgs {
		h := sim.NewPortMsgLogger(logger, p.Engine)
		for _, c := range p.Components() {
			for _, port := range c.Ports() {
				port.AcceptHook(h)
			}
		}
	}

	if opts.traceDB != "" {
		tracer := tracing.NewDBTracer(p.Engine, datarecording.New(opts.traceDB))
		for _, c := range p.Caches() {
			tracing.CollectTrace(c, tracer)
		}
	}
}

// progressHook advances a progress bar for every completed request.
type progressHook struct {
	bar *monitoring.ProgressBar
}

func (h progressHook) Func(ctx sim.HookCtx) {
	if ctx.Pos == cache.HookPosReqDone {
		h.bar.IncrementFinished(1)
	}
}

func startMonitor(
	p *testbench.Platform,
	opts runOptions,
	programs []testbench.Program,
) *monitoring.Monitor {
	m := monitoring.NewMonitor().WithPortNumber(opts.monitorPort)
	m.RegisterEngine(p.Engine)

	for _, c := range p.Components() {
		m.RegisterComponent(c)
	}

	total := 0
	for _, prog := range programs {
		total += len(prog.Ops)
	}

	bar := m.CreateProgressBar("Ops", uint64(total))
	p.Cache.AcceptHook(progressHook{bar: bar})

	url := m.StartServer()
	if opts.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			log.Printf("cannot open browser: %v", err)
		}
	}

	return m
}

func runTests(w io.Writer, opts runOptions) error {
	programs, err := selectPrograms(opts.tests, opts.config, opts.seed)
	if err != nil {
		return err
	}

	p := buildPlatform(opts)
	st := attachStats(p)
	attachLoggers(p, opts)

	if opts.monitor {
		startMonitor(p, opts, programs)
	}

	reports, runErr := p.Run(programs...)

	failed := printReports(w, reports)
	printStats(w, st)

	if se, ok := p.Engine.(*sim.SerialEngine); ok {
		fmt.Fprintf(w, "\nevents handled: %d\n", se.NumEventsHandled())
	}

	if opts.recordDB != "" {
		record(opts.recordDB, reports, p.Caches())
	}

	if opts.monitor && opts.hold {
		fmt.Fprintln(os.Stderr, "Simulation finished. Press Ctrl+C to exit.")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		<-ctx.Done()
		stop()
	}

	if runErr != nil {
		return runErr
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d programs failed", failed, len(reports))
	}

	return nil
}

func printReports(w io.Writer, reports []testbench.ProgramReport) int {
	pass := color.New(color.FgGreen, color.Bold).SprintFunc()
	fail := color.New(color.FgRed, color.Bold).SprintFunc()
	failed := 0

	for _, r := range reports {
		verdict := pass("PASS")
		if !r.Passed() {
			verdict = fail("FAIL")
			failed++
		}

		fmt.Fprintf(w, "%-8s %s  ops=%d cycles=%d\n",
			r.Name, verdict, r.Ops, r.EndCycle-r.StartCycle)

		for _, f := range r.Failures {
			fmt.Fprintf(w, "    %s\n", f.Error())
		}
	}

	return failed
}

func printStats(w io.Writer, all []stats) {
	for _, s := range all {
		fmt.Fprintf(w, "\n%s: hits=%d misses=%d avg_latency=%.2f cycles\n",
			s.cache.Name(),
			s.steps.GetStepCount("hit"),
			s.steps.GetStepCount("miss"),
			float64(s.latency.AverageTime())*float64(1*sim.GHz))
		fmt.Fprintf(w, "  write buffer: drains=%d busy=%.0f cycles\n",
			s.drains.TaskCount(),
			float64(s.drains.TotalTime())*float64(1*sim.GHz))

		printRegisters(w, s.cache.ControlPlane())
	}
}

func printRegisters(w io.Writer, cp *cache.ControlPlane) {
	snapshot := cp.Snapshot()

	for _, r := range cache.Registers() {
		if r.Writable {
			continue
		}

		fmt.Fprintf(w, "  %-11s %d\n", r.Name, snapshot[r.Name])
	}
}

type reportEntry struct {
	Program    string
	Ops        int
	Failures   int
	StartCycle uint64
	EndCycle   uint64
}

type registerEntry struct {
	Cache    string
	Register string
	Value    uint32
}

func record(path string, reports []testbench.ProgramReport, caches []*cache.Comp) {
	recorder := datarecording.New(path)
	recorder.CreateTable("program_reports", reportEntry{})
	recorder.CreateTable("registers", registerEntry{})

	for _, r := range reports {
		recorder.InsertData("program_reports", reportEntry{
			Program:    r.Name,
			Ops:        r.Ops,
			Failures:   len(r.Failures),
			StartCycle: r.StartCycle,
			EndCycle:   r.EndCycle,
		})
	}

	for _, c := range caches {
		snapshot := c.ControlPlane().Snapshot()
		for _, reg := range cache.Registers() {
			if reg.Writable {
				continue
			}

			recorder.InsertData("registers", registerEntry{
				Cache:    c.Name(),
				Register: reg.Name,
				Value:    snapshot[reg.Name],
			})
		}
	}

	recorder.Flush()
}
