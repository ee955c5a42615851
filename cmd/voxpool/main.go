// Command voxpool runs the voice pool engine against the configured pools and samples
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gopxl/beep"

	"github.com/lixenwraith/voxpool/asset"
	"github.com/lixenwraith/voxpool/chain"
	"github.com/lixenwraith/voxpool/config"
	"github.com/lixenwraith/voxpool/core"
	"github.com/lixenwraith/voxpool/engine"
	"github.com/lixenwraith/voxpool/event"
	"github.com/lixenwraith/voxpool/graph"
	"github.com/lixenwraith/voxpool/pool"
	"github.com/lixenwraith/voxpool/render"
	"github.com/lixenwraith/voxpool/service"
	"github.com/lixenwraith/voxpool/status"
)

var (
	configFlag  = flag.String("config", "", "Path to a TOML configuration file")
	debugFlag   = flag.Bool("debug", false, "Write diagnostics to logs/voxpool.log")
	monitorFlag = flag.Bool("monitor", false, "Show live pool occupancy and metrics in the terminal")
	demoFlag    = flag.Bool("demo", false, "Submit scripted requests against the configured pools")
	muteFlag    = flag.Bool("mute", false, "Render without opening an audio device")
)

func main() {
	flag.Parse()

	if logFile := setupLogging(*debugFlag); logFile != nil {
		defer logFile.Close()
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "voxpool: %v\n", err)
		os.Exit(1)
	}
}

// app holds the wired subsystems
type app struct {
	cfg      *config.Config
	reg      *status.Registry
	bank     *asset.Bank
	renderer *render.Renderer
	output   *render.Output
	engine   *engine.Engine
	hub      *service.Hub
	pools    []pool.Config
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		if err := cfg.ApplyEnv(); err != nil {
			return nil, err
		}
		return cfg, cfg.Validate()
	}
	return config.Load(path)
}

// newApp builds assets -> render -> engine and registers them with a hub
func newApp(cfg *config.Config, mute, demo bool) (*app, error) {
	pools, err := cfg.PoolConfigs(chain.DefaultRegistry())
	if err != nil {
		return nil, err
	}
	if demo && len(pools) == 0 {
		pools = append(pools, demoPool())
	}

	files := make([]asset.File, 0, len(cfg.Samples))
	for _, s := range cfg.Samples {
		files = append(files, asset.File{Ref: graph.SampleRef(s.Ref), Path: s.Path})
	}

	reg := status.NewRegistry()
	bank := asset.NewBank(beep.SampleRate(cfg.Engine.SampleRate))
	r := render.New(bank, bank.Format().SampleRate, reg)
	r.SetMasterVolume(cfg.Engine.MasterVolume)
	out := render.NewOutput(r, cfg.Buffer(), mute, reg)
	eng := engine.New(r, engine.Options{
		Interval: cfg.SyncInterval(),
		Registry: reg,
		Pools:    pools,
	})

	hub := service.NewHub()
	for _, svc := range []service.Service{asset.NewService(bank, files), out, eng} {
		if err := hub.Register(svc); err != nil {
			return nil, err
		}
	}
	return &app{cfg: cfg, reg: reg, bank: bank, renderer: r, output: out, engine: eng, hub: hub, pools: pools}, nil
}

func run() error {
	cfg, err := loadConfig(*configFlag)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, *muteFlag, *demoFlag)
	if err != nil {
		return err
	}

	var d *demo
	if *demoFlag {
		if d, err = a.prepareDemo(); err != nil {
			return err
		}
	}

	a.engine.Subscribe(event.HandleFunc(func(n event.Notification) {
		log.Printf("engine: %s", n)
	}, event.RequestDropped, event.CommandRejected, event.PoolGrown, event.PoolRemoved))

	if err := a.hub.InitAll(); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := a.hub.StartAll(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer func() {
		if err := a.hub.StopAll(); err != nil {
			log.Printf("voxpool: shutdown: %v", err)
		}
	}()

	stop := make(chan struct{})
	defer close(stop)
	if d != nil {
		core.Go(func() { d.run(stop) })
	}

	if *monitorFlag {
		return a.runMonitor(stop)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	<-sig
	return nil
}

// prepareDemo synthesizes the demo tones and targets every configured pool
func (a *app) prepareDemo() (*demo, error) {
	if err := addDemoTones(a.bank); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(a.pools))
	for _, p := range a.pools {
		names = append(names, p.Name)
	}
	samples := make([]graph.SampleRef, 0, len(demoTones))
	for _, t := range demoTones {
		samples = append(samples, t.ref)
	}
	return newDemo(a.engine, names, samples, uint64(time.Now().UnixNano()))
}

func (a *app) runMonitor(stop <-chan struct{}) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	core.SetCrashTerminal(screen)
	defer func() {
		core.SetCrashTerminal(nil)
		screen.Fini()
	}()

	restart := func() error {
		return a.output.Restart(a.cfg.Buffer())
	}
	newMonitor(screen, a.engine, a.renderer, a.reg, restart).run(stop)
	return nil
}
