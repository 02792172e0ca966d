// Command pvmon runs a set of configured display elements against live
// process variables and logs every state change. It is the headless
// harness for the element runtimes: sim and Modbus providers, channel
// registry, audit log, and statistics, wired the way a display manager
// would wire them.
package main

import (
	"context"
	"flag"
	"fmt"
	"image/color"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/rtsoliday/pvdisplay/cmd/pvmon/internal/config"
	"github.com/rtsoliday/pvdisplay/pkg/audit"
	"github.com/rtsoliday/pvdisplay/pkg/channels"
	"github.com/rtsoliday/pvdisplay/pkg/dispatch"
	"github.com/rtsoliday/pvdisplay/pkg/display"
	"github.com/rtsoliday/pvdisplay/pkg/errors"
	"github.com/rtsoliday/pvdisplay/pkg/pv"
	"github.com/rtsoliday/pvdisplay/pkg/pv/modbuspv"
	"github.com/rtsoliday/pvdisplay/pkg/pv/sim"
	"github.com/rtsoliday/pvdisplay/pkg/runtime"
	"github.com/rtsoliday/pvdisplay/pkg/stats"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pvmon:", err)
		os.Exit(1)
	}
}

func run() error {
	// .env overrides are optional; absence is not an error.
	_ = godotenv.Load()

	cfgPath := flag.String("config", envOr("PVMON_CONFIG", "pvmon.yaml"), "configuration file")
	statsEvery := flag.Duration("stats", time.Minute, "summary log interval, 0 disables")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	log := logrus.New()
	if lvl := envOr("PVMON_LOG_LEVEL", cfg.Log.Level); lvl != "" {
		level, err := logrus.ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		log.SetLevel(level)
	}
	errors.SetHandler(&errors.LogHandler{Logger: log})

	auditLog, err := openAudit(cfg, log)
	if err != nil {
		return err
	}
	defer auditLog.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	simProv := sim.NewProvider()
	seedSim(simProv, cfg.Provider.Sim)
	providers := map[pv.Scheme]pv.Provider{pv.SchemeSim: simProv}

	if mc := cfg.Provider.Modbus; mc != nil {
		prov, err := buildModbus(mc)
		if err != nil {
			return err
		}
		providers[pv.SchemeModbus] = prov
	}

	loop := dispatch.NewLoop()
	reg := channels.New(
		channels.ProviderMap(providers, pv.Scheme(cfg.Provider.Default)),
		loop,
		channels.Options{},
	)

	var runtimes []stoppable
	loop.Dispatch(func() {
		runtimes = buildElements(cfg, reg, auditLog, log)
		log.WithField("elements", len(runtimes)).Info("started")
	})

	go rampSim(ctx, simProv, cfg.Provider.Sim)
	if *statsEvery > 0 {
		go logStats(ctx, loop, reg, log, *statsEvery)
	}

	loop.Run(ctx)

	// Shutdown order matters: runtimes release their handles first, the
	// registry tears down remaining entries, providers close last.
	for _, rt := range runtimes {
		rt.Stop()
	}
	reg.Close()
	for _, prov := range providers {
		if err := prov.Close(); err != nil {
			log.WithError(err).Warn("provider close")
		}
	}
	log.Info("stopped")
	return nil
}

type stoppable interface{ Stop() }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func openAudit(cfg *config.Config, log *logrus.Logger) (*audit.Log, error) {
	if cfg.Audit.Disable || os.Getenv("PVMON_AUDIT_DISABLE") != "" {
		return nil, nil
	}
	path := envOr("PVMON_AUDIT", cfg.Audit.Path)
	if path == "" {
		return nil, nil
	}
	l, err := audit.Open(path)
	if err != nil {
		return nil, err
	}
	log.WithField("path", path).Info("audit log open")
	return l, nil
}

func buildModbus(mc *config.ModbusConfig) (pv.Provider, error) {
	points := make([]modbuspv.Point, 0, len(mc.Points))
	for _, p := range mc.Points {
		kind, err := modbuspv.ParseRegisterKind(p.Kind)
		if err != nil {
			return nil, err
		}
		precision := -1
		if p.Precision != nil {
			precision = *p.Precision
		}
		points = append(points, modbuspv.Point{
			Name:        p.Name,
			Kind:        kind,
			Address:     p.Address,
			Scale:       p.Scale,
			Offset:      p.Offset,
			DisplayLow:  p.Low,
			DisplayHigh: p.High,
			Precision:   precision,
		})
	}
	return modbuspv.NewTCP(
		modbuspv.TCPConfig{
			Endpoint: mc.Endpoint,
			UnitID:   mc.UnitID,
			Timeout:  time.Duration(mc.TimeoutMs) * time.Millisecond,
		},
		modbuspv.Options{
			Interval: time.Duration(mc.IntervalMs) * time.Millisecond,
			Points:   points,
		},
	)
}

func seedSim(prov *sim.Provider, sc config.SimConfig) {
	for _, p := range sc.Points {
		if len(p.Labels) > 0 {
			prov.Define(p.Name, pv.FieldEnum, 1)
			prov.SetControlInfo(p.Name, pv.ControlInfo{Precision: -1, EnumLabels: p.Labels})
			prov.SetEnum(p.Name, uint16(p.Value))
			continue
		}
		prov.Define(p.Name, pv.FieldDouble, 1)
		prov.SetControlInfo(p.Name, pv.ControlInfo{
			DisplayLow:  p.Low,
			DisplayHigh: p.High,
			Precision:   p.Precision,
		})
		prov.SetValue(p.Name, p.Value)
	}
}

// rampSim drives the configured ramp points once a second so a sim-only
// setup has something moving.
func rampSim(ctx context.Context, prov *sim.Provider, sc config.SimConfig) {
	values := make(map[string]float64)
	var ramps []config.SimPoint
	for _, p := range sc.Points {
		if p.Ramp {
			ramps = append(ramps, p)
			values[p.Name] = p.Value
		}
	}
	if len(ramps) == 0 {
		return
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range ramps {
				v := values[p.Name] + p.Step
				if p.High > p.Low && v > p.High {
					v = p.Low
				}
				values[p.Name] = v
				prov.SetValue(p.Name, v)
			}
		}
	}
}

func buildElements(cfg *config.Config, reg *channels.Registry, auditLog *audit.Log, log *logrus.Logger) []stoppable {
	var out []stoppable
	for i, el := range cfg.Elements {
		label := el.Label
		if label == "" {
			label = fmt.Sprintf("%s#%d", el.Type, i)
		}
		visibility, _ := config.ElementVisibility(el)
		colorMode, _ := config.ElementColorMode(el)
		rcfg := runtime.Config{
			Channels:    el.Channels,
			Visibility:  visibility,
			Expression:  el.Expression,
			Color:       colorMode,
			StaticColor: parseColor(el.Color),
		}
		onState := func(st runtime.State) {
			log.WithFields(logrus.Fields{
				"element":   label,
				"connected": st.Connected,
				"visible":   st.Visible,
				"severity":  st.Severity,
			}).Debug("state")
		}
		wopts := runtime.WritableOptions{
			Audit:   auditLog,
			Display: cfg.Schema,
			Bell:    func() { log.WithField("element", label).Warn("write rejected") },
		}
		var rt stoppable
		switch el.Type {
		case "text-entry":
			r := runtime.NewTextEntry(reg, rcfg, wopts, onState)
			r.Start()
			rt = r
		case "menu":
			r := runtime.NewMenu(reg, rcfg, wopts, onState)
			r.Start()
			rt = r
		case "message-button":
			r := runtime.NewMessageButton(reg, rcfg, el.PressValue, el.ReleaseValue, wopts, onState)
			r.Start()
			rt = r
		case "slider":
			r := runtime.NewSlider(reg, rcfg, wopts, onState)
			r.Start()
			rt = r
		default:
			r := runtime.NewGraphic(reg, rcfg, onState)
			r.Start()
			rt = r
		}
		out = append(out, rt)
	}
	return out
}

// parseColor resolves a named color or a decimal palette index.
func parseColor(s string) color.RGBA {
	if s == "" {
		return color.RGBA{A: 0xff}
	}
	if c, ok := display.NamedColor(s); ok {
		return c
	}
	if idx, err := strconv.Atoi(s); err == nil {
		return display.PaletteColor(idx)
	}
	return color.RGBA{A: 0xff}
}

// logStats periodically dumps the registry summaries and process counters.
func logStats(ctx context.Context, loop *dispatch.Loop, reg *channels.Registry, log *logrus.Logger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			loop.Dispatch(func() {
				summaries := reg.Summaries()
				elapsed := reg.ResetUpdateCounters()
				for _, s := range summaries {
					rate := 0.0
					if elapsed > 0 {
						rate = float64(s.UpdateCount) / elapsed.Seconds()
					}
					log.WithFields(logrus.Fields{
						"pv":          s.Name,
						"connected":   s.Connected,
						"writable":    s.Writable,
						"subscribers": s.Subscribers,
						"rate":        fmt.Sprintf("%.1f/s", rate),
					}).Info("channel")
				}
				snap := stats.Default.Snapshot()
				log.WithFields(logrus.Fields{
					"channels": snap.ChannelsCreated - snap.ChannelsDestroyed,
					"events":   snap.ProtocolEvents,
					"updates":  snap.UpdatesExecuted,
				}).Info("stats")
			})
		}
	}
}
