package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-kmslab/internal/checks"
	"github.com/coreman2200/funtimes-kmslab/internal/config"
	diagn "github.com/coreman2200/funtimes-kmslab/internal/diagnostics"
	"github.com/coreman2200/funtimes-kmslab/internal/drm"
	"github.com/coreman2200/funtimes-kmslab/internal/edid"
	"github.com/coreman2200/funtimes-kmslab/internal/fb"
	"github.com/coreman2200/funtimes-kmslab/internal/kms"
	"github.com/coreman2200/funtimes-kmslab/internal/kms/fake"
	"github.com/coreman2200/funtimes-kmslab/internal/ws"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ---- Flags (config.yaml can override most) ----
	var (
		driver     = flag.String("driver", "drm", "driver: drm | sim")
		device     = flag.String("device", drm.DefaultDevice, "DRM card node")
		style      = flag.String("style", "universal", "commit style: legacy | universal")
		pattern    = flag.String("pattern", "bars", "surface pattern: solid | gradient | bars")
		color      = flag.Uint("color", 0xFF2060C0, "ARGB seed color for solid/gradient")
		checkList  = flag.String("checks", "modeset_each", "comma-separated checks to run")
		addr       = flag.String("addr", ":8089", "monitor listen address")
		monitor    = flag.Bool("monitor", false, "serve the websocket monitor")
		configPath = flag.String("config", "kmslab.yaml", "path to config.yaml")
		simOnly    = flag.Bool("sim-only", false, "force simulation (no hardware access)")
	)
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	// ---- Load config.yaml (optional) ----
	var cfg *config.Config
	if c, err := config.Load(*configPath); err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; proceeding with flags")
	} else {
		cfg = c
	}

	// ---- Effective params ----
	eDriver, eDevice, eStyle := *driver, *device, *style
	ePattern, eColor := *pattern, uint32(*color)
	eAddr := *addr
	eChecks := strings.Split(*checkList, ",")
	var eForce []config.ForceEntry
	serveMonitor := *monitor

	if cfg != nil {
		if cfg.Driver != "" {
			eDriver = cfg.Driver
		}
		if cfg.Device != "" {
			eDevice = cfg.Device
		}
		if cfg.Style != "" {
			eStyle = cfg.Style
		}
		if cfg.Pattern != "" {
			ePattern = cfg.Pattern
		}
		if cfg.Color != 0 {
			eColor = cfg.Color
		}
		if len(cfg.Checks) > 0 {
			eChecks = cfg.Checks
		}
		if cfg.Monitor.Addr != "" {
			eAddr = cfg.Monitor.Addr
		}
		serveMonitor = serveMonitor || cfg.Monitor.Enabled
		eForce = cfg.Force
	}
	if *simOnly {
		eDriver = "sim"
	}

	commitStyle := parseStyle(eStyle)

	// ---- Connector stimulus (hardware only, before discovery) ----
	if eDriver == "drm" && len(eForce) > 0 {
		applyStimulus(eDevice, eForce)
	}

	// ---- Driver selection: drm falls back to sim when the node won't open ----
	var (
		backend  kms.Backend
		surfaces checks.SurfaceFunc
	)
	selected := eDriver
	switch eDriver {
	case "drm":
		dev, err := drm.Open(eDevice)
		if err != nil {
			log.Warn().Err(err).Str("device", eDevice).Msg("DRM open failed; falling back to SIM")
		} else {
			defer dev.Close()
			provider := fb.NewProvider(dev)
			defer provider.Close()
			backend = dev
			surfaces = func(w, h uint32) (*kms.Framebuffer, error) {
				s, err := provider.Create(w, h, fb.Pattern(ePattern), eColor)
				if err != nil {
					return nil, err
				}
				return s.Framebuffer(), nil
			}
		}
	case "sim":
	default:
		log.Warn().Str("driver", eDriver).Msg("unknown driver; using SIM")
	}
	if backend == nil {
		backend = fake.NewUniversal()
		surfaces = tokenSurfaces()
		selected = "sim"
	}

	// ---- Display ----
	display, err := kms.NewDisplay(backend)
	if err != nil {
		log.Error().Err(err).Msg("display discovery failed")
		return 1
	}
	defer display.Close()

	state := ws.NewState(display, selected, commitStyle)

	// ---- Monitor routes ----
	var srv *http.Server
	if serveMonitor {
		mux := http.NewServeMux()
		mux.HandleFunc("/state", state.HandleStateWS)
		mux.HandleFunc("/diag", state.HandleDiagWS)
		mux.HandleFunc("/health", state.HandleHealth)
		srv = &http.Server{
			Addr:         eAddr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Info().Str("addr", eAddr).Msg("monitor starting")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("monitor crashed")
			}
		}()
	}

	// ---- Run checks ----
	failures := 0
	for _, name := range eChecks {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		r := checks.NewRunner(display, surfaces, checks.Plan{
			Kind:  checks.Kind(name),
			Style: commitStyle,
		})
		for _, d := range r.Run() {
			state.PushDiag(d)
			failures += logDiag(d)
		}
		state.NoteCommit()
	}
	log.Info().Int("failures", failures).Str("driver", selected).Msg("checks complete")

	// ---- Graceful shutdown (monitor keeps serving until signalled) ----
	if serveMonitor {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		s := <-ch
		log.Info().Str("signal", s.String()).Msg("shutting down")
		_ = srv.Close()
	}
	if failures > 0 {
		return 1
	}
	return 0
}

// logDiag mirrors one finding to the console, returning 1 for errors so
// the caller can tally failures.
func logDiag(d diagn.Diagnostic) int {
	ev := zerolog.Dict()
	for k, v := range d.Evidence {
		ev = ev.Interface(k, v)
	}
	switch d.Severity {
	case diagn.Err:
		log.Error().Str("code", d.Code).Dict("evidence", ev).Msg(d.Summary)
		return 1
	case diagn.Warn:
		log.Warn().Str("code", d.Code).Dict("evidence", ev).Msg(d.Summary)
	default:
		log.Info().Str("code", d.Code).Dict("evidence", ev).Msg(d.Summary)
	}
	return 0
}

func parseStyle(s string) kms.CommitStyle {
	switch s {
	case "legacy":
		return kms.CommitLegacy
	case "universal", "":
		return kms.CommitUniversal
	default:
		log.Warn().Str("style", s).Msg("unknown commit style; using universal")
		return kms.CommitUniversal
	}
}

// tokenSurfaces backs the sim driver: fb references with no memory behind
// them, which is all the fake backend needs.
func tokenSurfaces() checks.SurfaceFunc {
	next := uint32(1)
	return func(w, h uint32) (*kms.Framebuffer, error) {
		next++
		return &kms.Framebuffer{ID: next, Width: w, Height: h}, nil
	}
}

// applyStimulus forces connector status and EDID overrides through debugfs
// before the device is opened for discovery.
func applyStimulus(device string, entries []config.ForceEntry) {
	st := edid.NewStimulus(cardMinor(device))
	for _, e := range entries {
		if err := st.Force(e.Connector, edid.ForceState(e.State)); err != nil {
			log.Warn().Err(err).Str("connector", e.Connector).Msg("connector force failed")
		}
		if e.AltEDID {
			if err := st.Override(e.Connector, edid.Alt()); err != nil {
				log.Warn().Err(err).Str("connector", e.Connector).Msg("edid override failed")
			}
		}
	}
}

// cardMinor extracts the trailing number of a card node path; card0 -> 0.
func cardMinor(device string) int {
	i := len(device)
	for i > 0 && device[i-1] >= '0' && device[i-1] <= '9' {
		i--
	}
	if n, err := strconv.Atoi(device[i:]); err == nil {
		return n
	}
	return 0
}
