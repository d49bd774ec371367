// kmsdump prints the display topology of a card: pipes, their planes, and
// every connector with its modes.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-kmslab/internal/drm"
	"github.com/coreman2200/funtimes-kmslab/internal/kms"
	"github.com/coreman2200/funtimes-kmslab/internal/kms/fake"
)

func main() {
	var (
		device = flag.String("device", drm.DefaultDevice, "DRM card node")
		sim    = flag.Bool("sim", false, "dump the simulated topology instead of hardware")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	var backend kms.Backend
	if *sim {
		backend = fake.NewUniversal()
	} else {
		dev, err := drm.Open(*device)
		if err != nil {
			log.Fatal().Err(err).Str("device", *device).Msg("open failed")
		}
		defer dev.Close()
		backend = dev
	}

	display, err := kms.NewDisplay(backend)
	if err != nil {
		log.Fatal().Err(err).Msg("discovery failed")
	}
	defer display.Close()

	planeModel := "legacy (primary+cursor)"
	if display.HasUniversalPlanes() {
		planeModel = "universal"
	}
	fmt.Printf("pipes: %d, plane model: %s\n", display.PipeCount(), planeModel)

	for i := 0; i < display.PipeCount(); i++ {
		p := display.Pipe(i)
		fmt.Printf("pipe %s (crtc %d)\n", p.Name(), p.CRTC())
		if p.SupportsBackground() {
			fmt.Printf("  background color: supported\n")
		}
		for j := 0; j < p.PlaneCount(); j++ {
			pl := p.Plane(j)
			rot := ""
			if pl.SupportsRotation() {
				rot = ", rotation"
			}
			fmt.Printf("  plane %d: %s%s\n", pl.Index(), pl.Role(), rot)
		}
	}

	for _, out := range display.Outputs() {
		if !out.Valid() {
			fmt.Printf("output %s: disconnected\n", out.Name())
			continue
		}
		cfg := out.Config()
		fmt.Printf("output %s: connected, pipe %s reachable (encoder %d)\n",
			out.Name(), kms.PipeName(cfg.CRTCIndex), cfg.Encoder.ID)
		for _, m := range cfg.Connector.Modes {
			mark := ""
			if m.Preferred {
				mark = " (preferred)"
			}
			fmt.Printf("  %s @%dHz%s\n", m.Name, m.VRefresh, mark)
		}
	}
}
