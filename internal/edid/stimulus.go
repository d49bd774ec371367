package edid

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// ForceState is a value accepted by the connector force node.
type ForceState string

const (
	ForceOn      ForceState = "on"
	ForceDigital ForceState = "digital"
	ForceOff     ForceState = "off"
	ForceDetect  ForceState = "detect" // back to real probing
)

// Stimulus drives the per-connector debugfs nodes of one card. Applied
// before discovery; the engine never sees these writes, only their effect
// on the reported topology.
type Stimulus struct {
	root string // .../dri/<minor>
}

// NewStimulus targets the debugfs tree of card minor.
func NewStimulus(minor int) *Stimulus {
	return &Stimulus{root: fmt.Sprintf("/sys/kernel/debug/dri/%d", minor)}
}

// NewStimulusAt targets an explicit debugfs directory. Tests point this at
// a tempdir.
func NewStimulusAt(root string) *Stimulus {
	return &Stimulus{root: root}
}

func (s *Stimulus) node(connector, name string) string {
	return filepath.Join(s.root, connector, name)
}

// Force pins a connector's reported status.
func (s *Stimulus) Force(connector string, state ForceState) error {
	log.Debug().Str("connector", connector).Str("state", string(state)).Msg("forcing connector")
	if err := os.WriteFile(s.node(connector, "force"), []byte(state), 0o644); err != nil {
		return fmt.Errorf("edid: force %s: %w", connector, err)
	}
	return nil
}

// Override replaces the EDID the connector reports.
func (s *Stimulus) Override(connector string, b Block) error {
	log.Debug().Str("connector", connector).Stringer("block", b).Msg("overriding edid")
	if err := os.WriteFile(s.node(connector, "edid_override"), b[:], 0o644); err != nil {
		return fmt.Errorf("edid: override %s: %w", connector, err)
	}
	return nil
}

// ClearOverride restores the connector's own EDID.
func (s *Stimulus) ClearOverride(connector string) error {
	if err := os.WriteFile(s.node(connector, "edid_override"), []byte("reset"), 0o644); err != nil {
		return fmt.Errorf("edid: clear override %s: %w", connector, err)
	}
	return nil
}
