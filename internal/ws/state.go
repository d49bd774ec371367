package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	diag "github.com/coreman2200/funtimes-kmslab/internal/diagnostics"
	"github.com/coreman2200/funtimes-kmslab/internal/kms"
)

// State is the live monitor: it snapshots the display after every commit
// and streams snapshots and diagnostics to connected clients. The harness
// runs fine without any client attached.
type State struct {
	mu      sync.RWMutex
	display *kms.Display

	Driver string
	Style  kms.CommitStyle

	commits     uint64
	startTime   time.Time
	clients     map[*websocket.Conn]bool
	diagClients map[*websocket.Conn]bool
}

func NewState(d *kms.Display, driver string, style kms.CommitStyle) *State {
	return &State{
		display:     d,
		Driver:      driver,
		Style:       style,
		startTime:   time.Now(),
		clients:     map[*websocket.Conn]bool{},
		diagClients: map[*websocket.Conn]bool{},
	}
}

// NoteCommit records one commit and pushes a fresh snapshot to every
// state client.
func (s *State) NoteCommit() {
	s.mu.Lock()
	s.commits++
	s.mu.Unlock()
	s.broadcastSnapshot()
}

func (s *State) HandleStateWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()
	s.sendSnapshot(conn)

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *State) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.diagClients[conn] = true
	s.mu.Unlock()
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.diagClients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *State) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resp := map[string]any{
		"driver":   s.Driver,
		"style":    s.Style.String(),
		"commits":  s.commits,
		"uptime_s": time.Since(s.startTime).Seconds(),
		"pipes":    s.display.PipeCount(),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// PushDiag streams one finding to every diagnostics client.
func (s *State) PushDiag(d diag.Diagnostic) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, _ := json.Marshal(d)
	for c := range s.diagClients {
		c.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		_ = c.WriteMessage(websocket.TextMessage, b)
	}
}

type planeSnapshot struct {
	Index    int    `json:"index"`
	Role     string `json:"role"`
	FB       uint32 `json:"fb"`
	X        int32  `json:"x"`
	Y        int32  `json:"y"`
	W        uint32 `json:"w"`
	H        uint32 `json:"h"`
	Rotation uint32 `json:"rotation,omitempty"`
	Dirty    bool   `json:"dirty"`
}

type pipeSnapshot struct {
	Name    string          `json:"name"`
	Enabled bool            `json:"enabled"`
	Output  string          `json:"output,omitempty"`
	Planes  []planeSnapshot `json:"planes"`
}

type outputSnapshot struct {
	Name  string `json:"name"`
	Valid bool   `json:"valid"`
	Pipe  string `json:"pipe,omitempty"`
	Mode  string `json:"mode,omitempty"`
}

func (s *State) snapshot() map[string]any {
	d := s.display
	pipes := make([]pipeSnapshot, 0, d.PipeCount())
	for i := 0; i < d.PipeCount(); i++ {
		p := d.Pipe(i)
		ps := pipeSnapshot{Name: p.Name(), Enabled: p.Enabled()}
		if out := p.Output(); out != nil {
			ps.Output = out.Name()
		}
		for j := 0; j < p.PlaneCount(); j++ {
			pl := p.Plane(j)
			x, y := pl.Position()
			w, h := pl.Size()
			snap := planeSnapshot{
				Index:    pl.Index(),
				Role:     pl.Role().String(),
				X:        x,
				Y:        y,
				W:        w,
				H:        h,
				Rotation: uint32(pl.Rotation()),
				Dirty:    pl.Dirty().Any(),
			}
			if fb := pl.FB(); fb != nil {
				snap.FB = fb.ID
			}
			ps.Planes = append(ps.Planes, snap)
		}
		pipes = append(pipes, ps)
	}

	var outs []outputSnapshot
	for _, o := range d.Outputs() {
		snap := outputSnapshot{Name: o.Name(), Valid: o.Valid()}
		if o.Valid() {
			snap.Mode = o.Mode().Name
			if pipe := o.CurrentPipe(); pipe != kms.PipeNone {
				snap.Pipe = kms.PipeName(pipe)
			}
		}
		outs = append(outs, snap)
	}

	return map[string]any{
		"t":       time.Now().UnixNano(),
		"commits": s.commits,
		"driver":  s.Driver,
		"style":   s.Style.String(),
		"pipes":   pipes,
		"outputs": outs,
	}
}

func (s *State) sendSnapshot(conn *websocket.Conn) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, _ := json.Marshal(s.snapshot())
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

func (s *State) broadcastSnapshot() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, _ := json.Marshal(s.snapshot())
	for c := range s.clients {
		c.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Debug().Err(err).Msg("write snapshot")
		}
	}
}
