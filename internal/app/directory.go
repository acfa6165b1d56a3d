package app

import (
	"sync"

	"github.com/dkeye/Proctor/internal/core"
	"github.com/dkeye/Proctor/internal/domain"
	"github.com/dkeye/Proctor/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Directory resolves connection ids to live handles. It holds no membership;
// rooms only ever store ids.
type Directory struct {
	mu    sync.RWMutex
	conns map[domain.ConnectionID]core.Sender
}

func NewDirectory() *Directory {
	return &Directory{conns: make(map[domain.ConnectionID]core.Sender)}
}

func (d *Directory) Bind(s core.Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.conns[s.ID()]; !ok {
		metrics.ActiveConnections.Inc()
	}
	d.conns[s.ID()] = s
	log.Info().Str("module", "app.directory").Str("conn_id", string(s.ID())).Msg("bound connection")
}

func (d *Directory) Get(id domain.ConnectionID) (core.Sender, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.conns[id]
	return s, ok
}

// Unbind removes id and reports whether this call was the one that did it.
func (d *Directory) Unbind(id domain.ConnectionID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.conns[id]; !ok {
		return false
	}
	delete(d.conns, id)
	metrics.ActiveConnections.Dec()
	log.Info().Str("module", "app.directory").Str("conn_id", string(id)).Msg("unbound connection")
	return true
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.conns)
}
