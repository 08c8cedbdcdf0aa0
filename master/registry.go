// Package master is the server list service. Game servers register and
// heartbeat; clients list them to pick one, including how deep each one
// rewinds shots.
package master

import (
	"cmp"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ServerInfo describes a game server visible to clients.
type ServerInfo struct {
	ID string `json:"id"`
	Announcement
	DisputeRate float64 `json:"disputeRate"`
}

// Query narrows a listing. Zero fields match everything.
type Query struct {
	Version string  // Keep servers that require it or accept any version
	PingMs  float64 // Keep servers whose rewind covers this round trip
}

type serverRecord struct {
	ServerInfo
	LastSeen time.Time
}

// Registry is an in-memory store of active game servers with TTL-based expiry.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]*serverRecord
	ttl     time.Duration
	now     func() time.Time
	stopCh  chan struct{}
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		servers: make(map[string]*serverRecord),
		ttl:     ttl,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// Start runs expiry in the background until Stop.
func (r *Registry) Start() {
	go r.cleanupLoop()
}

func (r *Registry) Stop() {
	close(r.stopCh)
}

func (r *Registry) Register(a Announcement) string {
	info := ServerInfo{ID: uuid.NewString(), Announcement: a, DisputeRate: a.DisputeRate()}

	r.mu.Lock()
	r.servers[info.ID] = &serverRecord{
		ServerInfo: info,
		LastSeen:   r.now(),
	}
	r.mu.Unlock()

	return info.ID
}

// Heartbeat refreshes id with its latest status. It reports false for an
// unknown or expired id.
func (r *Registry) Heartbeat(id string, st Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.servers[id]
	if !ok {
		return false
	}
	rec.LastSeen = r.now()
	rec.Status = st
	rec.DisputeRate = st.DisputeRate()
	return true
}

// List returns the servers matching q, least disputed first, then by name.
func (r *Registry) List(q Query) []ServerInfo {
	r.mu.RLock()
	result := make([]ServerInfo, 0, len(r.servers))
	for _, rec := range r.servers {
		if q.Version != "" && rec.Version != "" && rec.Version != q.Version {
			continue
		}
		if q.PingMs > 0 && !rec.Compensates(q.PingMs) {
			continue
		}
		result = append(result, rec.ServerInfo)
	}
	r.mu.RUnlock()

	slices.SortFunc(result, func(a, b ServerInfo) int {
		if c := cmp.Compare(a.DisputeRate, b.DisputeRate); c != 0 {
			return c
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result
}

// Expire drops servers not seen for the TTL and returns how many went.
func (r *Registry) Expire() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	n := 0
	for id, rec := range r.servers {
		if now.Sub(rec.LastSeen) >= r.ttl {
			log.Printf("[master] expired server %q (id=%s, last seen %s ago)",
				rec.Name, id, now.Sub(rec.LastSeen).Round(time.Second))
			delete(r.servers, id)
			n++
		}
	}
	return n
}

func (r *Registry) cleanupLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.Expire()
		}
	}
}
