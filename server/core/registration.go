package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/automoto/rewind/config"
	"github.com/automoto/rewind/master"
)

// StatusSource reports the live part of a listing. *Server satisfies it.
type StatusSource interface {
	Status() master.Status
}

// Announce describes this server to the master, advertising the configured
// tick rate and the deepest rewind the estimator can apply.
func Announce(name, address, version, region string, maxPlayers int) master.Announcement {
	return master.Announcement{
		Name:        name,
		Address:     address,
		MaxPlayers:  maxPlayers,
		Version:     version,
		Region:      region,
		TickRate:    config.Server.TickRate,
		MaxRewindMs: float64(config.LagComp.MaxRewind()) / float64(time.Millisecond),
	}
}

// Registration registers with the master server and keeps the listing's
// status current through heartbeats.
type Registration struct {
	masterURL string
	serverID  string
	announce  master.Announcement
	source    StatusSource
	client    *http.Client
	stopCh    chan struct{}
}

// NewRegistration prepares registration with the master server at
// masterURL. Nothing is sent until Start.
func NewRegistration(masterURL string, a master.Announcement, source StatusSource) *Registration {
	return &Registration{
		masterURL: masterURL,
		announce:  a,
		source:    source,
		client:    &http.Client{Timeout: 5 * time.Second},
		stopCh:    make(chan struct{}),
	}
}

// Start registers and begins heartbeating in the background.
func (r *Registration) Start() {
	if err := r.register(); err != nil {
		log.Printf("[registration] initial registration failed: %v", err)
	}
	go r.heartbeatLoop()
}

// ID returns the id the master assigned, empty before registration.
func (r *Registration) ID() string {
	return r.serverID
}

func (r *Registration) Stop() {
	close(r.stopCh)
}

func (r *Registration) register() error {
	a := r.announce
	a.Status = r.source.Status()

	resp, err := r.post("/servers/register", a)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result master.Registered
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	r.serverID = result.ID
	log.Printf("[registration] registered with master (id=%s, rewind=%.0fms)", r.serverID, a.MaxRewindMs)
	return nil
}

func (r *Registration) heartbeatLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if err := r.sendHeartbeat(); err != nil {
				log.Printf("[registration] heartbeat failed: %v", err)
			}
		}
	}
}

func (r *Registration) sendHeartbeat() error {
	st := r.source.Status()
	resp, err := r.post("/servers/heartbeat", master.HeartbeatRequest{ID: r.serverID, Status: st})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if st.ShotsVerified > 0 {
			log.Printf("[registration] heartbeat: %d players, mean rtt %.0fms, %.1f%% of %d shots disputed",
				st.Players, st.MeanRTTMs, st.DisputeRate()*100, st.ShotsVerified)
		}
		return nil
	case http.StatusNotFound:
		log.Println("[registration] master lost our registration, re-registering")
		return r.register()
	default:
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}

func (r *Registration) post(path string, v any) (*http.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	resp, err := r.client.Post(r.masterURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("post: %w", err)
	}
	return resp, nil
}
