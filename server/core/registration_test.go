package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/automoto/rewind/master"
)

type fixedStatus master.Status

func (f *fixedStatus) Status() master.Status { return master.Status(*f) }

func TestRegistrationAdvertisesRewind(t *testing.T) {
	var got master.Announcement
	var beats []master.HeartbeatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/servers/register":
			_ = json.NewDecoder(r.Body).Decode(&got)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(master.Registered{ID: "srv-1"})
		case "/servers/heartbeat":
			var hb master.HeartbeatRequest
			_ = json.NewDecoder(r.Body).Decode(&hb)
			beats = append(beats, hb)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	st := &fixedStatus{Players: 3}
	r := NewRegistration(srv.URL, Announce("rewind", "127.0.0.1:7373", "1.0", "eu", 16), st)
	if err := r.register(); err != nil {
		t.Fatalf("register: %v", err)
	}
	if r.ID() != "srv-1" {
		t.Fatalf("id = %q", r.ID())
	}
	if got.Players != 3 || got.MaxPlayers != 16 || got.TickRate != 30 || got.MaxRewindMs < 199.9 || got.MaxRewindMs > 200.1 {
		t.Fatalf("registration = %+v", got)
	}

	*st = fixedStatus{Players: 4, MeanRTTMs: 85, ShotsVerified: 20, ShotsDisputed: 2}
	if err := r.sendHeartbeat(); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if len(beats) != 1 || beats[0].ID != "srv-1" {
		t.Fatalf("heartbeats = %+v", beats)
	}
	if b := beats[0].Status; b.Players != 4 || b.MeanRTTMs != 85 || b.ShotsVerified != 20 || b.ShotsDisputed != 2 {
		t.Fatalf("heartbeat status = %+v", b)
	}
}

func TestHeartbeatReregistersWhenForgotten(t *testing.T) {
	registrations := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/servers/register":
			registrations++
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(master.Registered{ID: "srv-2"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	r := NewRegistration(srv.URL, Announce("rewind", "127.0.0.1:7373", "", "", 16), &fixedStatus{})
	if err := r.sendHeartbeat(); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if registrations != 1 || r.ID() != "srv-2" {
		t.Fatalf("registrations = %d id = %q", registrations, r.ID())
	}
}

func TestRegistrationAgainstMaster(t *testing.T) {
	reg := master.NewRegistry(time.Minute)
	srv := httptest.NewServer(master.NewMux(reg))
	defer srv.Close()

	st := &fixedStatus{Players: 2}
	r := NewRegistration(srv.URL, Announce("rewind", "127.0.0.1:7373", "1.0", "eu", 8), st)
	if err := r.register(); err != nil {
		t.Fatalf("register: %v", err)
	}
	*st = fixedStatus{Players: 5, ShotsVerified: 8, ShotsDisputed: 2}
	if err := r.sendHeartbeat(); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	list := reg.List(master.Query{Version: "1.0", PingMs: 150})
	if len(list) != 1 || list[0].ID != r.ID() || list[0].Players != 5 || list[0].DisputeRate != 0.25 {
		t.Fatalf("list = %+v", list)
	}
	if list := reg.List(master.Query{PingMs: 250}); len(list) != 0 {
		t.Fatalf("a 250ms client is beyond the 200ms rewind, got %+v", list)
	}
}
