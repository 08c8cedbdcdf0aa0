package master

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
)

const maxRequestBody = 1 << 16 // 64 KB

// ListServers serves GET /servers. ?version= keeps compatible servers and
// ?ping= (milliseconds) keeps servers whose rewind covers that round trip.
func ListServers(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		q := Query{Version: r.URL.Query().Get("version")}
		if s := r.URL.Query().Get("ping"); s != "" {
			ping, err := strconv.ParseFloat(s, 64)
			if err != nil || ping < 0 {
				http.Error(w, `{"error":"invalid ping"}`, http.StatusBadRequest)
				return
			}
			q.PingMs = ping
		}

		if err := json.NewEncoder(w).Encode(reg.List(q)); err != nil {
			log.Printf("[master] list encode error: %v", err)
		}
	}
}

func RegisterServer(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		var a Announcement
		if !decode(w, r, &a) {
			return
		}
		if !a.valid() {
			http.Error(w, `{"error":"name, address and a sane rewind and status required"}`, http.StatusBadRequest)
			return
		}

		id := reg.Register(a)
		log.Printf("[master] registered server %q at %s (id=%s, tick=%d, rewind=%.0fms)",
			a.Name, a.Address, id, a.TickRate, a.MaxRewindMs)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Registered{ID: id})
	}
}

func Heartbeat(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		var req HeartbeatRequest
		if !decode(w, r, &req) {
			return
		}
		if !req.Status.valid() {
			http.Error(w, `{"error":"invalid status"}`, http.StatusBadRequest)
			return
		}
		if !reg.Heartbeat(req.ID, req.Status) {
			http.Error(w, `{"error":"unknown server"}`, http.StatusNotFound)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// decode reads a bounded JSON body into v, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return false
	}
	return true
}

// NewMux routes the master API.
func NewMux(reg *Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /servers", ListServers(reg))
	mux.HandleFunc("POST /servers/register", RegisterServer(reg))
	mux.HandleFunc("POST /servers/heartbeat", Heartbeat(reg))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}
