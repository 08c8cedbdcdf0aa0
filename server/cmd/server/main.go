package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/automoto/rewind/config"
	"github.com/automoto/rewind/server/audit"
	"github.com/automoto/rewind/server/core"
	"github.com/automoto/rewind/server/lagcomp"
	"github.com/automoto/rewind/server/metrics"
	"github.com/automoto/rewind/shared/protocol"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults when empty)")
	port := flag.Uint("port", 7373, "Server port")
	tickRate := flag.Int("tickrate", 0, "Server tick rate, overrides the config file")
	name := flag.String("name", "", "Server display name, overrides the config file")
	version := flag.String("version", "", "Required client version (empty = accept any)")
	assets := flag.String("assets", "", "Assets directory holding levels/*.tmx (empty = open arena)")
	level := flag.String("level", "", "Level to load (empty = first level found)")
	masterURL := flag.String("master", "", "Master server URL (empty = don't register)")
	address := flag.String("address", "", "Public address advertised to the master")
	region := flag.String("region", "", "Region advertised to the master")
	httpAddr := flag.String("http", "", "Metrics and debug listen address, e.g. :9100 (empty = disabled)")
	auditPath := flag.String("audit", "", "SQLite audit log path, overrides the config file")
	verbose := flag.Bool("verbose", false, "Log every verified shot")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *tickRate > 0 {
		cfg.Server.TickRate = *tickRate
	}
	if *name != "" {
		cfg.Server.Name = *name
	}
	if *auditPath != "" {
		cfg.Audit.Path = *auditPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	config.Apply(cfg)

	if err := protocol.RegisterComponents(); err != nil {
		log.Fatalf("Failed to register components: %v", err)
	}

	lvl := core.NewArenaLevel()
	if *assets != "" {
		var err error
		if lvl, err = core.LoadServerLevel(*assets, *level); err != nil {
			log.Fatalf("Failed to load level: %v", err)
		}
	}

	sinks := lagcomp.MultiSink{lagcomp.LogSink{Verbose: *verbose}}
	m := metrics.New()
	sinks = append(sinks, m)

	var auditLog *audit.Log
	if cfg.Audit.Path != "" {
		var err error
		auditLog, err = audit.Open(cfg.Audit.Path, cfg.Audit.QueueSize, cfg.Audit.RecordConsistent)
		if err != nil {
			log.Fatalf("Failed to open audit log: %v", err)
		}
		sinks = append(sinks, auditLog)
		log.Printf("[audit] recording shots to %s", cfg.Audit.Path)
	}

	server, err := core.NewServer(core.Options{
		Name:    cfg.Server.Name,
		Version: *version,
		Level:   lvl,
		Sink:    sinks,
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	m.TrackStore(server.Store())
	m.TrackLatency(server.Latency(), server.Store().IDs)

	if *httpAddr != "" {
		go serveHTTP(*httpAddr, m, server, auditLog)
	}

	var reg *core.Registration
	if *masterURL != "" {
		addr := *address
		if addr == "" {
			addr = fmt.Sprintf("localhost:%d", *port)
		}
		reg = core.NewRegistration(*masterURL, core.Announce(cfg.Server.Name, addr, *version, *region, cfg.Server.MaxPlayers), server)
		reg.Start()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutting down server...")
		if reg != nil {
			reg.Stop()
		}
		server.Stop()
		if auditLog != nil {
			if err := auditLog.Close(); err != nil {
				log.Printf("[audit] close: %v", err)
			}
		}
		os.Exit(0)
	}()

	log.Printf("Starting %q on port %d (tick rate: %d/s, level: %s, max rewind: %s, version: %s)",
		cfg.Server.Name, *port, cfg.Server.TickRate, lvl.Name, cfg.LagComp.MaxRewind(), *version)
	if err := server.Start(*port); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// serveHTTP exposes /metrics and read-only debug views of the rewind state.
func serveHTTP(addr string, m *metrics.Metrics, server *core.Server, auditLog *audit.Log) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /debug/history", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(r.URL.Query().Get("id"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusOK, server.Store().IDs())
			return
		}
		samples, ok := server.Store().SamplesFor(lagcomp.EntityID(id))
		if !ok {
			http.Error(w, `{"error":"unknown entity"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, samples)
	})
	if auditLog != nil {
		mux.HandleFunc("GET /debug/shots", func(w http.ResponseWriter, r *http.Request) {
			shooter, _ := strconv.ParseUint(r.URL.Query().Get("shooter"), 10, 64)
			rows, err := auditLog.Recent(r.Context(), lagcomp.EntityID(shooter), 100)
			if err != nil {
				http.Error(w, `{"error":"query failed"}`, http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, rows)
		})
	}

	log.Printf("[server] metrics and debug endpoints on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("[server] http: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] encode response: %v", err)
	}
}
