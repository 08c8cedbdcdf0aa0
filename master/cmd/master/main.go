package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/automoto/rewind/master"
)

func main() {
	port := flag.Int("port", 8080, "HTTP listen port")
	ttl := flag.Duration("ttl", 90*time.Second, "Server TTL before expiry")
	flag.Parse()

	reg := master.NewRegistry(*ttl)
	reg.Start()
	defer reg.Stop()

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("[master] starting on %s (TTL=%s)", addr, *ttl)
	if err := http.ListenAndServe(addr, master.NewMux(reg)); err != nil {
		log.Fatalf("[master] fatal: %v", err)
	}
}
