// Command server is a toy HTTP origin used to exercise the balancer: it
// answers GET and POST with a configurable artificial delay, and tracks how
// many of each it has served, so a run against the balancer can confirm
// traffic actually spread across backends.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"time"
)

// origin is the toy backend's request handler. It carries its own identity
// (port, hostname) and per-method counters so /stats can report what this
// instance has actually served.
type origin struct {
	port      string
	hostname  string
	getDelay  time.Duration
	postDelay time.Duration

	gets  atomic.Int64
	posts atomic.Int64
}

func (o *origin) handle(w http.ResponseWriter, r *http.Request) {
	var served int64
	switch r.Method {
	case http.MethodGet:
		if o.getDelay > 0 {
			time.Sleep(o.getDelay)
		}
		served = o.gets.Add(1)
	case http.MethodPost:
		if o.postDelay > 0 {
			time.Sleep(o.postDelay)
		}
		served = o.posts.Add(1)
	}
	fmt.Fprintf(w, "hello from origin %s (host=%s method=%s served=%d)\n", o.port, o.hostname, r.Method, served)
}

func (o *origin) stats(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "gets=%d posts=%d\n", o.gets.Load(), o.posts.Load())
}

func (o *origin) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func main() {
	var (
		port      = flag.String("port", ":8081", "port to listen on, e.g. :8081")
		getDelay  = flag.Duration("get-delay", 0, "artificial delay before answering GET requests")
		postDelay = flag.Duration("post-delay", 0, "artificial delay before answering POST requests")
	)
	flag.Parse()

	if p := os.Getenv("PORT"); p != "" && *port == ":8081" {
		*port = p
	}

	hostname, _ := os.Hostname()
	o := &origin{port: *port, hostname: hostname, getDelay: *getDelay, postDelay: *postDelay}

	mux := http.NewServeMux()
	mux.HandleFunc("/", o.handle)
	mux.HandleFunc("/stats", o.stats)
	mux.HandleFunc("/health", o.health)

	log.Printf("origin server listening on %s (host=%s get-delay=%s post-delay=%s)",
		*port, hostname, *getDelay, *postDelay)
	log.Fatal(http.ListenAndServe(*port, mux))
}
