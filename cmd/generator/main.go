// Command generator sends synthetic GET/POST traffic at a running balancer
// to exercise its selection strategy and admission gate under concurrency.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"
)

func main() {
	var (
		url               = flag.String("url", "http://127.0.0.1:9000/", "balancer URL to send requests to")
		numRequests       = flag.Int("num-requests", 100, "total number of requests to send")
		concurrentClients = flag.Int("concurrent-clients", 10, "number of goroutines sending requests concurrently")
		getRatio          = flag.Float64("get-ratio", 0.5, "fraction of requests that are GET rather than POST")
	)
	flag.Parse()

	if *concurrentClients <= 0 {
		*concurrentClients = 1
	}

	client := &http.Client{Timeout: 10 * time.Second}

	jobs := make(chan int, *numRequests)
	for i := 0; i < *numRequests; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var successes, failures int

	start := time.Now()
	for w := 0; w < *concurrentClients; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := range jobs {
				reqStart := time.Now()
				isGet := rand.Float64() < *getRatio
				var err error
				if isGet {
					err = doGet(client, *url)
				} else {
					err = doPost(client, *url, worker, i)
				}
				elapsed := time.Since(reqStart)

				mu.Lock()
				if err != nil {
					failures++
					fmt.Fprintf(os.Stderr, "worker %d request %d failed: %v\n", worker, i, err)
				} else {
					successes++
					kind := "GET"
					if !isGet {
						kind = "POST"
					}
					fmt.Printf("worker %d %s response in %s\n", worker, kind, elapsed)
				}
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	total := time.Since(start)
	fmt.Printf("done: %d succeeded, %d failed, total time %s\n", successes, failures, total)
}

func doGet(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

func doPost(client *http.Client, url string, worker, i int) error {
	body := []byte(fmt.Sprintf("worker %d request %d payload", worker, i))
	resp, err := client.Post(url, "text/plain", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}
