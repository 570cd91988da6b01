package main

import (
	"bytes"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"sort"
	"sync"
	"time"

	flag "github.com/spf13/pflag"
)

type counts struct {
	mu     sync.Mutex
	status map[string]int
}

func (c *counts) add(op string, code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status[fmt.Sprintf("%s %d", op, code)]++
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "server address")
	n := flag.Int("n", 5000, "keys")
	conc := flag.IntP("concurrency", "c", 32, "concurrent keys in flight")
	valSize := flag.Int("val", 128, "value size bytes")
	update := flag.Bool("update", false, "also update and delete every key")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}
	res := &counts{status: make(map[string]int)}
	do := func(op, method, url string, body []byte) {
		req, err := http.NewRequest(method, url, bytes.NewReader(body))
		if err != nil {
			res.add(op, 0)
			return
		}
		resp, err := client.Do(req)
		if err != nil {
			res.add(op, 0)
			return
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		res.add(op, resp.StatusCode)
	}

	wg := sync.WaitGroup{}
	start := time.Now()
	ch := make(chan struct{}, *conc)
	ops := 2
	if *update {
		ops = 4
	}

	for i := 0; i < *n; i++ {
		wg.Add(1)
		ch <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-ch }()
			url := fmt.Sprintf("%s/kv/k%d", *addr, i)
			payload := bytes.Repeat([]byte{byte('a' + rand.IntN(26))}, *valSize)
			do("create", http.MethodPost, url, payload)
			do("read", http.MethodGet, url, nil)
			if *update {
				do("update", http.MethodPut, url, payload)
				do("delete", http.MethodDelete, url, nil)
			}
		}(i)
	}
	wg.Wait()
	dur := time.Since(start)
	fmt.Printf("Completed %d ops in %s (%.2f ops/s)\n", *n*ops, dur, float64(*n*ops)/dur.Seconds())

	keys := make([]string, 0, len(res.status))
	for k := range res.status {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-12s %d\n", k, res.status[k])
	}
}
