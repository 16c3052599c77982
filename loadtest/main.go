package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sha03112000/autohead/client"
	"github.com/sha03112000/autohead/internal/gateway"
	"github.com/sha03112000/autohead/internal/session"
	"github.com/sha03112000/autohead/internal/testserver"
	"github.com/sha03112000/autohead/pkg/logger"
)

// Configuration
var (
	concurrency = flag.Int("c", 50, "Concurrent calls per burst")
	rounds      = flag.Int("rounds", 20, "Bursts to run per mode")
	rotate      = flag.Bool("rotate", true, "Backend rotates refresh tokens on every refresh")
	verbose     = flag.Bool("v", false, "Log every request")
)

type result struct {
	mode      string
	calls     int64
	ok        int64
	expired   int64
	failed    int64
	refreshes int
	resets    int64
	elapsed   time.Duration
}

func main() {
	flag.Parse()
	if *verbose {
		logger.InitLogger("dev")
		defer logger.Sync()
	}

	fmt.Printf("🚀 Starting refresh burst test\n")
	fmt.Printf("   Concurrency: %d\n", *concurrency)
	fmt.Printf("   Rounds: %d\n", *rounds)
	fmt.Printf("   Rotation: %v\n", *rotate)

	results := []result{
		burst("per-call", false),
		burst("coalesced", true),
	}

	fmt.Printf("\n%-10s %8s %8s %8s %8s %10s %8s %10s\n", "mode", "calls", "ok", "401", "errors", "refreshes", "resets", "elapsed")
	for _, r := range results {
		fmt.Printf("%-10s %8d %8d %8d %8d %10d %8d %10s\n",
			r.mode, r.calls, r.ok, r.expired, r.failed, r.refreshes, r.resets, r.elapsed.Round(time.Millisecond))
	}
}

// burst expires every access token, then fires c concurrent calls through
// one shared session. Each round should cost one refresh when coalesced.
func burst(mode string, coalesce bool) result {
	srv := testserver.New(testserver.WithRotation(*rotate))
	ts := srv.Start()
	defer ts.Close()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = *concurrency

	store := session.NewMemoryStore()
	hub := session.NewHub()
	gw := gateway.New(ts.URL, store,
		gateway.WithHTTPClient(&http.Client{Transport: transport, Timeout: 10 * time.Second}),
		gateway.WithHub(hub),
		gateway.WithRefreshCoalescing(coalesce),
	)
	cli := client.New(gw)

	res := result{mode: mode}
	sub := hub.Register(*concurrency * 4)
	var resets atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range sub.Events {
			if e.State == session.Anonymous {
				resets.Add(1)
			}
		}
	}()

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < *rounds; i++ {
		if gw.State(ctx) != session.Authenticated {
			if _, err := cli.Login(ctx, "admin", "admin123"); err != nil {
				fmt.Printf("   login failed: %v\n", err)
				break
			}
		}
		srv.ExpireAccessTokens()

		var wg sync.WaitGroup
		gate := make(chan struct{})
		for j := 0; j < *concurrency; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-gate
				atomic.AddInt64(&res.calls, 1)
				_, err := cli.Dashboard(ctx)
				switch {
				case err == nil:
					atomic.AddInt64(&res.ok, 1)
				case errors.Is(err, client.ErrSessionExpired):
					atomic.AddInt64(&res.expired, 1)
				default:
					atomic.AddInt64(&res.failed, 1)
				}
			}()
		}
		close(gate)
		wg.Wait()
	}
	res.elapsed = time.Since(start)
	res.refreshes = srv.Refreshes()

	hub.Unregister(sub)
	<-done
	res.resets = resets.Load()
	return res
}
