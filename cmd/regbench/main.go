// Command regbench load-tests a registrar API with a Zipf-distributed resolve
// workload, the shape a popular name market actually sees. It can also seed a
// database with active registrations and run a self-contained scale test.
package main

import (
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Stats struct {
	TotalQueries  uint64
	Success       uint64
	Errors        uint64
	BytesReceived uint64
	Latencies     chan time.Duration
}

type Result struct {
	Throughput string
	P50        string
	P99        string
	Success    string
}

var suffixes = []string{"com", "net", "org", "io", "dev", "ai", "eth", "x", "id", "name", "me", "info"}

// benchName maps an index to a registerable name. The seeder and the workers
// share it so lookups hit seeded records.
func benchName(idx uint64) string {
	return fmt.Sprintf("host-%d.%s", idx, suffixes[idx%uint64(len(suffixes))])
}

func main() {
	mode := flag.String("mode", "bench", "Mode: bench, scale-test, or seed")
	target := flag.String("server", "127.0.0.1:8080", "Registrar API to test")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	count := flag.Int("n", 1000, "Total number of lookups to send")
	rangeLimit := flag.Int("range", 1000000, "Number of names in the database")
	zipfS := flag.Float64("zipf-s", 1.1, "Zipf distribution constant (s > 1). Higher means more 'hot' names.")
	zipfV := flag.Float64("zipf-v", 100, "Zipf distribution constant (v >= 1).")
	flag.Parse()

	switch *mode {
	case "seed":
		runSeed(*rangeLimit)
	case "scale-test":
		runScaleTest(*count, *concurrency)
	default:
		runBenchmark(*target, *count, *concurrency, uint64(*rangeLimit), *zipfS, *zipfV)
	}
}

func runBenchmark(target string, count int, concurrency int, rangeLimit uint64, s float64, v float64) Result {
	fmt.Printf("Starting Resolve Benchmark\n")
	fmt.Printf("Configuration: %d lookups | %d concurrency | Pool Size: %d | Zipf(s=%.1f, v=%.1f)\n", count, concurrency, rangeLimit, s, v)

	stats := Stats{
		Latencies: make(chan time.Duration, count),
	}

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	lookupsPerWorker := count / concurrency

	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			runResolveWorker(target, lookupsPerWorker, workerID, rangeLimit, s, v, &stats)
		}(i)
	}

	wg.Wait()
	duration := time.Since(start)
	close(stats.Latencies)

	return printReport(duration, &stats, concurrency)
}

func runResolveWorker(target string, count int, workerID int, rangeLimit uint64, s float64, v float64, stats *Stats) {
	client := &http.Client{
		Timeout:   2 * time.Second,
		Transport: &http.Transport{MaxIdleConnsPerHost: 4},
	}
	defer client.CloseIdleConnections()

	r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	zipf := rand.NewZipf(r, s, v, rangeLimit-1)

	for i := 0; i < count; i++ {
		name := benchName(zipf.Uint64())
		url := fmt.Sprintf("http://%s/resolve/%s", target, name)

		queryStart := time.Now()

		resp, err := client.Get(url)
		if err != nil {
			atomic.AddUint64(&stats.Errors, 1)
			atomic.AddUint64(&stats.TotalQueries, 1)
			continue
		}

		n, _ := io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			atomic.AddUint64(&stats.Success, 1)
			atomic.AddUint64(&stats.BytesReceived, uint64(n))
			stats.Latencies <- time.Since(queryStart)
		} else {
			atomic.AddUint64(&stats.Errors, 1)
		}
		atomic.AddUint64(&stats.TotalQueries, 1)
	}
}

func printReport(duration time.Duration, stats *Stats, concurrency int) Result {
	qps := float64(stats.Success) / duration.Seconds()
	mbRecv := float64(stats.BytesReceived) / 1024 / 1024

	var latencies []time.Duration
	for l := range stats.Latencies {
		latencies = append(latencies, l)
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	fmt.Println("\n============================================")
	fmt.Println("       REGISTRAR RESOLVE PERFORMANCE        ")
	fmt.Println("============================================")
	fmt.Printf("Test Duration:    %v\n", duration)
	fmt.Printf("Concurrency:      %d workers\n", concurrency)
	fmt.Printf("Throughput:       %.2f lookups/sec\n", qps)
	fmt.Printf("Data Received:    %.2f MB\n", mbRecv)

	fmt.Println("\n--- Lookup Statistics ---")
	fmt.Printf("Total Attempted:  %d\n", stats.TotalQueries)
	fmt.Printf("Successful:       %d\n", stats.Success)
	fmt.Printf("Failed/Timed out: %d\n", stats.Errors)

	res := Result{
		Throughput: fmt.Sprintf("%.2f", qps),
		P50:        "N/A",
		P99:        "N/A",
		Success:    "N/A",
	}
	if stats.TotalQueries > 0 {
		reliability := (float64(stats.Success) / float64(stats.TotalQueries)) * 100
		fmt.Printf("Reliability:      %.2f%%\n", reliability)
		res.Success = fmt.Sprintf("%.2f%%", reliability)
	}

	if len(latencies) > 0 {
		fmt.Println("\n--- Latency Percentiles ---")
		fmt.Printf("P50 (Median):     %v\n", latencies[len(latencies)/2])
		fmt.Printf("P90:              %v\n", latencies[int(float64(len(latencies))*0.90)])
		fmt.Printf("P95:              %v\n", latencies[int(float64(len(latencies))*0.95)])
		fmt.Printf("P99:              %v\n", latencies[int(float64(len(latencies))*0.99)])
		fmt.Printf("Min:              %v\n", latencies[0])
		fmt.Printf("Max:              %v\n", latencies[len(latencies)-1])
		res.P50 = latencies[len(latencies)/2].String()
		res.P99 = latencies[int(float64(len(latencies))*0.99)].String()
	}
	fmt.Println("============================================")
	return res
}
