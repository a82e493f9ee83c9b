// README: Tracking bench: drives a running tracker-api through its HTTP and relay surfaces and reports per-check outcomes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type benchConfig struct {
	BaseURL     string
	DSN         string
	RedisAddr   string
	Strict      bool
	Timeout     time.Duration
	Trackers    int
	Rate        int
	Duration    time.Duration
	Concurrency int
}

// loadBenchConfig reads TRACK_BENCH_* variables through viper; flags override them.
func loadBenchConfig(args []string) (benchConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("TRACK_BENCH")
	v.AutomaticEnv()
	v.SetDefault("base_url", "http://localhost:5001")
	v.SetDefault("dsn", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("strict", false)
	v.SetDefault("timeout", 60*time.Second)
	v.SetDefault("trackers", 50)
	v.SetDefault("rate", 10)
	v.SetDefault("duration", 10*time.Second)
	v.SetDefault("concurrency", 20)

	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	var cfg benchConfig
	fs.StringVar(&cfg.BaseURL, "base-url", v.GetString("base_url"), "tracker-api base URL")
	fs.StringVar(&cfg.DSN, "dsn", v.GetString("dsn"), "order store DSN, checked for reachability only")
	fs.StringVar(&cfg.RedisAddr, "redis", v.GetString("redis_addr"), "relay broker address, checked for reachability only")
	fs.BoolVar(&cfg.Strict, "strict", v.GetBool("strict"), "treat degraded checks as failures")
	fs.DurationVar(&cfg.Timeout, "timeout", v.GetDuration("timeout"), "overall deadline")
	fs.IntVar(&cfg.Trackers, "trackers", v.GetInt("trackers"), "subscribers in the fan-out room")
	fs.IntVar(&cfg.Rate, "rate", v.GetInt("rate"), "rider samples per second during fan-out")
	fs.DurationVar(&cfg.Duration, "duration", v.GetDuration("duration"), "length of the fan-out and proxy load runs")
	fs.IntVar(&cfg.Concurrency, "concurrency", v.GetInt("concurrency"), "parallel directions requests")
	if err := fs.Parse(args); err != nil {
		return benchConfig{}, err
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Rate <= 0 {
		cfg.Rate = 10
	}
	if cfg.Trackers <= 0 {
		cfg.Trackers = 1
	}
	return cfg, nil
}

func main() {
	cfg, err := loadBenchConfig(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	b := newBench(cfg)
	defer b.close()

	var tally [outcomeCount]int
	for _, c := range b.checks() {
		res := c.run(ctx, b)
		tally[res.outcome]++
		fmt.Println(res.line(c.name))
	}

	fmt.Printf("\n%d checks:", len(b.checks()))
	for o := outcome(0); o < outcomeCount; o++ {
		if tally[o] > 0 {
			fmt.Printf(" %s=%d", o, tally[o])
		}
	}
	fmt.Println()

	if tally[failed] > 0 || (cfg.Strict && tally[degraded] > 0) {
		os.Exit(1)
	}
}
