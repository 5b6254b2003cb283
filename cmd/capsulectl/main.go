// capsulectl is the operator tool for the generation guards: engage or
// release the kill switch, reset the circuit breaker, and inspect the
// current breaker and budget state.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/devcapsules/codecapsules-sub003/internal/guard"
	"github.com/devcapsules/codecapsules-sub003/internal/infra"
	"github.com/devcapsules/codecapsules-sub003/internal/kv"
)

func main() {
	var (
		killFlag    string
		resetFlag   bool
		statusFlag  bool
		timeoutFlag time.Duration
	)

	flag.StringVar(&killFlag, "killswitch", "", "set the generation kill switch (on, off)")
	flag.BoolVar(&resetFlag, "reset-breaker", false, "close the circuit breaker and clear the failure counter")
	flag.BoolVar(&statusFlag, "status", false, "print the current guard state")
	flag.DurationVar(&timeoutFlag, "timeout", 10*time.Second, "command timeout")
	flag.Parse()

	kill := strings.TrimSpace(strings.ToLower(killFlag))
	switch kill {
	case "", "on", "off":
	default:
		exitWithError(fmt.Errorf("unsupported -killswitch value %q (want on or off)", kill))
	}
	if kill == "" && !resetFlag && !statusFlag {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeoutFlag)
	defer cancel()

	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect redis: %w", err))
	}
	defer redisClient.Close()

	g := guard.New(kv.NewRedis(redisClient), guard.Options{
		FailureThreshold: cfg.BreakerThreshold,
		FailureWindow:    cfg.BreakerWindow,
		Cooldown:         cfg.BreakerCooldown,
		DailyBudgetUSD:   cfg.DailyBudgetUSD,
		BudgetPause:      cfg.BudgetPause,
	})

	switch kill {
	case "on":
		if err := g.SetKillSwitch(ctx, true); err != nil {
			exitWithError(fmt.Errorf("failed to engage kill switch: %w", err))
		}
		fmt.Println("kill switch engaged: generation disabled")
	case "off":
		if err := g.SetKillSwitch(ctx, false); err != nil {
			exitWithError(fmt.Errorf("failed to release kill switch: %w", err))
		}
		fmt.Println("kill switch released: generation enabled")
	}

	if resetFlag {
		if err := g.RecordSuccess(ctx); err != nil {
			exitWithError(fmt.Errorf("failed to reset breaker: %w", err))
		}
		fmt.Println("circuit breaker reset")
	}

	if statusFlag {
		snapshot, err := g.Snapshot(ctx)
		if err != nil {
			exitWithError(fmt.Errorf("failed to read guard state: %w", err))
		}
		enabled, reason, err := g.GenerationEnabled(ctx)
		if err != nil {
			exitWithError(err)
		}
		if enabled {
			fmt.Println("generation: enabled")
		} else {
			fmt.Printf("generation: disabled (%s)\n", reason)
		}
		if len(snapshot) == 0 {
			fmt.Println("no guard flags set")
			return
		}
		keys := make([]string, 0, len(snapshot))
		for k := range snapshot {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s=%s\n", k, snapshot[k])
		}
	}
}

func exitWithError(err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("timed out: %w", err)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
