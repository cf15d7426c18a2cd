package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/credstore"
	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/stores"
	"github.com/MrEthical07/goIdentity/profilestore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type issuedToken struct {
	token string
	email string
}

func main() {
	var (
		tokens      = flag.Int("tokens", 20000, "verification tokens to issue")
		redeem      = flag.Int("redeem", 3, "redemption attempts per token during the confirm phase")
		accounts    = flag.Int("accounts", 32, "accounts to create for the sign-in phase (0 skips it)")
		signIns     = flag.Int("signins", 256, "password sign-ins during the sign-in phase")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "gid:lt", "token vault key prefix")
		verbose     = flag.Bool("v", false, "log engine events to stderr")
	)
	flag.Parse()

	if *tokens <= 0 || *redeem <= 0 || *concurrency <= 0 || *accounts < 0 || *signIns < 0 {
		fmt.Fprintln(os.Stderr, "tokens, redeem and concurrency must be > 0; accounts and signins must be >= 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	vault := stores.NewTokenVault(client, *prefix)

	fmt.Printf("issuing %d tokens...\n", *tokens)
	issued, issueStats := runIssuePhase(ctx, vault, *tokens, *concurrency)

	confirmStats, newly, already := runConfirmPhase(ctx, vault, issued, *redeem, *concurrency)

	var signInStats phaseStats
	var superseded int64
	if *accounts > 0 && *signIns > 0 {
		logger := zerolog.Nop()
		if *verbose {
			logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		}
		var err error
		signInStats, superseded, err = runSignInPhase(ctx, client, logger, *accounts, *signIns, *concurrency)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sign-in phase: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("---- results ----")
	printStats("issue", issueStats)
	printStats("confirm", confirmStats)
	fmt.Printf("confirm outcomes: newly_verified=%d already_verified=%d\n", newly, already)
	if newly != int64(len(issued)) {
		fmt.Fprintf(os.Stderr, "single-dispatch violated: %d tokens, %d newly verified\n", len(issued), newly)
		os.Exit(1)
	}
	if signInStats.ops > 0 {
		printStats("sign-in", signInStats)
		fmt.Printf("sign-in superseded=%d\n", superseded)
	}
}

func runIssuePhase(ctx context.Context, vault *stores.TokenVault, count, concurrency int) ([]issuedToken, phaseStats) {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		issued    = make([]issuedToken, count)
		latencies = make([]time.Duration, 0, count)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= count {
					return
				}
				token, err := internal.NewVerificationToken()
				if err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}
				email := fmt.Sprintf("user-%d@example.com", i)
				record := &stores.TokenRecord{
					IdentityID: fmt.Sprintf("id-%d", i),
					Email:      email,
					IssuedAt:   time.Now().Unix(),
				}

				t0 := time.Now()
				err = vault.Issue(ctx, token, record, 0)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else {
					issued[i] = issuedToken{token: token, email: email}
				}

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)

	out := issued[:0]
	for _, it := range issued {
		if it.token != "" {
			out = append(out, it)
		}
	}
	return out, computeStats(total, latencies, failures)
}

// runConfirmPhase redeems every token redeem times from random workers and
// counts outcomes; exactly one redemption per token may report newly
// verified.
func runConfirmPhase(ctx context.Context, vault *stores.TokenVault, issued []issuedToken, redeem, concurrency int) (phaseStats, int64, int64) {
	ops := len(issued) * redeem
	order := make([]int, ops)
	for i := range order {
		order[i] = i % len(issued)
	}
	rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		newly     int64
		already   int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				it := issued[order[i]]

				t0 := time.Now()
				outcome, _, err := vault.Consume(ctx, it.token, it.email)
				d := time.Since(t0)
				switch {
				case err != nil:
					atomic.AddInt64(&failures, 1)
				case outcome == stores.ConsumeNewlyVerified:
					atomic.AddInt64(&newly, 1)
				case outcome == stores.ConsumeAlreadyVerified:
					atomic.AddInt64(&already, 1)
				default:
					atomic.AddInt64(&failures, 1)
				}

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures), newly, already
}

// runSignInPhase drives the full engine: accounts live in an in-memory
// SQLite credential store and profiles in the in-memory profile store.
// The engine holds one device session and concurrent sign-ins supersede
// each other, so superseded attempts are counted apart from failures.
func runSignInPhase(ctx context.Context, client redis.UniversalClient, logger zerolog.Logger, accounts, signIns, concurrency int) (phaseStats, int64, error) {
	creds, err := credstore.Open(ctx, ":memory:")
	if err != nil {
		return phaseStats{}, 0, err
	}
	defer creds.Close()

	cfg := goIdentity.DefaultConfig()
	cfg.Verification.IssueOnCreate = false
	cfg.Security.MaxLoginAttempts = signIns + 1

	engine, err := goIdentity.New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialStore(creds).
		WithProfileStore(profilestore.NewMemoryStore()).
		WithLogger(logger).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		return phaseStats{}, 0, err
	}
	defer engine.Close()

	const secret = "load-test-password"
	fmt.Printf("creating %d accounts...\n", accounts)
	for i := 0; i < accounts; i++ {
		_, err := engine.CreateAccount(ctx, goIdentity.CreateAccountRequest{
			Email:    fmt.Sprintf("load-%d@example.com", i),
			Password: secret,
		})
		if err != nil {
			return phaseStats{}, 0, fmt.Errorf("create account %d: %w", i, err)
		}
	}

	var (
		wg         sync.WaitGroup
		cursor     int64
		failures   int64
		superseded int64
		latencies  = make([]time.Duration, 0, signIns)
		mu         sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= signIns {
					return
				}
				email := fmt.Sprintf("load-%d@example.com", r.Intn(accounts))

				t0 := time.Now()
				_, err := engine.AuthenticateWithPassword(ctx, email, secret)
				d := time.Since(t0)
				switch {
				case errors.Is(err, goIdentity.ErrSuperseded):
					atomic.AddInt64(&superseded, 1)
				case err != nil:
					atomic.AddInt64(&failures, 1)
				}

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)

	snap := engine.MetricsSnapshot()
	fmt.Printf("engine: sign_in_success=%d profiles_created=%d transient_store_errors=%d\n",
		snap.Counters[goIdentity.MetricPasswordSignInSuccess],
		snap.Counters[goIdentity.MetricProfileCreated],
		snap.Counters[goIdentity.MetricTransientStoreError],
	)
	return computeStats(total, latencies, failures), superseded, nil
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
