package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/ligun0805/bridge-runner/internal/bridgecore"
	"github.com/ligun0805/bridge-runner/internal/chain"
	"github.com/ligun0805/bridge-runner/internal/config"
	"github.com/ligun0805/bridge-runner/internal/lifi"
	"github.com/ligun0805/bridge-runner/internal/metrics"
	"github.com/ligun0805/bridge-runner/internal/networks"
	"github.com/ligun0805/bridge-runner/internal/pricing"
	"github.com/ligun0805/bridge-runner/internal/proxy"
	"github.com/ligun0805/bridge-runner/internal/report"
)

func main() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	mode := flag.String("mode", "", "Run mode override: bridge, circular or balances")
	accounts := flag.String("accounts", "", "Accounts file override (address,private_key per line)")
	pause := flag.Bool("pause", false, "Wait for Enter before exiting")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	st, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *mode != "" {
		st.RunMode = strings.ToLower(strings.TrimSpace(*mode))
	}
	if *accounts != "" {
		st.AccountsFile = *accounts
	}
	if lvl, err := logrus.ParseLevel(st.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	code := 0
	if err := run(log, st); err != nil {
		log.Errorf("%v", err)
		code = 1
	}
	if *pause {
		askExit()
	}
	os.Exit(code)
}

// askExit waits for Enter so a double-clicked console does not close instantly.
func askExit() {
	fmt.Fprint(os.Stderr, "Press Enter to close...")
	_, _ = bufio.NewReader(os.Stdin).ReadBytes('\n')
}

func run(log *logrus.Logger, st config.Settings) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	wallets, err := loadAccounts(st.AccountsFile)
	if err != nil {
		return err
	}
	printConfig(log, st, len(wallets))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var proxies *proxy.Pool
	if st.UseProxy {
		if proxies, err = proxy.Load(st.ProxiesFile); err != nil {
			return fmt.Errorf("proxies: %w", err)
		}
		log.Infof("[proxy] %d proxies loaded", proxies.Len())
	}

	reg := networks.NewRegistry(st.RPCURLs)
	for _, slug := range append(append([]string{}, st.SourceNetworks...), st.DestinationNetworks...) {
		if _, ok := reg.Network(slug); !ok {
			return fmt.Errorf("unknown network %q (known: %s)", slug, strings.Join(reg.Slugs(), ", "))
		}
	}

	pool := chain.NewPool(reg, chain.Options{
		HTTPClient: proxies.HTTPClient(30 * time.Second),
		RPS:        st.RPCRPS,
		Logger:     log,
	})
	defer pool.Close()

	if st.CheckRPC {
		checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		bad := pool.CheckAll(checkCtx, st.SourceNetworks)
		cancel()
		for slug, err := range bad {
			log.WithError(err).Errorf("[pre-check] rpc %s unhealthy", slug)
		}
		if len(bad) > 0 {
			return fmt.Errorf("%d source network(s) failed the rpc check", len(bad))
		}
	}

	srv := metrics.Start(st.MetricsAddr, log)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(sctx)
	}()
	var rec metrics.Recorder = metrics.Nop{}
	if srv != nil {
		rec = metrics.Prometheus{}
	}

	var transport http.RoundTripper
	if proxies.Len() > 0 {
		transport = proxies.Transport()
	}
	runner := &bridgecore.Runner{
		Settings: st,
		Registry: reg,
		Clients:  pool,
		Planner:  &bridgecore.Planner{ReserveGasLimit: st.GasReserveLimit, ReserveMul: st.GasReserveMul, Log: log},
		Executor: &bridgecore.Executor{
			Quoter: lifi.NewClient(lifi.Config{
				BaseURL:       st.AggregatorURL,
				APIKey:        st.AggregatorAPIKey,
				Timeout:       st.QuoteTimeout,
				RPS:           st.AggregatorRPS,
				Transport:     transport,
				RandomChance:  st.RandomBridgeChance,
				FastThreshold: st.FastThreshold,
				Logger:        log,
			}),
			Patcher: lifi.NewPatcher(),
			Allowance: &bridgecore.AllowanceGuard{
				ReceiptTimeout: st.ReceiptTimeout,
				ReceiptPoll:    st.ReceiptPoll,
				Metrics:        rec,
				Log:            log,
			},
			Gate:           &bridgecore.GasGate{Ceilings: st.GasPriceLimits, Interval: st.GasGatePoll, Metrics: rec, Log: log},
			Metrics:        rec,
			Log:            log,
			ReceiptTimeout: st.ReceiptTimeout,
			ReceiptPoll:    st.ReceiptPoll,
		},
		Prices: pricing.NewClient(st.PriceURL, transport),
		Log:    log,
	}

	if st.RunMode == config.ModeBalances {
		rows := runner.Balances(ctx, wallets)
		for _, r := range rows {
			if r.Err != nil {
				log.WithError(r.Err).Warnf("[balance] %s %s on %s unavailable", r.Wallet.Hex(), r.Token, r.Network)
			}
		}
		return nil
	}

	started := time.Now()
	records := runner.Run(ctx, wallets)
	report.Log(log, report.Summarize(records))
	log.Infof("[done] %d attempts in %s", len(records), time.Since(started).Round(time.Second))
	return ctx.Err()
}

func printConfig(log logrus.FieldLogger, st config.Settings, accounts int) {
	log.Info("=== CONFIG (.env) ===")
	log.Infof("RUN_MODE          : %s", st.RunMode)
	log.Infof("ACCOUNTS          : %d (%s)", accounts, st.AccountsFile)
	log.Infof("SOURCE_NETWORKS   : %s", strings.Join(st.SourceNetworks, ","))
	log.Infof("DEST_NETWORKS     : %s", strings.Join(st.DestinationNetworks, ","))
	log.Infof("TOKENS            : %s -> %s", strings.Join(st.FromTokens, ","), strings.Join(st.ToTokens, ","))
	log.Infof("PERCENT           : %v..%v", st.PercentMin, st.PercentMax)
	log.Infof("TX_COUNT          : %d..%d", st.TxCountMin, st.TxCountMax)
	log.Infof("THREADS           : %d", st.Threads)
	log.Infof("ROUTES            : random=%v%% fast<%v", st.RandomBridgeChance, st.FastThreshold)
	log.Infof("AGGREGATOR_API_KEY: %s", maskHex(st.AggregatorAPIKey))
	if st.RunMode == config.ModeCircular {
		log.Infof("CIRCULAR          : %s x%d, end %s", st.CircularToken, st.CircularRounds, st.CircularEndNetwork)
	}
	log.Info("=====================")
}
