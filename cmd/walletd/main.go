// Command walletd runs shielded wallets for several networks behind an HTTP
// API, plus a development ledger to sync them against.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/hamzazf/shieldwallet/internal/config"
	"github.com/hamzazf/shieldwallet/internal/keys"
	"github.com/hamzazf/shieldwallet/internal/ledger/httpledger"
	"github.com/hamzazf/shieldwallet/internal/ledger/memledger"
	"github.com/hamzazf/shieldwallet/internal/logger"
	"github.com/hamzazf/shieldwallet/internal/metrics"
	"github.com/hamzazf/shieldwallet/internal/registry"
	"github.com/hamzazf/shieldwallet/internal/shielded"
	"github.com/hamzazf/shieldwallet/internal/signer"
	"github.com/hamzazf/shieldwallet/internal/storage"
	"github.com/hamzazf/shieldwallet/internal/wallet"
	"github.com/hamzazf/shieldwallet/internal/zkp"
)

// version is set via linker flags.
var version = "dev"

const shutdownTimeout = 10 * time.Second

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   "walletd.json",
		Usage:   "configuration file, written with defaults if missing",
	}
	listenFlag = &cli.StringFlag{
		Name:  "listen",
		Value: "127.0.0.1:8646",
		Usage: "listen address of the development ledger",
	}
	ledgerFileFlag = &cli.StringFlag{
		Name:  "ledger-file",
		Value: "devnet-ledger.json",
		Usage: "file the development ledger is restored from and saved to",
	}
	unverifiedFlag = &cli.BoolFlag{
		Name:  "unverified",
		Usage: "accept posts without verifying their proofs",
	}
	bitsFlag = &cli.IntFlag{
		Name:  "bits",
		Value: keys.DefaultMnemonicBits,
		Usage: "entropy of a generated mnemonic",
	}
	phraseFlag = &cli.StringFlag{
		Name:  "phrase",
		Usage: "derive the address of this mnemonic instead of generating one",
	}
)

func newApp() *cli.App {
	return &cli.App{
		Name:    "walletd",
		Usage:   "shielded wallet daemon",
		Version: version,
		Flags:   []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the wallet API",
				Action: serve,
			},
			{
				Name:   "devnet",
				Usage:  "run an in-memory ledger over HTTP",
				Flags:  []cli.Flag{listenFlag, ledgerFileFlag, unverifiedFlag},
				Action: devnet,
			},
			{
				Name:   "setup",
				Usage:  "generate or check the proving context",
				Action: setup,
			},
			{
				Name:   "mnemonic",
				Usage:  "generate a mnemonic and print its address",
				Flags:  []cli.Flag{bitsFlag, phraseFlag},
				Action: mnemonic,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// prepare loads the configuration and installs the process logger.
func prepare(c *cli.Context) (*config.Config, zerolog.Logger, *logger.Closer, error) {
	cfg, err := config.LoadConfig(c.String(configFlag.Name))
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	log, closer, err := logger.New(logger.Options{
		Level:     cfg.LogLevel,
		File:      cfg.LogFile,
		AuditFile: cfg.AuditFile(),
		JSON:      cfg.LogJSON,
	})
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger.Set(log)
	return cfg, log, closer, nil
}

func provingContext(cfg *config.Config, log zerolog.Logger) (*zkp.MultiProvingContext, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.ProvingPath), 0o755); err != nil {
		return nil, err
	}
	start := time.Now()
	pc, err := zkp.SetupOrLoad(cfg.ProvingPath, cfg.AccumulatorHeight)
	if err != nil {
		return nil, fmt.Errorf("proving context %s: %w", cfg.ProvingPath, err)
	}
	log.Info().Str("path", cfg.ProvingPath).Int("height", cfg.AccumulatorHeight).
		Dur("elapsed", time.Since(start)).Msg("proving context ready")
	return pc, nil
}

func parameters(cfg *config.Config) shielded.Parameters {
	params := shielded.DefaultParameters()
	params.AccumulatorHeight = cfg.AccumulatorHeight
	return params
}

func setup(c *cli.Context) error {
	cfg, log, closer, err := prepare(c)
	if err != nil {
		return err
	}
	defer closer.Close()
	_, err = provingContext(cfg, log)
	return err
}

func mnemonic(c *cli.Context) error {
	var (
		m   keys.Mnemonic
		err error
	)
	if phrase := c.String(phraseFlag.Name); phrase != "" {
		m, err = keys.MnemonicFromPhrase(phrase)
	} else {
		m, err = keys.GenerateMnemonic(c.Int(bitsFlag.Name))
	}
	if err != nil {
		return err
	}
	address, err := keys.AddressFromMnemonic(m)
	if err != nil {
		return err
	}
	view := encodeAddress(address)
	rk, _ := view.ReceivingKey.MarshalText()
	tag, _ := view.SpendTag.MarshalText()
	if c.String(phraseFlag.Name) == "" {
		fmt.Fprintln(c.App.Writer, m.Phrase())
	}
	fmt.Fprintf(c.App.Writer, "receiving key: %s\nspend tag:     %s\n", rk, tag)
	return nil
}

// buildRegistry creates one wallet per configured ledger and restores its
// stored snapshot.
func buildRegistry(cfg *config.Config, pc *zkp.MultiProvingContext, store *storage.Store, m *metrics.Collector, health *HealthChecker, log zerolog.Logger) (*registry.Registry, error) {
	ledgers, err := cfg.Ledgers()
	if err != nil {
		return nil, err
	}
	reg := registry.New(log)
	params := parameters(cfg)
	for n, url := range ledgers {
		client := httpledger.NewClient(url, cfg.Timeout())
		s, err := signer.New(params, pc, signer.WithLogger(log))
		if err != nil {
			return nil, err
		}
		w := wallet.New(s, client,
			wallet.WithNetwork(n.String()),
			wallet.WithMetrics(m),
			wallet.WithLogger(log),
			wallet.WithMaxStalledSteps(cfg.MaxStalledSteps),
		)
		snapshot, err := store.Get(n.String())
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return nil, err
		default:
			if err := w.SetStorage(snapshot); err != nil {
				return nil, fmt.Errorf("restore %s: %w", n, err)
			}
			log.Info().Str("network", n.String()).Uint64("receiver_index", w.Checkpoint().ReceiverIndex).Msg("snapshot restored")
		}
		if err := reg.SetNetwork(n, w); err != nil {
			return nil, err
		}
		health.RegisterComponent("ledger/"+n.String(), client.Health)
		health.RegisterComponent("wallet/"+n.String(), WalletChecker(w))
	}
	return reg, nil
}

func serve(c *cli.Context) error {
	cfg, log, closer, err := prepare(c)
	if err != nil {
		return err
	}
	defer closer.Close()

	pc, err := provingContext(cfg, log)
	if err != nil {
		return err
	}
	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New()
	health := NewHealthChecker(version)
	health.RegisterComponent("storage", func(context.Context) error {
		_, err := store.Networks()
		return err
	})
	reg, err := buildRegistry(cfg, pc, store, m, health, log)
	if err != nil {
		return err
	}

	api := &API{
		registry: reg,
		store:    store,
		metrics:  m,
		health:   health,
		limiter:  NewNetworkRateLimiter(cfg.RateLimit, cfg.RateBurst),
		log:      log,
	}
	return run(c.Context, &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(cfg.CORSOrigins),
		ReadHeaderTimeout: cfg.Timeout(),
	}, log)
}

func devnet(c *cli.Context) error {
	cfg, log, closer, err := prepare(c)
	if err != nil {
		return err
	}
	defer closer.Close()

	opts := []memledger.Option{memledger.WithPageSize(cfg.PageSize), memledger.WithLogger(log)}
	if !c.Bool(unverifiedFlag.Name) {
		pc, err := provingContext(cfg, log)
		if err != nil {
			return err
		}
		opts = append(opts, memledger.WithVerifier(pc.Verifying()))
	}
	path := c.String(ledgerFileFlag.Name)
	l, err := memledger.LoadFromFile(path, opts...)
	if errors.Is(err, os.ErrNotExist) {
		l, err = memledger.New(parameters(cfg), opts...)
	}
	if err != nil {
		return err
	}
	if l.Parameters().AccumulatorHeight != cfg.AccumulatorHeight {
		return fmt.Errorf("ledger file %s has height %d, configured %d", path, l.Parameters().AccumulatorHeight, cfg.AccumulatorHeight)
	}
	log.Info().Str("file", path).Uint64("receiver_index", l.Checkpoint().ReceiverIndex).Msg("development ledger ready")

	err = run(c.Context, &http.Server{
		Addr:              c.String(listenFlag.Name),
		Handler:           httpledger.NewServer(l),
		ReadHeaderTimeout: cfg.Timeout(),
	}, log)
	if serr := l.SaveToFile(path); serr != nil {
		log.Error().Err(serr).Str("file", path).Msg("ledger not saved")
		return errors.Join(err, serr)
	}
	log.Info().Str("file", path).Msg("ledger saved")
	return err
}

// run serves until SIGINT or SIGTERM, then shuts down gracefully.
func run(ctx context.Context, srv *http.Server, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
