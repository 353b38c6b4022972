package cmd

import (
	"net/http"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bridge-aggregator/config"
	"bridge-aggregator/pkg/bridges"
	"bridge-aggregator/pkg/bridges/across"
	"bridge-aggregator/pkg/bridges/debridge"
	oneclickbridge "bridge-aggregator/pkg/bridges/oneclick"
	"bridge-aggregator/pkg/bridges/synapse"
	"bridge-aggregator/pkg/chains"
	"bridge-aggregator/pkg/client"
	"bridge-aggregator/pkg/history"
	"bridge-aggregator/pkg/metrics"
	"bridge-aggregator/pkg/tokens"
	"bridge-aggregator/pkg/types"
	"bridge-aggregator/pkg/wallet"
)

// app carries what every command builds from configuration
type app struct {
	cfg        *config.Config
	logger     *logrus.Logger
	registry   *chains.Registry
	catalog    *tokens.Catalog
	jsonOutput bool
	verbose    bool
}

func newApp(cmd *cobra.Command) (*app, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	if jsonOutput {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		registry:   chains.NewRegistry(chains.WithRPCOverrides(cfg.RPCURLs)),
		catalog:    tokens.Default(),
		jsonOutput: jsonOutput,
		verbose:    verbose,
	}, nil
}

func (a *app) httpConfig(provider types.ProviderName, baseURL string) client.HTTPClientConfig {
	return client.HTTPClientConfig{
		Provider:    provider,
		BaseURL:     baseURL,
		Timeout:     a.cfg.ProviderTimeout,
		ProxyString: a.cfg.HTTPProxy,
	}
}

// oneClickClient returns nil when no 1Click JWT is configured
func (a *app) oneClickClient() *client.OneClickClient {
	if a.cfg.OneClickJWT == "" {
		return nil
	}
	transport := client.NewHTTPClient(a.httpConfig(types.ProviderOneClick, a.cfg.OneClickBaseURL))
	return client.NewOneClickClient(a.cfg.OneClickJWT, a.cfg.OneClickBaseURL, transport.Std())
}

// bridges builds every configured provider adapter
func (a *app) bridges() (*bridges.Set, error) {
	set := bridges.NewSet()

	sdk, err := client.NewSynapseSDK(a.httpConfig(types.ProviderSynapse, a.cfg.SynapseBaseURL))
	if err != nil {
		return nil, err
	}
	set.Add(synapse.New(sdk, a.registry, synapse.WithLogger(a.logger)))

	set.Add(debridge.New(a.httpConfig(types.ProviderDeBridge, a.cfg.DeBridgeBaseURL), a.registry, debridge.WithLogger(a.logger)))

	acrossBridge, err := across.New(a.httpConfig(types.ProviderAcross, a.cfg.AcrossBaseURL), a.registry, across.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	set.Add(acrossBridge)

	if c := a.oneClickClient(); c != nil {
		opts := []oneclickbridge.Option{oneclickbridge.WithLogger(a.logger)}
		if w, err := a.wallet(); err == nil {
			if addr, err := w.Address(); err == nil {
				opts = append(opts, oneclickbridge.WithRefundAddress(addr))
			}
		}
		set.Add(oneclickbridge.New(c, a.registry, opts...))
	} else {
		a.logger.Debug("1Click disabled: no oneclick_jwt configured")
	}

	return set, nil
}

// wallet opens the configured key. Without a key the wallet is read-only.
func (a *app) wallet(opts ...wallet.Option) (*wallet.Wallet, error) {
	opts = append([]wallet.Option{wallet.WithLogger(a.logger)}, opts...)
	return wallet.New(a.registry, a.cfg.PrivateKey, opts...)
}

func (a *app) history() (*history.Store, error) {
	return history.NewStore(a.cfg.HistoryPath)
}

// spin starts a spinner unless output is JSON; the returned func stops it
func (a *app) spin(suffix string) func() {
	if a.jsonOutput {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + suffix
	s.Start()
	return s.Stop
}

// metrics serves Prometheus metrics on addr (or metrics_addr) for the life of
// the process. Without an address it returns a no-op recorder.
func (a *app) metrics(addr string) metrics.Recorder {
	if addr == "" {
		addr = a.cfg.MetricsAddr
	}
	if addr == "" {
		return metrics.NoopRecorder{}
	}

	recorder := metrics.NewPrometheusRecorder(nil)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			a.logger.WithError(err).Error("Metrics server stopped")
		}
	}()
	a.logger.WithField("addr", addr).Debug("Serving metrics")
	return recorder
}
