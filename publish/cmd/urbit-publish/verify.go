package main

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/urbit/urbit-token/publish/artifacts"
	"github.com/urbit/urbit-token/publish/bootstrap"
	"github.com/urbit/urbit-token/publish/contracts"
	"github.com/urbit/urbit-token/publish/manifest"
	"github.com/urbit/urbit-token/publish/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Submit the contracts named by the manifest for source verification",
	Long: `verify re-submits an existing deployment, read from the manifest, to the
configured verification service. Constructor arguments are re-derived from
the manifest and the deploying account.`,
	Args: cobra.NoArgs,
	PreRun: func(cmd *cobra.Command, _ []string) {
		bindFlags(cmd, map[string]string{"provider": "verify.provider"})
	},
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringSlice("contract", nil, "only verify these contracts (default all)")
	verifyCmd.Flags().String("provider", "", "verification provider: etherscan or sourcify")
	rootCmd.AddCommand(verifyCmd)
}

type verifyOutcome struct {
	Contract string `json:"contract"`
	Address  string `json:"address"`
	Error    string `json:"error,omitempty"`
}

func runVerify(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	only, err := cmd.Flags().GetStringSlice("contract")
	if err != nil {
		return err
	}
	filter := map[contracts.Kind]bool{}
	for _, name := range only {
		kind, err := contracts.ParseKind(name)
		if err != nil {
			return err
		}
		filter[kind] = true
	}

	m, err := manifest.Read(cfg.ManifestPath)
	if err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%s: %w", cfg.ManifestPath, err)
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	d, err := dial(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer d.Close()

	deployer := d.Address()
	if cfg.PublicAddress != "" {
		if deployer, err = parseAddress(cfg.PublicAddress); err != nil {
			return err
		}
	}
	if deployer == (common.Address{}) {
		return errors.New("public_address or private_key is required to derive constructor arguments")
	}
	deployments, err := bootstrap.FromManifest(m, deployer, cfg.Polls)
	if err != nil {
		return err
	}
	for kind := range deployments {
		if len(filter) > 0 && !filter[kind] {
			delete(deployments, kind)
		}
	}

	svc, err := verify.NewService(cfg.Verify, d.ChainID(), nil)
	if err != nil {
		return err
	}
	if svc == nil {
		return fmt.Errorf("%w: set verify.provider", verify.ErrNotConfigured)
	}
	reporter := verify.NewReporter(svc, d, artifacts.NewStore(cfg.ArtifactsDir), d.ChainID(),
		verify.WithStatusTimeout(cfg.Verify.StatusTimeout),
		verify.WithLogger(logger),
	)

	// Deploy transactions are unknown here, so no confirmations are awaited.
	reqs := bootstrap.Requests(deployments, 0)
	outcomes := make([]verifyOutcome, len(reqs))
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Verify.Concurrency, 1))
	for i, req := range reqs {
		g.Go(func() error {
			outcomes[i] = verifyOutcome{Contract: req.ContractName, Address: req.Address.Hex()}
			if err := reporter.Verify(gctx, req); err != nil {
				logger.Warn("verification failed", "contract", req.ContractName, "err", err)
				outcomes[i].Error = err.Error()
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			logger.Info("contract verified", "contract", req.ContractName, "address", req.Address.Hex())
			return nil
		})
	}
	_ = g.Wait()

	if err := writeJSON(cmd.OutOrStdout(), outcomes); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return errors.Join(errs...)
}
