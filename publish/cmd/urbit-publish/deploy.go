package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/urbit/urbit-token/publish/artifacts"
	"github.com/urbit/urbit-token/publish/bootstrap"
	"github.com/urbit/urbit-token/publish/keyring"
	"github.com/urbit/urbit-token/publish/verify"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the contracts, write the manifest and bootstrap genesis points",
	Long: `deploy publishes Azimuth, Polls, Claims, PlanetTreasury and Ecliptic,
hands ownership to Ecliptic and writes the address manifest. It then
spawns the genesis points, runs the token operations and submits every
contract for source verification. Those later steps are best-effort: their
failures are reported but do not fail the command.`,
	Args: cobra.NoArgs,
	PreRun: func(cmd *cobra.Command, _ []string) {
		bindFlags(cmd, map[string]string{
			"genesis":          "genesis.enabled",
			"galaxy":           "genesis.galaxy",
			"stars":            "genesis.stars",
			"planets-per-star": "genesis.planets_per_star",
			"keys":             "genesis.keys_file",
			"tokens":           "tokens.enabled",
			"verify":           "verify.provider",
		})
	},
	RunE: runDeploy,
}

func init() {
	flags := deployCmd.Flags()
	flags.Bool("genesis", true, "spawn the genesis galaxy, stars and planets")
	flags.Uint8("galaxy", 0, "genesis galaxy")
	flags.Int("stars", 1, "stars to spawn under the galaxy")
	flags.Int("planets-per-star", 3, "planets to spawn under each star")
	flags.String("keys", "", "YAML keyring for networking keys (default dev keys)")
	flags.Bool("tokens", true, "withdraw capacity and approve spenders")
	flags.String("verify", "", "verification provider: etherscan or sourcify")

	// Bound in PreRun: verify binds the same provider key.
	rootCmd.AddCommand(deployCmd)
}

func runDeploy(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateSigner(); err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	d, err := dial(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer d.Close()

	store := artifacts.NewStore(cfg.ArtifactsDir)
	kr, err := keyring.Load(cfg.Genesis.KeysFile)
	if err != nil {
		return err
	}
	opts := []bootstrap.Option{
		bootstrap.WithKeyring(kr),
		bootstrap.WithLogger(logger),
	}

	svc, err := verify.NewService(cfg.Verify, d.ChainID(), nil)
	if err != nil {
		return err
	}
	if svc != nil {
		reporter := verify.NewReporter(svc, d, store, d.ChainID(),
			verify.WithStatusTimeout(cfg.Verify.StatusTimeout),
			verify.WithLogger(logger),
		)
		opts = append(opts, bootstrap.WithVerifier(reporter))
	}

	res, runErr := bootstrap.New(d, store, cfg, opts...).Run(ctx)
	if err := writeJSON(cmd.OutOrStdout(), res.Report()); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if runErr != nil {
		return runErr
	}
	logger.Info("manifest written", "path", cfg.ManifestPath)
	return nil
}
