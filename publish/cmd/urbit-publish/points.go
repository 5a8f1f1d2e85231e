package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/urbit/urbit-token/publish/config"
	"github.com/urbit/urbit-token/publish/keyring"
	"github.com/urbit/urbit-token/publish/points"
)

var findPointCmd = &cobra.Command{
	Use:   "find-point",
	Short: "Print the lowest unspawned child of a parent point",
	Args:  cobra.NoArgs,
	RunE:  runFindPoint,
}

var spawnCmd = &cobra.Command{
	Use:   "spawn",
	Short: "Spawn the lowest free child of a parent point",
	Args:  cobra.NoArgs,
	RunE:  runSpawn,
}

var redeemCmd = &cobra.Command{
	Use:   "redeem",
	Short: "Spawn a planet under a depleted star with planet tokens",
	Args:  cobra.NoArgs,
	RunE:  runRedeem,
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Configure networking keys for an owned point",
	Args:  cobra.NoArgs,
	RunE:  runKeys,
}

func init() {
	for _, cmd := range []*cobra.Command{findPointCmd, spawnCmd, redeemCmd} {
		cmd.Flags().Int("limit", 0, "children to scan (default genesis.scan_limit)")
	}
	findPointCmd.Flags().String("parent", "0", "parent point")
	findPointCmd.Flags().String("size", "star", "child size: star or planet")

	spawnCmd.Flags().String("parent", "0", "parent point")
	spawnCmd.Flags().String("size", "star", "child size: star or planet")
	spawnCmd.Flags().String("to", "", "new owner (default the signing account)")
	spawnCmd.Flags().Int("attempts", 0, "claim attempts (default genesis.claim_attempts)")

	redeemCmd.Flags().String("star", "", "depleted star to redeem under")
	redeemCmd.Flags().Int("attempts", 0, "claim attempts (default genesis.claim_attempts)")
	_ = redeemCmd.MarkFlagRequired("star")

	keysCmd.Flags().String("point", "", "point to configure")
	keysCmd.Flags().String("keys", "", "YAML keyring (default dev keys)")
	_ = keysCmd.MarkFlagRequired("point")

	rootCmd.AddCommand(findPointCmd, spawnCmd, redeemCmd, keysCmd)
}

type pointOutput struct {
	Point  points.Point `json:"point"`
	Size   string       `json:"size"`
	Parent points.Point `json:"parent"`
}

func newPointOutput(p points.Point) pointOutput {
	return pointOutput{Point: p, Size: p.Size().String(), Parent: p.Prefix()}
}

// scanFlags reads --parent, --size and --limit.
func scanFlags(cmd *cobra.Command, cfg config.Config) (points.Point, points.Size, int, error) {
	parentFlag, _ := cmd.Flags().GetString("parent")
	sizeFlag, _ := cmd.Flags().GetString("size")
	parent, err := points.ParsePoint(parentFlag)
	if err != nil {
		return 0, 0, 0, err
	}
	size, err := points.ParseSize(sizeFlag)
	if err != nil {
		return 0, 0, 0, err
	}
	return parent, size, scanLimit(cmd, cfg), nil
}

func scanLimit(cmd *cobra.Command, cfg config.Config) int {
	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
		return limit
	}
	return cfg.Genesis.ScanLimit
}

func claimAttempts(cmd *cobra.Command, cfg config.Config) int {
	if n, _ := cmd.Flags().GetInt("attempts"); n > 0 {
		return n
	}
	return cfg.Genesis.ClaimAttempts
}

func runFindPoint(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	parent, size, limit, err := scanFlags(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	net, d, err := openNetwork(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer d.Close()

	p, err := points.FindFreePoint(ctx, net, parent, size, limit)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), newPointOutput(p))
}

func runSpawn(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateSigner(); err != nil {
		return err
	}
	parent, size, limit, err := scanFlags(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	net, d, err := openNetwork(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer d.Close()

	to := net.Account()
	if v, _ := cmd.Flags().GetString("to"); v != "" {
		if to, err = parseAddress(v); err != nil {
			return err
		}
	}
	if err := net.CheckOwner(ctx, parent); err != nil {
		return err
	}
	if size == points.Planet {
		if err := net.CheckCanSpawnPlanets(ctx, parent); err != nil {
			return err
		}
	}

	p, err := net.SpawnFree(ctx, parent, size, to, limit, claimAttempts(cmd, cfg))
	if err != nil {
		return err
	}
	logger.Info("point spawned", "point", p, "owner", to.Hex())
	return writeJSON(cmd.OutOrStdout(), newPointOutput(p))
}

func runRedeem(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateSigner(); err != nil {
		return err
	}
	starFlag, _ := cmd.Flags().GetString("star")
	star, err := points.ParsePoint(starFlag)
	if err != nil {
		return err
	}
	if star.Size() != points.Star {
		return fmt.Errorf("point %d is a %s, not a star", star, star.Size())
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	net, d, err := openNetwork(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := net.CheckCanRedeem(ctx, star); err != nil {
		return err
	}
	p, err := net.RedeemFree(ctx, star, scanLimit(cmd, cfg), claimAttempts(cmd, cfg))
	if err != nil {
		return err
	}
	logger.Info("planet redeemed", "point", p, "star", star)
	return writeJSON(cmd.OutOrStdout(), newPointOutput(p))
}

func runKeys(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateSigner(); err != nil {
		return err
	}
	pointFlag, _ := cmd.Flags().GetString("point")
	p, err := points.ParsePoint(pointFlag)
	if err != nil {
		return err
	}
	keysFile, _ := cmd.Flags().GetString("keys")
	if keysFile == "" {
		keysFile = cfg.Genesis.KeysFile
	}
	kr, err := keyring.Load(keysFile)
	if err != nil {
		return err
	}
	keys, err := kr.For(p)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	net, d, err := openNetwork(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := net.CheckOwner(ctx, p); err != nil {
		return err
	}
	if _, err := net.ConfigureKeys(ctx, p, keys); err != nil {
		return err
	}
	rev, err := net.KeyRevision(ctx, p)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), map[string]any{"point": p, "keyRevision": rev})
}
