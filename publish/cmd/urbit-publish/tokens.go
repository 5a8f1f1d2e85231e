package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"

	"github.com/urbit/urbit-token/publish/bootstrap"
	"github.com/urbit/urbit-token/publish/manifest"
	"github.com/urbit/urbit-token/publish/network"
	"github.com/urbit/urbit-token/publish/points"
)

var capacityCmd = &cobra.Command{
	Use:   "capacity",
	Short: "Move a star's planet capacity in or out of the treasury",
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Convert a star's unspawned planets into planet tokens",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runCapacity(cmd, "withdraw", (*network.Client).WithdrawCapacity)
	},
}

var depositCmd = &cobra.Command{
	Use:   "deposit",
	Short: "Return planet tokens to restore a star's capacity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runCapacity(cmd, "deposit", (*network.Client).DepositCapacity)
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Approve a spender for planet tokens",
	Args:  cobra.NoArgs,
	RunE:  runApprove,
}

func init() {
	for _, cmd := range []*cobra.Command{withdrawCmd, depositCmd} {
		cmd.Flags().String("star", "", "star whose capacity moves")
		_ = cmd.MarkFlagRequired("star")
	}
	capacityCmd.AddCommand(withdrawCmd, depositCmd)

	approveCmd.Flags().String("spender", "ecliptic", "ecliptic, treasury or an address")
	approveCmd.Flags().String("amount", "", "token amount in base units, or max (default tokens.approve_amount)")

	rootCmd.AddCommand(capacityCmd, approveCmd)
}

type capacityOp func(c *network.Client, ctx context.Context, star points.Point) (*types.Receipt, error)

func runCapacity(cmd *cobra.Command, name string, op capacityOp) error {
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

	if err := net.CheckOwner(ctx, star); err != nil {
		return err
	}
	receipt, err := op(net, ctx, star)
	if err != nil {
		return err
	}
	balance, err := net.TokenBalance(ctx, net.Account())
	if err != nil {
		return err
	}
	logger.Info("capacity "+name+" confirmed", "star", star, "tx", receipt.TxHash.Hex())
	return writeJSON(cmd.OutOrStdout(), map[string]any{
		"star":    star,
		"tx":      receipt.TxHash.Hex(),
		"balance": balance.String(),
	})
}

func runApprove(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateSigner(); err != nil {
		return err
	}
	amountFlag, _ := cmd.Flags().GetString("amount")
	if amountFlag == "" {
		amountFlag = cfg.Tokens.ApproveAmount
	}
	amount, err := bootstrap.ParseAmount(amountFlag)
	if err != nil {
		return err
	}

	m, err := manifest.Read(cfg.ManifestPath)
	if err != nil {
		return err
	}
	spenderFlag, _ := cmd.Flags().GetString("spender")
	spender, err := parseSpender(spenderFlag, m)
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

	receipt, err := net.Approve(ctx, spender, amount)
	if err != nil {
		return err
	}
	allowance, err := net.Allowance(ctx, net.Account(), spender)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), map[string]any{
		"spender":   spender.Hex(),
		"tx":        receipt.TxHash.Hex(),
		"allowance": allowance.String(),
	})
}
