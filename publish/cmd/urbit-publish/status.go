package main

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/urbit/urbit-token/publish/contracts"
	"github.com/urbit/urbit-token/publish/manifest"
	"github.com/urbit/urbit-token/publish/network"
	"github.com/urbit/urbit-token/publish/points"
)

var (
	colorTitle = lipgloss.Color("#00BFFF")
	colorOK    = lipgloss.Color("#00E676")
	colorWarn  = lipgloss.Color("#FFD700")
	colorMuted = lipgloss.Color("#8C8C8C")

	titleStyle = lipgloss.NewStyle().Foreground(colorTitle).Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(colorMuted).Width(26)
	okStyle    = lipgloss.NewStyle().Foreground(colorOK)
	warnStyle  = lipgloss.NewStyle().Foreground(colorWarn)
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the deployed network, token balances and owned points",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().String("owner", "", "account to report on (default the configured account)")
	statusCmd.Flags().StringSlice("point", nil, "additional points to inspect")
	statusCmd.Flags().Bool("json", false, "print JSON instead of a table")
	rootCmd.AddCommand(statusCmd)
}

type pointStatus struct {
	Point       points.Point   `json:"point"`
	Size        string         `json:"size"`
	Active      bool           `json:"active"`
	Owner       common.Address `json:"owner"`
	KeyRevision uint32         `json:"keyRevision"`
	Depleted    *bool          `json:"depleted,omitempty"`
	Unspawned   string         `json:"unspawned,omitempty"`
}

type networkStatus struct {
	Manifest        manifest.Manifest `json:"contracts"`
	Account         common.Address    `json:"account"`
	TotalSupply     string            `json:"totalSupply"`
	TreasuryBalance string            `json:"treasuryBalance"`
	Balance         string            `json:"balance"`
	Allowances      map[string]string `json:"allowances"`
	Points          []pointStatus     `json:"points"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
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

	account := net.Account()
	if v, _ := cmd.Flags().GetString("owner"); v != "" {
		if account, err = parseAddress(v); err != nil {
			return err
		}
	} else if cfg.PublicAddress != "" {
		if account, err = parseAddress(cfg.PublicAddress); err != nil {
			return err
		}
	}
	var extra []points.Point
	pointFlags, _ := cmd.Flags().GetStringSlice("point")
	for _, v := range pointFlags {
		p, err := points.ParsePoint(v)
		if err != nil {
			return err
		}
		extra = append(extra, p)
	}

	st, err := collectStatus(ctx, net, account, extra)
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(cmd.OutOrStdout(), st)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), renderStatus(st))
	return err
}

// collectStatus issues the independent reads concurrently.
func collectStatus(ctx context.Context, net *network.Client, account common.Address, extra []points.Point) (networkStatus, error) {
	m := net.Addresses()
	st := networkStatus{Manifest: m, Account: account}

	var (
		supply, treasury, balance, toEcliptic, toTreasury *big.Int
		owned                                             []points.Point
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	g.Go(func() (err error) { supply, err = net.TotalSupply(gctx); return })
	g.Go(func() (err error) { treasury, err = net.TreasuryBalance(gctx); return })
	g.Go(func() (err error) { balance, err = net.TokenBalance(gctx, account); return })
	g.Go(func() (err error) { toEcliptic, err = net.Allowance(gctx, account, m.Ecliptic); return })
	g.Go(func() (err error) { toTreasury, err = net.Allowance(gctx, account, m.PlanetTreasury); return })
	if account != (common.Address{}) {
		g.Go(func() (err error) { owned, err = net.OwnedPoints(gctx, account); return })
	}
	if err := g.Wait(); err != nil {
		return networkStatus{}, err
	}
	st.TotalSupply = supply.String()
	st.TreasuryBalance = treasury.String()
	st.Balance = balance.String()
	st.Allowances = map[string]string{
		contracts.Ecliptic.String():       toEcliptic.String(),
		contracts.PlanetTreasury.String(): toTreasury.String(),
	}

	seen := map[points.Point]bool{}
	var all []points.Point
	for _, p := range append(owned, extra...) {
		if !seen[p] {
			seen[p] = true
			all = append(all, p)
		}
	}
	st.Points = make([]pointStatus, len(all))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, p := range all {
		g.Go(func() error {
			ps, err := readPoint(gctx, net, p)
			st.Points[i] = ps
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return networkStatus{}, err
	}
	return st, nil
}

func readPoint(ctx context.Context, net *network.Client, p points.Point) (pointStatus, error) {
	ps := pointStatus{Point: p, Size: p.Size().String()}
	var err error
	if ps.Active, err = net.IsActive(ctx, p); err != nil || !ps.Active {
		return ps, err
	}
	if ps.Owner, err = net.Owner(ctx, p); err != nil {
		return ps, err
	}
	if ps.KeyRevision, err = net.KeyRevision(ctx, p); err != nil {
		return ps, err
	}
	if p.Size() == points.Star {
		depleted, err := net.IsDepleted(ctx, p)
		if err != nil {
			return ps, err
		}
		ps.Depleted = &depleted
		count, err := net.UnspawnedCount(ctx, p)
		if err != nil {
			return ps, err
		}
		ps.Unspawned = count.String()
	}
	return ps, nil
}

func renderStatus(st networkStatus) string {
	var sb strings.Builder
	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(label))
		sb.WriteString(value)
		sb.WriteByte('\n')
	}

	sb.WriteString(titleStyle.Render("Contracts"))
	sb.WriteByte('\n')
	row("Azimuth", st.Manifest.Azimuth.Hex())
	row("Polls", st.Manifest.Polls.Hex())
	row("Claims", st.Manifest.Claims.Hex())
	row("Ecliptic", st.Manifest.Ecliptic.Hex())
	row("PlanetTreasury", st.Manifest.PlanetTreasury.Hex())
	row("PlanetToken", st.Manifest.PlanetToken.Hex())

	sb.WriteByte('\n')
	sb.WriteString(titleStyle.Render("Tokens"))
	sb.WriteByte('\n')
	row("Total supply", st.TotalSupply)
	row("Treasury", st.TreasuryBalance)
	row("Account", st.Account.Hex())
	row("Balance", st.Balance)
	for _, kind := range []contracts.Kind{contracts.Ecliptic, contracts.PlanetTreasury} {
		row("Allowance "+kind.String(), st.Allowances[kind.String()])
	}

	sb.WriteByte('\n')
	sb.WriteString(titleStyle.Render("Points"))
	sb.WriteByte('\n')
	if len(st.Points) == 0 {
		sb.WriteString(labelStyle.Render("none"))
		sb.WriteByte('\n')
	}
	for _, ps := range st.Points {
		row(fmt.Sprintf("%s %d", ps.Size, ps.Point), pointSummary(ps))
	}
	return sb.String()
}

func pointSummary(ps pointStatus) string {
	if !ps.Active {
		return warnStyle.Render("unspawned")
	}
	parts := []string{okStyle.Render("active"), "owner " + ps.Owner.Hex()}
	if ps.KeyRevision > 0 {
		parts = append(parts, fmt.Sprintf("keys rev %d", ps.KeyRevision))
	} else {
		parts = append(parts, warnStyle.Render("no keys"))
	}
	if ps.Depleted != nil && *ps.Depleted {
		parts = append(parts, warnStyle.Render("depleted"))
	} else if ps.Unspawned != "" {
		parts = append(parts, ps.Unspawned+" unspawned planets")
	}
	return strings.Join(parts, ", ")
}
