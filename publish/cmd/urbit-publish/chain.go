package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/urbit/urbit-token/publish"
	"github.com/urbit/urbit-token/publish/config"
	"github.com/urbit/urbit-token/publish/manifest"
	"github.com/urbit/urbit-token/publish/network"
)

// dial connects to the configured node. Without a private key the deployer
// is read-only, which is an error when signer is true.
func dial(ctx context.Context, cfg config.Config, signer bool) (*publish.Deployer, error) {
	var key *ecdsa.PrivateKey
	if strings.TrimSpace(cfg.PrivateKey) != "" {
		k, addr, err := parsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		if cfg.PublicAddress != "" {
			pub, err := parseAddress(cfg.PublicAddress)
			if err != nil {
				return nil, err
			}
			if pub != addr {
				return nil, fmt.Errorf("public-address %s does not match private key address %s", pub.Hex(), addr.Hex())
			}
		}
		key = k
	} else if signer {
		return nil, fmt.Errorf("private_key is required")
	}

	d, err := publish.NewDeployer(ctx, cfg.RPCURL, cfg.ChainID, key, big.NewInt(cfg.GasFeeCap), big.NewInt(cfg.GasTipCap))
	if err != nil {
		return nil, err
	}
	d.SetPollInterval(cfg.PollInterval)
	return d, nil
}

// openNetwork dials the node and binds the network named by the manifest.
func openNetwork(ctx context.Context, cfg config.Config, logger *slog.Logger, signer bool) (*network.Client, *publish.Deployer, error) {
	m, err := manifest.Read(cfg.ManifestPath)
	if err != nil {
		return nil, nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", cfg.ManifestPath, err)
	}
	d, err := dial(ctx, cfg, signer)
	if err != nil {
		return nil, nil, err
	}
	client := network.New(d, m,
		network.WithConfirmations(cfg.Confirmations),
		network.WithConfirmTimeout(cfg.ConfirmTimeout),
		network.WithLogger(logger),
	)
	return client, d, nil
}

func parsePrivateKey(v string) (*ecdsa.PrivateKey, common.Address, error) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "0x")
	key, err := crypto.HexToECDSA(v)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("parse private key: %w", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey), nil
}

func parseAddress(v string) (common.Address, error) {
	v = strings.TrimSpace(v)
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("invalid address: %s", v)
	}
	return common.HexToAddress(v), nil
}

// parseSpender resolves a contract name from the manifest or a literal
// address.
func parseSpender(v string, m manifest.Manifest) (common.Address, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "ecliptic":
		return m.Ecliptic, nil
	case "treasury", "planettreasury":
		return m.PlanetTreasury, nil
	}
	return parseAddress(v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
