// Package contracts is the static registry of the contracts that make up the
// point network. Each Kind maps to its artifact location and deploy settings;
// ABI fragments and constructor encoding live in the per-contract packages.
package contracts

import (
	"fmt"
	"strings"

	"github.com/urbit/urbit-token/publish/contracts/azimuth"
	"github.com/urbit/urbit-token/publish/contracts/claims"
	"github.com/urbit/urbit-token/publish/contracts/ecliptic"
	"github.com/urbit/urbit-token/publish/contracts/planettoken"
	"github.com/urbit/urbit-token/publish/contracts/planettreasury"
	"github.com/urbit/urbit-token/publish/contracts/polls"
)

type Kind uint8

const (
	Azimuth Kind = iota + 1
	Polls
	Claims
	PlanetTreasury
	PlanetToken
	Ecliptic
)

// Spec describes how one contract is located and deployed.
type Spec struct {
	Kind       Kind
	Name       string
	SourceName string

	// GasLimit is the creation gas limit; zero means estimate.
	GasLimit uint64

	// CreatedBy is set when the contract is not deployed directly but
	// created by another contract's constructor.
	CreatedBy Kind
}

var registry = map[Kind]Spec{
	Azimuth: {
		Kind:       Azimuth,
		Name:       azimuth.Name(),
		SourceName: azimuth.SourceName(),
	},
	Polls: {
		Kind:       Polls,
		Name:       polls.Name(),
		SourceName: polls.SourceName(),
	},
	Claims: {
		Kind:       Claims,
		Name:       claims.Name(),
		SourceName: claims.SourceName(),
	},
	PlanetTreasury: {
		Kind:       PlanetTreasury,
		Name:       planettreasury.Name(),
		SourceName: planettreasury.SourceName(),
	},
	PlanetToken: {
		Kind:       PlanetToken,
		Name:       planettoken.Name(),
		SourceName: planettoken.SourceName(),
		CreatedBy:  PlanetTreasury,
	},
	Ecliptic: {
		Kind:       Ecliptic,
		Name:       ecliptic.Name(),
		SourceName: ecliptic.SourceName(),
	},
}

// Kinds returns every contract in deployment order.
func Kinds() []Kind {
	return []Kind{Azimuth, Polls, Claims, PlanetTreasury, PlanetToken, Ecliptic}
}

func (k Kind) Spec() Spec {
	spec, ok := registry[k]
	if !ok {
		panic(fmt.Sprintf("contracts: unknown kind %d", k))
	}
	return spec
}

func (k Kind) String() string {
	if spec, ok := registry[k]; ok {
		return spec.Name
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// FullyQualifiedName is the "source:Contract" identifier verification
// services expect.
func (s Spec) FullyQualifiedName() string {
	return s.SourceName + ":" + s.Name
}

// Deployed reports whether the contract is created by its own transaction.
func (s Spec) Deployed() bool {
	return s.CreatedBy == 0
}

// ParseKind resolves a contract name, case-insensitively.
func ParseKind(name string) (Kind, error) {
	name = strings.TrimSpace(name)
	for _, k := range Kinds() {
		if strings.EqualFold(k.Spec().Name, name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown contract: %s", name)
}
