package ecliptic

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"

	"github.com/urbit/urbit-token/publish"
)

const (
	name       = "Ecliptic"
	sourceName = "contracts/Ecliptic.sol"
)

var funcConstructor = w3.MustNewFunc(
	"constructor(address,address,address,address,address,address,address)", "",
)

var (
	FuncCreateGalaxy         = w3.MustNewFunc("createGalaxy(uint8,address)", "")
	FuncConfigureKeys        = w3.MustNewFunc("configureKeys(uint32,bytes32,bytes32,uint32,bool)", "")
	FuncSpawn                = w3.MustNewFunc("spawn(uint32,address)", "")
	FuncTokenRedemptionSpawn = w3.MustNewFunc("tokenRedemptionSpawn(uint32)", "")
)

// ConstructorArgs wires Ecliptic to the rest of the network. Previous and
// Treasurer are reserved for future upgrades and left zero on a fresh chain.
type ConstructorArgs struct {
	Previous       common.Address
	Azimuth        common.Address
	Polls          common.Address
	Claims         common.Address
	Treasurer      common.Address
	PlanetTreasury common.Address
	PlanetToken    common.Address
}

func Name() string       { return name }
func SourceName() string { return sourceName }

func EncodeConstructor(args ConstructorArgs) ([]byte, error) {
	return publish.EncodeConstructor(funcConstructor,
		args.Previous,
		args.Azimuth,
		args.Polls,
		args.Claims,
		args.Treasurer,
		args.PlanetTreasury,
		args.PlanetToken,
	)
}
