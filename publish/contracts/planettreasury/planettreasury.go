package planettreasury

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"

	"github.com/urbit/urbit-token/publish"
)

const (
	name       = "PlanetTreasury"
	sourceName = "contracts/PlanetTreasury.sol"
)

var funcConstructor = w3.MustNewFunc("constructor(address,address)", "")

var (
	FuncPlanetToken        = w3.MustNewFunc("planetToken()", "address")
	FuncGetTreasuryBalance = w3.MustNewFunc("getTreasuryBalance()", "uint256")
	FuncIsDepleted         = w3.MustNewFunc("isDepleted(uint32)", "bool")
	FuncGetUnspawnedCount  = w3.MustNewFunc("getUnspawnedCount(uint32)", "uint256")
	FuncWithdrawCapacity   = w3.MustNewFunc("withdrawCapacity(uint32)", "")
	FuncDepositCapacity    = w3.MustNewFunc("depositCapacity(uint32)", "")
	FuncOwner              = w3.MustNewFunc("owner()", "address")
	FuncTransferOwnership  = w3.MustNewFunc("transferOwnership(address)", "")
)

// ConstructorArgs are the treasury's constructor parameters. The treasury
// deploys its PlanetToken while constructing, owned by Owner.
type ConstructorArgs struct {
	Owner   common.Address
	Azimuth common.Address
}

func Name() string       { return name }
func SourceName() string { return sourceName }

func EncodeConstructor(args ConstructorArgs) ([]byte, error) {
	return publish.EncodeConstructor(funcConstructor, args.Owner, args.Azimuth)
}
