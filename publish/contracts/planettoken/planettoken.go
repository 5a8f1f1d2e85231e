package planettoken

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"

	"github.com/urbit/urbit-token/publish"
)

const (
	name       = "PlanetToken"
	sourceName = "contracts/PlanetToken.sol"
)

// The token is created by PlanetTreasury's constructor; the constructor
// encoding is only needed to verify its source.
var funcConstructor = w3.MustNewFunc("constructor(address)", "")

var (
	FuncBalanceOf   = w3.MustNewFunc("balanceOf(address)", "uint256")
	FuncAllowance   = w3.MustNewFunc("allowance(address,address)", "uint256")
	FuncTotalSupply = w3.MustNewFunc("totalSupply()", "uint256")
	FuncApprove     = w3.MustNewFunc("approve(address,uint256)", "bool")
)

type ConstructorArgs struct {
	Owner common.Address
}

func Name() string       { return name }
func SourceName() string { return sourceName }

func EncodeConstructor(args ConstructorArgs) ([]byte, error) {
	return publish.EncodeConstructor(funcConstructor, args.Owner)
}
