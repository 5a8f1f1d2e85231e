package polls

import (
	"math/big"

	"github.com/lmittmann/w3"

	"github.com/urbit/urbit-token/publish"
)

const (
	name       = "Polls"
	sourceName = "contracts/Polls.sol"

	// DefaultPeriod is thirty days in seconds, used for both the poll
	// duration and the cooldown.
	DefaultPeriod = 2_592_000
)

var funcConstructor = w3.MustNewFunc("constructor(uint256,uint256)", "")

var (
	FuncOwner             = w3.MustNewFunc("owner()", "address")
	FuncTransferOwnership = w3.MustNewFunc("transferOwnership(address)", "")
)

type ConstructorArgs struct {
	PollDuration *big.Int
	PollCooldown *big.Int
}

func Name() string       { return name }
func SourceName() string { return sourceName }

func EncodeConstructor(args ConstructorArgs) ([]byte, error) {
	return publish.EncodeConstructor(funcConstructor, args.PollDuration, args.PollCooldown)
}
