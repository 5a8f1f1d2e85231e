package claims

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"

	"github.com/urbit/urbit-token/publish"
)

const (
	name       = "Claims"
	sourceName = "contracts/Claims.sol"
)

var funcConstructor = w3.MustNewFunc("constructor(address)", "")

type ConstructorArgs struct {
	Azimuth common.Address
}

func Name() string       { return name }
func SourceName() string { return sourceName }

func EncodeConstructor(args ConstructorArgs) ([]byte, error) {
	return publish.EncodeConstructor(funcConstructor, args.Azimuth)
}
