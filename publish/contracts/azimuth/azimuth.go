package azimuth

import (
	"github.com/lmittmann/w3"

	"github.com/urbit/urbit-token/publish"
)

const (
	name       = "Azimuth"
	sourceName = "contracts/Azimuth.sol"
)

var funcConstructor = w3.MustNewFunc("constructor()", "")

var (
	FuncIsActive             = w3.MustNewFunc("isActive(uint32)", "bool")
	FuncGetOwner             = w3.MustNewFunc("getOwner(uint32)", "address")
	FuncGetOwnedPoints       = w3.MustNewFunc("getOwnedPoints(address)", "uint32[]")
	FuncGetKeyRevisionNumber = w3.MustNewFunc("getKeyRevisionNumber(uint32)", "uint32")
	FuncOwner                = w3.MustNewFunc("owner()", "address")
	FuncTransferOwnership    = w3.MustNewFunc("transferOwnership(address)", "")
)

func Name() string       { return name }
func SourceName() string { return sourceName }

func EncodeConstructor() ([]byte, error) {
	return publish.EncodeConstructor(funcConstructor)
}
