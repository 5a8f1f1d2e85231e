// Package keyring supplies the networking keys configured for points during
// genesis and by the keys command. Keys come from a YAML file:
//
//	default:
//	  encryption: 0xe3ea...
//	  authentication: 0x3d5f...
//	  suite: 1
//	points:
//	  256:
//	    encryption: 0x...
//	    authentication: 0x...
package keyring

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"

	"github.com/urbit/urbit-token/publish/points"
)

var ErrNoKeys = errors.New("no keys for point")

// Keys are the arguments of Ecliptic.configureKeys for one point.
type Keys struct {
	Encryption     [32]byte
	Authentication [32]byte
	CryptoSuite    uint32
	Discontinuous  bool
}

type keysFile struct {
	Encryption     string `yaml:"encryption"`
	Authentication string `yaml:"authentication"`
	Suite          uint32 `yaml:"suite"`
	Discontinuous  bool   `yaml:"discontinuous"`
}

type file struct {
	Default *keysFile                 `yaml:"default"`
	Points  map[points.Point]keysFile `yaml:"points"`
}

type Keyring struct {
	fallback *Keys
	points   map[points.Point]Keys
}

// Dev returns the throwaway keys used on local development chains.
func Dev() *Keyring {
	return &Keyring{
		fallback: &Keys{
			Encryption:     common.HexToHash("0xe3ea4c86481cd60e2a3c9600e1955fe97a187ab17adb33caebbb8d43109abc30"),
			Authentication: common.HexToHash("0x3d5ff28ddf49a36b89eaecfd5ed290e5cb4bd20b29b70d8fda3d7a37670baba0"),
			CryptoSuite:    1,
		},
		points: map[points.Point]Keys{},
	}
}

// Load reads a keyring file. An empty path yields Dev().
func Load(path string) (*Keyring, error) {
	if strings.TrimSpace(path) == "" {
		return Dev(), nil
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyring: %w", err)
	}
	return Parse(blob)
}

func Parse(blob []byte) (*Keyring, error) {
	var f file
	if err := yaml.Unmarshal(blob, &f); err != nil {
		return nil, fmt.Errorf("decode keyring: %w", err)
	}

	kr := &Keyring{points: make(map[points.Point]Keys, len(f.Points))}
	if f.Default != nil {
		k, err := f.Default.keys()
		if err != nil {
			return nil, fmt.Errorf("default keys: %w", err)
		}
		kr.fallback = &k
	}
	for p, entry := range f.Points {
		k, err := entry.keys()
		if err != nil {
			return nil, fmt.Errorf("keys for point %d: %w", p, err)
		}
		kr.points[p] = k
	}
	return kr, nil
}

// For returns the keys for p, falling back to the default entry.
func (kr *Keyring) For(p points.Point) (Keys, error) {
	if k, ok := kr.points[p]; ok {
		return k, nil
	}
	if kr.fallback != nil {
		return *kr.fallback, nil
	}
	return Keys{}, fmt.Errorf("%w %d", ErrNoKeys, p)
}

func (f keysFile) keys() (Keys, error) {
	enc, err := parseBytes32(f.Encryption)
	if err != nil {
		return Keys{}, fmt.Errorf("encryption: %w", err)
	}
	auth, err := parseBytes32(f.Authentication)
	if err != nil {
		return Keys{}, fmt.Errorf("authentication: %w", err)
	}
	suite := f.Suite
	if suite == 0 {
		suite = 1
	}
	return Keys{
		Encryption:     enc,
		Authentication: auth,
		CryptoSuite:    suite,
		Discontinuous:  f.Discontinuous,
	}, nil
}

func parseBytes32(v string) ([32]byte, error) {
	var out [32]byte
	b, err := hexutil.Decode(strings.TrimSpace(v))
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("want 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
