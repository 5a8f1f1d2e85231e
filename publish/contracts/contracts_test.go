package contracts

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/urbit/urbit-token/publish/contracts/ecliptic"
	"github.com/urbit/urbit-token/publish/contracts/polls"
)

func TestKindsHaveSpecs(t *testing.T) {
	seen := map[string]bool{}
	for _, k := range Kinds() {
		spec := k.Spec()
		if spec.Kind != k {
			t.Errorf("%v: spec kind = %v", k, spec.Kind)
		}
		if spec.Name == "" || spec.SourceName == "" {
			t.Errorf("%v: incomplete spec %+v", k, spec)
		}
		if seen[spec.Name] {
			t.Errorf("duplicate name %s", spec.Name)
		}
		seen[spec.Name] = true
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"Azimuth", Azimuth},
		{"ecliptic", Ecliptic},
		{" planettreasury ", PlanetTreasury},
		{"PLANETTOKEN", PlanetToken},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if err != nil {
				t.Fatalf("ParseKind(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseKind(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	if _, err := ParseKind("splitter"); err == nil {
		t.Error("expected error for unknown contract")
	}
}

func TestFullyQualifiedName(t *testing.T) {
	if got, want := Ecliptic.Spec().FullyQualifiedName(), "contracts/Ecliptic.sol:Ecliptic"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestOnlyTokenIsCreatedByAnotherContract(t *testing.T) {
	for _, k := range Kinds() {
		deployed := k.Spec().Deployed()
		if k == PlanetToken && deployed {
			t.Error("PlanetToken should be created by the treasury")
		}
		if k != PlanetToken && !deployed {
			t.Errorf("%v should be deployed directly", k)
		}
	}
}

func TestEncodeConstructorHasNoSelector(t *testing.T) {
	args, err := ecliptic.EncodeConstructor(ecliptic.ConstructorArgs{
		Azimuth:     common.HexToAddress("0x1"),
		PlanetToken: common.HexToAddress("0x7"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(args) != 7*32 {
		t.Fatalf("len = %d, want %d", len(args), 7*32)
	}
	// second word is the azimuth address, last word the token
	if args[63] != 0x01 || args[len(args)-1] != 0x07 {
		t.Errorf("unexpected encoding %x", args)
	}
	if !bytes.Equal(args[:32], make([]byte, 32)) {
		t.Errorf("previous should be zero, got %x", args[:32])
	}
}

func TestEncodePollsConstructor(t *testing.T) {
	args, err := polls.EncodeConstructor(polls.ConstructorArgs{
		PollDuration: big.NewInt(polls.DefaultPeriod),
		PollCooldown: big.NewInt(polls.DefaultPeriod),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(args) != 64 {
		t.Fatalf("len = %d, want 64", len(args))
	}
	if new(big.Int).SetBytes(args[32:]).Int64() != polls.DefaultPeriod {
		t.Errorf("cooldown encoded as %x", args[32:])
	}
}
