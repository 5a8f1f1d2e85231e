package bootstrap

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/urbit/urbit-token/publish/contracts"
	"github.com/urbit/urbit-token/publish/manifest"
	"github.com/urbit/urbit-token/publish/points"
)

// Deployment is one contract instance produced by the run.
type Deployment struct {
	Address         common.Address `json:"address"`
	TxHash          common.Hash    `json:"tx_hash"`
	ConstructorArgs hexutil.Bytes  `json:"constructor_args"`
}

type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Step records the outcome of one best-effort operation.
type Step struct {
	Stage  string `json:"stage"`
	Op     string `json:"op"`
	Target string `json:"target,omitempty"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Result accumulates what a run produced. Deployments only grow, and the
// Result is returned even when a required stage fails.
type Result struct {
	Deployments map[contracts.Kind]Deployment
	Spawned     []points.Point
	Steps       []Step

	mu sync.Mutex
}

func newResult() *Result {
	return &Result{Deployments: map[contracts.Kind]Deployment{}}
}

func (r *Result) record(step Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Steps = append(r.Steps, step)
}

func (r *Result) spawned(p points.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Spawned = append(r.Spawned, p)
}

func (r *Result) address(kind contracts.Kind) common.Address {
	return r.Deployments[kind].Address
}

// Manifest returns the addresses deployed so far.
func (r *Result) Manifest() manifest.Manifest {
	return manifest.Manifest{
		PlanetToken:    r.address(contracts.PlanetToken),
		PlanetTreasury: r.address(contracts.PlanetTreasury),
		Azimuth:        r.address(contracts.Azimuth),
		Ecliptic:       r.address(contracts.Ecliptic),
		Polls:          r.address(contracts.Polls),
		Claims:         r.address(contracts.Claims),
	}
}

// Failures returns the best-effort operations that did not succeed,
// including those skipped because a prerequisite failed.
func (r *Result) Failures() []Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Step
	for _, s := range r.Steps {
		if s.Status != StatusOK {
			out = append(out, s)
		}
	}
	return out
}

// Report is the JSON summary printed after a run.
type Report struct {
	Contracts map[string]Deployment `json:"contracts"`
	Spawned   []points.Point        `json:"spawned,omitempty"`
	Failures  []Step                `json:"failures,omitempty"`
}

func (r *Result) Report() Report {
	rep := Report{Contracts: map[string]Deployment{}}
	for kind, d := range r.Deployments {
		rep.Contracts[kind.String()] = d
	}
	r.mu.Lock()
	rep.Spawned = append(rep.Spawned, r.Spawned...)
	r.mu.Unlock()
	rep.Failures = r.Failures()
	return rep
}

// StageError is a required stage failure. The run stops there.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
