// Package artifacts reads the compiler output of a Hardhat project: the
// per-contract artifact holding creation bytecode, and the build info holding
// the standard-JSON compiler input that verification services need.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	ErrNoBytecode     = errors.New("artifact has no creation bytecode")
	ErrUnlinked       = errors.New("artifact references unlinked libraries")
	ErrNoCompilerInfo = errors.New("build info has no compiler version")
)

type Artifact struct {
	ContractName   string                     `json:"contractName"`
	SourceName     string                     `json:"sourceName"`
	Bytecode       hexutil.Bytes              `json:"bytecode"`
	LinkReferences map[string]json.RawMessage `json:"linkReferences"`
}

// BuildInfo is the subset of a Hardhat build-info file needed to reproduce
// a compilation.
type BuildInfo struct {
	SolcVersion     string          `json:"solcVersion"`
	SolcLongVersion string          `json:"solcLongVersion"`
	Input           json.RawMessage `json:"input"`
}

type debugFile struct {
	BuildInfo string `json:"buildInfo"`
}

// Store loads artifacts from a Hardhat artifacts directory. It is safe for
// concurrent use and caches what it has read.
type Store struct {
	dir string

	mu         sync.Mutex
	artifacts  map[string]*Artifact
	buildInfos map[string]*BuildInfo
}

func NewStore(dir string) *Store {
	return &Store{
		dir:        dir,
		artifacts:  map[string]*Artifact{},
		buildInfos: map[string]*BuildInfo{},
	}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) artifactPath(sourceName, contractName, suffix string) string {
	return filepath.Join(s.dir, filepath.FromSlash(sourceName), contractName+suffix)
}

// Artifact returns the artifact of contractName compiled from sourceName
// (e.g. "contracts/Azimuth.sol").
func (s *Store) Artifact(sourceName, contractName string) (*Artifact, error) {
	path := s.artifactPath(sourceName, contractName, ".json")

	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.artifacts[path]; ok {
		return a, nil
	}

	var a Artifact
	if err := readJSON(path, &a); err != nil {
		return nil, fmt.Errorf("load artifact %s: %w", contractName, err)
	}
	if len(a.LinkReferences) > 0 {
		return nil, fmt.Errorf("%s: %w", contractName, ErrUnlinked)
	}
	if len(a.Bytecode) == 0 {
		return nil, fmt.Errorf("%s: %w", contractName, ErrNoBytecode)
	}
	s.artifacts[path] = &a
	return &a, nil
}

// Bytecode is a shorthand for the artifact's creation bytecode.
func (s *Store) Bytecode(sourceName, contractName string) ([]byte, error) {
	a, err := s.Artifact(sourceName, contractName)
	if err != nil {
		return nil, err
	}
	return a.Bytecode, nil
}

// BuildInfo follows the contract's debug file to the build info that
// produced it.
func (s *Store) BuildInfo(sourceName, contractName string) (*BuildInfo, error) {
	dbgPath := s.artifactPath(sourceName, contractName, ".dbg.json")

	s.mu.Lock()
	defer s.mu.Unlock()

	var dbg debugFile
	if err := readJSON(dbgPath, &dbg); err != nil {
		return nil, fmt.Errorf("load debug file for %s: %w", contractName, err)
	}
	if dbg.BuildInfo == "" {
		return nil, fmt.Errorf("debug file %s names no build info", dbgPath)
	}

	path := filepath.Clean(filepath.Join(filepath.Dir(dbgPath), filepath.FromSlash(dbg.BuildInfo)))
	if bi, ok := s.buildInfos[path]; ok {
		return bi, nil
	}

	var bi BuildInfo
	if err := readJSON(path, &bi); err != nil {
		return nil, fmt.Errorf("load build info for %s: %w", contractName, err)
	}
	if bi.SolcLongVersion == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrNoCompilerInfo)
	}
	s.buildInfos[path] = &bi
	return &bi, nil
}

func readJSON(path string, v any) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(blob, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
