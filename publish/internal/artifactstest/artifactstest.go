// Package artifactstest writes Hardhat build output fixtures for tests.
package artifactstest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// WriteFixture lays out a minimal Hardhat artifact, debug file and build
// info for one contract under dir.
func WriteFixture(dir, sourceName, contractName string, bytecode []byte) error {
	contractDir := filepath.Join(dir, filepath.FromSlash(sourceName))
	if err := os.MkdirAll(contractDir, 0o755); err != nil {
		return err
	}
	buildInfoDir := filepath.Join(dir, "build-info")
	if err := os.MkdirAll(buildInfoDir, 0o755); err != nil {
		return err
	}

	artifact := map[string]any{
		"_format":        "hh-sol-artifact-1",
		"contractName":   contractName,
		"sourceName":     sourceName,
		"abi":            []any{},
		"bytecode":       hexutil.Encode(bytecode),
		"linkReferences": map[string]any{},
	}
	if err := writeJSON(filepath.Join(contractDir, contractName+".json"), artifact); err != nil {
		return err
	}

	rel, err := filepath.Rel(contractDir, filepath.Join(buildInfoDir, "fixture.json"))
	if err != nil {
		return err
	}
	dbg := map[string]any{
		"_format":   "hh-sol-dbg-1",
		"buildInfo": filepath.ToSlash(rel),
	}
	if err := writeJSON(filepath.Join(contractDir, contractName+".dbg.json"), dbg); err != nil {
		return err
	}

	buildInfo := map[string]any{
		"_format":         "hh-sol-build-info-1",
		"solcVersion":     "0.8.20",
		"solcLongVersion": "0.8.20+commit.a1b79de6",
		"input": map[string]any{
			"language": "Solidity",
			"sources": map[string]any{
				sourceName: map[string]string{"content": fmt.Sprintf("contract %s {}", contractName)},
			},
		},
	}
	return writeJSON(filepath.Join(buildInfoDir, "fixture.json"), buildInfo)
}

func writeJSON(path string, v any) error {
	blob, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, blob, 0o644)
}
