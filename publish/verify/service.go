package verify

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/urbit/urbit-token/publish/config"
)

// NewService builds the service named by cfg.Provider. An empty provider
// disables verification and returns a nil Service.
func NewService(cfg config.VerifyConfig, chainID uint64, client *http.Client) (Service, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "":
		return nil, nil
	case "etherscan":
		if cfg.EtherscanAPIKey == "" {
			return nil, fmt.Errorf("etherscan: %w: missing api key", ErrNotConfigured)
		}
		return NewEtherscan(cfg.EtherscanURL, cfg.EtherscanAPIKey, chainID, client), nil
	case "sourcify":
		return NewSourcify(cfg.SourcifyURL, chainID, client), nil
	default:
		return nil, fmt.Errorf("unknown verification provider %q", cfg.Provider)
	}
}
