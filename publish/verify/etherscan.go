package verify

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultEtherscanURL is the multichain v2 endpoint; the chain is selected
// with the chainid query parameter.
const DefaultEtherscanURL = "https://api.etherscan.io/v2/api"

// Etherscan verifies contracts through the Etherscan API using the
// standard-json-input code format.
type Etherscan struct {
	http    httpClient
	apiKey  string
	chainID uint64
}

func NewEtherscan(baseURL, apiKey string, chainID uint64, client *http.Client) *Etherscan {
	if baseURL == "" {
		baseURL = DefaultEtherscanURL
	}
	return &Etherscan{
		http:    newHTTPClient("etherscan", baseURL, client),
		apiKey:  apiKey,
		chainID: chainID,
	}
}

func (e *Etherscan) Name() string { return "etherscan" }

type etherscanResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

func (e *Etherscan) endpoint() string {
	q := url.Values{}
	q.Set("chainid", strconv.FormatUint(e.chainID, 10))
	return e.http.baseURL + "?" + q.Encode()
}

func (e *Etherscan) Submit(ctx context.Context, sub Submission) (string, error) {
	form := url.Values{}
	form.Set("apikey", e.apiKey)
	form.Set("module", "contract")
	form.Set("action", "verifysourcecode")
	form.Set("contractaddress", sub.Address.Hex())
	form.Set("sourceCode", string(sub.StandardJSONInput))
	form.Set("codeformat", "solidity-standard-json-input")
	form.Set("contractname", sub.ContractName)
	form.Set("compilerversion", "v"+strings.TrimPrefix(sub.CompilerVersion, "v"))
	// The misspelling is part of the API.
	form.Set("constructorArguements", hex.EncodeToString(sub.ConstructorArgs))

	resp, err := e.call(ctx, http.MethodPost, e.endpoint(), "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	if resp.Status == "1" {
		return resp.Result, nil
	}
	if isAlreadyVerified(resp.Result) {
		return "", ErrAlreadyVerified
	}
	return "", fmt.Errorf("etherscan: %w: %s", ErrRejected, resp.Result)
}

func (e *Etherscan) Status(ctx context.Context, guid string) (Status, error) {
	q := url.Values{}
	q.Set("chainid", strconv.FormatUint(e.chainID, 10))
	q.Set("apikey", e.apiKey)
	q.Set("module", "contract")
	q.Set("action", "checkverifystatus")
	q.Set("guid", guid)

	resp, err := e.call(ctx, http.MethodGet, e.http.baseURL+"?"+q.Encode(), "", nil)
	if err != nil {
		return Status{}, err
	}
	switch {
	case strings.HasPrefix(resp.Result, "Pending"):
		return Status{State: Pending}, nil
	case strings.HasPrefix(resp.Result, "Pass"), isAlreadyVerified(resp.Result):
		return Status{State: Verified}, nil
	default:
		return Status{State: Failed, Reason: resp.Result}, nil
	}
}

func (e *Etherscan) call(ctx context.Context, method, endpoint, contentType string, body io.Reader) (etherscanResponse, error) {
	code, data, err := e.http.do(ctx, method, endpoint, contentType, body)
	if err != nil {
		return etherscanResponse{}, err
	}
	if code < 200 || code >= 300 {
		return etherscanResponse{}, &StatusError{Service: "etherscan", StatusCode: code, Body: string(data)}
	}
	var resp etherscanResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return etherscanResponse{}, fmt.Errorf("etherscan: decode response: %w", err)
	}
	return resp, nil
}

func isAlreadyVerified(result string) bool {
	return strings.Contains(strings.ToLower(result), "already verified")
}
