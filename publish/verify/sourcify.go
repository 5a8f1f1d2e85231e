package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

const DefaultSourcifyURL = "https://sourcify.dev/server"

// Sourcify verifies contracts through the Sourcify v2 API. Constructor
// arguments are recovered by the service from the creation transaction.
type Sourcify struct {
	http    httpClient
	chainID uint64
}

func NewSourcify(baseURL string, chainID uint64, client *http.Client) *Sourcify {
	if baseURL == "" {
		baseURL = DefaultSourcifyURL
	}
	return &Sourcify{
		http:    newHTTPClient("sourcify", baseURL, client),
		chainID: chainID,
	}
}

func (s *Sourcify) Name() string { return "sourcify" }

type sourcifyVerifyRequest struct {
	StdJSONInput            json.RawMessage `json:"stdJsonInput"`
	CompilerVersion         string          `json:"compilerVersion"`
	ContractIdentifier      string          `json:"contractIdentifier"`
	CreationTransactionHash string          `json:"creationTransactionHash,omitempty"`
}

type sourcifyError struct {
	CustomCode string `json:"customCode"`
	Message    string `json:"message"`
}

type sourcifyJob struct {
	VerificationID string         `json:"verificationId"`
	IsJobCompleted bool           `json:"isJobCompleted"`
	Error          *sourcifyError `json:"error"`
	Contract       struct {
		Match *string `json:"match"`
	} `json:"contract"`
}

func (s *Sourcify) Submit(ctx context.Context, sub Submission) (string, error) {
	req := sourcifyVerifyRequest{
		StdJSONInput:       sub.StandardJSONInput,
		CompilerVersion:    sub.CompilerVersion,
		ContractIdentifier: sub.ContractName,
	}
	if sub.CreationTx != (common.Hash{}) {
		req.CreationTransactionHash = sub.CreationTx.Hex()
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("sourcify: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/verify/%s/%s", s.http.baseURL, strconv.FormatUint(s.chainID, 10), sub.Address.Hex())
	code, data, err := s.http.do(ctx, http.MethodPost, endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	switch code {
	case http.StatusAccepted, http.StatusOK:
		var job sourcifyJob
		if err := json.Unmarshal(data, &job); err != nil {
			return "", fmt.Errorf("sourcify: decode response: %w", err)
		}
		if job.VerificationID == "" {
			return "", fmt.Errorf("sourcify: response has no verification id")
		}
		return job.VerificationID, nil
	case http.StatusConflict:
		return "", ErrAlreadyVerified
	default:
		var serr sourcifyError
		if json.Unmarshal(data, &serr) == nil && serr.Message != "" {
			return "", fmt.Errorf("sourcify: %w: %s: %s", ErrRejected, serr.CustomCode, serr.Message)
		}
		return "", &StatusError{Service: "sourcify", StatusCode: code, Body: string(data)}
	}
}

func (s *Sourcify) Status(ctx context.Context, id string) (Status, error) {
	endpoint := s.http.baseURL + "/v2/verify/" + url.PathEscape(id)
	code, data, err := s.http.do(ctx, http.MethodGet, endpoint, "", nil)
	if err != nil {
		return Status{}, err
	}
	if code != http.StatusOK {
		return Status{}, &StatusError{Service: "sourcify", StatusCode: code, Body: string(data)}
	}
	var job sourcifyJob
	if err := json.Unmarshal(data, &job); err != nil {
		return Status{}, fmt.Errorf("sourcify: decode status: %w", err)
	}
	switch {
	case !job.IsJobCompleted:
		return Status{State: Pending}, nil
	case job.Error != nil:
		return Status{State: Failed, Reason: job.Error.Message}, nil
	case job.Contract.Match != nil && *job.Contract.Match != "":
		return Status{State: Verified}, nil
	default:
		return Status{State: Failed, Reason: "no match"}, nil
	}
}
