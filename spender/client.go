package spender

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ClipFinance/approval-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	userAssignmentPath    = "/api/contracts/user-assignment"
	defaultRequestTimeout = 10 * time.Second
	maxResponseBytes      = 1 << 20
)

var ErrWalletAddressRequired = errors.New("Wallet address is required to fetch contract details.")

// Fetcher fetches the contract assigned to a wallet.
type Fetcher interface {
	FetchUserContract(ctx context.Context, walletAddress string) (*types.SpenderAssignment, error)
}

// Client talks to the contract assignment backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a backend client.
//
// Parameters:
// - baseURL: the backend origin, e.g. https://api.example.com.
// - httpClient: the HTTP client to use; nil means a client with a 10s timeout.
// - logger: the logger for logging purposes.
//
// Returns:
// - *Client: the new client.
func NewClient(baseURL string, httpClient *http.Client, logger *logrus.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

type assignmentResponse struct {
	ContractAddress *string `json:"contractAddress"`
	PoolAddress     *string `json:"poolAddress"`
	Message         string  `json:"message"`
}

// FetchUserContract returns the contract and pool assigned to walletAddress.
// A successful response may carry no contract; the backend message explains why.
//
// Parameters:
// - ctx: the context for managing the request.
// - walletAddress: the wallet to look up.
//
// Returns:
// - *types.SpenderAssignment: the assignment.
// - error: the backend message on a non-2xx response, or a transport error.
func (c *Client) FetchUserContract(ctx context.Context, walletAddress string) (*types.SpenderAssignment, error) {
	if walletAddress == "" {
		return nil, ErrWalletAddressRequired
	}

	endpoint := c.baseURL + userAssignmentPath + "?" + url.Values{"walletAddress": {walletAddress}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build contract details request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch contract details")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read contract details")
	}

	var data assignmentResponse
	decodeErr := json.Unmarshal(body, &data)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.WithFields(logrus.Fields{
			"wallet": walletAddress,
			"status": resp.StatusCode,
			"body":   string(body),
		}).Error("Contract assignment API error")

		if decodeErr == nil && data.Message != "" {
			return nil, errors.New(data.Message)
		}
		return nil, errors.Errorf("Error fetching contract details: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if decodeErr != nil {
		return nil, errors.Wrap(decodeErr, "failed to decode contract details")
	}

	assignment := &types.SpenderAssignment{Message: data.Message}
	if data.ContractAddress != nil {
		assignment.ContractAddress = *data.ContractAddress
	}
	if data.PoolAddress != nil {
		assignment.PoolAddress = *data.PoolAddress
	}

	return assignment, nil
}
