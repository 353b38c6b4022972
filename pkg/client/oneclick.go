package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"
	"github.com/pkg/errors"
)

const (
	tokenListTTL = 10 * time.Minute

	// slippage tolerance in basis points (1%)
	defaultSlippageBps = 100
)

// OneClickQuoteParams describes a 1Click exact-input quote
type OneClickQuoteParams struct {
	Dry              bool
	OriginAsset      string
	DestinationAsset string
	Amount           string
	Recipient        string
	RefundTo         string
}

// OneClickClient wraps the 1Click SDK
type OneClickClient struct {
	client   *oneclick.APIClient
	jwtToken string

	mu        sync.Mutex
	tokens    []oneclick.TokenResponse
	fetchedAt time.Time
}

// NewOneClickClient creates a new 1Click API client. An empty baseURL keeps
// the SDK's default server.
func NewOneClickClient(jwtToken, baseURL string, httpClient *http.Client) *OneClickClient {
	config := oneclick.NewConfiguration()
	if baseURL != "" {
		config.Servers = oneclick.ServerConfigurations{{URL: strings.TrimSuffix(baseURL, "/")}}
	}
	if httpClient != nil {
		config.HTTPClient = httpClient
	}

	return &OneClickClient{
		client:   oneclick.NewAPIClient(config),
		jwtToken: jwtToken,
	}
}

func (c *OneClickClient) authContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oneclick.ContextAccessToken, c.jwtToken)
}

// GetSupportedTokens retrieves all supported tokens. The list is cached for a
// few minutes.
func (c *OneClickClient) GetSupportedTokens(ctx context.Context) ([]oneclick.TokenResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tokens != nil && time.Since(c.fetchedAt) < tokenListTTL {
		return c.tokens, nil
	}

	resp, httpResp, err := c.client.OneClickAPI.GetTokens(c.authContext(ctx)).Execute()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get tokens")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("API returned status code %d", httpResp.StatusCode)
	}

	c.tokens = resp
	c.fetchedAt = time.Now()
	return resp, nil
}

// FindTokenByAddress finds a token by blockchain slug and contract address.
// An empty contract matches the chain's native asset.
func (c *OneClickClient) FindTokenByAddress(ctx context.Context, blockchain, contract string) (*oneclick.TokenResponse, error) {
	tokens, err := c.GetSupportedTokens(ctx)
	if err != nil {
		return nil, err
	}

	for _, token := range tokens {
		if !strings.EqualFold(token.GetBlockchain(), blockchain) {
			continue
		}
		if strings.EqualFold(token.GetContractAddress(), contract) {
			t := token
			return &t, nil
		}
	}

	if contract == "" {
		return nil, errors.Errorf("native token not found on chain '%s'", blockchain)
	}
	return nil, errors.Errorf("token '%s' not found on chain '%s'", contract, blockchain)
}

// GetQuote requests an exact-input quote
func (c *OneClickClient) GetQuote(ctx context.Context, params OneClickQuoteParams) (*oneclick.QuoteResponse, error) {
	if params.Recipient == "" {
		return nil, errors.New("recipient address is required")
	}
	refundTo := params.RefundTo
	if refundTo == "" {
		refundTo = params.Recipient
	}

	deadline := time.Now().Add(24 * time.Hour)

	quoteReq := oneclick.NewQuoteRequest(
		params.Dry,
		"EXACT_INPUT",
		defaultSlippageBps,
		params.OriginAsset,
		"ORIGIN_CHAIN",
		params.DestinationAsset,
		params.Amount,
		refundTo,
		"ORIGIN_CHAIN",
		params.Recipient,
		"DESTINATION_CHAIN",
		deadline,
	)

	resp, httpResp, err := c.client.OneClickAPI.GetQuote(c.authContext(ctx)).QuoteRequest(*quoteReq).Execute()
	if err != nil {
		if httpResp != nil {
			defer httpResp.Body.Close()
			bodyBytes, readErr := io.ReadAll(httpResp.Body)
			if readErr == nil && len(bodyBytes) > 0 {
				var errorResp map[string]interface{}
				if jsonErr := json.Unmarshal(bodyBytes, &errorResp); jsonErr == nil {
					if message, ok := errorResp["message"].(string); ok {
						return nil, errors.Errorf("API error (status %d): %s", httpResp.StatusCode, message)
					}
				}
				return nil, errors.Errorf("API error (status %d): %s", httpResp.StatusCode, string(bodyBytes))
			}
			return nil, errors.Wrapf(err, "failed to get quote from API (status: %d)", httpResp.StatusCode)
		}
		return nil, errors.Wrap(err, "failed to get quote from API")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, errors.Errorf("API returned status code %d", httpResp.StatusCode)
	}
	if resp == nil {
		return nil, errors.New("empty quote response")
	}

	return resp, nil
}

// GetSwapStatus checks the execution status of a swap
func (c *OneClickClient) GetSwapStatus(ctx context.Context, depositAddress string) (*oneclick.GetExecutionStatusResponse, error) {
	resp, httpResp, err := c.client.OneClickAPI.GetExecutionStatus(c.authContext(ctx)).DepositAddress(depositAddress).Execute()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get status")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("API returned status code %d", httpResp.StatusCode)
	}

	return resp, nil
}

// SubmitDepositTx tells 1Click which transaction funded a deposit address
func (c *OneClickClient) SubmitDepositTx(ctx context.Context, depositAddress, txHash string) error {
	req := oneclick.NewSubmitDepositTxRequest(txHash, depositAddress)

	_, httpResp, err := c.client.OneClickAPI.SubmitDepositTx(c.authContext(ctx)).SubmitDepositTxRequest(*req).Execute()
	if err != nil {
		return errors.Wrap(err, "failed to submit deposit")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusCreated {
		return errors.Errorf("API returned status code %d", httpResp.StatusCode)
	}

	return nil
}
