package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/proxy"

	"bridge-aggregator/pkg/types"
)

// HTTPClientConfig configures a provider REST client
type HTTPClientConfig struct {
	Provider types.ProviderName
	BaseURL  string
	Timeout  time.Duration
	// ProxyString is host:port, host:port:user:pass or host:port:user:pass:socks5
	ProxyString string
}

// HTTPClient is a small JSON-over-HTTP client. It never retries: a failed
// call is reported to the caller as is.
type HTTPClient struct {
	client   *http.Client
	baseURL  string
	provider types.ProviderName
}

// NewHTTPClient creates a REST client for one provider
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	if cfg.ProxyString != "" {
		configureProxy(transport, cfg.ProxyString)
	}

	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		provider: cfg.Provider,
	}
}

func configureProxy(transport *http.Transport, proxyString string) {
	parts := strings.Split(proxyString, ":")
	if len(parts) < 2 {
		return
	}

	host, port := parts[0], parts[1]
	proxyType := "http"
	var username, password string
	if len(parts) >= 4 {
		username, password = parts[2], parts[3]
		if len(parts) >= 5 {
			proxyType = strings.ToLower(parts[4])
		}
	}

	if strings.HasPrefix(proxyType, "socks") {
		var auth *proxy.Auth
		if username != "" && password != "" {
			auth = &proxy.Auth{User: username, Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", net.JoinHostPort(host, port), auth, proxy.Direct)
		if err == nil {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				if cd, ok := dialer.(proxy.ContextDialer); ok {
					return cd.DialContext(ctx, network, addr)
				}
				return dialer.Dial(network, addr)
			}
		}
		return
	}

	proxyURL := &url.URL{Scheme: "http", Host: net.JoinHostPort(host, port)}
	if username != "" && password != "" {
		proxyURL.User = url.UserPassword(username, password)
	}
	transport.Proxy = http.ProxyURL(proxyURL)
}

// GetJSON issues a GET with query parameters built from params' url tags and
// decodes the JSON body into result.
func (c *HTTPClient) GetJSON(ctx context.Context, path string, params interface{}, result interface{}) error {
	urlStr := c.baseURL + path
	if query := BuildQuery(params); query != "" {
		urlStr += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s request failed", c.provider)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &types.APIError{
			Provider:   c.provider,
			StatusCode: resp.StatusCode,
			Message:    extractErrorMessage(body),
		}
	}

	if err := json.Unmarshal(body, result); err != nil {
		return errors.Wrapf(err, "decode %s response", c.provider)
	}
	return nil
}

// extractErrorMessage pulls a human readable message out of an error body,
// falling back to the raw body.
func extractErrorMessage(body []byte) string {
	var errorResp map[string]interface{}
	if err := json.Unmarshal(body, &errorResp); err == nil {
		for _, key := range []string{"message", "errorMessage", "error"} {
			if message, ok := errorResp[key].(string); ok && message != "" {
				return message
			}
		}
		if errs, ok := errorResp["errors"]; ok {
			return fmt.Sprintf("%v", errs)
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response"
	}
	return msg
}

// BuildQuery encodes the `url:"name,omitempty"` tagged fields of a struct
func BuildQuery(params interface{}) string {
	if params == nil {
		return ""
	}

	v := reflect.ValueOf(params)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return ""
	}

	values := url.Values{}
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("url")
		if tag == "" || tag == "-" {
			continue
		}

		parts := strings.Split(tag, ",")
		name := parts[0]
		omitempty := len(parts) > 1 && parts[1] == "omitempty"

		var strVal string
		switch field.Kind() {
		case reflect.String:
			strVal = field.String()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if field.Int() != 0 || !omitempty {
				strVal = strconv.FormatInt(field.Int(), 10)
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if field.Uint() != 0 || !omitempty {
				strVal = strconv.FormatUint(field.Uint(), 10)
			}
		case reflect.Bool:
			if field.Bool() || !omitempty {
				strVal = strconv.FormatBool(field.Bool())
			}
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String && field.Len() > 0 {
				items := make([]string, field.Len())
				for j := range items {
					items[j] = field.Index(j).String()
				}
				strVal = strings.Join(items, ",")
			}
		}

		if strVal != "" {
			values.Set(name, strVal)
		}
	}

	return values.Encode()
}

// Std exposes the underlying transport for SDKs that bring their own request
// layer
func (c *HTTPClient) Std() *http.Client {
	return c.client
}
