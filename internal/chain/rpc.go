package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jpalmerr/yieldboard/internal/poller"
)

// ERC-20 function selectors.
const (
	selectorBalanceOf = "0x70a08231"
	selectorDecimals  = "0x313ce567"
)

// ErrInvalidAddress is returned for malformed 0x addresses.
var ErrInvalidAddress = errors.New("invalid address")

// Caller issues JSON-RPC requests against one network.
type Caller interface {
	Call(ctx context.Context, method string, params []any, result any) error
}

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// RPCClient is a JSON-RPC 2.0 [Caller] over HTTP.
type RPCClient struct {
	http    *poller.Client
	url     string
	timeout time.Duration
	nextID  atomic.Uint64
}

// NewRPCClient returns an RPC client for url. A nil httpClient gets a
// fresh pooled client.
func NewRPCClient(httpClient *poller.Client, url string, timeout time.Duration) *RPCClient {
	if httpClient == nil {
		httpClient = poller.NewClient()
	}
	return &RPCClient{http: httpClient, url: url, timeout: timeout}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Call implements [Caller].
func (c *RPCClient) Call(ctx context.Context, method string, params []any, result any) error {
	if params == nil {
		params = []any{}
	}
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	resp := c.http.Fetch(ctx, http.MethodPost, c.url, nil, payload, c.timeout)
	if resp.Error != nil {
		return fmt.Errorf("%s: %w", method, resp.Error)
	}
	if !resp.OK() {
		return fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// ChainID queries eth_chainId.
func ChainID(ctx context.Context, c Caller) (int64, error) {
	var hexID string
	if err := c.Call(ctx, "eth_chainId", nil, &hexID); err != nil {
		return 0, err
	}
	id, err := parseHexBig(hexID)
	if err != nil {
		return 0, fmt.Errorf("eth_chainId: %w", err)
	}
	if !id.IsInt64() {
		return 0, fmt.Errorf("eth_chainId: %s out of range", hexID)
	}
	return id.Int64(), nil
}

// GetBalance returns the native balance of address in wei.
func GetBalance(ctx context.Context, c Caller, address string) (*big.Int, error) {
	var hexBal string
	if err := c.Call(ctx, "eth_getBalance", []any{address, "latest"}, &hexBal); err != nil {
		return nil, err
	}
	return parseHexBig(hexBal)
}

// HasCode reports whether a contract is deployed at address.
func HasCode(ctx context.Context, c Caller, address string) (bool, error) {
	var code string
	if err := c.Call(ctx, "eth_getCode", []any{address, "latest"}, &code); err != nil {
		return false, err
	}
	code = strings.TrimPrefix(strings.ToLower(code), "0x")
	return strings.Trim(code, "0") != "", nil
}

// CallUint performs eth_call and decodes the first 32-byte word.
func CallUint(ctx context.Context, c Caller, to, data string) (*big.Int, error) {
	var out string
	call := map[string]string{"to": to, "data": data}
	if err := c.Call(ctx, "eth_call", []any{call, "latest"}, &out); err != nil {
		return nil, err
	}
	out = strings.TrimPrefix(out, "0x")
	if len(out) > 64 {
		out = out[:64]
	}
	return parseHexBig("0x" + out)
}

// BalanceOfData encodes balanceOf(owner).
func BalanceOfData(owner string) (string, error) {
	if !IsAddress(owner) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, owner)
	}
	return selectorBalanceOf + strings.Repeat("0", 24) + strings.ToLower(owner[2:]), nil
}

// IsAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}

// parseHexBig parses a 0x-prefixed quantity. "0x" is zero.
func parseHexBig(s string) (*big.Int, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if digits == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	return v, nil
}
