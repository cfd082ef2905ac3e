package common

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/evmsentinel/txfirewall/common/mathutil"
)

// TransactionRequest is the immutable candidate transaction the firewall is
// asked to judge before it reaches any chain (spec.md section 3).
type TransactionRequest struct {
	From  Address
	To    Address
	Data  []byte
	Value *uint256.Int
	Chain Chain
}

// WireRequest is the inbound JSON shape described in spec.md section 6:
// addresses are 20-byte hex, data is hex, value is a decimal or hex integer
// string, chain is an integer or "eip155:<n>".
type WireRequest struct {
	From  string      `json:"from"`
	To    string      `json:"to"`
	Data  string      `json:"data"`
	Value string      `json:"value"`
	Chain interface{} `json:"chain"`
}

// ParseRequest decodes a WireRequest into a TransactionRequest against the
// recognized chain table, resolving the configured endpoint list.
func ParseRequest(w WireRequest, endpoints func(ChainID) []string) (TransactionRequest, error) {
	var req TransactionRequest

	from, err := ParseAddress(w.From)
	if err != nil {
		return req, fmt.Errorf("from: %w", err)
	}
	to, err := ParseAddress(w.To)
	if err != nil {
		return req, fmt.Errorf("to: %w", err)
	}
	data, err := parseHexBytes(w.Data)
	if err != nil {
		return req, fmt.Errorf("data: %w", err)
	}
	value, ok := mathutil.ParseUint256(w.Value)
	if !ok {
		return req, fmt.Errorf("value: invalid decimal/hex integer %q", w.Value)
	}

	chainID, err := parseChainField(w.Chain)
	if err != nil {
		return req, err
	}
	chain := Chain{ID: chainID, Endpoints: endpoints(chainID)}
	if err := chain.Validate(); err != nil {
		return req, err
	}

	req = TransactionRequest{From: from, To: to, Data: data, Value: value, Chain: chain}
	return req, nil
}

func parseChainField(v interface{}) (ChainID, error) {
	switch t := v.(type) {
	case string:
		n, err := mathutil.ParseChainIdentifier(t)
		return ChainID(n), err
	case float64:
		return ChainID(uint64(t)), nil
	case int:
		return ChainID(uint64(t)), nil
	case int64:
		return ChainID(uint64(t)), nil
	case uint64:
		return ChainID(t), nil
	default:
		return 0, fmt.Errorf("chain: unsupported type %T", v)
	}
}

func parseHexBytes(s string) ([]byte, error) {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if len(s) == 0 {
		return nil, nil
	}
	if len(s)%2 != 0 {
		s = "0" + s
	}
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		var b byte
		for j := 0; j < 2; j++ {
			c := s[i*2+j]
			b <<= 4
			switch {
			case c >= '0' && c <= '9':
				b |= c - '0'
			case c >= 'a' && c <= 'f':
				b |= c - 'a' + 10
			case c >= 'A' && c <= 'F':
				b |= c - 'A' + 10
			default:
				return nil, fmt.Errorf("invalid hex digit %q", c)
			}
		}
		out[i] = b
	}
	return out, nil
}
