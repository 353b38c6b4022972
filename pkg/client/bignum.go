package client

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

// BigNumber decodes the integer encodings provider APIs use: decimal strings,
// hex strings, bare JSON numbers and ethers-style {"type":"BigNumber","hex":"0x.."}.
type BigNumber struct {
	*big.Int
}

func (b *BigNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		b.Int = nil
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return b.setString(s)
	case '{':
		var obj struct {
			Hex string `json:"hex"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		return b.setString(obj.Hex)
	default:
		return b.setString(string(data))
	}
}

func (b *BigNumber) setString(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		b.Int = nil
		return nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			return errors.Errorf("invalid hex integer %q", s)
		}
		b.Int = v
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return errors.Errorf("invalid integer %q", s)
	}
	b.Int = v
	return nil
}

// OrZero returns the value, or a fresh zero when unset
func (b BigNumber) OrZero() *big.Int {
	if b.Int == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(b.Int)
}
