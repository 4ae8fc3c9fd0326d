// Package payment verifies that a TRC20 USDT transfer to the merchant
// wallet happened, using the TronGrid node API. It never moves funds.
package payment

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultAPIBase = "https://api.trongrid.io"

	// transfer(address,uint256)
	transferSelector = "a9059cbb"
	usdtDecimals     = 6
)

var txHashRe = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// ValidTxHash reports whether s looks like a Tron transaction id.
func ValidTxHash(s string) bool {
	return txHashRe.MatchString(s)
}

// Verification is the outcome of checking one transaction. Reason explains
// a negative result in words fit for the payer.
type Verification struct {
	Verified bool
	Reason   string
	// Amount in the token's smallest unit, set once the transfer is decoded.
	Amount *big.Int
}

// RejectedError carries the reason a payment proof was not accepted.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "payment rejected: " + e.Reason
}

type TronConfig struct {
	APIBase  string
	APIKey   string
	Merchant string // base58 or hex
	Contract string // USDT contract, base58 or hex
	// MinAmount is a decimal USDT amount; "0" or "" accepts any amount.
	MinAmount string
}

type TronVerifier struct {
	http      *http.Client
	base      string
	apiKey    string
	merchant  string
	contract  string
	minAmount *big.Int
}

func NewTronVerifier(cfg TronConfig, httpClient *http.Client) (*TronVerifier, error) {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	merchant, err := AddressHex(cfg.Merchant)
	if err != nil {
		return nil, fmt.Errorf("merchant address: %w", err)
	}
	contract, err := AddressHex(cfg.Contract)
	if err != nil {
		return nil, fmt.Errorf("contract address: %w", err)
	}
	minAmount, err := parseAmount(cfg.MinAmount)
	if err != nil {
		return nil, fmt.Errorf("min amount: %w", err)
	}
	return &TronVerifier{
		http:      httpClient,
		base:      strings.TrimRight(cfg.APIBase, "/"),
		apiKey:    cfg.APIKey,
		merchant:  merchant,
		contract:  contract,
		minAmount: minAmount,
	}, nil
}

type transaction struct {
	TxID    string `json:"txID"`
	RawData struct {
		Contract []struct {
			Type      string `json:"type"`
			Parameter struct {
				Value struct {
					OwnerAddress    string `json:"owner_address"`
					ContractAddress string `json:"contract_address"`
					Data            string `json:"data"`
				} `json:"value"`
			} `json:"parameter"`
		} `json:"contract"`
	} `json:"raw_data"`
}

type transactionInfo struct {
	ID      string `json:"id"`
	Receipt *struct {
		Result string `json:"result"`
	} `json:"receipt"`
}

// Verify checks txHash. An error means the chain API could not be asked;
// a transaction that fails a check comes back as Verified=false.
func (v *TronVerifier) Verify(ctx context.Context, txHash string) (Verification, error) {
	var tx transaction
	if err := v.post(ctx, "/wallet/gettransactionbyid", txHash, &tx); err != nil {
		return Verification{}, err
	}
	if tx.TxID == "" {
		return reject("Transaction not found"), nil
	}

	var info transactionInfo
	if err := v.post(ctx, "/wallet/gettransactioninfobyid", txHash, &info); err != nil {
		return Verification{}, err
	}
	if info.ID == "" {
		return reject("Contract transaction info not found"), nil
	}

	if len(tx.RawData.Contract) == 0 || tx.RawData.Contract[0].Type != "TriggerSmartContract" {
		return reject("Not a TRC20 transfer"), nil
	}
	call := tx.RawData.Contract[0].Parameter.Value
	if !strings.EqualFold(call.ContractAddress, v.contract) {
		return reject("Not a USDT transfer"), nil
	}

	to, amount, ok := decodeTransfer(call.Data)
	if !ok {
		return reject("Not a TRC20 transfer"), nil
	}
	if to != v.merchant {
		return reject("Invalid recipient"), nil
	}
	if info.Receipt == nil || info.Receipt.Result != "SUCCESS" {
		return reject("Transaction failed"), nil
	}
	if amount.Cmp(v.minAmount) < 0 {
		return Verification{Reason: "Amount too low", Amount: amount}, nil
	}
	return Verification{Verified: true, Amount: amount}, nil
}

func reject(reason string) Verification {
	return Verification{Reason: reason}
}

// decodeTransfer reads transfer(address,uint256) call data: the selector,
// then two 32-byte words.
func decodeTransfer(data string) (to string, amount *big.Int, ok bool) {
	data = strings.ToLower(strings.TrimPrefix(data, "0x"))
	if len(data) != 8+64+64 || !strings.HasPrefix(data, transferSelector) {
		return "", nil, false
	}
	addrWord, amountWord := data[8:72], data[72:136]
	if strings.Trim(addrWord[:24], "0") != "" {
		return "", nil, false
	}
	raw, err := hex.DecodeString(amountWord)
	if err != nil {
		return "", nil, false
	}
	if _, err := hex.DecodeString(addrWord[24:]); err != nil {
		return "", nil, false
	}
	return "41" + addrWord[24:], new(big.Int).SetBytes(raw), true
}

// parseAmount turns a decimal USDT amount into the token's smallest unit.
func parseAmount(s string) (*big.Int, error) {
	if strings.TrimSpace(s) == "" {
		return new(big.Int), nil
	}
	r, ok := new(big.Rat).SetString(strings.TrimSpace(s))
	if !ok || r.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	r.Mul(r, new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(usdtDecimals), nil)))
	if !r.IsInt() {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, usdtDecimals)
	}
	return r.Num(), nil
}

func (v *TronVerifier) post(ctx context.Context, path, txHash string, out any) error {
	body, _ := json.Marshal(map[string]any{"value": txHash, "visible": false})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("tron %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if v.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", v.apiKey)
	}

	resp, err := v.http.Do(req)
	if err != nil {
		return fmt.Errorf("tron %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tron %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("tron %s: decode: %w", path, err)
	}
	return nil
}

// ErrNotConfigured is returned by Unconfigured.
var ErrNotConfigured = errors.New("payment verification is not configured")

// Unconfigured stands in for a verifier when no merchant address is set.
type Unconfigured struct{}

func (Unconfigured) Verify(context.Context, string) (Verification, error) {
	return Verification{}, ErrNotConfigured
}
