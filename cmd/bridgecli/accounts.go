package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/bridge-runner/internal/bridgecore"
	"github.com/ligun0805/bridge-runner/internal/chain"
)

// loadAccounts reads "address,private_key" rows (',' or ';' separated).
// The address column must match the key.
func loadAccounts(path string) ([]bridgecore.Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open accounts: %w", err)
	}
	return parseAccounts(data)
}

func parseAccounts(data []byte) ([]bridgecore.Wallet, error) {
	data = []byte(strings.TrimPrefix(string(data), "\ufeff"))
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comma = detectDelimiter(data)
	reader.Comment = '#'

	var out []bridgecore.Wallet
	seen := map[common.Address]bool{}
	lineNo := 0
	for {
		row, e := reader.Read()
		if e != nil {
			if errors.Is(e, io.EOF) {
				break
			}
			return nil, e
		}
		lineNo++
		if skipRow(row, lineNo) {
			continue
		}
		if len(row) < 2 {
			return nil, fmt.Errorf("accounts line %d: expected address,private_key", lineNo)
		}
		addrHex, keyHex := strings.TrimSpace(row[0]), strings.TrimSpace(row[1])
		if !common.IsHexAddress(addrHex) {
			return nil, fmt.Errorf("accounts line %d: bad address %q", lineNo, addrHex)
		}
		key, addr, err := chain.ParseKey(keyHex)
		if err != nil {
			return nil, fmt.Errorf("accounts line %d: bad key %s: %w", lineNo, maskHex(keyHex), err)
		}
		if addr != common.HexToAddress(addrHex) {
			return nil, fmt.Errorf("accounts line %d: key belongs to %s, not %s", lineNo, addr.Hex(), addrHex)
		}
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, bridgecore.Wallet{Address: addr, Key: key})
	}
	if len(out) == 0 {
		return nil, errors.New("no accounts found")
	}
	return out, nil
}

func detectDelimiter(data []byte) rune {
	for _, l := range strings.Split(string(data), "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		if strings.Contains(l, ";") && !strings.Contains(l, ",") {
			return ';'
		}
		break
	}
	return ','
}

func skipRow(row []string, lineNo int) bool {
	if len(row) == 0 {
		return true
	}
	if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
		return true
	}
	if lineNo == 1 {
		head := strings.ToLower(strings.Join(row, ","))
		if strings.Contains(head, "address") && strings.Contains(head, "priv") {
			return true
		}
	}
	return false
}

func maskHex(h string) string {
	h = strings.TrimSpace(h)
	if len(h) <= 10 {
		return "***"
	}
	return h[:6] + "..." + h[len(h)-4:]
}
