package bitcoin

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/goodnatureofminers/incomed/internal/model"
)

// scriptDecoder resolves the address an output pays, if it pays exactly one.
type scriptDecoder struct {
	params *chaincfg.Params
}

// NewScriptDecoder initializes a decoder for extracting addresses using params of the provided network.
func NewScriptDecoder(network model.Network) (ScriptDecoder, error) {
	params, err := ChainParams(network)
	if err != nil {
		return nil, err
	}
	return &scriptDecoder{params: params}, nil
}

// payee returns the single address paid by vout. Data carriers, non-standard
// scripts and bare multisig (even 1-of-1) have no payee. Pay-to-pubkey outputs
// are attributed to the matching P2PKH address.
func (d *scriptDecoder) payee(vout btcjson.Vout) (string, bool, error) {
	if vout.ScriptPubKey.Hex == "" {
		return nodePayee(vout.ScriptPubKey)
	}

	script, err := hex.DecodeString(vout.ScriptPubKey.Hex)
	if err != nil {
		return "", false, fmt.Errorf("decode script hex: %w", err)
	}
	class, addrs, _, err := txscript.ExtractPkScriptAddrs(script, d.params)
	if err != nil {
		return "", false, err
	}
	if class == txscript.MultiSigTy || len(addrs) != 1 {
		return "", false, nil
	}

	if pubKey, ok := addrs[0].(*btcutil.AddressPubKey); ok {
		return pubKey.AddressPubKeyHash().EncodeAddress(), true, nil
	}
	return addrs[0].EncodeAddress(), true, nil
}

// nodePayee falls back to the addresses the node reported when no script is present.
func nodePayee(script btcjson.ScriptPubKeyResult) (string, bool, error) {
	switch {
	case script.Address != "":
		return script.Address, true, nil
	case len(script.Addresses) == 1:
		return script.Addresses[0], true, nil
	default:
		return "", false, nil
	}
}

// ChainParams maps a network name to btcd chain parameters.
func ChainParams(network model.Network) (*chaincfg.Params, error) {
	switch strings.ToLower(string(network)) {
	case "main", "mainnet", "bitcoin":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unsupported network %q", network)
	}
}
