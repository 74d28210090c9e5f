// Package config loads the tracked address rules.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/goodnatureofminers/incomed/internal/bitcoin"
	"github.com/goodnatureofminers/incomed/internal/model"
	"gopkg.in/yaml.v3"
)

var (
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	namePattern     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// RulesFile is the on-disk layout of the address rules file.
//
//	currency: USD
//	addresses:
//	  - address: bc1q...
//	    name: pool
//	    coinbase: true
//	    nonCoinbase: false
type RulesFile struct {
	// Currency applies to rules that do not set their own.
	Currency  string              `yaml:"currency"`
	Addresses []model.AddressRule `yaml:"addresses"`
}

// LoadRules reads and validates the rules file at path.
func LoadRules(path string, network model.Network) ([]model.AddressRule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	rules, err := ParseRules(raw, network)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return rules, nil
}

// ParseRules decodes and validates a rules document.
func ParseRules(raw []byte, network model.Network) ([]model.AddressRule, error) {
	var file RulesFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("no address rules configured")
		}
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	rules := make([]model.AddressRule, len(file.Addresses))
	for i, rule := range file.Addresses {
		if rule.Currency == "" {
			rule.Currency = file.Currency
		}
		rules[i] = rule
	}
	if err := ValidateRules(rules, network); err != nil {
		return nil, err
	}
	return rules, nil
}

// ValidateRules checks every rule against network and rewrites each address
// to its canonical encoding.
func ValidateRules(rules []model.AddressRule, network model.Network) error {
	if len(rules) == 0 {
		return errors.New("no address rules configured")
	}
	params, err := bitcoin.ChainParams(network)
	if err != nil {
		return err
	}

	names := make(map[string]struct{}, len(rules))
	tracked := make(map[string]struct{}, len(rules))
	for i, rule := range rules {
		if rule.Address == "" {
			return fmt.Errorf("rule %d: address is required", i)
		}
		addr, err := btcutil.DecodeAddress(rule.Address, params)
		if err != nil {
			return fmt.Errorf("rule %d: decode address %s: %w", i, rule.Address, err)
		}
		if !addr.IsForNet(params) {
			return fmt.Errorf("rule %d: address %s is not a %s address", i, rule.Address, network)
		}
		rule.Address = addr.EncodeAddress()
		rules[i].Address = rule.Address
		if !namePattern.MatchString(rule.Name) {
			return fmt.Errorf("rule %d: name %q must be a plain file name", i, rule.Name)
		}
		if _, ok := names[rule.Name]; ok {
			return fmt.Errorf("rule %d: duplicate name %q", i, rule.Name)
		}
		names[rule.Name] = struct{}{}
		if !currencyPattern.MatchString(rule.Currency) {
			return fmt.Errorf("rule %d: currency %q must be three upper-case letters", i, rule.Currency)
		}
		if !rule.RecordCoinbase && !rule.RecordNonCoinbase {
			return fmt.Errorf("rule %d: enable coinbase or nonCoinbase", i)
		}
		tk := rule.Address + "/" + rule.Currency
		if _, ok := tracked[tk]; ok {
			return fmt.Errorf("rule %d: address %s already tracked in %s", i, rule.Address, rule.Currency)
		}
		tracked[tk] = struct{}{}
	}
	return nil
}
