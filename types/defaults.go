package types

import (
	_ "embed"
	"sync"
)

//go:embed defaults.json
var defaultsJSON []byte

var (
	defaults     *Document
	defaultsOnce sync.Once
)

// Defaults returns the built-in base types shared by Substrate chains:
// hashes, accounts, balances, addresses, dispatch results and phases.
// Chains that differ override them with a custom document.
func Defaults() *Document {
	defaultsOnce.Do(func() {
		d, err := LoadDocument(defaultsJSON)
		if err != nil {
			panic("types: embedded defaults: " + err.Error())
		}
		defaults = d
	})
	return defaults
}
