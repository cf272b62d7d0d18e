package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/wippyai/subscript/codec"
	"github.com/wippyai/subscript/dispatch"
	"github.com/wippyai/subscript/metadata"
	"github.com/wippyai/subscript/resolver"
	"github.com/wippyai/subscript/testbed"
)

func TestSplitName(t *testing.T) {
	tests := []struct {
		in       string
		mod, fn  string
		hasError bool
	}{
		{"Balances.transfer", "Balances", "transfer", false},
		{"System.Account", "System", "Account", false},
		{"Balances", "", "", true},
		{".transfer", "", "", true},
		{"Balances.", "", "", true},
	}
	for _, tt := range tests {
		mod, fn, err := splitName(tt.in)
		if (err != nil) != tt.hasError {
			t.Errorf("splitName(%q) error = %v", tt.in, err)
			continue
		}
		if mod != tt.mod || fn != tt.fn {
			t.Errorf("splitName(%q) = %q, %q", tt.in, mod, fn)
		}
	}
}

func TestParseWait(t *testing.T) {
	for _, m := range []dispatch.WaitMode{dispatch.WaitInBlock, dispatch.WaitOutcome, dispatch.WaitFinalized} {
		got, err := parseWait(m.String())
		if err != nil || got != m {
			t.Errorf("parseWait(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := parseWait("soon"); err == nil {
		t.Error("parseWait accepted an unknown mode")
	}
}

func TestParseInput(t *testing.T) {
	if v := parseInput("42"); !v.Equal(codec.Uint(42)) {
		t.Errorf("number = %s", v)
	}
	if v := parseInput("Alice"); !v.Equal(codec.Text("Alice")) {
		t.Errorf("bare text = %s", v)
	}
	if v := parseInput(`[1, "Id"]`); v.Kind != codec.KindSequence || v.Len() != 2 {
		t.Errorf("array = %s", v)
	}
}

func TestBrowseItems(t *testing.T) {
	md, err := metadata.Build(testbed.NodeBlob(), nil)
	if err != nil {
		t.Fatal(err)
	}
	items := browseItems(md)

	var transfer, account *itemInfo
	for i := range items {
		switch items[i].label {
		case "call    Balances.transfer":
			transfer = &items[i]
		case "storage System.Account":
			account = &items[i]
		}
	}
	if transfer == nil || len(transfer.params) != 2 || transfer.params[0].name != "dest" {
		t.Errorf("transfer = %+v", transfer)
	}
	if account == nil || len(account.params) != 1 || account.ref.Kind != metadata.ItemStorage {
		t.Errorf("account = %+v", account)
	}
}

func TestPrinter(t *testing.T) {
	md, err := metadata.Build(testbed.NodeBlob(), nil)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	p := &printer{w: &buf}

	p.modules(md)
	for _, want := range []string{"Balances (5)", "call    transfer(dest:", "storage Account[", "const   ExistentialDeposit"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("listing lacks %q:\n%s", want, buf.String())
		}
	}

	buf.Reset()
	if err := p.entry(resolver.StorageEntry{Key: []byte{1}, Absent: true}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "key 0x01\n(absent)\n" {
		t.Errorf("absent entry = %q", got)
	}

	buf.Reset()
	if err := p.yaml(codec.NewStruct(codec.F("nonce", codec.U32(1)))); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "nonce: 1\n" {
		t.Errorf("yaml = %q", got)
	}
}
