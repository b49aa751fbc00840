package block

import (
	"testing"

	"github.com/agrimart/bridge/lib/config"
)

// TestInit checks incomplete entries are skipped and duplicated names keep the first
// client instead of replacing it.
func TestInit(t *testing.T) {
	contract := "0x22d5751e5c473E4b69Ab47784A1D8a4FAe5e27E1"

	bc, err := Init([]config.BlockConfig{
		{Name: "ganache", Node: "http://localhost:7545", Contract: contract},
		{Name: "noNode", Contract: contract},
		{Name: "noContract", Node: "http://localhost:7545"},
		{Name: "ganache", Node: "http://localhost:9545", Contract: contract}, // duplicate
	})
	if err != nil {
		t.Fatalf("Init: unexpected error:%v", err)
	}
	defer End(bc)

	if len(bc) != 1 {
		t.Errorf("Init: got %d ledgers, expected 1:%v", len(bc), bc)
	}

	if _, ok := bc["ganache"]; !ok {
		t.Errorf("Init: ganache client missing")
	}
}
