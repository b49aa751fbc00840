// config_test.go tests config files
package config

import (
	"testing"
)

// fileToTest is a relative path to the configuration file to test (ie. bridge/cmd/conf.json)
var fileToTest string = "../../cmd/conf.json"

// TestConfig extracts config from a file and checks values loaded
func TestConfig(t *testing.T) {
	//extract configuration
	conf, err := ExtractConfiguration(fileToTest)
	if err != nil {
		t.Errorf("Error reading config file:%e\n", err)
	} else {
		// lets check the port
		if conf.Port != "3030" {
			t.Errorf("config port is not the expected %s", conf.Port)
		}
		// and the ledgers
		if len(conf.Bc) != 1 {
			t.Errorf("ledgers do not match the expected %v", conf.Bc)
		} else if conf.Bc[0].Name != "ganache" || conf.Bc[0].Contract == "" {
			t.Errorf("ledgers do not match the expected %v", conf.Bc)
		}
		// timers fall back to seconds
		if conf.Finality != 120 || conf.Grace != 600 {
			t.Errorf("timers do not match the expected finality:%d grace:%d", conf.Finality, conf.Grace)
		}
	}
}
