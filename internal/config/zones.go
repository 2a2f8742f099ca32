package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadZones reads the zone id -> control address map from a YAML file.
// Zone ids are case-insensitive and returned lowercased, matching viper's key
// folding. An empty path yields an empty map.
func LoadZones(path string) (map[string]string, error) {
	zones := map[string]string{}
	if strings.TrimSpace(path) == "" {
		return zones, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read zones config: %w", err)
	}

	var raw map[string]string
	if err := v.UnmarshalKey("zones", &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal zones in %s: %w", path, err)
	}
	for zone, addr := range raw {
		zone = strings.ToLower(strings.TrimSpace(zone))
		addr = strings.TrimSpace(addr)
		if zone == "" || addr == "" {
			continue
		}
		zones[zone] = addr
	}
	return zones, nil
}
