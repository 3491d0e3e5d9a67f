package version

import (
	"encoding/json"
	"log"
	"os"
)

type Info struct {
	Version string `json:"version"`
	Name    string `json:"name"`
}

// Load reads build info from version.json next to the binary. A missing or
// unreadable file degrades to a zero version rather than failing startup.
func Load() Info {
	fallback := Info{Version: "0.0.0", Name: "collectz"}
	data, err := os.ReadFile("version.json")
	if err != nil {
		log.Printf("Version: could not read version.json: %v", err)
		return fallback
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		log.Printf("Version: could not parse version.json: %v", err)
		return fallback
	}
	if info.Name == "" {
		info.Name = "collectz"
	}
	return info
}
