// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the user settings read once at startup and handed to the
// repository. Nothing mutates it afterwards.
type Config struct {
	DefaultBranch string `json:"default_branch"`

	Strict   bool `json:"strict"`   // compare content hashes, not only size/mtime
	Track    bool `json:"track"`    // explicit tracking patterns kept across commits
	Picky    bool `json:"picky"`    // tracking patterns cleared after every commit
	Compress bool `json:"compress"` // zstd-compress stored blobs

	Ignore struct {
		Dirs           []string `json:"dirs"`
		DirsWhitelist  []string `json:"dirs_whitelist"`
		Files          []string `json:"files"`
		FilesWhitelist []string `json:"files_whitelist"`
	} `json:"ignore"`

	TextGlobs   []string `json:"text_globs"`
	BinaryGlobs []string `json:"binary_globs"`

	LogLevel string `json:"log_level"` // debug, info, warn, error
}

// Default returns the settings used when no config file exists.
func Default() *Config {
	cfg := &Config{
		DefaultBranch: "trunk",
		LogLevel:      "warn",
	}
	cfg.Ignore.Dirs = []string{".*", "__pycache__", "node_modules"}
	cfg.Ignore.Files = []string{"__coverage.*", "*.pyc", "*.tmp", "*~", ".DS_Store"}
	cfg.Ignore.DirsWhitelist = []string{}
	cfg.Ignore.FilesWhitelist = []string{}
	cfg.TextGlobs = []string{"*.txt", "*.md", "*.go", "*.py", "*.c", "*.h", "*.java", "*.js", "*.ts", "*.json", "*.yaml", "*.yml", "*.xml", "*.html", "*.css"}
	cfg.BinaryGlobs = []string{"*.exe", "*.dll", "*.so", "*.bin", "*.zip", "*.gz", "*.png", "*.jpg", "*.jpeg", "*.gif", "*.pdf"}
	return cfg
}

// Path returns the location of the user config file.
func Path() string {
	if p := os.Getenv("OVC_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".ovc", "config.json")
	}
	return filepath.Join(home, ".ovc", "config.json")
}

// Load reads path on top of the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	if config.Track && config.Picky {
		return nil, fmt.Errorf("track and picky modes are mutually exclusive")
	}

	return config, nil
}
