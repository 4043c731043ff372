package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/stylecast/stylecast/internal/util"
)

type Config struct {
	Messaging Messaging `json:"messaging"`
	API       API       `json:"api"`
	RTC       RTC       `json:"rtc"`
	Storage   Storage   `json:"storage"`
	Profile   Profile   `json:"profile"`
}

type Messaging struct {
	ServerURL string `json:"server_url"`

	// Idle window (seconds) after which a typing indicator auto-stops.
	// Each StartTyping call resets the window.
	TypingIdleSec int `json:"typing_idle_seconds"`

	// Allow a synthesized guest identity when no credentials are stored.
	// Intended for development builds; the fallback is always logged.
	AllowGuest bool `json:"allow_guest"`
}

type API struct {
	BaseURL    string `json:"base_url"`
	TimeoutSec int    `json:"timeout_seconds"`
}

type RTC struct {
	// Comma-separated STUN server list, e.g. "stun:stun.l.google.com:19302".
	STUNServers string `json:"stun_servers"`

	// TURN relay. All three fields must be set for the entry to be used;
	// partial TURN configuration is treated as absent.
	TURNServer   string `json:"turn_server"`
	TURNUsername string `json:"turn_username"`
	TURNPassword string `json:"turn_password"`

	CandidatePoolSize int `json:"candidate_pool_size"`
}

type Storage struct {
	// Directory for the local sqlite database. Relative to the session dir.
	DBDir string `json:"db_dir"`
}

type Profile struct {
	Label string `json:"label"`
}

func Default() Config {
	return Config{
		Messaging: Messaging{
			ServerURL:     "wss://localhost:3001/socket",
			TypingIdleSec: 3,
			AllowGuest:    true,
		},
		API: API{
			BaseURL:    "http://localhost:3000/api",
			TimeoutSec: 10,
		},
		RTC: RTC{
			STUNServers:       "stun:stun.l.google.com:19302",
			CandidatePoolSize: 10,
		},
		Storage: Storage{
			DBDir: "data",
		},
		Profile: Profile{
			Label: "stylecast",
		},
	}
}

func (c *Config) Validate() error {
	// Messaging
	if err := validateWSURL(c.Messaging.ServerURL); err != nil {
		return fmt.Errorf("messaging.server_url: %w", err)
	}
	if c.Messaging.TypingIdleSec <= 0 {
		return errors.New("messaging.typing_idle_seconds must be > 0")
	}

	// API
	if err := validateHTTPURL(c.API.BaseURL); err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if c.API.TimeoutSec <= 0 {
		return errors.New("api.timeout_seconds must be > 0")
	}

	// RTC
	if strings.TrimSpace(c.RTC.STUNServers) == "" {
		return errors.New("rtc.stun_servers is required")
	}
	for _, s := range strings.Split(c.RTC.STUNServers, ",") {
		if !strings.HasPrefix(strings.TrimSpace(s), "stun:") {
			return fmt.Errorf("rtc.stun_servers: %q must start with stun:", strings.TrimSpace(s))
		}
	}
	if ts := strings.TrimSpace(c.RTC.TURNServer); ts != "" {
		if !strings.HasPrefix(ts, "turn:") && !strings.HasPrefix(ts, "turns:") {
			return errors.New("rtc.turn_server must start with turn: or turns:")
		}
	}
	if c.RTC.CandidatePoolSize < 0 || c.RTC.CandidatePoolSize > 255 {
		return errors.New("rtc.candidate_pool_size must be 0..255")
	}

	// Storage
	if strings.TrimSpace(c.Storage.DBDir) == "" {
		return errors.New("storage.db_dir is required")
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("scheme must be http or https")
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func validateWSURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid url: %v", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.New("scheme must be ws or wss")
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Strip UTF-8 BOM if present (common when editing JSON on Windows).
	b = stripBOM(b)

	// Start from defaults so missing JSON fields remain initialized.
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// stripBOM removes a UTF-8 byte order mark if present.
func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	return util.WriteJSONFile(path, cfg)
}

// Ensure loads config if it exists; otherwise creates a default config file.
// Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	return cfg, true, nil
}
