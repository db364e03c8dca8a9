// Package config loads controller configuration.
//
// Values start from Default, are overlaid by an optional YAML file and
// then by PORTUNUS_* environment variables, and are finally checked by
// Validate. A configuration that fails validation is fatal at startup.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BrandonDHaskell/Portunus/controller/internal/obs"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/keypad"
)

type Config struct {
	Env string `yaml:"env"` // "dev" | "prod"

	Access  AccessConfig  `yaml:"access"`
	Keypad  KeypadConfig  `yaml:"keypad"`
	Servo   ServoConfig   `yaml:"servo"`
	Reader  ReaderConfig  `yaml:"reader"`
	Journal JournalConfig `yaml:"journal"`
	Status  StatusConfig  `yaml:"status"`
	Log     LogConfig     `yaml:"log"`
}

// AccessConfig is the authorization set: the authorized card ids and
// the single expected keypad code.
type AccessConfig struct {
	PIN            string   `yaml:"pin"`
	CodeLength     int      `yaml:"code_length"`
	AllowedCardIDs []string `yaml:"allowed_card_ids"`
}

type KeypadConfig struct {
	RowPins        []string `yaml:"row_pins"`
	ColPins        []string `yaml:"col_pins"`
	ActiveHigh     bool     `yaml:"active_high"`
	Layout         string   `yaml:"layout"` // rows separated by '/'
	DebounceMS     int      `yaml:"debounce_ms"`
	ScanIntervalMS int      `yaml:"scan_interval_ms"`
}

type ServoConfig struct {
	Pin         string  `yaml:"pin"`
	FrequencyHz float64 `yaml:"frequency_hz"`
	UnlockDuty  float64 `yaml:"unlock_duty"`
	LockDuty    float64 `yaml:"lock_duty"`
	SettleMS    int     `yaml:"settle_ms"`
	DwellMS     int     `yaml:"dwell_ms"`
}

type ReaderConfig struct {
	SPI            string `yaml:"spi"` // empty selects the first SPI port
	ResetPin       string `yaml:"reset_pin"`
	IRQPin         string `yaml:"irq_pin"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"` // 0 waits until shutdown
	PollIntervalMS int    `yaml:"poll_interval_ms"` // pause after a read with no card
	ErrorBackoffMS int    `yaml:"error_backoff_ms"`
}

type JournalConfig struct {
	Enabled            bool   `yaml:"enabled"`
	DBPath             string `yaml:"db_path"`
	RetentionDays      int    `yaml:"retention_days"` // 0 = keep forever
	PruneIntervalHours int    `yaml:"prune_interval_hours"`
}

// StatusConfig enables the read-only status endpoints. Empty addresses
// leave them off.
type StatusConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the reference wiring: a 4x4 keypad on GPIO5/6/13/19
// (rows) and GPIO12/16/20/21 (columns), the servo on GPIO18 and an
// MFRC522 on the first SPI port.
func Default() Config {
	return Config{
		Env: "dev",
		Access: AccessConfig{
			PIN:            "1234",
			CodeLength:     4,
			AllowedCardIDs: []string{"1234567890"},
		},
		Keypad: KeypadConfig{
			RowPins:        []string{"GPIO5", "GPIO6", "GPIO13", "GPIO19"},
			ColPins:        []string{"GPIO12", "GPIO16", "GPIO20", "GPIO21"},
			ActiveHigh:     true,
			Layout:         keypad.DefaultLayout.String(),
			DebounceMS:     300,
			ScanIntervalMS: 25,
		},
		Servo: ServoConfig{
			Pin:         "GPIO18",
			FrequencyHz: 50,
			UnlockDuty:  7,
			LockDuty:    2,
			SettleMS:    1000,
			DwellMS:     5000,
		},
		Reader: ReaderConfig{
			ResetPin:       "GPIO25",
			IRQPin:         "GPIO24",
			PollIntervalMS: 100,
			ErrorBackoffMS: 1000,
		},
		Journal: JournalConfig{
			Enabled:            true,
			DBPath:             "./data/portunus-controller.db",
			RetentionDays:      30,
			PruneIntervalHours: 6,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration from path (may be empty) and the
// environment, then validates it. Any failure is a *ConfigError.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, &ConfigError{Problems: []string{err.Error()}}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv is Load with the file path taken from PORTUNUS_CONFIG.
func FromEnv() (*Config, error) {
	return Load(os.Getenv("PORTUNUS_CONFIG"))
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	e := &envReader{}

	c.Env = strings.ToLower(getenvDefault("PORTUNUS_ENV", c.Env))
	if c.Env != "dev" && c.Env != "prod" {
		// fail-soft: treat unknown as dev
		c.Env = "dev"
	}

	// Set but empty disables the keypad.
	if v, ok := os.LookupEnv("PORTUNUS_PIN"); ok {
		c.Access.PIN = strings.TrimSpace(v)
	}
	c.Access.CodeLength = e.int("PORTUNUS_CODE_LENGTH", c.Access.CodeLength)
	if v, ok := os.LookupEnv("PORTUNUS_ALLOWED_CARD_IDS"); ok {
		c.Access.AllowedCardIDs = splitCSV(v)
	}

	if v := splitCSV(os.Getenv("PORTUNUS_KEYPAD_ROW_PINS")); v != nil {
		c.Keypad.RowPins = v
	}
	if v := splitCSV(os.Getenv("PORTUNUS_KEYPAD_COL_PINS")); v != nil {
		c.Keypad.ColPins = v
	}
	c.Keypad.ActiveHigh = e.bool("PORTUNUS_KEYPAD_ACTIVE_HIGH", c.Keypad.ActiveHigh)
	c.Keypad.Layout = getenvDefault("PORTUNUS_KEYPAD_LAYOUT", c.Keypad.Layout)
	c.Keypad.DebounceMS = e.int("PORTUNUS_DEBOUNCE_MS", c.Keypad.DebounceMS)
	c.Keypad.ScanIntervalMS = e.int("PORTUNUS_SCAN_INTERVAL_MS", c.Keypad.ScanIntervalMS)

	c.Servo.Pin = getenvDefault("PORTUNUS_SERVO_PIN", c.Servo.Pin)
	c.Servo.FrequencyHz = e.float("PORTUNUS_SERVO_FREQUENCY_HZ", c.Servo.FrequencyHz)
	c.Servo.UnlockDuty = e.float("PORTUNUS_UNLOCK_DUTY", c.Servo.UnlockDuty)
	c.Servo.LockDuty = e.float("PORTUNUS_LOCK_DUTY", c.Servo.LockDuty)
	c.Servo.SettleMS = e.int("PORTUNUS_SERVO_SETTLE_MS", c.Servo.SettleMS)
	c.Servo.DwellMS = e.int("PORTUNUS_DWELL_MS", c.Servo.DwellMS)

	c.Reader.SPI = getenvDefault("PORTUNUS_RFID_SPI", c.Reader.SPI)
	c.Reader.ResetPin = getenvDefault("PORTUNUS_RFID_RESET_PIN", c.Reader.ResetPin)
	c.Reader.IRQPin = getenvDefault("PORTUNUS_RFID_IRQ_PIN", c.Reader.IRQPin)
	c.Reader.ReadTimeoutMS = e.int("PORTUNUS_CARD_READ_TIMEOUT_MS", c.Reader.ReadTimeoutMS)
	c.Reader.PollIntervalMS = e.int("PORTUNUS_CARD_POLL_INTERVAL_MS", c.Reader.PollIntervalMS)
	c.Reader.ErrorBackoffMS = e.int("PORTUNUS_READ_ERROR_BACKOFF_MS", c.Reader.ErrorBackoffMS)

	c.Journal.Enabled = e.bool("PORTUNUS_JOURNAL", c.Journal.Enabled)
	c.Journal.DBPath = getenvDefault("PORTUNUS_DB_PATH", c.Journal.DBPath)
	c.Journal.RetentionDays = e.int("PORTUNUS_JOURNAL_RETENTION_DAYS", c.Journal.RetentionDays)
	c.Journal.PruneIntervalHours = e.int("PORTUNUS_PRUNE_INTERVAL_HOURS", c.Journal.PruneIntervalHours)

	c.Status.HTTPAddr = getenvDefault("PORTUNUS_STATUS_HTTP_ADDR", c.Status.HTTPAddr)
	c.Status.GRPCAddr = getenvDefault("PORTUNUS_STATUS_GRPC_ADDR", c.Status.GRPCAddr)

	c.Log.Level = getenvDefault("PORTUNUS_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getenvDefault("PORTUNUS_LOG_FORMAT", c.Log.Format)

	if len(e.problems) > 0 {
		return &ConfigError{Problems: e.problems}
	}
	return nil
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var p []string
	add := func(format string, args ...any) { p = append(p, fmt.Sprintf(format, args...)) }

	layout, err := keypad.ParseLayout(c.Keypad.Layout)
	if err != nil {
		add("keypad.layout: %v", err)
	}

	// Authorization set.
	if c.Access.CodeLength <= 0 {
		add("access.code_length must be positive, got %d", c.Access.CodeLength)
	}
	code := []rune(c.Access.PIN)
	switch {
	case len(code) == 0 && len(c.Access.AllowedCardIDs) == 0:
		add("access: no card ids and no pin configured; nothing could ever unlock")
	case len(code) > 0 && len(code) != c.Access.CodeLength:
		add("access.pin has %d characters, code_length is %d", len(code), c.Access.CodeLength)
	}
	if layout != nil {
		for _, r := range code {
			if !layout.Contains(r) {
				add("access.pin contains %q which is not on the keypad", r)
				break
			}
		}
	}
	for _, id := range c.Access.AllowedCardIDs {
		if strings.TrimSpace(id) == "" {
			add("access.allowed_card_ids contains an empty id")
			break
		}
	}

	// Pins.
	if layout != nil && layout.Validate(len(c.Keypad.RowPins), len(c.Keypad.ColPins)) != nil {
		add("keypad: %d row pins x %d column pins do not match a %dx%d layout",
			len(c.Keypad.RowPins), len(c.Keypad.ColPins), len(layout), len(layout[0]))
	}
	seen := map[string]string{}
	claim := func(field, pin string) {
		if strings.TrimSpace(pin) == "" {
			add("%s: empty pin name", field)
			return
		}
		if prev, dup := seen[pin]; dup {
			add("%s: pin %s already used by %s", field, pin, prev)
			return
		}
		seen[pin] = field
	}
	for _, pin := range c.Keypad.RowPins {
		claim("keypad.row_pins", pin)
	}
	for _, pin := range c.Keypad.ColPins {
		claim("keypad.col_pins", pin)
	}
	claim("servo.pin", c.Servo.Pin)
	if c.Reader.ResetPin != "" {
		claim("reader.reset_pin", c.Reader.ResetPin)
	}
	if c.Reader.IRQPin != "" {
		claim("reader.irq_pin", c.Reader.IRQPin)
	}

	// Timing.
	if c.Keypad.DebounceMS <= 0 {
		add("keypad.debounce_ms must be positive")
	}
	if c.Keypad.ScanIntervalMS <= 0 {
		add("keypad.scan_interval_ms must be positive")
	}
	if c.Servo.DwellMS <= 0 {
		add("servo.dwell_ms must be positive")
	}
	if c.Reader.PollIntervalMS <= 0 {
		add("reader.poll_interval_ms must be positive")
	}
	if c.Servo.SettleMS < 0 || c.Reader.ReadTimeoutMS < 0 || c.Reader.ErrorBackoffMS < 0 {
		add("servo.settle_ms, reader.read_timeout_ms and reader.error_backoff_ms must not be negative")
	}

	// Servo.
	if c.Servo.FrequencyHz <= 0 {
		add("servo.frequency_hz must be positive")
	}
	for name, duty := range map[string]float64{"servo.unlock_duty": c.Servo.UnlockDuty, "servo.lock_duty": c.Servo.LockDuty} {
		if duty < 0 || duty > 100 {
			add("%s must be within 0..100, got %v", name, duty)
		}
	}

	// Journal.
	if c.Journal.Enabled && strings.TrimSpace(c.Journal.DBPath) == "" {
		add("journal.db_path is required when the journal is enabled")
	}
	if c.Journal.RetentionDays < 0 || c.Journal.PruneIntervalHours < 0 {
		add("journal retention and prune interval must not be negative")
	}

	// Logging.
	if _, err := obs.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		add("log.format must be text or json, got %q", c.Log.Format)
	}

	if len(p) > 0 {
		return &ConfigError{Problems: p}
	}
	return nil
}

// Redacted returns a copy safe to print: the pin is masked.
func (c Config) Redacted() Config {
	if c.Access.PIN != "" {
		c.Access.PIN = strings.Repeat("*", len([]rune(c.Access.PIN)))
	}
	c.Access.AllowedCardIDs = append([]string(nil), c.Access.AllowedCardIDs...)
	return c
}

// YAML renders the redacted configuration.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}

func (k KeypadConfig) Debounce() time.Duration     { return ms(k.DebounceMS) }
func (k KeypadConfig) ScanInterval() time.Duration { return ms(k.ScanIntervalMS) }
func (s ServoConfig) Settle() time.Duration        { return ms(s.SettleMS) }
func (s ServoConfig) Dwell() time.Duration         { return ms(s.DwellMS) }
func (r ReaderConfig) ReadTimeout() time.Duration  { return ms(r.ReadTimeoutMS) }
func (r ReaderConfig) PollInterval() time.Duration { return ms(r.PollIntervalMS) }
func (r ReaderConfig) ErrorBackoff() time.Duration { return ms(r.ErrorBackoffMS) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// ConfigError lists everything wrong with a configuration.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// envReader parses typed PORTUNUS_* overrides, collecting malformed
// values instead of silently falling back.
type envReader struct {
	problems []string
}

func (e *envReader) int(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		e.problems = append(e.problems, fmt.Sprintf("%s: want a non-negative integer, got %q", key, v))
		return def
	}
	return n
}

func (e *envReader) float(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.problems = append(e.problems, fmt.Sprintf("%s: want a number, got %q", key, v))
		return def
	}
	return f
}

func (e *envReader) bool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.problems = append(e.problems, fmt.Sprintf("%s: want true or false, got %q", key, v))
		return def
	}
	return b
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
