package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type appConfig struct {
	serialDev    string
	baud         int
	listenAddr   string
	cmdTimeout   time.Duration
	serialReadTO time.Duration
	logFormat    string
	logLevel     string
	metricsAddr  string
	mdnsEnable   bool
	mdnsName     string
	configFile   string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	serialDev := flag.String("serial", "auto", "Serial device path, or auto to probe for a supported dongle")
	baud := flag.Int("baud", 9600, "Serial baud rate")
	listen := flag.String("listen", ":8000", "HTTP listen address")
	cmdTimeout := flag.Duration("timeout", 500*time.Millisecond, "Default per-response serial timeout")
	serialReadTO := flag.Duration("serial-read-timeout", 50*time.Millisecond, "Serial port read quantum")
	logFormat := flag.String("log-format", "text", "Log format: text|json|console")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS/Avahi advertisement")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default plclight-server-<hostname>)")
	configFile := flag.String("config", "", "TOML configuration file; flags and environment win over it")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Track which flags were explicitly set to give them precedence over
	// environment and file values.
	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	cfg.serialDev = *serialDev
	cfg.baud = *baud
	cfg.listenAddr = *listen
	cfg.cmdTimeout = *cmdTimeout
	cfg.serialReadTO = *serialReadTO
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
	cfg.configFile = *configFile

	// The file path itself may come from the environment; resolve it before
	// the file is read.
	if _, ok := setFlags["config"]; !ok {
		if v, ok := os.LookupEnv("PLCLIGHT_CONFIG"); ok && strings.TrimSpace(v) != "" {
			cfg.configFile = strings.TrimSpace(v)
		}
	}
	if err := applyConfigFile(cfg, setFlags); err != nil {
		fmt.Printf("configuration file error: %v\n", err)
		return nil, *showVersion
	}
	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices or listeners, only checks values.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json", "console":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.serialDev == "" {
		return errors.New("serial device must not be empty")
	}
	if c.listenAddr == "" {
		return errors.New("listen address must not be empty")
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.cmdTimeout <= 0 {
		return fmt.Errorf("timeout must be > 0")
	}
	if c.serialReadTO <= 0 {
		return fmt.Errorf("serial-read-timeout must be > 0")
	}
	return nil
}

// applyEnvOverrides maps PLCLIGHT_* environment variables to config fields
// unless a corresponding flag was explicitly set. Empty values are ignored.
// Durations accept Go time.ParseDuration format.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	if _, ok := set["serial"]; !ok {
		if v, ok := get("PLCLIGHT_SERIAL"); ok && v != "" {
			c.serialDev = v
		}
	}
	if _, ok := set["baud"]; !ok {
		if v, ok := get("PLCLIGHT_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.baud = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid PLCLIGHT_BAUD: %w", err)
			}
		}
	}
	if _, ok := set["listen"]; !ok {
		if v, ok := get("PLCLIGHT_LISTEN"); ok && v != "" {
			c.listenAddr = v
		}
	}
	if _, ok := set["timeout"]; !ok {
		if v, ok := get("PLCLIGHT_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.cmdTimeout = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid PLCLIGHT_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["serial-read-timeout"]; !ok {
		if v, ok := get("PLCLIGHT_SERIAL_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.serialReadTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid PLCLIGHT_SERIAL_READ_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("PLCLIGHT_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("PLCLIGHT_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("PLCLIGHT_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("PLCLIGHT_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("PLCLIGHT_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	return firstErr
}

// tomlDuration parses TOML duration strings like "750ms".
type tomlDuration time.Duration

func (d *tomlDuration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = tomlDuration(v)
	return nil
}

type fileConfig struct {
	Serial       string       `toml:"serial"`
	Baud         int          `toml:"baud"`
	Listen       string       `toml:"listen"`
	Timeout      tomlDuration `toml:"timeout"`
	SerialReadTO tomlDuration `toml:"serial-read-timeout"`
	LogFormat    string       `toml:"log-format"`
	LogLevel     string       `toml:"log-level"`
	MetricsAddr  string       `toml:"metrics-addr"`
	MDNSEnable   bool         `toml:"mdns-enable"`
	MDNSName     string       `toml:"mdns-name"`
}

// applyConfigFile overlays values from the TOML file for keys not pinned by
// an explicit flag. Environment overrides run later and also win over the
// file.
func applyConfigFile(c *appConfig, set map[string]struct{}) error {
	if c.configFile == "" {
		return nil
	}
	var f fileConfig
	meta, err := toml.DecodeFile(c.configFile, &f)
	if err != nil {
		return fmt.Errorf("%s: %w", c.configFile, err)
	}
	if undec := meta.Undecoded(); len(undec) > 0 {
		return fmt.Errorf("%s: unknown keys: %v", c.configFile, undec)
	}
	apply := func(flagName string, fn func()) {
		if _, ok := set[flagName]; ok {
			return
		}
		if meta.IsDefined(flagName) {
			fn()
		}
	}
	apply("serial", func() { c.serialDev = f.Serial })
	apply("baud", func() { c.baud = f.Baud })
	apply("listen", func() { c.listenAddr = f.Listen })
	apply("timeout", func() { c.cmdTimeout = time.Duration(f.Timeout) })
	apply("serial-read-timeout", func() { c.serialReadTO = time.Duration(f.SerialReadTO) })
	apply("log-format", func() { c.logFormat = f.LogFormat })
	apply("log-level", func() { c.logLevel = f.LogLevel })
	apply("metrics-addr", func() { c.metricsAddr = f.MetricsAddr })
	apply("mdns-enable", func() { c.mdnsEnable = f.MDNSEnable })
	apply("mdns-name", func() { c.mdnsName = f.MDNSName })
	return nil
}
