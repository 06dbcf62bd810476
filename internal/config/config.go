// Package config loads station settings: defaults, then the global file,
// then the station-local file in the working directory.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/errors"
)

const (
	DirName = ".dinoflash"

	DefaultRegistryURL     = "https://dinocore-telemetry-production.up.railway.app"
	DefaultProductionPath  = "builds"
	DefaultTestingPath     = "testing-builds"
	DefaultFirmwareDir     = "firmware"
	DefaultChip            = "esp32s3"
	DefaultFlashBaud       = 460800
	DefaultMonitorBaud     = 115200
	DefaultUSBVID          = "303A"
	DefaultUSBPID          = "1001"
	DefaultEsptool         = "python -m esptool"
	DefaultEspefuse        = "python -m espefuse"
	DefaultServiceUUID     = "a07498ca-ad5b-474e-940d-16f1fbe7e8cd"
	DefaultCommandUUID     = "a07498ca-ad5b-474e-940d-16f1fbe7e8ce"
	DefaultResultUUID      = "a07498ca-ad5b-474e-940d-16f1fbe7e8cf"
	DefaultLogLevel        = "INFO"
	DefaultPollInterval    = 2 * time.Second
	DefaultBurnSettle      = 2 * time.Second
	DefaultReadyTimeout    = 15 * time.Second
	DefaultListenTimeout   = 60 * time.Second
	DefaultScanWindow      = 7 * time.Second
	DefaultScanAttempts    = 3
	DefaultScanRetryDelay  = 2 * time.Second
	DefaultQCSettle        = time.Second
	DefaultInvokeRetry     = time.Second
	DefaultResultsWindow   = 15 * time.Second
	defaultConfigFileName  = "config.json"
	defaultGlobalConfigDir = "dinoflash"
)

// Duration reads and writes Go duration strings ("15s") in JSON. Plain
// numbers are taken as seconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return errors.NotValidf("duration %q", s)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return errors.NotValidf("duration %s", data)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Timings bounds the waits of a session.
type Timings struct {
	PollInterval     Duration `json:"poll_interval,omitempty"`
	BurnSettle       Duration `json:"burn_settle,omitempty"`
	ReadyTimeout     Duration `json:"ready_timeout,omitempty"`
	ListenTimeout    Duration `json:"listen_timeout,omitempty"`
	ScanWindow       Duration `json:"scan_window,omitempty"`
	ScanAttempts     int      `json:"scan_attempts,omitempty"`
	ScanRetryDelay   Duration `json:"scan_retry_delay,omitempty"`
	Settle           Duration `json:"settle,omitempty"`
	InvokeRetryDelay Duration `json:"invoke_retry_delay,omitempty"`
	ResultsWindow    Duration `json:"results_window,omitempty"`
}

// BLE names the diagnostics service and characteristics.
type BLE struct {
	ServiceUUID string `json:"service_uuid,omitempty"`
	CommandUUID string `json:"command_uuid,omitempty"`
	ResultUUID  string `json:"result_uuid,omitempty"`
}

// Config holds all dinoflash configuration.
type Config struct {
	HardwareVersion string  `json:"hardware_version,omitempty"`
	Mode            string  `json:"mode,omitempty"`
	RegistryURL     string  `json:"registry_url,omitempty"`
	ProductionPath  string  `json:"production_path,omitempty"`
	TestingPath     string  `json:"testing_path,omitempty"`
	FirmwareDir     string  `json:"firmware_dir,omitempty"`
	Chip            string  `json:"chip,omitempty"`
	FlashBaud       int     `json:"flash_baud,omitempty"`
	MonitorBaud     int     `json:"monitor_baud,omitempty"`
	USBVID          string  `json:"usb_vid,omitempty"`
	USBPID          string  `json:"usb_pid,omitempty"`
	Esptool         string  `json:"esptool,omitempty"`
	Espefuse        string  `json:"espefuse,omitempty"`
	VenvPath        string  `json:"venv_path,omitempty"`
	Timings         Timings `json:"timings,omitempty"`
	QCTestIndex     int     `json:"qc_test_index,omitempty"`
	BLE             BLE     `json:"ble,omitempty"`
	AutoQC          bool    `json:"auto_qc,omitempty"`
	SinkURL         string  `json:"sink_url,omitempty"`
	LogLevel        string  `json:"log_level,omitempty"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Mode:           "production",
		RegistryURL:    DefaultRegistryURL,
		ProductionPath: DefaultProductionPath,
		TestingPath:    DefaultTestingPath,
		FirmwareDir:    DefaultFirmwareDir,
		Chip:           DefaultChip,
		FlashBaud:      DefaultFlashBaud,
		MonitorBaud:    DefaultMonitorBaud,
		USBVID:         DefaultUSBVID,
		USBPID:         DefaultUSBPID,
		Esptool:        DefaultEsptool,
		Espefuse:       DefaultEspefuse,
		Timings: Timings{
			PollInterval:     Duration(DefaultPollInterval),
			BurnSettle:       Duration(DefaultBurnSettle),
			ReadyTimeout:     Duration(DefaultReadyTimeout),
			ListenTimeout:    Duration(DefaultListenTimeout),
			ScanWindow:       Duration(DefaultScanWindow),
			ScanAttempts:     DefaultScanAttempts,
			ScanRetryDelay:   Duration(DefaultScanRetryDelay),
			Settle:           Duration(DefaultQCSettle),
			InvokeRetryDelay: Duration(DefaultInvokeRetry),
			ResultsWindow:    Duration(DefaultResultsWindow),
		},
		BLE: BLE{
			ServiceUUID: DefaultServiceUUID,
			CommandUUID: DefaultCommandUUID,
			ResultUUID:  DefaultResultUUID,
		},
		LogLevel: DefaultLogLevel,
	}
}

// GlobalDir returns ~/.config/dinoflash.
func GlobalDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", defaultGlobalConfigDir), nil
}

// Load reads and merges global and station configs.
// Order: defaults → global (~/.config/dinoflash/config.json) → station (.dinoflash/config.json).
func Load(stationRoot string) Config {
	global, _ := GlobalDir()
	return LoadFrom(global, stationRoot)
}

// LoadFrom is Load with an explicit global config directory. An empty
// globalDir skips the global file.
func LoadFrom(globalDir, stationRoot string) Config {
	cfg := Defaults()

	if globalDir != "" {
		mergeFromFile(&cfg, filepath.Join(globalDir, defaultConfigFileName))
	}

	if stationRoot != "" {
		mergeFromFile(&cfg, filepath.Join(stationRoot, DirName, defaultConfigFileName))
	}

	return cfg
}

// Save writes the config to the station .dinoflash/config.json by default,
// or to the global config if global is true.
func Save(cfg Config, stationRoot string, global bool) error {
	var dir string
	if global {
		g, err := GlobalDir()
		if err != nil {
			return err
		}
		dir = g
	} else {
		dir = filepath.Join(stationRoot, DirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, defaultConfigFileName), data, 0o644)
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

func mergeDuration(dst *Duration, src Duration) {
	if src != 0 {
		*dst = src
	}
}

func mergeFromFile(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	var f Config
	if err := json.Unmarshal(data, &f); err != nil {
		return
	}

	mergeString(&cfg.HardwareVersion, f.HardwareVersion)
	mergeString(&cfg.Mode, f.Mode)
	mergeString(&cfg.RegistryURL, f.RegistryURL)
	mergeString(&cfg.ProductionPath, f.ProductionPath)
	mergeString(&cfg.TestingPath, f.TestingPath)
	mergeString(&cfg.FirmwareDir, f.FirmwareDir)
	mergeString(&cfg.Chip, f.Chip)
	mergeInt(&cfg.FlashBaud, f.FlashBaud)
	mergeInt(&cfg.MonitorBaud, f.MonitorBaud)
	mergeString(&cfg.USBVID, f.USBVID)
	mergeString(&cfg.USBPID, f.USBPID)
	mergeString(&cfg.Esptool, f.Esptool)
	mergeString(&cfg.Espefuse, f.Espefuse)
	mergeString(&cfg.VenvPath, f.VenvPath)
	mergeInt(&cfg.QCTestIndex, f.QCTestIndex)
	mergeString(&cfg.BLE.ServiceUUID, f.BLE.ServiceUUID)
	mergeString(&cfg.BLE.CommandUUID, f.BLE.CommandUUID)
	mergeString(&cfg.BLE.ResultUUID, f.BLE.ResultUUID)
	mergeString(&cfg.SinkURL, f.SinkURL)
	mergeString(&cfg.LogLevel, f.LogLevel)
	if f.AutoQC {
		cfg.AutoQC = true
	}

	t := &cfg.Timings
	mergeDuration(&t.PollInterval, f.Timings.PollInterval)
	mergeDuration(&t.BurnSettle, f.Timings.BurnSettle)
	mergeDuration(&t.ReadyTimeout, f.Timings.ReadyTimeout)
	mergeDuration(&t.ListenTimeout, f.Timings.ListenTimeout)
	mergeDuration(&t.ScanWindow, f.Timings.ScanWindow)
	mergeInt(&t.ScanAttempts, f.Timings.ScanAttempts)
	mergeDuration(&t.ScanRetryDelay, f.Timings.ScanRetryDelay)
	mergeDuration(&t.Settle, f.Timings.Settle)
	mergeDuration(&t.InvokeRetryDelay, f.Timings.InvokeRetryDelay)
	mergeDuration(&t.ResultsWindow, f.Timings.ResultsWindow)
}
