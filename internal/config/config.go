// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

// Package config loads the optional emuready configuration file.
//
// The file is named by --config or EMUREADY_CONFIG; there is no discovery.
// Files ending in .json or .jsonc are read as JSON with comments and
// trailing commas, anything else as YAML. Values in the file override the
// environment; flags override the file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/forkbombeu/emuready/internal/avd"
	"github.com/forkbombeu/emuready/internal/ready"
)

// EnvVar names the config file when --config is not given.
const EnvVar = "EMUREADY_CONFIG"

type File struct {
	Device avd.Descriptor `yaml:"device" json:"device"`

	SettleDelay     Duration `yaml:"settle_delay" json:"settle_delay"`
	ConnectInterval Duration `yaml:"connect_interval" json:"connect_interval"`
	ConnectTimeout  Duration `yaml:"connect_timeout" json:"connect_timeout"`
	BootInterval    Duration `yaml:"boot_interval" json:"boot_interval"`
	BootTimeout     Duration `yaml:"boot_timeout" json:"boot_timeout"`
	RetryDelay      Duration `yaml:"retry_delay" json:"retry_delay"`

	LogDir       string `yaml:"log_dir" json:"log_dir"`
	LogTailLines *int   `yaml:"log_tail_lines" json:"log_tail_lines"`
	LogLevel     string `yaml:"log_level" json:"log_level"`

	DevCommand   []string `yaml:"dev_command" json:"dev_command"`
	EmulatorArgs []string `yaml:"emulator_args" json:"emulator_args"`
	Tools        Tools    `yaml:"tools" json:"tools"`
}

// Tools overrides SDK binary locations.
type Tools struct {
	ADB        string `yaml:"adb" json:"adb"`
	Emulator   string `yaml:"emulator" json:"emulator"`
	AVDManager string `yaml:"avdmanager" json:"avdmanager"`
	SDKManager string `yaml:"sdkmanager" json:"sdkmanager"`
}

// Path returns the config file to load: flag first, then EMUREADY_CONFIG.
// An empty result means no file.
func Path(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(EnvVar)
}

// Load reads and validates the file at path. Unknown keys are rejected.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	f, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes data as JSONC when ext is .json or .jsonc and as YAML
// otherwise.
func Parse(data []byte, ext string) (*File, error) {
	var f File
	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// An empty YAML document is a valid, empty config.
		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	f.expandVariables()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// expandVariables expands ${VAR} references in path-like values.
func (f *File) expandVariables() {
	f.LogDir = os.ExpandEnv(f.LogDir)
	f.Tools.ADB = os.ExpandEnv(f.Tools.ADB)
	f.Tools.Emulator = os.ExpandEnv(f.Tools.Emulator)
	f.Tools.AVDManager = os.ExpandEnv(f.Tools.AVDManager)
	f.Tools.SDKManager = os.ExpandEnv(f.Tools.SDKManager)
}

// Validate rejects values that are set but unusable. Unset values are left
// to the defaults.
func (f *File) Validate() error {
	var errs []error
	durations := []struct {
		name string
		d    Duration
	}{
		{"settle_delay", f.SettleDelay},
		{"connect_interval", f.ConnectInterval},
		{"connect_timeout", f.ConnectTimeout},
		{"boot_interval", f.BootInterval},
		{"boot_timeout", f.BootTimeout},
		{"retry_delay", f.RetryDelay},
	}
	for _, v := range durations {
		if v.d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", v.name, time.Duration(v.d)))
		}
	}
	if f.LogTailLines != nil && *f.LogTailLines < 0 {
		errs = append(errs, fmt.Errorf("log_tail_lines must not be negative, got %d", *f.LogTailLines))
	}
	if f.LogLevel != "" {
		switch strings.ToLower(f.LogLevel) {
		case "debug", "info", "warn", "error":
		default:
			errs = append(errs, fmt.Errorf("log_level must be debug, info, warn or error, got %q", f.LogLevel))
		}
	}
	return errors.Join(errs...)
}

// Apply copies every value set in the file over opts and env. Zero
// durations count as unset.
func (f *File) Apply(opts *ready.Options, env *avd.Env) {
	if f.Device.Name != "" {
		opts.Device.Name = f.Device.Name
	}
	if f.Device.Image != "" {
		opts.Device.Image = f.Device.Image
	}
	if f.Device.Profile != "" {
		opts.Device.Profile = f.Device.Profile
	}

	setDuration(&opts.SettleDelay, f.SettleDelay)
	setDuration(&opts.ConnectInterval, f.ConnectInterval)
	setDuration(&opts.ConnectTimeout, f.ConnectTimeout)
	setDuration(&opts.BootInterval, f.BootInterval)
	setDuration(&opts.BootTimeout, f.BootTimeout)
	setDuration(&opts.RetryDelay, f.RetryDelay)
	if f.LogTailLines != nil {
		opts.LogTailLines = *f.LogTailLines
	}

	if f.LogDir != "" {
		opts.LogDir = f.LogDir
		env.LogDir = f.LogDir
	}
	if len(f.DevCommand) > 0 {
		env.DevCommand = f.DevCommand
	}
	if len(f.EmulatorArgs) > 0 {
		env.EmulatorArgs = f.EmulatorArgs
	}
	setString(&env.ADB, f.Tools.ADB)
	setString(&env.Emulator, f.Tools.Emulator)
	setString(&env.AvdMgr, f.Tools.AVDManager)
	setString(&env.SdkManager, f.Tools.SDKManager)
}

func setDuration(dst *time.Duration, d Duration) {
	if d != 0 {
		*dst = time.Duration(d)
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
