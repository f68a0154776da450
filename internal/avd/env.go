// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package avd

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DefaultDevCommand runs the Dioxus dev server against Android.
var DefaultDevCommand = []string{"dx", "serve", "--platform", "android"}

type Env struct {
	SDKRoot      string   // ANDROID_SDK_ROOT
	AVDHome      string   // ANDROID_AVD_HOME (default ~/.android/avd)
	LogDir       string   // EMUREADY_LOG_DIR (default os.TempDir())
	Emulator     string   // EMUREADY_EMULATOR (default emulator)
	ADB          string   // EMUREADY_ADB (default adb)
	AvdMgr       string   // EMUREADY_AVDMANAGER (default avdmanager)
	SdkManager   string   // EMUREADY_SDKMANAGER (default sdkmanager)
	EmulatorArgs []string // EMUREADY_EMULATOR_ARGS, appended to "-avd NAME"
	DevCommand   []string // EMUREADY_DEV_CMD (default "dx serve --platform android")
	// CorrelationID is used to tie logs and spans to a single invocation.
	CorrelationID string
}

func Detect() Env {
	usr, _ := user.Current()
	home := ""
	if usr != nil {
		home = usr.HomeDir
	} else if h := os.Getenv("HOME"); h != "" {
		home = h
	}

	sdk := getenv("ANDROID_SDK_ROOT", os.Getenv("ANDROID_HOME"))
	correlationID := getenv("EMUREADY_CORRELATION_ID", "")
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	devCommand := DefaultDevCommand
	if v := strings.Fields(os.Getenv("EMUREADY_DEV_CMD")); len(v) > 0 {
		devCommand = v
	}

	return Env{
		SDKRoot:       sdk,
		AVDHome:       getenv("ANDROID_AVD_HOME", filepath.Join(home, ".android", "avd")),
		LogDir:        getenv("EMUREADY_LOG_DIR", os.TempDir()),
		Emulator:      sdkTool(sdk, "EMUREADY_EMULATOR", "emulator", "emulator"),
		ADB:           sdkTool(sdk, "EMUREADY_ADB", "platform-tools", "adb"),
		AvdMgr:        sdkTool(sdk, "EMUREADY_AVDMANAGER", filepath.Join("cmdline-tools", "latest", "bin"), "avdmanager"),
		SdkManager:    sdkTool(sdk, "EMUREADY_SDKMANAGER", filepath.Join("cmdline-tools", "latest", "bin"), "sdkmanager"),
		EmulatorArgs:  strings.Fields(os.Getenv("EMUREADY_EMULATOR_ARGS")),
		DevCommand:    devCommand,
		CorrelationID: correlationID,
	}
}

// sdkTool resolves a tool binary: explicit env override, then the SDK
// layout, then PATH lookup by bare name.
func sdkTool(sdk, key, dir, name string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if sdk != "" {
		p := filepath.Join(sdk, dir, name)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return name
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
