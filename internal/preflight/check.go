// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

// Package preflight checks that the tools the readiness flow shells out to
// are installed.
package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/forkbombeu/emuready/internal/avd"
)

type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarning:
		return "warning"
	default:
		return "error"
	}
}

type CheckResult struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

type Results struct {
	Checks      []CheckResult `json:"checks"`
	HasErrors   bool          `json:"has_errors"`
	HasWarnings bool          `json:"has_warnings"`
}

// Tool is a binary the flow depends on.
type Tool struct {
	Name     string
	Command  string
	Required bool
	// VersionArgs, when set, are run to report a version string.
	VersionArgs []string
}

// Overridable in tests.
var (
	lookPath = exec.LookPath
	statFile = os.Stat
	goos     = runtime.GOOS
)

// Tools lists the binaries env resolves to. sdkmanager is only needed when
// a system image has to be installed.
func Tools(env avd.Env) []Tool {
	tools := []Tool{
		{Name: "adb", Command: env.ADB, Required: true, VersionArgs: []string{"version"}},
		{Name: "emulator", Command: env.Emulator, Required: true},
		{Name: "avdmanager", Command: env.AvdMgr, Required: true},
		{Name: "sdkmanager", Command: env.SdkManager, Required: false},
	}
	if len(env.DevCommand) > 0 {
		tools = append(tools, Tool{Name: "dev server", Command: env.DevCommand[0], Required: true})
	}
	return tools
}

// Run checks every tool plus the SDK root and, on Linux, KVM access.
func Run(ctx context.Context, env avd.Env) *Results {
	results := &Results{Checks: make([]CheckResult, 0)}
	for _, tool := range Tools(env) {
		results.add(checkTool(ctx, tool))
	}
	results.add(checkSDKRoot(env))
	if goos == "linux" {
		results.add(checkKVM())
	}
	return results
}

func (r *Results) add(c CheckResult) {
	r.Checks = append(r.Checks, c)
	switch c.Status {
	case StatusError:
		r.HasErrors = true
	case StatusWarning:
		r.HasWarnings = true
	}
}

func checkTool(ctx context.Context, tool Tool) CheckResult {
	result := CheckResult{Name: tool.Name}
	if tool.Command == "" {
		result.Status = StatusError
		result.Message = "not configured"
		return result
	}
	path, err := lookPath(tool.Command)
	if err != nil {
		if tool.Required {
			result.Status = StatusError
			result.Message = fmt.Sprintf("%s not found - required", tool.Command)
		} else {
			result.Status = StatusWarning
			result.Message = fmt.Sprintf("%s not found - optional", tool.Command)
		}
		return result
	}
	result.Path = path
	result.Status = StatusOK
	result.Message = "OK"
	if len(tool.VersionArgs) > 0 {
		if v := toolVersion(ctx, path, tool.VersionArgs); v != "" {
			result.Message = v
		}
	}
	return result
}

func toolVersion(ctx context.Context, path string, args []string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, args...).Output()
	if err != nil {
		return ""
	}
	version := strings.TrimSpace(string(out))
	if idx := strings.Index(version, "\n"); idx != -1 {
		version = version[:idx]
	}
	if len(version) > 60 {
		version = version[:60] + "..."
	}
	return version
}

func checkSDKRoot(env avd.Env) CheckResult {
	result := CheckResult{Name: "ANDROID_SDK_ROOT"}
	if env.SDKRoot == "" {
		result.Status = StatusWarning
		result.Message = "not set - tools resolved from PATH, system images cannot be probed"
		return result
	}
	st, err := statFile(env.SDKRoot)
	if err != nil || !st.IsDir() {
		result.Status = StatusError
		result.Message = fmt.Sprintf("%s is not a directory", env.SDKRoot)
		return result
	}
	result.Status = StatusOK
	result.Message = "OK"
	result.Path = env.SDKRoot
	return result
}

func checkKVM() CheckResult {
	result := CheckResult{Name: "kvm", Path: "/dev/kvm"}
	if _, err := statFile("/dev/kvm"); err != nil {
		result.Status = StatusWarning
		result.Message = "/dev/kvm missing - x86_64 images will boot without acceleration"
		return result
	}
	result.Status = StatusOK
	result.Message = "OK"
	return result
}

// Summary returns a short summary of the results.
func (r *Results) Summary() string {
	ok, warn, fail := 0, 0, 0
	for _, c := range r.Checks {
		switch c.Status {
		case StatusOK:
			ok++
		case StatusWarning:
			warn++
		case StatusError:
			fail++
		}
	}
	if fail > 0 {
		return fmt.Sprintf("%d errors, %d warnings", fail, warn)
	}
	if warn > 0 {
		return fmt.Sprintf("%d warnings", warn)
	}
	return fmt.Sprintf("%d checks passed", ok)
}
