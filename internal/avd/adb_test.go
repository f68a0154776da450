// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package avd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"testing"
)

func TestDetect(t *testing.T) {
	t.Setenv("EMUREADY_CORRELATION_ID", "")
	t.Setenv("EMUREADY_DEV_CMD", "")
	env := Detect()
	if env.AVDHome == "" {
		t.Fatal("AVDHome should not be empty")
	}
	if env.CorrelationID == "" {
		t.Fatal("expected a generated correlation id")
	}
	if !reflect.DeepEqual(env.DevCommand, DefaultDevCommand) {
		t.Fatalf("expected default dev command, got %v", env.DevCommand)
	}
}

func TestDetectOverrides(t *testing.T) {
	sdk := t.TempDir()
	platformTools := filepath.Join(sdk, "platform-tools")
	if err := os.MkdirAll(platformTools, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(platformTools, "adb"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write adb: %v", err)
	}
	t.Setenv("ANDROID_SDK_ROOT", sdk)
	t.Setenv("EMUREADY_ADB", "")
	t.Setenv("EMUREADY_AVDMANAGER", "")
	t.Setenv("EMUREADY_EMULATOR", "/opt/emu/emulator")
	t.Setenv("EMUREADY_CORRELATION_ID", "corr-env")
	t.Setenv("EMUREADY_DEV_CMD", "cargo run --bin dev")
	t.Setenv("EMUREADY_EMULATOR_ARGS", "-no-window -gpu swiftshader_indirect")

	env := Detect()
	if env.ADB != filepath.Join(platformTools, "adb") {
		t.Fatalf("expected SDK adb, got %q", env.ADB)
	}
	if env.Emulator != "/opt/emu/emulator" {
		t.Fatalf("expected override emulator, got %q", env.Emulator)
	}
	if env.AvdMgr != "avdmanager" {
		t.Fatalf("expected PATH fallback for avdmanager, got %q", env.AvdMgr)
	}
	if env.CorrelationID != "corr-env" {
		t.Fatalf("expected correlation id from env, got %q", env.CorrelationID)
	}
	if want := []string{"cargo", "run", "--bin", "dev"}; !reflect.DeepEqual(env.DevCommand, want) {
		t.Fatalf("got dev command %v, want %v", env.DevCommand, want)
	}
	if want := []string{"-no-window", "-gpu", "swiftshader_indirect"}; !reflect.DeepEqual(env.EmulatorArgs, want) {
		t.Fatalf("got emulator args %v, want %v", env.EmulatorArgs, want)
	}
}

func TestADBDevicesAndGetProp(t *testing.T) {
	dir := t.TempDir()
	adb := writeStub(t, dir, "adb", ""+
		"case \"$1\" in\n"+
		"  devices)\n"+
		"    printf 'List of devices attached\\nemulator-5554\\tdevice\\n\\n'\n"+
		"    ;;\n"+
		"  -s)\n"+
		"    printf '1\\r\\n'\n"+
		"    ;;\n"+
		"esac\n"+
		"exit 0\n")
	bridge := NewADB(Env{ADB: adb})
	ctx := context.Background()

	if err := bridge.StartServer(ctx); err != nil {
		t.Fatalf("StartServer: %v", err)
	}
	endpoints, err := bridge.Devices(ctx)
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if want := []Endpoint{{Serial: "emulator-5554", State: StateDevice}}; !reflect.DeepEqual(endpoints, want) {
		t.Fatalf("got %+v, want %+v", endpoints, want)
	}
	value, err := bridge.GetProp(ctx, "emulator-5554", "sys.boot_completed")
	if err != nil {
		t.Fatalf("GetProp: %v", err)
	}
	if value != "1\r\n" {
		t.Fatalf("GetProp must return the raw value, got %q", value)
	}

	want := []string{
		"ARGS start-server",
		"ARGS devices",
		"ARGS -s emulator-5554 shell getprop sys.boot_completed",
	}
	if got := stubCalls(t, adb); !reflect.DeepEqual(got, want) {
		t.Fatalf("adb calls\n got %q\nwant %q", got, want)
	}
}

func TestADBAVDName(t *testing.T) {
	dir := t.TempDir()
	adb := writeStub(t, dir, "adb", "printf 'rustysound-api34\\r\\nOK\\r\\n'\n")
	name, err := NewADB(Env{ADB: adb}).AVDName(context.Background(), "emulator-5554")
	if err != nil {
		t.Fatalf("AVDName: %v", err)
	}
	if name != "rustysound-api34" {
		t.Fatalf("got %q", name)
	}
}

func TestADBFailureCarriesOutput(t *testing.T) {
	dir := t.TempDir()
	adb := writeStub(t, dir, "adb", "echo 'error: no devices/emulators found' >&2\nexit 1\n")
	_, err := NewADB(Env{ADB: adb}).Devices(context.Background())
	if err == nil || !strings.Contains(err.Error(), "no devices/emulators found") {
		t.Fatalf("expected adb stderr in error, got %v", err)
	}
}

func TestDevServerCommand(t *testing.T) {
	dir := t.TempDir()
	dx := writeStub(t, dir, "dx", "echo \"serial=$ANDROID_SERIAL\"\nexit 0\n")
	var stdout bytes.Buffer
	server := NewDevServer(Env{DevCommand: []string{dx, "serve", "--platform", "android"}})
	server.Stdin = strings.NewReader("")
	server.Stdout = &stdout
	server.Stderr = &stdout

	code, err := server.Run(context.Background(), "emulator-5554", []string{"--release"})
	if err != nil || code != 0 {
		t.Fatalf("Run = %d, %v", code, err)
	}
	if !strings.Contains(stdout.String(), "serial=emulator-5554") {
		t.Fatalf("expected ANDROID_SERIAL passed through, got %q", stdout.String())
	}
	if got := stubCalls(t, dx); got[0] != "ARGS serve --platform android --release" {
		t.Fatalf("unexpected argv %q", got)
	}
}

func TestDevServerExitCode(t *testing.T) {
	dir := t.TempDir()
	dx := writeStub(t, dir, "dx", "exit 7\n")
	server := NewDevServer(Env{DevCommand: []string{dx}})
	server.Stdin, server.Stdout, server.Stderr = strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{}

	code, err := server.Run(context.Background(), "emulator-5554", nil)
	if err != nil || code != 7 {
		t.Fatalf("Run = %d, %v; want 7, nil", code, err)
	}

	missing := NewDevServer(Env{DevCommand: []string{filepath.Join(dir, "missing")}})
	if code, err := missing.Run(context.Background(), "emulator-5554", nil); err == nil || code != -1 {
		t.Fatalf("Run = %d, %v; want -1 and an error", code, err)
	}
	if code, err := NewDevServer(Env{}).Run(context.Background(), "emulator-5554", nil); err == nil || code != -1 {
		t.Fatalf("Run = %d, %v; want -1 and an error", code, err)
	}
}

func TestStopIdempotent(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("requires /proc")
	}
	dir := t.TempDir()
	adb := writeStub(t, dir, "adb", "exit 0\n")
	bridge := NewADB(Env{ADB: adb})
	serial := "emulator-5580"
	if err := bridge.StopBySerial(context.Background(), serial); err != nil {
		t.Fatalf("stop first: %v", err)
	}
	if err := bridge.StopBySerial(context.Background(), serial); err != nil {
		t.Fatalf("stop second: %v", err)
	}
}

func TestConcurrentStopIdempotent(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("requires /proc")
	}
	dir := t.TempDir()
	adb := writeStub(t, dir, "adb", "exit 0\n")
	bridge := NewADB(Env{ADB: adb})

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- bridge.StopBySerial(context.Background(), "emulator-5582")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("stop error: %v", err)
		}
	}
}

func TestStopRejectsPhysicalSerial(t *testing.T) {
	if err := NewADB(Env{ADB: "adb"}).StopBySerial(context.Background(), "R58M123ABC"); err == nil {
		t.Fatal("expected error for non-emulator serial")
	}
}
