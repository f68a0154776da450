// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package ready

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/forkbombeu/emuready/internal/avd"
	"github.com/forkbombeu/emuready/internal/clock"
)

// calls records the order in which collaborators were invoked.
type calls []string

func (c *calls) add(name string) { *c = append(*c, name) }

func (c calls) count(name string) int {
	n := 0
	for _, v := range c {
		if v == name {
			n++
		}
	}
	return n
}

func (c calls) index(name string) int {
	for i, v := range c {
		if v == name {
			return i
		}
	}
	return -1
}

type fakeBridge struct {
	log         *calls
	devicesFn   func(call int) ([]avd.Endpoint, error)
	propFn      func(call int) (string, error)
	devicesCall int
	propCall    int
	propSerials []string
}

func (b *fakeBridge) StartServer(ctx context.Context) error {
	b.log.add("start-server")
	return nil
}

func (b *fakeBridge) Devices(ctx context.Context) ([]avd.Endpoint, error) {
	b.log.add("devices")
	b.devicesCall++
	if b.devicesFn == nil {
		return nil, nil
	}
	return b.devicesFn(b.devicesCall)
}

func (b *fakeBridge) GetProp(ctx context.Context, serial, prop string) (string, error) {
	b.log.add("getprop")
	b.propCall++
	b.propSerials = append(b.propSerials, serial)
	if prop != bootProperty {
		return "", fmt.Errorf("unexpected property %s", prop)
	}
	if b.propFn == nil {
		return "1\r\n", nil
	}
	return b.propFn(b.propCall)
}

type fakeManager struct {
	log       *calls
	avds      []string
	listErr   error
	createErr error
	startErr  error
	// logLines is written to the launch log on start; nil leaves no file.
	logLines []string
	created  []avd.Descriptor
	started  []string
	logPaths []string
}

func (m *fakeManager) ListAVDs(ctx context.Context) ([]string, error) {
	m.log.add("list-avds")
	return m.avds, m.listErr
}

func (m *fakeManager) CreateAVD(ctx context.Context, d avd.Descriptor) error {
	m.log.add("create")
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, d)
	return nil
}

func (m *fakeManager) StartDevice(ctx context.Context, name, logPath string) error {
	m.log.add("start-device")
	if m.startErr != nil {
		return m.startErr
	}
	m.started = append(m.started, name)
	m.logPaths = append(m.logPaths, logPath)
	if m.logLines != nil {
		return os.WriteFile(logPath, []byte(strings.Join(m.logLines, "\n")+"\n"), 0o644)
	}
	return nil
}

type fakeDevServer struct {
	log     *calls
	codes   []int
	errs    []error
	serials []string
	args    [][]string
	times   []time.Time
}

func (s *fakeDevServer) Run(ctx context.Context, serial string, args []string) (int, error) {
	s.log.add("dev-server")
	i := len(s.serials)
	s.serials = append(s.serials, serial)
	s.args = append(s.args, args)
	s.times = append(s.times, time.Now())
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if i < len(s.codes) {
		return s.codes[i], err
	}
	return 0, err
}

type harness struct {
	o      *Orchestrator
	clock  *clock.FakeClock
	diag   *bytes.Buffer
	log    *calls
	bridge *fakeBridge
	mgr    *fakeManager
	server *fakeDevServer
	opts   Options
}

var testStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// newHarness returns an orchestrator over fakes: no AVDs, nothing
// connected until the launched emulator shows up on the second listing,
// boot immediately complete, dev server exits 0.
func newHarness(t *testing.T) *harness {
	t.Helper()
	log := &calls{}
	h := &harness{
		clock: clock.Fake(testStart),
		diag:  &bytes.Buffer{},
		log:   log,
		bridge: &fakeBridge{
			log: log,
			devicesFn: func(call int) ([]avd.Endpoint, error) {
				if call == 1 {
					return nil, nil
				}
				return avd.ParseDevices("List of devices attached\nemulator-5554\tdevice\n"), nil
			},
		},
		mgr:    &fakeManager{log: log, logLines: []string{"emulator: booting"}},
		server: &fakeDevServer{log: log},
	}
	h.opts = DefaultOptions()
	h.opts.LogDir = t.TempDir()
	h.opts.RetryDelay = time.Millisecond
	h.o = &Orchestrator{
		Env:         avd.Env{CorrelationID: "corr-test"},
		Bridge:      h.bridge,
		Devices:     h.mgr,
		DevServer:   h.server,
		Clock:       h.clock,
		Diagnostics: h.diag,
	}
	return h
}

func (h *harness) up(t *testing.T, args ...string) (Result, error) {
	t.Helper()
	return h.o.Up(context.Background(), h.opts, args)
}
