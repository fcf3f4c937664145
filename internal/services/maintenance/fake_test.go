package maintenance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/fgeck/webmaint/internal/models"
	"github.com/fgeck/webmaint/internal/services/render"
	"github.com/fgeck/webmaint/internal/services/timeparse"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const (
	sharedPath = "/srv/www/app/shared"
	systemDir  = sharedPath + "/public/system"
	pageFile   = systemDir + "/maintenance.html"
)

// fakeFleet emulates the handful of coreutils the controller uses, on one
// in-memory filesystem per host.
type fakeFleet struct {
	mu       sync.Mutex
	fs       map[string]afero.Fs
	calls    [][]string
	failFunc func(host models.Host, args []string) error
}

func newFakeFleet(hosts ...string) *fakeFleet {
	f := &fakeFleet{fs: make(map[string]afero.Fs)}
	for _, h := range hosts {
		fs := afero.NewMemMapFs()
		_ = fs.MkdirAll(systemDir, 0o755)
		f.fs[h] = fs
	}
	return f
}

func (f *fakeFleet) Run(ctx context.Context, host models.Host, cmd models.Command) (*models.CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, append([]string{host.Name}, cmd.Args...))

	if f.failFunc != nil {
		if err := f.failFunc(host, cmd.Args); err != nil {
			return &models.CommandResult{CommandRun: true, ExitCode: 1, Output: err.Error(), Error: err}, nil
		}
	}

	fs, ok := f.fs[host.Name]
	if !ok {
		return &models.CommandResult{Error: errors.New("failed to connect: no route to host")}, nil
	}

	exit := func(code int, msg string) (*models.CommandResult, error) {
		return &models.CommandResult{CommandRun: true, ExitCode: code, Output: msg, Error: fmt.Errorf("exit status %d", code)}, nil
	}

	args := cmd.Args
	switch {
	case len(args) == 3 && args[0] == "mkdir" && args[1] == "-p":
		if err := fs.MkdirAll(args[2], 0o755); err != nil {
			return exit(1, err.Error())
		}
	case len(args) == 3 && args[0] == "cp" && args[1] == "/dev/stdin":
		if ok, _ := afero.DirExists(fs, path.Dir(args[2])); !ok {
			return exit(1, "cp: No such file or directory")
		}
		if err := afero.WriteFile(fs, args[2], cmd.Stdin, 0o644); err != nil {
			return exit(1, err.Error())
		}
	case len(args) == 2 && args[0] == "touch":
		if exists, _ := afero.Exists(fs, args[1]); !exists {
			if err := afero.WriteFile(fs, args[1], nil, 0o644); err != nil {
				return exit(1, err.Error())
			}
		}
	case len(args) >= 3 && args[0] == "rm" && args[1] == "-f":
		for _, p := range args[2:] {
			if err := fs.Remove(p); err != nil && !os.IsNotExist(err) {
				return exit(1, err.Error())
			}
		}
	case len(args) == 3 && args[0] == "test" && args[1] == "-e":
		if exists, _ := afero.Exists(fs, args[2]); !exists {
			return exit(1, "")
		}
	default:
		return nil, fmt.Errorf("fake fleet: unsupported command %v", args)
	}

	return &models.CommandResult{CommandRun: true}, nil
}

func (f *fakeFleet) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFleet) exists(t *testing.T, host, p string) bool {
	t.Helper()
	ok, err := afero.Exists(f.fs[host], p)
	require.NoError(t, err)
	return ok
}

func (f *fakeFleet) read(t *testing.T, host, p string) string {
	t.Helper()
	data, err := afero.ReadFile(f.fs[host], p)
	require.NoError(t, err)
	return string(data)
}

func (f *fakeFleet) write(t *testing.T, host, p, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(f.fs[host], p, []byte(content), 0o644))
}

// snapshot lists every file on host with its content.
func (f *fakeFleet) snapshot(t *testing.T, host string) []string {
	t.Helper()
	var files []string
	err := afero.Walk(f.fs[host], "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			data, err := afero.ReadFile(f.fs[host], p)
			if err != nil {
				return err
			}
			files = append(files, p+"="+string(data))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(files)
	return files
}

type mockPrompt struct {
	mu        sync.Mutex
	answer    bool
	err       error
	questions []string
}

func (m *mockPrompt) Confirm(question string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions = append(m.questions, question)
	return m.answer, m.err
}

type mockPurger struct {
	calls int
	err   error
}

func (m *mockPurger) Purge(ctx context.Context) error {
	m.calls++
	return m.err
}

type mockTelegramService struct {
	messages []models.TelegramMessage
}

func (m *mockTelegramService) SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
	m.messages = append(m.messages, msg)
	return &models.TelegramResult{MessageSent: true}, nil
}

// logBuffer collects log output written from concurrent host goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

// steppingClock returns start, then start+step, start+2*step, ...
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(step)
		return now
	}
}

func testConfig(hosts ...string) models.Config {
	web := make([]models.Host, 0, len(hosts))
	for _, h := range hosts {
		web = append(web, models.Host{Name: h})
	}
	return models.Config{
		SharedPath: sharedPath,
		Roles:      map[string][]models.Host{models.WebRole: web},
		Maintenance: models.MaintenanceSettings{
			DefaultReason: "maintenance",
			DefaultType:   models.MaintenanceGeneral,
			TimeZone:      "America/New_York",
			TimeFormat:    "Monday, January 2, 2006, 3:04 PM MST",
		},
	}
}

type harness struct {
	svc      *Impl
	fleet    *fakeFleet
	prompt   *mockPrompt
	purger   *mockPurger
	telegram *mockTelegramService
	logs     *logBuffer
}

func newHarness(t *testing.T, cfg models.Config, answer bool) *harness {
	t.Helper()

	loc := newYork(t)
	formatter, err := timeparse.NewFormatter(cfg.Maintenance.TimeZone, cfg.Maintenance.TimeFormat)
	require.NoError(t, err)
	renderer, err := render.New(testLogger(), "")
	require.NoError(t, err)

	var names []string
	for _, h := range cfg.WebHosts() {
		names = append(names, h.Name)
	}

	h := &harness{
		fleet:    newFakeFleet(names...),
		prompt:   &mockPrompt{answer: answer},
		purger:   &mockPurger{},
		telegram: &mockTelegramService{},
		logs:     &logBuffer{},
	}
	h.svc = NewWithServices(zerolog.New(h.logs), cfg, Services{
		Executor:  h.fleet,
		Renderer:  renderer,
		Parser:    timeparse.New(testLogger(), loc),
		Formatter: formatter,
		Prompt:    h.prompt,
		Purger:    h.purger,
		Telegram:  h.telegram,
		Now:       steppingClock(time.Date(2026, 10, 17, 14, 30, 0, 0, loc), 5*time.Minute),
	})
	return h
}

func markerFile(t models.MaintenanceType) string {
	return systemDir + "/" + t.MarkerName()
}

func hasArg(args []string, s string) bool {
	for _, a := range args {
		if strings.HasSuffix(a, s) {
			return true
		}
	}
	return false
}
