// File: internal/device/adb.go
package device

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/config"
	"github.com/xkilldash9x/droidpilot/internal/uitree"
)

const remoteDumpPath = "/sdcard/window_dump.xml"

var (
	wmSizeRegex    = regexp.MustCompile(`(Physical|Override) size:\s*(\d+)x(\d+)`)
	getpropRegex   = regexp.MustCompile(`^\[([^\]]+)\]:\s*\[(.*)\]$`)
	focusRegex     = regexp.MustCompile(`mCurrentFocus=Window\{\S+\s+\S+\s+([A-Za-z0-9_.]+)/`)
	shellMetaChars = "()<>|;&*\\~\"'`$?#[]{}!"
)

// Runner executes one adb invocation and returns its stdout.
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// execCommandContext is swapped in tests that exercise execRunner directly.
var execCommandContext = exec.CommandContext

type execRunner struct {
	bin     string
	serial  string
	timeout time.Duration
}

func (r *execRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	full := args
	if r.serial != "" {
		full = append([]string{"-s", r.serial}, args...)
	}
	cmd := execCommandContext(ctx, r.bin, full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return stdout.Bytes(), fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, msg)
	}
	return stdout.Bytes(), nil
}

// ADB drives one device through the adb command line tool.
type ADB struct {
	run       Runner
	cfg       config.DeviceConfig
	serial    string
	width     int
	height    int
	launchers map[string]struct{}
	logger    *zap.Logger
}

// NewADB connects to the configured device, choosing the only attached one
// when no serial is set, and reads the physical screen size.
func NewADB(ctx context.Context, cfg config.DeviceConfig, logger *zap.Logger) (*ADB, error) {
	probe := &execRunner{bin: cfg.ADBPath, timeout: cfg.CommandTimeout}
	serial := cfg.Serial
	if serial == "" {
		out, err := probe.Run(ctx, "devices")
		if err != nil {
			return nil, fmt.Errorf("failed to list devices: %w", err)
		}
		serial, err = pickDevice(out)
		if err != nil {
			return nil, err
		}
	}
	runner := &execRunner{bin: cfg.ADBPath, serial: serial, timeout: cfg.CommandTimeout}
	return NewADBWithRunner(ctx, runner, serial, cfg, logger)
}

// NewADBWithRunner builds an ADB over an arbitrary runner.
func NewADBWithRunner(ctx context.Context, run Runner, serial string, cfg config.DeviceConfig, logger *zap.Logger) (*ADB, error) {
	a := &ADB{
		run:       run,
		cfg:       cfg,
		serial:    serial,
		width:     cfg.ScreenWidth,
		height:    cfg.ScreenHeight,
		launchers: make(map[string]struct{}, len(cfg.LauncherPackages)),
		logger:    logger.Named("adb").With(zap.String("serial", serial)),
	}
	for _, pkg := range cfg.LauncherPackages {
		a.launchers[pkg] = struct{}{}
	}

	if out, err := a.run.Run(ctx, "shell", "wm", "size"); err != nil {
		a.logger.Warn("Could not read screen size, using configured extent.", zap.Error(err))
	} else if w, h, ok := parseWMSize(out); ok {
		a.width, a.height = w, h
	}
	a.logger.Info("Device ready.", zap.Int("width", a.width), zap.Int("height", a.height))
	return a, nil
}

// pickDevice returns the serial of the only device in the "device" state.
func pickDevice(out []byte) (string, error) {
	var ready []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) >= 2 && fields[1] == "device" {
			ready = append(ready, fields[0])
		}
	}
	switch len(ready) {
	case 0:
		return "", errors.New("no device attached; check `adb devices`")
	case 1:
		return ready[0], nil
	}
	return "", fmt.Errorf("%d devices attached (%s); set device.serial", len(ready), strings.Join(ready, ", "))
}

// parseWMSize prefers an override size over the physical one.
func parseWMSize(out []byte) (int, int, bool) {
	var w, h int
	found := false
	for _, m := range wmSizeRegex.FindAllStringSubmatch(string(out), -1) {
		mw, _ := strconv.Atoi(m[2])
		mh, _ := strconv.Atoi(m[3])
		if !found || m[1] == "Override" {
			w, h, found = mw, mh, true
		}
	}
	return w, h, found
}

// ScreenSize returns the extent used for bounds checks.
func (a *ADB) ScreenSize() (int, int) { return a.width, a.height }

// Capture grabs the screenshot and the hierarchy dump in parallel.
func (a *ADB) Capture(ctx context.Context) (*Capture, error) {
	var screenshot, xml []byte
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		out, err := a.run.Run(gctx, "exec-out", "screencap", "-p")
		if err != nil {
			// The hierarchy alone is enough to plan; a missing screenshot only costs the artifact.
			a.logger.Warn("Screenshot failed.", zap.Error(err))
			return nil
		}
		screenshot = out
		return nil
	})
	g.Go(func() error {
		if _, err := a.run.Run(gctx, "shell", "uiautomator", "dump", remoteDumpPath); err != nil {
			return err
		}
		out, err := a.run.Run(gctx, "exec-out", "cat", remoteDumpPath)
		if err != nil {
			return err
		}
		xml = out
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, &ActionError{Op: "capture", Err: err}
	}

	snap, err := uitree.Parse(xml, a.width, a.height)
	if err != nil {
		return nil, &ActionError{Op: "capture", Err: err}
	}
	return &Capture{Snapshot: snap, XML: xml, Screenshot: screenshot}, nil
}

func (a *ADB) inBounds(x, y int) bool {
	return x >= 0 && x <= a.width && y >= 0 && y <= a.height
}

// Tap taps at (x, y).
func (a *ADB) Tap(ctx context.Context, x, y int) error {
	if !a.inBounds(x, y) {
		return &ActionError{Op: "tap", Err: fmt.Errorf("(%d,%d) outside screen %dx%d", x, y, a.width, a.height)}
	}
	if _, err := a.run.Run(ctx, "shell", "input", "tap", strconv.Itoa(x), strconv.Itoa(y)); err != nil {
		return &ActionError{Op: "tap", Err: err}
	}
	a.logger.Debug("Tapped.", zap.Int("x", x), zap.Int("y", y))
	return settle(ctx, a.cfg.TapSettle)
}

// TypeText enters text into the focused field. ASCII goes through
// `input text`; anything else needs the ADBKeyboard IME broadcast.
func (a *ADB) TypeText(ctx context.Context, text string) error {
	var err error
	if isASCII(text) {
		_, err = a.run.Run(ctx, "shell", "input", "text", escapeInputText(text))
	} else {
		_, err = a.run.Run(ctx, "shell", "am", "broadcast", "-a", "ADB_INPUT_TEXT", "--es", "msg", quoteShell(text))
	}
	if err != nil {
		return &ActionError{Op: "type", Err: err}
	}
	a.logger.Debug("Typed text.", zap.Int("runes", len([]rune(text))))
	return settle(ctx, a.cfg.TypeSettle)
}

// LaunchByPackage starts the package's launcher activity.
func (a *ADB) LaunchByPackage(ctx context.Context, pkg string) error {
	out, err := a.run.Run(ctx, "shell", "monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1")
	if err != nil {
		return &ActionError{Op: "launch", Err: err}
	}
	if s := string(out); strings.Contains(s, "No activities found") || strings.Contains(s, "monkey aborted") {
		return &ActionError{Op: "launch", Err: fmt.Errorf("package %s has no launchable activity", pkg)}
	}
	a.logger.Debug("Launched package.", zap.String("package", pkg))
	return settle(ctx, a.cfg.LaunchSettle)
}

// Swipe drags from one point to another over d.
func (a *ADB) Swipe(ctx context.Context, from, to schemas.Point, d time.Duration) error {
	if !a.inBounds(from.X(), from.Y()) || !a.inBounds(to.X(), to.Y()) {
		return &ActionError{Op: "swipe", Err: fmt.Errorf("%s -> %s outside screen %dx%d", from, to, a.width, a.height)}
	}
	ms := d.Milliseconds()
	if ms <= 0 {
		ms = 300
	}
	_, err := a.run.Run(ctx, "shell", "input", "swipe",
		strconv.Itoa(from.X()), strconv.Itoa(from.Y()), strconv.Itoa(to.X()), strconv.Itoa(to.Y()),
		strconv.FormatInt(ms, 10))
	if err != nil {
		return &ActionError{Op: "swipe", Err: err}
	}
	return settle(ctx, a.cfg.SwipeSettle)
}

// Info reads brand, model and Android version from the system properties.
func (a *ADB) Info(ctx context.Context) (Info, error) {
	info := Info{Serial: a.serial, Width: a.width, Height: a.height}
	out, err := a.run.Run(ctx, "shell", "getprop")
	if err != nil {
		return info, &ActionError{Op: "getprop", Err: err}
	}
	props := parseGetprop(out)
	info.Brand = props["ro.product.brand"]
	info.Model = props["ro.product.model"]
	info.Release = props["ro.build.version.release"]
	info.SDK = props["ro.build.version.sdk"]
	return info, nil
}

func parseGetprop(out []byte) map[string]string {
	props := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if m := getpropRegex.FindStringSubmatch(strings.TrimSpace(sc.Text())); m != nil {
			props[m[1]] = m[2]
		}
	}
	return props
}

// CurrentPackage returns the package owning the focused window.
func (a *ADB) CurrentPackage(ctx context.Context) (string, error) {
	out, err := a.run.Run(ctx, "shell", "dumpsys", "window")
	if err != nil {
		return "", &ActionError{Op: "dumpsys", Err: err}
	}
	if m := focusRegex.FindSubmatch(out); m != nil {
		return string(m[1]), nil
	}
	return "", nil
}

// CleanApps force-stops the foreground app unless it is a launcher, then
// returns to the home screen.
func (a *ADB) CleanApps(ctx context.Context) error {
	pkg, err := a.CurrentPackage(ctx)
	if err != nil {
		return err
	}
	if pkg == "" {
		return nil
	}
	if _, ok := a.launchers[pkg]; ok {
		a.logger.Debug("Foreground app is a launcher, nothing to close.", zap.String("package", pkg))
		return nil
	}
	if _, err := a.run.Run(ctx, "shell", "am", "force-stop", pkg); err != nil {
		return &ActionError{Op: "force-stop", Err: err}
	}
	if _, err := a.run.Run(ctx, "shell", "input", "keyevent", "KEYCODE_HOME"); err != nil {
		return &ActionError{Op: "home", Err: err}
	}
	a.logger.Info("Closed foreground app.", zap.String("package", pkg))
	return nil
}

func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// escapeInputText prepares text for `input text`, which reads %s as a space
// and runs through the device shell.
func escapeInputText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == ' ':
			b.WriteString("%s")
		case strings.ContainsRune(shellMetaChars, r):
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// quoteShell single-quotes s for the device shell.
func quoteShell(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var (
	_ Describer = (*ADB)(nil)
	_ Cleaner   = (*ADB)(nil)
)
