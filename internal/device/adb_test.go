// File: internal/device/adb_test.go
package device

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

// fakeRunner answers adb invocations from a table keyed by the joined args.
type fakeRunner struct {
	mu        sync.Mutex
	responses map[string][]byte
	failures  map[string]error
	calls     []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{responses: map[string][]byte{}, failures: map[string]error{}}
}

func (f *fakeRunner) on(cmd string, out string) *fakeRunner {
	f.responses[cmd] = []byte(out)
	return f
}

func (f *fakeRunner) fail(cmd string, err error) *fakeRunner {
	f.failures[cmd] = err
	return f
}

func (f *fakeRunner) Run(_ context.Context, args ...string) ([]byte, error) {
	key := strings.Join(args, " ")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	if err, ok := f.failures[key]; ok {
		return nil, err
	}
	return f.responses[key], nil
}

func (f *fakeRunner) called(cmd string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == cmd {
			return true
		}
	}
	return false
}

func testDeviceConfig() config.DeviceConfig {
	return config.DeviceConfig{
		ScreenWidth:      1080,
		ScreenHeight:     2400,
		LauncherPackages: []string{"com.miui.home"},
	}
}

func newTestADB(t *testing.T, run *fakeRunner) *ADB {
	t.Helper()
	a, err := NewADBWithRunner(context.Background(), run, "emulator-5554", testDeviceConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return a
}

const sampleDump = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?><hierarchy rotation="0"><node text="搜索" clickable="true" bounds="[0,0][100,100]"/></hierarchy>`

func TestNewADBWithRunner(t *testing.T) {
	t.Run("should prefer the override size", func(t *testing.T) {
		run := newFakeRunner().on("shell wm size", "Physical size: 1080x2400\nOverride size: 720x1600\n")
		w, h := newTestADB(t, run).ScreenSize()
		assert.Equal(t, 720, w)
		assert.Equal(t, 1600, h)
	})

	t.Run("should keep the configured size when wm fails", func(t *testing.T) {
		run := newFakeRunner().fail("shell wm size", errors.New("closed"))
		w, h := newTestADB(t, run).ScreenSize()
		assert.Equal(t, 1080, w)
		assert.Equal(t, 2400, h)
	})
}

func TestPickDevice(t *testing.T) {
	serial, err := pickDevice([]byte("List of devices attached\nemulator-5554\tdevice\n\n"))
	require.NoError(t, err)
	assert.Equal(t, "emulator-5554", serial)

	_, err = pickDevice([]byte("List of devices attached\nabc\tunauthorized\n"))
	assert.ErrorContains(t, err, "no device attached")

	_, err = pickDevice([]byte("List of devices attached\na\tdevice\nb\tdevice\n"))
	assert.ErrorContains(t, err, "set device.serial")
}

func TestCapture(t *testing.T) {
	t.Run("should return the parsed hierarchy and screenshot", func(t *testing.T) {
		run := newFakeRunner().
			on("shell wm size", "Physical size: 1080x2400").
			on("exec-out screencap -p", "PNGDATA").
			on("exec-out cat "+remoteDumpPath, sampleDump)

		got, err := newTestADB(t, run).Capture(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []byte("PNGDATA"), got.Screenshot)
		assert.Equal(t, 1, got.Snapshot.Len())
		assert.Equal(t, 1080, got.Snapshot.Width())
		assert.True(t, run.called("shell uiautomator dump "+remoteDumpPath))
	})

	t.Run("should tolerate a failed screenshot", func(t *testing.T) {
		run := newFakeRunner().
			fail("exec-out screencap -p", errors.New("secure window")).
			on("exec-out cat "+remoteDumpPath, sampleDump)

		got, err := newTestADB(t, run).Capture(context.Background())
		require.NoError(t, err)
		assert.Empty(t, got.Screenshot)
		assert.Equal(t, 1, got.Snapshot.Len())
	})

	t.Run("should fail when the dump fails", func(t *testing.T) {
		run := newFakeRunner().fail("shell uiautomator dump "+remoteDumpPath, errors.New("device offline"))

		_, err := newTestADB(t, run).Capture(context.Background())
		var aerr *ActionError
		require.True(t, errors.As(err, &aerr))
		assert.Equal(t, "capture", aerr.Op)
		assert.ErrorContains(t, err, "device offline")
	})
}

func TestActions(t *testing.T) {
	ctx := context.Background()

	t.Run("should tap inside the screen", func(t *testing.T) {
		run := newFakeRunner()
		require.NoError(t, newTestADB(t, run).Tap(ctx, 540, 960))
		assert.True(t, run.called("shell input tap 540 960"))
	})

	t.Run("should refuse an off-screen tap", func(t *testing.T) {
		run := newFakeRunner()
		err := newTestADB(t, run).Tap(ctx, 2000, 960)
		assert.ErrorContains(t, err, "outside screen")
		assert.False(t, run.called("shell input tap 2000 960"))
	})

	t.Run("should escape ascii text", func(t *testing.T) {
		run := newFakeRunner()
		require.NoError(t, newTestADB(t, run).TypeText(ctx, "pizza & (fries)"))
		assert.True(t, run.called(`shell input text pizza%s\&%s\(fries\)`))
	})

	t.Run("should broadcast non-ascii text", func(t *testing.T) {
		run := newFakeRunner()
		require.NoError(t, newTestADB(t, run).TypeText(ctx, "麦当劳's"))
		assert.True(t, run.called(`shell am broadcast -a ADB_INPUT_TEXT --es msg '麦当劳'\''s'`))
	})

	t.Run("should detect a package without activities", func(t *testing.T) {
		run := newFakeRunner().on("shell monkey -p com.none.app -c android.intent.category.LAUNCHER 1", "** No activities found to run, monkey aborted.")
		err := newTestADB(t, run).LaunchByPackage(ctx, "com.none.app")
		assert.ErrorContains(t, err, "no launchable activity")
	})

	t.Run("should launch a package", func(t *testing.T) {
		run := newFakeRunner().on("shell monkey -p me.ele -c android.intent.category.LAUNCHER 1", "Events injected: 1")
		assert.NoError(t, newTestADB(t, run).LaunchByPackage(ctx, "me.ele"))
	})

	t.Run("should swipe with a default duration", func(t *testing.T) {
		run := newFakeRunner()
		require.NoError(t, newTestADB(t, run).Swipe(ctx, schemas.Point{540, 1800}, schemas.Point{540, 600}, 0))
		assert.True(t, run.called("shell input swipe 540 1800 540 600 300"))
	})

	t.Run("should honour cancellation while settling", func(t *testing.T) {
		run := newFakeRunner()
		a := newTestADB(t, run)
		a.cfg.TapSettle = time.Hour
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, a.Tap(cctx, 1, 1), context.Canceled)
	})
}

func TestInfoAndCleanup(t *testing.T) {
	ctx := context.Background()

	t.Run("should read device properties", func(t *testing.T) {
		run := newFakeRunner().on("shell getprop", "[ro.product.brand]: [Xiaomi]\n[ro.product.model]: [23049RAD8C]\n[ro.build.version.release]: [14]\n[ro.build.version.sdk]: [34]\n")
		info, err := newTestADB(t, run).Info(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Xiaomi 23049RAD8C", info.Phone())
		assert.Equal(t, "Android 14", info.OS())
		assert.Equal(t, "34", info.SDK)
		assert.Equal(t, "emulator-5554", info.Serial)
	})

	t.Run("should force-stop a foreground app", func(t *testing.T) {
		run := newFakeRunner().on("shell dumpsys window", "  mCurrentFocus=Window{8c1d2e u0 me.ele/me.ele.Launcher}\n")
		require.NoError(t, newTestADB(t, run).CleanApps(ctx))
		assert.True(t, run.called("shell am force-stop me.ele"))
		assert.True(t, run.called("shell input keyevent KEYCODE_HOME"))
	})

	t.Run("should leave the launcher alone", func(t *testing.T) {
		run := newFakeRunner().on("shell dumpsys window", "mCurrentFocus=Window{1 u0 com.miui.home/com.miui.home.launcher.Launcher}")
		require.NoError(t, newTestADB(t, run).CleanApps(ctx))
		assert.False(t, run.called("shell am force-stop com.miui.home"))
	})
}

func TestDeviceInfoLabels(t *testing.T) {
	assert.Equal(t, "", Info{}.Phone())
	assert.Equal(t, "Pixel 8", Info{Model: "Pixel 8"}.Phone())
	assert.Equal(t, "", Info{}.OS())
}
