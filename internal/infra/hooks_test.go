package infra

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/attnmon/internal/domain"
	"github.com/eliteGoblin/focusd/attnmon/internal/eventbus"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("hook tests use sh")
	}
}

func TestNewHookRunner_Validation(t *testing.T) {
	_, err := NewHookRunner([]Hook{{Event: "tab", Command: []string{"true"}}}, nil)
	assert.Error(t, err)

	_, err = NewHookRunner([]Hook{{Event: HookWindow}}, nil)
	assert.Error(t, err)

	r, err := NewHookRunner(nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, r.WindowSubscriber())
	assert.NotNil(t, r.EyeSubscriber())
}

func TestHookRunner_WindowHookReceivesEnvironment(t *testing.T) {
	skipWithoutShell(t)
	out := filepath.Join(t.TempDir(), "env.txt")

	r, err := NewHookRunner([]Hook{{
		Event:   HookWindow,
		State:   "blacklisted",
		Command: []string{"sh", "-c", `echo "$ATTNMON_PREVIOUS>$ATTNMON_CURRENT:$ATTNMON_TITLE" > "$0"`, out},
	}}, zap.NewNop())
	require.NoError(t, err)

	bus := eventbus.New[domain.WindowEvent]("window", nil)
	bus.Subscribe(r.WindowSubscriber())

	bus.Publish(domain.WindowEvent{
		Previous: domain.LabelWhitelisted,
		Current:  domain.LabelBlacklisted,
		Title:    "reddit",
		At:       time.Now(),
	})
	r.Wait()

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "whitelisted>blacklisted:reddit", strings.TrimSpace(string(data)))
}

func TestHookRunner_StateFilter(t *testing.T) {
	skipWithoutShell(t)
	out := filepath.Join(t.TempDir(), "closed.txt")

	r, err := NewHookRunner([]Hook{{
		Event:   HookEye,
		State:   "closed",
		Command: []string{"sh", "-c", `echo "$ATTNMON_EYES_CLOSED" >> "$0"`, out},
	}}, nil)
	require.NoError(t, err)

	require.NoError(t, r.EyeSubscriber().HandleEvent(domain.EyeEvent{Closed: false}))
	r.Wait()
	_, err = os.Stat(out)
	assert.True(t, os.IsNotExist(err), "open transition must not fire a closed hook")

	require.NoError(t, r.EyeSubscriber().HandleEvent(domain.EyeEvent{Closed: true}))
	r.Wait()
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "true", strings.TrimSpace(string(data)))
}

func TestHookRunner_StartFailureIsReported(t *testing.T) {
	r, err := NewHookRunner([]Hook{{
		Event:   HookWindow,
		Command: []string{filepath.Join(t.TempDir(), "does-not-exist")},
	}}, nil)
	require.NoError(t, err)

	err = r.WindowSubscriber().HandleEvent(domain.WindowEvent{Current: domain.LabelBlacklisted})

	assert.Error(t, err)
}

func TestHookRunner_ShutdownKillsLongRunningHook(t *testing.T) {
	skipWithoutShell(t)
	r, err := NewHookRunner([]Hook{{
		Event:   HookEye,
		Command: []string{"sh", "-c", "exec sleep 30"},
	}}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, r.EyeSubscriber().HandleEvent(domain.EyeEvent{Closed: true, At: time.Now()}))

	start := time.Now()
	r.Shutdown(100 * time.Millisecond)

	assert.Less(t, time.Since(start), 5*time.Second)
	r.mu.Lock()
	assert.Empty(t, r.running)
	r.mu.Unlock()
}

func TestHookRunner_ShutdownReturnsWhenHooksFinish(t *testing.T) {
	skipWithoutShell(t)
	r, err := NewHookRunner([]Hook{{
		Event:   HookEye,
		Command: []string{"true"},
	}}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, r.EyeSubscriber().HandleEvent(domain.EyeEvent{Closed: false, At: time.Now()}))

	start := time.Now()
	r.Shutdown(10 * time.Second)

	assert.Less(t, time.Since(start), 5*time.Second)
}
