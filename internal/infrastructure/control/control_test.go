package control

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"desklink/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeHelper accepts helper-socket connections and records decoded
// commands.
type fakeHelper struct {
	listener net.Listener
	mu       sync.Mutex
	commands []agentCommand
}

func startFakeHelper(t *testing.T) (*fakeHelper, string) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "helper.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	h := &fakeHelper{listener: listener}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go h.serve(conn)
		}
	}()
	t.Cleanup(func() { listener.Close() })
	return h, socketPath
}

func (h *fakeHelper) serve(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var cmd agentCommand
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			continue
		}
		h.mu.Lock()
		h.commands = append(h.commands, cmd)
		h.mu.Unlock()
	}
}

func (h *fakeHelper) received() []agentCommand {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]agentCommand, len(h.commands))
	copy(out, h.commands)
	return out
}

func waitForCommands(t *testing.T, h *fakeHelper, n int) []agentCommand {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cmds := h.received(); len(cmds) >= n {
			return cmds
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("helper received %d commands, want %d", len(h.received()), n)
	return nil
}

func TestNativeAdapter_ForwardsCommands(t *testing.T) {
	helper, socketPath := startFakeHelper(t)
	adapter := NewNativeAdapter(socketPath, time.Second, zaptest.NewLogger(t).Sugar())
	defer adapter.Close()

	ctx := context.Background()
	require.NoError(t, adapter.PointerMove(ctx, 0.25, 0.75))
	require.NoError(t, adapter.PointerButton(ctx, 0.25, 0.75, domain.ButtonLeft, domain.PhaseDown))
	require.NoError(t, adapter.Scroll(ctx, 0, -3))
	require.NoError(t, adapter.Key(ctx, "a", "KeyA", domain.PhaseDown, []string{"ControlLeft"}))
	require.NoError(t, adapter.SetClipboard(ctx, "copied"))

	cmds := waitForCommands(t, helper, 5)
	assert.Equal(t, "pointer-move", cmds[0].Op)
	assert.Equal(t, 0.25, cmds[0].X)
	assert.Equal(t, "pointer-button", cmds[1].Op)
	assert.Equal(t, "left", cmds[1].Button)
	assert.Equal(t, "down", cmds[1].Phase)
	assert.Equal(t, "scroll", cmds[2].Op)
	assert.Equal(t, -3.0, cmds[2].DY)
	assert.Equal(t, "key", cmds[3].Op)
	assert.Equal(t, []string{"ControlLeft"}, cmds[3].Modifiers)
	assert.Equal(t, "clipboard", cmds[4].Op)
	assert.Equal(t, "copied", cmds[4].Content)
}

func TestNativeAdapter_UnreachableHelperDropsSilently(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "absent.sock")
	adapter := NewNativeAdapter(socketPath, 50*time.Millisecond, zaptest.NewLogger(t).Sugar())
	defer adapter.Close()

	// Events on a dead socket drop without surfacing an error.
	assert.NoError(t, adapter.PointerMove(context.Background(), 0.5, 0.5))
	assert.NoError(t, adapter.SetClipboard(context.Background(), "lost"))
}

func TestProbe(t *testing.T) {
	_, socketPath := startFakeHelper(t)
	assert.NoError(t, Probe(socketPath, time.Second))

	absent := filepath.Join(t.TempDir(), "absent.sock")
	assert.Error(t, Probe(absent, 50*time.Millisecond))
}

func TestSelect_FallsBackToEmulated(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()

	absent := filepath.Join(t.TempDir(), "absent.sock")
	injector := Select(absent, 50*time.Millisecond, logger)
	assert.Equal(t, "emulated", injector.Name())

	injector = Select("", 50*time.Millisecond, logger)
	assert.Equal(t, "emulated", injector.Name())

	_, socketPath := startFakeHelper(t)
	injector = Select(socketPath, time.Second, logger)
	assert.Equal(t, "native", injector.Name())
	injector.Close()
}

func TestEmulatedAdapter_TracksVirtualState(t *testing.T) {
	adapter := NewEmulatedAdapter(zaptest.NewLogger(t).Sugar())
	defer adapter.Close()

	var mu sync.Mutex
	var events []EmulatedEvent
	adapter.SetListener(func(ev EmulatedEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	ctx := context.Background()
	require.NoError(t, adapter.PointerMove(ctx, 0.1, 0.9))
	require.NoError(t, adapter.PointerButton(ctx, 0.1, 0.9, domain.ButtonRight, domain.PhaseDown))
	require.NoError(t, adapter.Key(ctx, "Shift", "ShiftLeft", domain.PhaseDown, nil))
	require.NoError(t, adapter.SetClipboard(ctx, "hello"))

	pointer := adapter.Pointer()
	assert.Equal(t, 0.1, pointer.X)
	assert.Equal(t, 0.9, pointer.Y)
	assert.True(t, pointer.ButtonsDown[domain.ButtonRight])
	assert.Equal(t, []string{"ShiftLeft"}, adapter.ModifiersDown())
	assert.Equal(t, "hello", adapter.Clipboard())

	require.NoError(t, adapter.PointerButton(ctx, 0.1, 0.9, domain.ButtonRight, domain.PhaseUp))
	require.NoError(t, adapter.Key(ctx, "Shift", "ShiftLeft", domain.PhaseUp, nil))
	assert.False(t, adapter.Pointer().ButtonsDown[domain.ButtonRight])
	assert.Empty(t, adapter.ModifiersDown())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 6)
	assert.Equal(t, "pointer-move", events[0].Kind)
	assert.Equal(t, "clipboard", events[3].Kind)
}

func TestSelector_ReprobePromotesNative(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	socketPath := filepath.Join(t.TempDir(), "late.sock")

	selector := NewSelector(socketPath, 50*time.Millisecond, logger)
	defer selector.Close()
	assert.Equal(t, "emulated", selector.ActiveAdapter())

	// The helper comes up after the agent started.
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	helper := &fakeHelper{listener: listener}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go helper.serve(conn)
		}
	}()
	t.Cleanup(func() { listener.Close() })

	name, err := selector.Reprobe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "native", name)
	assert.Equal(t, "native", selector.ActiveAdapter())

	require.NoError(t, selector.PointerMove(context.Background(), 0.5, 0.5))
	cmds := waitForCommands(t, helper, 1)
	assert.Equal(t, "pointer-move", cmds[0].Op)
}

func TestSelector_ReprobeSameBackendKeepsAdapter(t *testing.T) {
	selector := NewSelector("", 50*time.Millisecond, zaptest.NewLogger(t).Sugar())
	defer selector.Close()

	name, err := selector.Reprobe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "emulated", name)
}
