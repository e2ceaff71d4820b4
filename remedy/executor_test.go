package remedy

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/feed"
	"github.com/teranos/rpawatch/records"
)

// hub answers invocations the way the platform does
type hub struct {
	t         *testing.T
	in        chan []byte
	closed    chan struct{}
	once      sync.Once
	mu        sync.Mutex
	sent      []feed.Frame
	processes []map[string]interface{}
	robots    []map[string]interface{}
	files     []map[string]interface{}
	silentRun bool
}

func newHub(t *testing.T) *hub {
	return &hub{
		t:      t,
		in:     make(chan []byte, 16),
		closed: make(chan struct{}),
		processes: []map[string]interface{}{
			{"Id": "P-7", "Name": "Invoices"},
			{"Id": "P-8", "Name": "Payroll"},
		},
		robots: []map[string]interface{}{
			{"RobotName": "bot-01", "ClientId": 33},
			{"RobotName": "bot-03", "ClientId": 34},
		},
	}
}

func (h *hub) push(v interface{}) {
	b, err := json.Marshal(v)
	require.NoError(h.t, err)
	h.in <- append(b, feed.RecordSeparator)
}

func (h *hub) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-h.in:
		return 1, msg, nil
	case <-h.closed:
		return 0, nil, io.EOF
	}
}

func (h *hub) WriteMessage(_ int, data []byte) error {
	frames, _ := feed.SplitFrames(data)
	for _, f := range frames {
		if f.Type != feed.TypeInvocation {
			continue
		}
		h.mu.Lock()
		h.sent = append(h.sent, f)
		h.mu.Unlock()

		switch {
		case f.Is(feed.TargetViewNoPageProcess):
			h.push(map[string]interface{}{"type": 3, "invocationId": f.InvocationID, "result": h.processes})
		case f.Is(feed.TargetViewNoPageXamlPackageVersion):
			h.push(map[string]interface{}{"type": 3, "invocationId": f.InvocationID,
				"result": map[string]interface{}{"listOfFiles": h.files}})
		case f.Is(feed.TargetViewRobot):
			h.push(map[string]interface{}{"type": 3, "invocationId": f.InvocationID, "result": true})
			h.push(map[string]interface{}{"type": 1, "target": "viewRobot",
				"arguments": []interface{}{map[string]interface{}{"Data": h.robots}}})
		case f.Is(feed.TargetRunProcessExecution):
			if !h.silentRun {
				h.push(map[string]interface{}{"type": 3, "invocationId": f.InvocationID, "result": true})
			}
		}
	}
	return nil
}

func (h *hub) Close() error {
	h.once.Do(func() { close(h.closed) })
	return nil
}

func (h *hub) frames(target string) []feed.Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []feed.Frame
	for _, f := range h.sent {
		if f.Is(target) {
			out = append(out, f)
		}
	}
	return out
}

type hubDialer struct{ h *hub }

func (d hubDialer) Dial(context.Context, string) (feed.Conn, error) { return d.h, nil }

type staticAuth struct{}

func (staticAuth) Authenticate(context.Context) (feed.Credentials, error) {
	return feed.Credentials{URL: "ws://hub/test"}, nil
}

func decodeArgs(t *testing.T, f feed.Frame) []interface{} {
	t.Helper()
	out := make([]interface{}, 0, len(f.Arguments))
	for _, a := range f.Arguments {
		var v interface{}
		require.NoError(t, json.Unmarshal(a, &v))
		out = append(out, v)
	}
	return out
}

func faulted() *records.Execution {
	return &records.Execution{ExecutionID: "E1", Process: "Invoices", Robot: "bot-03", EntryFile: "Main.xaml"}
}

func TestRestart(t *testing.T) {
	h := newHub(t)
	ex := NewExecutor(staticAuth{}, hubDialer{h}, Config{Timeout: 2 * time.Second}, zaptest.NewLogger(t).Sugar())

	require.NoError(t, ex.Restart(context.Background(), faulted()))

	robots := h.frames(feed.TargetViewRobot)
	require.Len(t, robots, 1)
	assert.Equal(t, []interface{}{float64(0), float64(10), nil, "P-7"}, decodeArgs(t, robots[0]))

	pkgs := h.frames(feed.TargetViewNoPageXamlPackageVersion)
	require.Len(t, pkgs, 1)
	assert.Equal(t, []interface{}{"P-7", false}, decodeArgs(t, pkgs[0]))

	runs := h.frames(feed.TargetRunProcessExecution)
	require.Len(t, runs, 1)
	assert.Equal(t, "28", runs[0].InvocationID)
	args := decodeArgs(t, runs[0])
	require.Len(t, args, 8)
	assert.Equal(t, "P-7", args[0])
	assert.Equal(t, "Main.xaml", args[1])
	assert.Equal(t, false, args[2])
	assert.Equal(t, []interface{}{map[string]interface{}{"RobotName": "bot-03", "ClientId": float64(34)}}, args[3])
	assert.Equal(t, []interface{}{}, args[4])
}

func TestRestart_ViewExecutionAcknowledges(t *testing.T) {
	h := newHub(t)
	h.silentRun = true
	ex := NewExecutor(staticAuth{}, hubDialer{h}, Config{Timeout: 2 * time.Second}, zaptest.NewLogger(t).Sugar())

	go func() {
		for len(h.frames(feed.TargetRunProcessExecution)) == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		h.push(map[string]interface{}{"type": 1, "target": "viewExecution",
			"arguments": []interface{}{map[string]interface{}{"Data": []interface{}{}}}})
	}()

	require.NoError(t, ex.Restart(context.Background(), faulted()))
}

func TestRestart_EntryFileFromPackage(t *testing.T) {
	h := newHub(t)
	h.files = []map[string]interface{}{{"Name": "Start.xaml"}, {"Name": "Other.xaml"}}
	ex := NewExecutor(staticAuth{}, hubDialer{h}, Config{Timeout: 2 * time.Second}, zaptest.NewLogger(t).Sugar())

	exec := faulted()
	exec.EntryFile = ""
	require.NoError(t, ex.Restart(context.Background(), exec))

	runs := h.frames(feed.TargetRunProcessExecution)
	require.Len(t, runs, 1)
	assert.Equal(t, "Start.xaml", decodeArgs(t, runs[0])[1])
}

func TestRestart_ProcessNotFound(t *testing.T) {
	h := newHub(t)
	ex := NewExecutor(staticAuth{}, hubDialer{h}, Config{Timeout: 2 * time.Second}, zaptest.NewLogger(t).Sugar())

	exec := faulted()
	exec.Process = "Unknown"
	err := ex.Restart(context.Background(), exec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProcessNotFound))
	assert.Empty(t, h.frames(feed.TargetRunProcessExecution))
}

func TestRestart_RobotNotFound(t *testing.T) {
	h := newHub(t)
	ex := NewExecutor(staticAuth{}, hubDialer{h}, Config{Timeout: 2 * time.Second}, zaptest.NewLogger(t).Sugar())

	exec := faulted()
	exec.Robot = "bot-99"
	err := ex.Restart(context.Background(), exec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRobotNotFound))
	assert.Empty(t, h.frames(feed.TargetRunProcessExecution))
}

func TestRestart_Timeout(t *testing.T) {
	h := newHub(t)
	h.silentRun = true
	ex := NewExecutor(staticAuth{}, hubDialer{h}, Config{Timeout: 50 * time.Millisecond}, zaptest.NewLogger(t).Sugar())

	err := ex.Restart(context.Background(), faulted())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRestart_MissingFields(t *testing.T) {
	ex := NewExecutor(staticAuth{}, hubDialer{newHub(t)}, Config{}, nil)
	err := ex.Restart(context.Background(), &records.Execution{ExecutionID: "E1"})
	assert.True(t, errors.IsMissingPrerequisite(err))
}
