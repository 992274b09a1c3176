package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"runtime/pprof"
	"strconv"
	"strings"

	"github.com/morezero/agent-command-receiver/pkg/command"
)

const threadDumpLogPrefix = "service:threaddump"

var goroutineHeader = regexp.MustCompile(`^goroutine (\d+) \[([^\]]*)\]:$`)

// ThreadDumpService answers THREAD_DUMP with the agent's goroutine stacks.
type ThreadDumpService struct {
	// Source returns a goroutine dump in the runtime's traceback format.
	// Nil means the live process dump from runtime/pprof.
	Source func() ([]byte, error)
}

// NewThreadDumpService returns a service that dumps the live process.
func NewThreadDumpService() *ThreadDumpService {
	return &ThreadDumpService{}
}

func (s *ThreadDumpService) Accepts() command.Type { return command.TypeThreadDump }

func (s *ThreadDumpService) Invoke(_ context.Context, msg command.Message) command.Message {
	req, ok := msg.(*command.ThreadDump)
	if !ok {
		return command.NewFailure(fmt.Sprintf("thread dump: unexpected message %T", msg))
	}

	source := s.Source
	if source == nil {
		source = liveGoroutineDump
	}
	raw, err := source()
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - goroutine dump failed: %v", threadDumpLogPrefix, err))
		return command.NewFailure(fmt.Sprintf("thread dump failed: %v", err))
	}

	threads := parseGoroutineDump(raw)
	selected := make([]command.ThreadInfo, 0, len(threads))
	for _, th := range threads {
		if matchThread(req, th) {
			selected = append(selected, th)
		}
	}
	slog.Debug(fmt.Sprintf("%s - dumped %d of %d goroutines", threadDumpLogPrefix, len(selected), len(threads)))
	return &command.ThreadDumpResponse{Threads: selected}
}

func liveGoroutineDump() ([]byte, error) {
	var buf bytes.Buffer
	if err := pprof.Lookup("goroutine").WriteTo(&buf, 2); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func matchThread(req *command.ThreadDump, th command.ThreadInfo) bool {
	switch req.Type {
	case command.ThreadDumpPending:
		return th.State != "running" && th.WaitMillis >= req.PendingTimeMillis
	default:
		if len(req.Name) == 0 {
			return true
		}
		for _, name := range req.Name {
			if name != "" && strings.Contains(th.Name, name) {
				return true
			}
		}
		return false
	}
}

// parseGoroutineDump parses the debug=2 goroutine profile: blank-line separated
// blocks, each a "goroutine N [state, M minutes]:" header followed by
// function/location line pairs and an optional "created by" pair.
func parseGoroutineDump(raw []byte) []command.ThreadInfo {
	var threads []command.ThreadInfo
	for _, block := range strings.Split(strings.TrimSpace(string(raw)), "\n\n") {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) == 0 {
			continue
		}
		m := goroutineHeader.FindStringSubmatch(strings.TrimSpace(lines[0]))
		if m == nil {
			continue
		}
		id, _ := strconv.ParseInt(m[1], 10, 64)
		th := command.ThreadInfo{ID: id}
		th.State, th.WaitMillis = parseGoroutineStatus(m[2])

		var creator, entry string
		for i := 1; i < len(lines); i++ {
			fn := strings.TrimSpace(lines[i])
			loc := ""
			if i+1 < len(lines) && strings.HasPrefix(lines[i+1], "\t") {
				loc = strings.TrimSpace(lines[i+1])
				i++
			}
			if strings.HasPrefix(fn, "created by ") {
				creator = functionName(strings.TrimPrefix(fn, "created by "))
				continue
			}
			entry = functionName(fn)
			if loc != "" {
				fn += " " + loc
			}
			th.Frames = append(th.Frames, fn)
		}
		th.Name = entry
		if creator != "" {
			th.Name = creator
		}
		threads = append(threads, th)
	}
	return threads
}

// parseGoroutineStatus splits "chan receive, 3 minutes, locked to thread".
func parseGoroutineStatus(status string) (string, int64) {
	parts := strings.Split(status, ", ")
	var wait int64
	for _, p := range parts[1:] {
		if n, ok := strings.CutSuffix(p, " minutes"); ok {
			if minutes, err := strconv.ParseInt(n, 10, 64); err == nil {
				wait = minutes * 60 * 1000
			}
		}
	}
	return parts[0], wait
}

// functionName strips arguments and the "in goroutine N" suffix from a frame line.
func functionName(frame string) string {
	if i := strings.Index(frame, " in goroutine "); i >= 0 {
		frame = frame[:i]
	}
	if i := strings.LastIndex(frame, "("); i > 0 && strings.HasSuffix(frame, ")") {
		frame = frame[:i]
	}
	return frame
}
