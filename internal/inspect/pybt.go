package inspect

import (
	"regexp"
	"strings"
)

// framePattern matches one frame line of py-bt output, e.g.
//
//	File "/app/worker.py", line 42, in heavy_computation
//
// Group 2 is the function name.
var framePattern = regexp.MustCompile(`^\s*File "([^"]+)", line \d+, in (.+)$`)

// ParseBacktrace extracts function names from py-bt output, outermost frame
// first. Lines that are not frame lines (lldb chatter, thread headers) are
// ignored.
func ParseBacktrace(output string) []string {
	var frames []string
	for _, line := range strings.Split(output, "\n") {
		m := framePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		frames = append(frames, strings.TrimSpace(m[2]))
	}
	return frames
}

// presentNames intersects the stack frames with the requested names.
// A name counts as present when it appears anywhere on the stack.
func presentNames(frames []string, names []string) map[string]struct{} {
	onStack := make(map[string]struct{}, len(frames))
	for _, f := range frames {
		onStack[f] = struct{}{}
	}

	present := make(map[string]struct{})
	for _, name := range names {
		if _, ok := onStack[name]; ok {
			present[name] = struct{}{}
		}
	}
	return present
}
