// Package proc provides target-process discovery and liveness checks.
package proc

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// Info describes a candidate target process.
type Info struct {
	PID     int32
	Name    string
	Cmdline string
}

// Alive reports whether a process with the given pid exists.
func Alive(pid int32) bool {
	exists, err := process.PidExists(pid)
	if err != nil {
		return false
	}
	return exists
}

// Describe returns name and command line for the given pid.
func Describe(pid int32) (Info, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return Info{}, fmt.Errorf("process %d not found: %w", pid, err)
	}

	info := Info{PID: pid}

	// Name and cmdline can fail independently (e.g. permission denied on
	// /proc/<pid>/cmdline); a partial description is still useful.
	if name, err := p.Name(); err == nil {
		info.Name = name
	}
	if cmdline, err := p.Cmdline(); err == nil {
		info.Cmdline = cmdline
	}

	return info, nil
}

// FindPython lists running processes that look like Python interpreters.
// Used by the `ps` command to help the operator pick a target pid.
func FindPython() ([]Info, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	var found []Info
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(name), "python") {
			continue
		}

		info := Info{PID: p.Pid, Name: name}
		if cmdline, err := p.Cmdline(); err == nil {
			info.Cmdline = cmdline
		}
		found = append(found, info)
	}

	return found, nil
}
