package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// PathFilter decides whether a file path is of interest. A nil filter
// accepts every path.
type PathFilter func(path string) bool

// fieldCount is the number of tab separated columns in a trace record:
// caller_file, caller_func_line, caller_func_name, call_line,
// callee_file, callee_func_line, callee_func_name
const fieldCount = 7

// Parse reads a call trace.
//
// Format, one record per line, tab separated:
//
//	caller_file  caller_func_line  caller_func_name  call_line  callee_file  callee_func_line  callee_func_name
//
// Blank lines and lines starting with '#' are ignored. Records whose caller
// fails callerFilter or whose callee fails calleeFilter are skipped.
func Parse(r io.Reader, callerFilter, calleeFilter PathFilter) ([]RawCall, error) {
	var calls []RawCall

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")

		if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}

		call, err := parseRecord(line)
		if err != nil {
			return nil, fmt.Errorf("trace line %d: %w", lineNo, err)
		}

		if callerFilter != nil && !callerFilter(call.CallerFile) {
			continue
		}
		if calleeFilter != nil && !calleeFilter(call.CalleeFile) {
			continue
		}

		calls = append(calls, call)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return calls, nil
}

// ParseFile parses the trace stored at path
func ParseFile(path string, callerFilter, calleeFilter PathFilter) ([]RawCall, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	return Parse(file, callerFilter, calleeFilter)
}

func parseRecord(line string) (RawCall, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != fieldCount {
		return RawCall{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedRawCall, fieldCount, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	ints := make([]int, 0, 3)
	for _, idx := range []int{1, 3, 5} {
		n, err := strconv.Atoi(fields[idx])
		if err != nil {
			return RawCall{}, fmt.Errorf("%w: field %d is not a line number: %q", ErrMalformedRawCall, idx+1, fields[idx])
		}
		ints = append(ints, n)
	}

	call := RawCall{
		CallerFile:     fields[0],
		CallerFuncLine: ints[0],
		CallerFuncName: fields[2],
		CallLine:       ints[1],
		CalleeFile:     fields[4],
		CalleeFuncLine: ints[2],
		CalleeFuncName: fields[6],
	}
	if err := call.Validate(); err != nil {
		return RawCall{}, err
	}
	return call, nil
}
