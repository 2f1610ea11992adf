package output

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/ritzau/migration-graph/pkg/analysis"
	"github.com/ritzau/migration-graph/pkg/storage"
)

// PrintMigrationReport prints the files and call sites that must change
// when library is replaced
func PrintMigrationReport(w io.Writer, library string, result *analysis.Result) {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	bold.Fprintf(w, "Migration Report - %s\n", library)
	bold.Fprintln(w, "==============================")
	fmt.Fprintf(w, "Trace records: %d (%d outside tracked code)\n", result.Stats.Records, result.Stats.Discarded)
	fmt.Fprintf(w, "Functions: %d, direct calls: %d, transitive calls: %d\n",
		result.Stats.Functions, result.Stats.DirectCalls, result.Stats.TransitiveCalls)
	if len(result.Sources) > 0 {
		fmt.Fprintf(w, "Trace coverage: %.1f%% of %d caller file(s)\n", result.Coverage(), len(result.Sources))
	}
	fmt.Fprintln(w)

	if len(result.Untraced) > 0 {
		yellow.Fprintf(w, "UNTRACED FILES (%d):\n", len(result.Untraced))
		for _, file := range result.Untraced {
			fmt.Fprintf(w, "  %s\n", file)
		}
		fmt.Fprintln(w)
	}

	if len(result.Affected) == 0 {
		green.Fprintf(w, "✓ No caller code reaches %s\n", library)
		return
	}

	direct := 0
	for _, f := range result.Affected {
		if f.Direct {
			direct++
		}
	}

	red.Fprintln(w, "AFFECTED FILES:")
	for _, f := range result.Affected {
		marker := yellow
		kind := "indirect"
		if f.Direct {
			marker = red
			kind = "direct"
		}
		marker.Fprintf(w, "  %s", f.File)
		fmt.Fprintf(w, " (%s)\n", kind)
		for _, fn := range f.Functions {
			cyan.Fprintf(w, "    %s:%d", fn.QualifiedName, fn.Line)
			fmt.Fprintf(w, " reaches %d library function(s)\n", len(fn.Reaches))
		}
	}
	fmt.Fprintln(w)

	if len(result.CallSites) > 0 {
		red.Fprintln(w, "CALL SITES TO REWRITE:")
		for _, site := range result.CallSites {
			fmt.Fprintf(w, "  %s:%d  %s -> %s\n", site.File, site.Line, site.Caller, site.Callee)
		}
		fmt.Fprintln(w)
	}

	if len(result.Surface) > 0 {
		bold.Fprintln(w, "LIBRARY SURFACE IN USE:")
		for _, u := range result.Surface {
			fmt.Fprintf(w, "  %-40s %d caller(s), %d direct\n", u.QualifiedName, u.AllCallers, u.DirectCallers)
		}
		fmt.Fprintln(w)
	}

	if len(result.Cycles) > 0 {
		yellow.Fprintf(w, "Recursive call groups: %d\n", len(result.Cycles))
		for _, c := range result.Cycles {
			fmt.Fprintf(w, "  %v\n", c.Keys)
		}
		fmt.Fprintln(w)
	}

	yellow.Fprintf(w, "Summary: %d file(s) affected, %d call the library directly\n", len(result.Affected), direct)
}

// PrintFunctionQuery prints a stored function with its callers and callees
func PrintFunctionQuery(w io.Writer, n *storage.Neighborhood) {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)

	bold.Fprintf(w, "%s\n", n.Function.Key)
	fmt.Fprintf(w, "  %s:%d (%s)\n", n.Function.File, n.Function.Line, n.Function.Owner)
	fmt.Fprintln(w)

	list := func(title string, fns []*storage.Function) {
		bold.Fprintf(w, "%s (%d, %s calls):\n", title, len(fns), n.Kind)
		if len(fns) == 0 {
			fmt.Fprintln(w, "  none")
		}
		for _, fn := range fns {
			cyan.Fprintf(w, "  %s", fn.QualifiedName)
			fmt.Fprintf(w, "  %s:%d (%s)\n", fn.File, fn.Line, fn.Owner)
		}
	}
	list("CALLERS", n.Callers)
	fmt.Fprintln(w)
	list("CALLEES", n.Callees)
}
