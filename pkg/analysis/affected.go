package analysis

import (
	"path"
	"sort"
	"strings"

	"github.com/ritzau/migration-graph/pkg/graph"
)

// AffectedFunction is a caller function that reaches the tracked library
type AffectedFunction struct {
	Key           string   `json:"key"`
	QualifiedName string   `json:"qualifiedName"`
	Line          int      `json:"line"`
	Direct        bool     `json:"direct"`  // calls the library itself
	Reaches       []string `json:"reaches"` // library function keys, sorted
}

// AffectedFile groups the affected functions of one caller file
type AffectedFile struct {
	File      string             `json:"file"`   // relative to the caller root, e.g. "app/views.py"
	Module    string             `json:"module"` // e.g. "app.views"
	Direct    bool               `json:"direct"`
	Functions []AffectedFunction `json:"functions"`
}

// CallSite is a direct call from caller code into the library
type CallSite struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Caller string `json:"caller"`
	Callee string `json:"callee"`
}

// LibraryUsage counts the caller functions using one library function
type LibraryUsage struct {
	Key           string `json:"key"`
	File          string `json:"file"`
	QualifiedName string `json:"qualifiedName"`
	DirectCallers int    `json:"directCallers"`
	AllCallers    int    `json:"allCallers"`
}

// FindAffectedFiles returns the caller files holding at least one function
// that reaches the library directly or through other caller functions.
// Files are sorted by path and functions by line.
func FindAffectedFiles(g *graph.CallGraph) []AffectedFile {
	byFile := make(map[string]*AffectedFile)

	for _, fn := range g.Functions() {
		if !fn.Owner.IsCaller() {
			continue
		}

		var reaches []string
		direct := false
		for _, callee := range fn.AllCallees().Sorted() {
			if !callee.Owner.IsLibrary() {
				continue
			}
			reaches = append(reaches, callee.Key())
			if fn.DirectCallees().Has(callee) {
				direct = true
			}
		}
		if len(reaches) == 0 {
			continue
		}

		file, ok := byFile[fn.File]
		if !ok {
			file = &AffectedFile{File: fn.File, Module: fileToModule(fn.File)}
			byFile[fn.File] = file
		}
		file.Direct = file.Direct || direct
		file.Functions = append(file.Functions, AffectedFunction{
			Key:           fn.Key(),
			QualifiedName: fn.QualifiedName,
			Line:          fn.Line,
			Direct:        direct,
			Reaches:       reaches,
		})
	}

	files := make([]AffectedFile, 0, len(byFile))
	for _, file := range byFile {
		sort.Slice(file.Functions, func(i, j int) bool {
			a, b := file.Functions[i], file.Functions[j]
			if a.Line != b.Line {
				return a.Line < b.Line
			}
			return a.Key < b.Key
		})
		files = append(files, *file)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].File < files[j].File })
	return files
}

// FindCallSites lists every direct caller->library call with its line,
// sorted by file and line
func FindCallSites(g *graph.CallGraph) []CallSite {
	var sites []CallSite
	for _, call := range g.DirectCalls() {
		if !call.Caller.Owner.IsCaller() || !call.Callee.Owner.IsLibrary() {
			continue
		}
		sites = append(sites, CallSite{
			File:   call.Caller.File,
			Line:   call.Line,
			Caller: call.Caller.QualifiedName,
			Callee: call.Callee.QualifiedName,
		})
	}

	sort.Slice(sites, func(i, j int) bool {
		if sites[i].File != sites[j].File {
			return sites[i].File < sites[j].File
		}
		if sites[i].Line != sites[j].Line {
			return sites[i].Line < sites[j].Line
		}
		return sites[i].Callee < sites[j].Callee
	})
	return sites
}

// LibrarySurface returns the library functions reached from caller code,
// most widely used first
func LibrarySurface(g *graph.CallGraph) []LibraryUsage {
	var usage []LibraryUsage
	for _, fn := range g.Functions() {
		if !fn.Owner.IsLibrary() {
			continue
		}
		u := LibraryUsage{
			Key:           fn.Key(),
			File:          fn.File,
			QualifiedName: fn.QualifiedName,
			DirectCallers: countCallers(fn.DirectCallers()),
			AllCallers:    countCallers(fn.AllCallers()),
		}
		if u.AllCallers > 0 {
			usage = append(usage, u)
		}
	}

	sort.Slice(usage, func(i, j int) bool {
		if usage[i].AllCallers != usage[j].AllCallers {
			return usage[i].AllCallers > usage[j].AllCallers
		}
		return usage[i].Key < usage[j].Key
	})
	return usage
}

func countCallers(set graph.FunctionSet) int {
	n := 0
	for _, fn := range set {
		if fn.Owner.IsCaller() {
			n++
		}
	}
	return n
}

// fileToModule converts a file path to its Python module name
// e.g. "app/views.py" -> "app.views"
// e.g. "app/__init__.py" -> "app"
func fileToModule(file string) string {
	file = strings.TrimSuffix(path.Clean(file), ".py")
	file = strings.TrimSuffix(file, "/__init__")
	return strings.ReplaceAll(strings.TrimPrefix(file, "/"), "/", ".")
}
