package errors

import (
	stderrors "errors"
	"runtime"
	"strings"
)

const (
	modulePrefix = "github.com/tphakala/audio-annotator/"
	ownPackage   = modulePrefix + "internal/errors"
)

// componentAliases renames packages whose name differs from the component
// used in logs and reports
var componentAliases = map[string]string{
	"conf": "configuration",
	"v2":   "api",
}

// callerComponent names the first package of this module on the call stack
// outside of this package
func callerComponent() string {
	pcs := make([]uintptr, 24)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if name := componentOf(frame.Function); name != "" {
			return name
		}
		if !more {
			return ComponentUnknown
		}
	}
}

// componentOf maps a fully qualified function name to a component name
func componentOf(function string) string {
	if !strings.HasPrefix(function, modulePrefix) || strings.HasPrefix(function, ownPackage) {
		return ""
	}
	path := strings.TrimPrefix(function, modulePrefix)
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	if i := strings.Index(path, "."); i >= 0 {
		path = path[:i]
	}
	if alias, ok := componentAliases[path]; ok {
		return alias
	}
	return path
}

// detectCategory infers a category from the error chain, its message or the
// component that raised it
func detectCategory(err error, component string) ErrorCategory {
	var categorized CategorizedError
	if stderrors.As(err, &categorized) {
		return categorized.ErrorCategory()
	}
	var ee *EnhancedError
	if stderrors.As(err, &ee) && ee.Category != "" {
		return ee.Category
	}

	if err != nil {
		msg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(msg, "not found"), strings.Contains(msg, "unknown"):
			return CategoryNotFound
		case strings.Contains(msg, "connection"), strings.Contains(msg, "timeout"):
			return CategoryNetwork
		case strings.Contains(msg, "invalid"), strings.Contains(msg, "validation"):
			return CategoryValidation
		}
	}

	switch component {
	case "taxonomy":
		return CategoryTaxonomy
	case "registry":
		return CategoryHydration
	case "session":
		return CategoryState
	case "datastore":
		return CategoryDatabase
	case "remote", "api":
		return CategoryHTTP
	default:
		return CategoryGeneric
	}
}
