package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter receives every error built while it is enabled
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

var (
	reporterMu         sync.RWMutex
	activeReporter     TelemetryReporter
	hasActiveReporting atomic.Bool
)

// SetTelemetryReporter installs reporter; nil turns reporting off
func SetTelemetryReporter(reporter TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	activeReporter = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

// GetTelemetryReporter returns the installed reporter, possibly nil
func GetTelemetryReporter() TelemetryReporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return activeReporter
}

func reportToTelemetry(ee *EnhancedError) {
	if r := GetTelemetryReporter(); r != nil && r.IsEnabled() {
		r.ReportError(ee)
	}
}

// SentryReporter sends errors to Sentry after scrubbing URLs and secrets
type SentryReporter struct {
	enabled bool
}

func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

func (sr *SentryReporter) IsEnabled() bool { return sr.enabled }

// ReportError captures ee once. Tags carry the component, category and
// wrapped error type; string context values are scrubbed.
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}

	component := ee.GetComponent()
	title := errorTitle(ee)
	message := scrub(fmt.Sprintf("[%s] %s", ee.Category, ee.GetMessage()))
	level := levelFor(ee.Category)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))
		scope.SetTag("error_title", title)
		if ee.Priority != "" {
			scope.SetTag("priority", ee.Priority)
		}
		for k, v := range ee.GetContext() {
			if s, ok := v.(string); ok {
				v = scrub(s)
			}
			scope.SetContext(k, map[string]any{"value": v})
		}
		scope.SetLevel(level)
		scope.SetFingerprint([]string{title, component, string(ee.Category)})

		event := sentry.NewEvent()
		event.Level = level
		event.Message = message
		event.Exception = []sentry.Exception{{Type: title, Value: message}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

var categoryTitles = map[ErrorCategory]string{
	CategoryValidation:     "Validation Error",
	CategoryNotFound:       "Not Found",
	CategoryState:          "State Error",
	CategoryHydration:      "Hydration Error",
	CategoryTaxonomy:       "Taxonomy Error",
	CategoryNetwork:        "Network Error",
	CategoryHTTP:           "HTTP Error",
	CategoryDatabase:       "Database Error",
	CategoryConfiguration:  "Configuration Error",
	CategoryMQTTConnection: "MQTT Error",
	CategoryMQTTPublish:    "MQTT Error",
}

// errorTitle builds the issue title from component, category and the
// "operation" context value, for example "Remote Network Error Delete Annotation"
func errorTitle(ee *EnhancedError) string {
	var parts []string
	if c := ee.GetComponent(); c != ComponentUnknown {
		parts = append(parts, capitalize(c))
	}
	if t, ok := categoryTitles[ee.Category]; ok {
		parts = append(parts, t)
	} else if ee.Category != "" {
		parts = append(parts, string(ee.Category))
	}
	if op, ok := ee.GetContext()["operation"].(string); ok && op != "" {
		for w := range strings.FieldsFuncSeq(op, func(r rune) bool { return r == '_' || r == '-' || r == ' ' }) {
			parts = append(parts, capitalize(w))
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%T", ee.Err)
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func levelFor(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryValidation, CategoryNotFound, CategoryState:
		return sentry.LevelInfo
	case CategoryNetwork, CategoryHTTP, CategoryMQTTConnection, CategoryMQTTPublish, CategoryHydration:
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}

// Scrubber replaces the default message scrubbing
type Scrubber func(string) string

var customScrubber Scrubber

// SetPrivacyScrubber installs fn as the message scrubber
func SetPrivacyScrubber(fn Scrubber) {
	customScrubber = fn
}

func scrub(message string) string {
	if customScrubber != nil {
		return customScrubber(message)
	}
	return basicURLScrub(message)
}

var (
	queryPattern    = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
	paramPattern    = regexp.MustCompile(`[?&]([^=\s]+)=([^&\s]+)`)
	userInfoPattern = regexp.MustCompile(`([a-z]+://)[^/@\s]+@`)
	secretPatterns  = []*regexp.Regexp{
		regexp.MustCompile(`api[_-]?key[=:]\S+`),
		regexp.MustCompile(`token[=:]\S+`),
		regexp.MustCompile(`auth[=:]\S+`),
		regexp.MustCompile(`password[=:]\S+`),
		regexp.MustCompile(`[0-9a-fA-F]{32,}`),
	}
)

// basicURLScrub drops query strings and URL credentials and masks anything
// that looks like a key or token
func basicURLScrub(message string) string {
	out := queryPattern.ReplaceAllString(message, "$1?[REDACTED]")
	out = paramPattern.ReplaceAllString(out, "?[REDACTED]")
	out = userInfoPattern.ReplaceAllString(out, "$1[REDACTED]@")
	for _, re := range secretPatterns {
		out = re.ReplaceAllString(out, "[API_KEY_REDACTED]")
	}
	return out
}
