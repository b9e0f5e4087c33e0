package parser

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	v1 "github.com/checkline-lab/checkline/internal/api/v1"
)

const maxStackFrames = 5

// fatalClassMarkers promote an exception to critical severity when the class
// name contains any of them.
var fatalClassMarkers = []string{
	"OutOfMemory",
	"StackOverflow",
	"NoMemoryError",
	"SystemStackError",
	"SignalException",
	"SecurityError",
	"Fatal",
}

// ParseExceptionPayload builds one event from a crash-report payload.
// Exception-report interop: the same logical field may arrive PascalCase or
// camelCase, so every lookup tries both. A payload that cannot even supply an
// occurrence time still yields an event; dropping it would hide the one
// record that explains a broken check.
func ParseExceptionPayload(payload map[string]any, fileRef string) v1.Event {
	details := pickMap(payload, "Details", "details")
	if details == nil {
		details = payload
	}

	errInfo := pickMap(details, "Error", "error")
	className := pickString(errInfo, "ClassName", "className")
	if className == "" {
		className = "UnknownError"
	}
	message := pickString(errInfo, "Message", "message")

	title := className
	if message != "" {
		title = className + ": " + truncate(message, 80)
	}

	request := pickMap(details, "Request", "request")
	response := pickMap(details, "Response", "response")
	statusCode, hasStatus := pickInt(response, "StatusCode", "statusCode")

	occurredRaw := pickString(payload, "OccurredOn", "occurredOn")
	timestamp, ok := parseTime(occurredRaw)
	if !ok {
		// Resilience rule: a bad occurrence time must not discard the event.
		slog.Warn("[ExceptionParser] Unparseable occurrence time, falling back to now",
			"file", fileRef,
			"raw", occurredRaw,
		)
		timestamp = time.Now().UTC()
	}

	evt := v1.Event{
		ID:          v1.EventID("", v1.SourceRaygun, fileRef, className, occurredRaw),
		Timestamp:   timestamp,
		Source:      v1.SourceRaygun,
		Category:    v1.CategoryException,
		Type:        "exception.raised",
		Title:       title,
		Description: describeException(message, errInfo, request, statusCode, hasStatus, details),
		Severity:    classifyException(className, statusCode, hasStatus),
		Metadata:    exceptionMetadata(details, request, statusCode, hasStatus, fileRef),
	}
	return evt.Normalize()
}

func classifyException(className string, statusCode int, hasStatus bool) v1.Severity {
	for _, marker := range fatalClassMarkers {
		if strings.Contains(className, marker) {
			return v1.SeverityCritical
		}
	}
	if hasStatus {
		switch {
		case statusCode >= 500:
			return v1.SeverityError
		case statusCode >= 400:
			return v1.SeverityWarning
		}
	}
	return v1.SeverityError
}

// describeException assembles the multi-line detail block. Each section is
// omitted when its source data is absent.
func describeException(message string, errInfo, request map[string]any, statusCode int, hasStatus bool, details map[string]any) string {
	var lines []string

	if message != "" {
		lines = append(lines, message)
	}

	if request != nil {
		method := pickString(request, "HttpMethod", "httpMethod", "Method", "method")
		url := pickString(request, "Url", "url")
		if method != "" || url != "" {
			lines = append(lines, strings.TrimSpace(fmt.Sprintf("Request: %s %s", method, url)))
		}
	}

	if hasStatus {
		lines = append(lines, fmt.Sprintf("Response Status: %d", statusCode))
	}

	if inner := pickMap(errInfo, "InnerError", "innerError"); inner != nil {
		innerClass := pickString(inner, "ClassName", "className")
		innerMsg := pickString(inner, "Message", "message")
		if innerClass != "" || innerMsg != "" {
			lines = append(lines, strings.TrimSpace("Caused by: "+strings.TrimSpace(innerClass+": "+innerMsg)))
		}
	}

	lines = append(lines, stackFrameLines(errInfo)...)

	if tags := pickStrings(details, "Tags", "tags"); len(tags) > 0 {
		lines = append(lines, "Tags: "+strings.Join(tags, ", "))
	}

	if machine := pickString(details, "MachineName", "machineName"); machine != "" {
		lines = append(lines, "Machine: "+machine)
	}
	if version := pickString(details, "Version", "version"); version != "" {
		lines = append(lines, "Version: "+version)
	}

	return strings.Join(lines, "\n")
}

func stackFrameLines(errInfo map[string]any) []string {
	frames := pickSlice(errInfo, "StackTrace", "stackTrace")
	if len(frames) == 0 {
		return nil
	}

	var lines []string
	shown := len(frames)
	if shown > maxStackFrames {
		shown = maxStackFrames
	}
	for _, raw := range frames[:shown] {
		frame, ok := asMap(raw)
		if !ok {
			continue
		}
		method := pickString(frame, "MethodName", "methodName")
		class := pickString(frame, "ClassName", "className")
		file := pickString(frame, "FileName", "fileName")
		line, hasLine := pickInt(frame, "LineNumber", "lineNumber")

		site := method
		if class != "" {
			site = class + "." + method
		}
		loc := file
		if hasLine {
			loc = fmt.Sprintf("%s:%d", file, line)
		}
		if loc != "" {
			lines = append(lines, fmt.Sprintf("  at %s (%s)", site, loc))
		} else {
			lines = append(lines, "  at "+site)
		}
	}
	if remaining := len(frames) - shown; remaining > 0 {
		lines = append(lines, fmt.Sprintf("  ... %d more frames", remaining))
	}
	return lines
}

func exceptionMetadata(details, request map[string]any, statusCode int, hasStatus bool, fileRef string) map[string]any {
	meta := map[string]any{}

	if fileRef != "" {
		meta["source_file"] = fileRef
	}
	if user := pickMap(details, "User", "user"); user != nil {
		if identity := pickString(user, "Identifier", "identifier"); identity != "" {
			meta["user"] = identity
		}
	}
	if request != nil {
		if method := pickString(request, "HttpMethod", "httpMethod", "Method", "method"); method != "" {
			meta["request_method"] = method
		}
		if url := pickString(request, "Url", "url"); url != "" {
			meta["request_url"] = url
		}
		if ip := pickString(request, "IPAddress", "iPAddress", "ipAddress"); ip != "" {
			meta["request_ip"] = ip
		}
	}
	if hasStatus {
		meta["response_status"] = statusCode
	}
	if custom := pickMap(details, "UserCustomData", "userCustomData"); custom != nil {
		for key, value := range custom {
			meta[key] = scalarOrJSON(value)
		}
	}
	if tags := pickStrings(details, "Tags", "tags"); len(tags) > 0 {
		meta["tags"] = tags
	}
	if machine := pickString(details, "MachineName", "machineName"); machine != "" {
		meta["machine"] = machine
	}
	if version := pickString(details, "Version", "version"); version != "" {
		meta["app_version"] = version
	}

	if len(meta) == 0 {
		return nil
	}
	return meta
}

// scalarOrJSON keeps scalars as-is and serializes everything else so that
// metadata values stay renderable.
func scalarOrJSON(v any) any {
	switch v.(type) {
	case nil, string, float64, bool, int, int64:
		return v
	}
	if s, err := sonic.MarshalString(v); err == nil {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func pickMap(m map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		if sub, ok := mapAt(m, key); ok {
			return sub
		}
	}
	return nil
}

func pickSlice(m map[string]any, keys ...string) []any {
	for _, key := range keys {
		if s, ok := sliceAt(m, key); ok {
			return s
		}
	}
	return nil
}

func pickString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := stringAt(m, key); ok {
			return s
		}
	}
	return ""
}

func pickInt(m map[string]any, keys ...string) (int, bool) {
	for _, key := range keys {
		if n, ok := centsAt(m, key); ok {
			return int(n), true
		}
	}
	return 0, false
}

func pickStrings(m map[string]any, keys ...string) []string {
	raw := pickSlice(m, keys...)
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
