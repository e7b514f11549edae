package observability

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

// OTelWriter is an io.Writer that forwards zerolog's JSON lines to the
// global OTLP logger provider, so a single log call lands both on the local
// sink and in the collector. Lines that are not valid JSON are forwarded
// verbatim at info severity rather than dropped.
type OTelWriter struct {
	logger log.Logger
}

// NewOTelWriter returns a writer emitting through the global logger provider
// under the given instrumentation name.
func NewOTelWriter(name string) *OTelWriter {
	return &OTelWriter{logger: global.GetLoggerProvider().Logger(name)}
}

// Write implements io.Writer over one zerolog line per call.
func (w *OTelWriter) Write(p []byte) (int, error) {
	var fields map[string]any
	if err := json.Unmarshal(p, &fields); err != nil {
		var rec log.Record
		rec.SetTimestamp(time.Now())
		rec.SetSeverity(log.SeverityInfo)
		rec.SetBody(log.StringValue(string(p)))
		w.logger.Emit(context.Background(), rec)
		return len(p), nil
	}
	w.emit(fields)
	return len(p), nil
}

// Well-known zerolog fields lifted out of the attribute set and onto the
// record itself.
const (
	fieldTime    = "time"
	fieldLevel   = "level"
	fieldMessage = "message"
)

func (w *OTelWriter) emit(fields map[string]any) {
	var rec log.Record

	rec.SetTimestamp(time.Now())
	if ts, ok := fields[fieldTime].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.SetTimestamp(parsed)
		}
		delete(fields, fieldTime)
	}

	rec.SetSeverity(log.SeverityInfo)
	rec.SetSeverityText("info")
	if level, ok := fields[fieldLevel].(string); ok {
		rec.SetSeverity(severityFor(level))
		rec.SetSeverityText(level)
		delete(fields, fieldLevel)
	}

	if msg, ok := fields[fieldMessage].(string); ok {
		rec.SetBody(log.StringValue(msg))
		delete(fields, fieldMessage)
	}

	attrs := make([]log.KeyValue, 0, len(fields))
	for key, value := range fields {
		attrs = append(attrs, log.KeyValue{Key: key, Value: attrValue(value)})
	}
	rec.AddAttributes(attrs...)

	w.logger.Emit(context.Background(), rec)
}

var severities = map[string]log.Severity{
	"trace": log.SeverityTrace,
	"debug": log.SeverityDebug,
	"info":  log.SeverityInfo,
	"warn":  log.SeverityWarn,
	"error": log.SeverityError,
	"fatal": log.SeverityFatal,
	"panic": log.SeverityFatal4,
}

func severityFor(level string) log.Severity {
	if s, ok := severities[level]; ok {
		return s
	}
	return log.SeverityInfo
}

func attrValue(v any) log.Value {
	switch val := v.(type) {
	case string:
		return log.StringValue(val)
	case bool:
		return log.BoolValue(val)
	case float64:
		return log.Float64Value(val)
	case nil:
		return log.StringValue("")
	default:
		if b, err := json.Marshal(val); err == nil {
			return log.StringValue(string(b))
		}
		return log.StringValue("")
	}
}
