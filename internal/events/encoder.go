package events

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

var linePool = buffer.NewPool()

// lineEncoder renders entries as
// "YYYY-MM-DD HH:MM:SS - LEVEL - message [key=value ...]", the canonical
// textual rendering spec'd for ALLOWED/BLOCKED lines and reused for every
// other event kind so one encoder serves the whole sink.
type lineEncoder struct {
	zapcore.Encoder
}

func newLineEncoder() zapcore.Encoder {
	base := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey: "msg",
	})
	return &lineEncoder{Encoder: base}
}

func (e *lineEncoder) Clone() zapcore.Encoder {
	return &lineEncoder{Encoder: e.Encoder.Clone()}
}

func (e *lineEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	buf := linePool.Get()

	buf.AppendString(entry.Time.Format("2006-01-02 15:04:05"))
	buf.AppendString(" - ")
	buf.AppendString(levelName(entry.Level))
	buf.AppendString(" - ")
	buf.AppendString(entry.Message)

	for _, f := range fields {
		buf.AppendString(" ")
		buf.AppendString(f.Key)
		buf.AppendString("=")
		buf.AppendString(fieldString(f))
	}

	buf.AppendString("\n")
	return buf, nil
}

func levelName(l zapcore.Level) string {
	switch l {
	case zapcore.InfoLevel:
		return "INFO"
	case zapcore.WarnLevel:
		return "WARNING"
	case zapcore.ErrorLevel:
		return "ERROR"
	default:
		return strings.ToUpper(l.String())
	}
}

func fieldString(f zapcore.Field) string {
	switch f.Type {
	case zapcore.DurationType:
		return time.Duration(f.Integer).String()
	case zapcore.StringType:
		return f.String
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type:
		return strconv.FormatInt(f.Integer, 10)
	default:
		return f.String
	}
}
