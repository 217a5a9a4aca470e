package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	outMu sync.Mutex
	out   io.Writer = os.Stdout
)

// SetOutput redirects log output; tests use it to capture lines.
func SetOutput(w io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()
	out = w
}

// Info writes an info-level log line with the given fields.
func Info(msg string, fields map[string]any) { emit("info", msg, fields) }

// Warn writes a warn-level log line with the given fields.
func Warn(msg string, fields map[string]any) { emit("warn", msg, fields) }

// Error writes an error-level log line with the given fields.
func Error(msg string, fields map[string]any) { emit("error", msg, fields) }

func emit(level, msg string, fields map[string]any) {
	line := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		line[k] = v
	}
	line["ts"] = time.Now().UTC().Format(time.RFC3339)
	line["level"] = level
	line["msg"] = msg

	data, err := json.Marshal(line)
	outMu.Lock()
	defer outMu.Unlock()
	if err != nil {
		fmt.Fprintf(out, `{"ts":%q,"level":"error","msg":"logger marshal failed","err":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339), err.Error())
		return
	}
	fmt.Fprintln(out, string(data))
}
