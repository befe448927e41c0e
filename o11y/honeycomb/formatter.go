package honeycomb

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/honeycombio/libhoney-go/transmission"
)

// TextSender writes each event as one human readable line. It follows the shape of
// transmission.WriterSender.
type TextSender struct {
	mu sync.Mutex
	w  io.Writer

	responses chan transmission.Response
}

func (t *TextSender) Start() error {
	t.responses = make(chan transmission.Response, 100)
	return nil
}

func (t *TextSender) Stop() error { return nil }

func (t *TextSender) Flush() error { return nil }

func (t *TextSender) Add(ev *transmission.Event) {
	line := format(ev)

	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = t.w.Write(line)
	t.SendResponse(transmission.Response{Metadata: ev.Metadata})
}

func (t *TextSender) TxResponses() chan transmission.Response {
	return t.responses
}

func (t *TextSender) SendResponse(r transmission.Response) bool {
	select {
	case t.responses <- r:
	default:
		return true
	}
	return false
}

// format renders "15:04:05 <trace> <duration>ms <name> k=v..." with the keys sorted.
func format(ev *transmission.Event) []byte {
	buf := new(bytes.Buffer)
	duration, _ := toFloat64(ev.Data["duration_ms"])
	_, _ = fmt.Fprintf(buf, "%s %s %.3fms %v",
		ev.Timestamp.Format("15:04:05"),
		formatTraceID(ev.Data["trace.trace_id"]),
		duration,
		ev.Data["name"],
	)

	for _, k := range sortedKeys(ev.Data) {
		if exclude(k) {
			continue
		}
		_, _ = fmt.Fprintf(buf, " %s=%v", k, ev.Data[k])
	}
	buf.WriteString("\n")
	return buf.Bytes()
}

func exclude(k string) bool {
	switch k {
	case "name", "version", "service", "duration_ms":
		return true
	}
	for _, prefix := range []string{"trace.", "meta."} {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// formatTraceID keeps the last five characters, enough to tell traces apart in a terminal.
func formatTraceID(raw interface{}) string {
	traceID, ok := raw.(string)
	if !ok || len(traceID) < 5 {
		return "unkwn"
	}
	return traceID[len(traceID)-5:]
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
