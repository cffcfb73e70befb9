// Package obs holds the service's observability plumbing: the shared JSON
// line logger and the Prometheus metrics. The request logging middleware and
// the audit trail both emit through the logger here.
package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide JSON line logger. Everything structured
// goes to stdout; prefixes and flags stay off so each line is a bare object.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits one JSON line per completed HTTP request. The logging
// middleware assembles the entry (method, path, status, request_id, latency).
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
