package binutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/lattice-mc/netsync/engine/nslog"
	"github.com/lattice-mc/netsync/engine/opmon"
	"gopkg.in/natefinch/lumberjack.v2"
)

// StatusFunc returns the status document served on /status
type StatusFunc func() interface{}

// NewStatusHandler serves the node status, operation stats and pprof
func NewStatusHandler(status StatusFunc) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status())
	})
	mux.HandleFunc("/opmon", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, opmon.Snapshot())
	})
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// SetupHTTPServer starts the status server for monitoring and go tool pprof.
// It returns nil when port is 0.
func SetupHTTPServer(ip string, port int, status StatusFunc) (*http.Server, error) {
	if port == 0 {
		nslog.Infof("http server not enabled")
		return nil, nil
	}

	httpHost := fmt.Sprintf("%s:%d", ip, port)
	ln, err := net.Listen("tcp", httpHost)
	if err != nil {
		return nil, err
	}
	nslog.Infof("http server listening on %s", httpHost)
	nslog.Infof("    status: http://%s/status", httpHost)
	nslog.Infof("    go tool pprof http://%s/debug/pprof/heap", httpHost)

	srv := &http.Server{Handler: NewStatusHandler(status)}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			nslog.Errorf("http server stopped: %v", err)
		}
	}()
	return srv, nil
}

// SetupLog sets up the log system of a netsync process
func SetupLog(component string, logLevel string, logFile string, logStderr bool) {
	nslog.SetSource(component)
	nslog.Infof("Set log level to %s", logLevel)
	nslog.SetLevel(nslog.ParseLevel(logLevel))

	outputWriters := make([]io.Writer, 0, 2)
	if logFile != "" {
		logFileWriter := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // megabytes
			MaxBackups: 100,
			MaxAge:     30, //days
			Compress:   true,
		}
		logFileWriter.Rotate() // rotate immediately
		outputWriters = append(outputWriters, logFileWriter)
	}

	if logStderr || len(outputWriters) == 0 {
		outputWriters = append(outputWriters, os.Stderr)
	}

	if len(outputWriters) == 1 {
		nslog.SetOutput(outputWriters[0])
	} else {
		nslog.SetOutput(io.MultiWriter(outputWriters...))
	}
}
