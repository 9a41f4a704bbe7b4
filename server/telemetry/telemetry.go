// A simple telemetry package.
// Log lines go to zap, counters go to prometheus and are also kept in memory for tests.
package telemetry

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type TelemetryData struct {
	logger *zap.Logger

	counterLock sync.Mutex
	counters    map[string]int
	events      *prometheus.CounterVec

	trace bool
}

var data = TelemetryData{
	logger:   zap.NewNop(),
	counters: make(map[string]int),
	events: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blogfed",
		Name:      "events_total",
		Help:      "Count of federation events by name.",
	}, []string{"name"}),
	trace: true,
}

func init() {
	prometheus.MustRegister(data.events)
}

// Init replaces the no-op logger with a production zap logger.
func Init(trace bool) error {
	cfg := zap.NewProductionConfig()
	if trace {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	SetLogger(l, trace)
	return nil
}

// SetLogger installs l as the destination for all log calls.
func SetLogger(l *zap.Logger, trace bool) {
	data.logger = l
	data.trace = trace
}

// Logger exposes the underlying logger for packages that want structured fields.
func Logger() *zap.Logger {
	return data.logger
}

func Sync() {
	_ = data.logger.Sync()
}

func Log(format string, args ...any) {
	data.logger.Info(fmt.Sprintf(format, args...))
}

func Trace(format string, args ...any) {
	if data.trace {
		data.logger.Debug(fmt.Sprintf(format, args...))
	}
}

func Error(err error, format string, args ...any) {
	data.logger.Error(fmt.Sprintf(format, args...), zap.Error(err))
	Increment("errors", 1)
}

// Request logs essential information about an HTTP request
func Request(r *http.Request, format string, args ...any) {
	data.logger.Info(fmt.Sprintf(format, args...),
		zap.String("method", r.Method),
		zap.String("url", r.URL.String()))
}

// Increment increases a count, thread-safe
func Increment(name string, n int) {
	data.counterLock.Lock()
	data.counters[name] += n
	data.counterLock.Unlock()
	data.events.WithLabelValues(name).Add(float64(n))
}

func GetCounter(name string) int {
	data.counterLock.Lock()
	defer data.counterLock.Unlock()
	return data.counters[name]
}

func LogCounters() {
	s := make([]string, 0)
	data.counterLock.Lock()
	for k, v := range data.counters {
		s = append(s, fmt.Sprintf("%s=%d", k, v))
	}
	data.counterLock.Unlock()
	if len(s) == 0 {
		s = append(s, "no counters were recorded")
	}
	sort.Strings(s)
	Log(strings.Join(s, ", "))
}
