package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DefaultLokiBatchSize     = 100
	DefaultLokiFlushInterval = 5 * time.Second

	lokiAttempts = 3
	lokiBackoff  = 100 * time.Millisecond
	lokiTimeout  = 10 * time.Second
)

var errLokiClosed = errors.New("loki appender is closed")

// LokiAppenderOpt pushes log lines to a Grafana Loki push endpoint, e.g.
// http://localhost:3100/loki/api/v1/push.
type LokiAppenderOpt struct {
	Endpoint      string            `mapstructure:"endpoint" yaml:"endpoint"`
	Labels        map[string]string `mapstructure:"labels" yaml:"labels"`
	BatchSize     int               `mapstructure:"batch_size" yaml:"batch_size"`
	FlushInterval string            `mapstructure:"flush_interval" yaml:"flush_interval"`
}

func (o LokiAppenderOpt) Enabled() bool { return o.Endpoint != "" }

// Interval parses FlushInterval, falling back to the default when unset.
func (o LokiAppenderOpt) Interval() (time.Duration, error) {
	if o.FlushInterval == "" {
		return DefaultLokiFlushInterval, nil
	}
	d, err := time.ParseDuration(o.FlushInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid flush interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("flush interval must be positive, got %s", d)
	}
	return d, nil
}

func (m *MultiWriter) AddLokiAppender(options LokiAppenderOpt) *MultiWriter {
	return m.Add(newLokiAppender(options))
}

// lokiAppender batches lines in memory. A batch is pushed when it fills or
// when the flush interval elapses, whichever comes first. Pushing happens
// off the logging goroutine so a slow Loki never blocks a log call.
type lokiAppender struct {
	endpoint  string
	labels    map[string]string
	batchSize int
	client    *http.Client

	mu      sync.Mutex
	pending [][]string
	closed  bool
	lastErr error

	full chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

type lokiPush struct {
	Streams []lokiStream `json:"streams"`
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

func newLokiAppender(options LokiAppenderOpt) *lokiAppender {
	interval, err := options.Interval()
	if err != nil {
		interval = DefaultLokiFlushInterval
	}
	batchSize := options.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultLokiBatchSize
	}
	labels := map[string]string{"job": "pktkit"}
	for k, v := range options.Labels {
		labels[k] = v
	}

	a := &lokiAppender{
		endpoint:  options.Endpoint,
		labels:    labels,
		batchSize: batchSize,
		client:    &http.Client{Timeout: lokiTimeout},
		pending:   make([][]string, 0, batchSize),
		full:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	a.wg.Add(1)
	go a.loop(interval)
	return a
}

func (a *lokiAppender) Write(p []byte) (int, error) {
	line := strings.TrimSuffix(string(p), "\n")

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, errLokiClosed
	}
	a.pending = append(a.pending, []string{strconv.FormatInt(time.Now().UnixNano(), 10), line})
	if len(a.pending) >= a.batchSize {
		select {
		case a.full <- struct{}{}:
		default:
		}
	}
	return len(p), nil
}

// Close pushes what is still pending and stops the flusher. The error of the
// last failed push, if any, is returned.
func (a *lokiAppender) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	close(a.done)
	a.wg.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

func (a *lokiAppender) loop(interval time.Duration) {
	defer a.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-a.full:
		case <-a.done:
			a.flush()
			return
		}
		a.flush()
	}
}

func (a *lokiAppender) flush() {
	a.mu.Lock()
	values := a.pending
	if len(values) == 0 {
		a.mu.Unlock()
		return
	}
	a.pending = make([][]string, 0, a.batchSize)
	a.mu.Unlock()

	err := a.push(values)

	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()
}

func (a *lokiAppender) push(values [][]string) error {
	body, err := json.Marshal(lokiPush{Streams: []lokiStream{{Stream: a.labels, Values: values}}})
	if err != nil {
		return fmt.Errorf("marshal loki push: %w", err)
	}

	for attempt := 0; attempt < lokiAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(lokiBackoff << (attempt - 1))
		}
		if err = a.send(body); err == nil {
			return nil
		}
	}
	return fmt.Errorf("loki push failed after %d attempts: %w", lokiAttempts, err)
}

func (a *lokiAppender) send(body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), lokiTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("loki responded %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
