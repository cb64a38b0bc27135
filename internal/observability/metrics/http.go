package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type requestKey struct {
	handler string
	method  string
	code    string
}

type errorKey struct {
	handler string
	method  string
}

type latencyKey struct {
	handler string
	method  string
}

type routeKey struct {
	agentID  string
	fallback string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type collector struct {
	mu         sync.Mutex
	requests   map[requestKey]uint64
	errors     map[errorKey]uint64
	latency    map[latencyKey]*histogram
	routes     map[routeKey]uint64
	confidence *histogram
}

var hubCollector = &collector{
	requests: make(map[requestKey]uint64),
	errors:   make(map[errorKey]uint64),
	latency:  make(map[latencyKey]*histogram),
	routes:   make(map[routeKey]uint64),
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	hubCollector.observeHTTP(handler, method, status, duration)
}

// ObserveRoute records the outcome of an agent routing decision.
func ObserveRoute(agentID string, confidence float64, fallback bool) {
	hubCollector.observeRoute(agentID, confidence, fallback)
}

func (c *collector) observeHTTP(handler, method string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reqKey := requestKey{handler: handler, method: method, code: strconv.Itoa(status)}
	c.requests[reqKey]++
	if status >= 500 {
		errKey := errorKey{handler: handler, method: method}
		c.errors[errKey]++
	}

	latKey := latencyKey{handler: handler, method: method}
	hist := c.latency[latKey]
	if hist == nil {
		hist = newHistogram([]float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10})
		c.latency[latKey] = hist
	}
	hist.observe(duration.Seconds())
}

func (c *collector) observeRoute(agentID string, confidence float64, fallback bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := routeKey{agentID: agentID, fallback: strconv.FormatBool(fallback)}
	c.routes[key]++
	if c.confidence == nil {
		c.confidence = newHistogram([]float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9})
	}
	c.confidence.observe(confidence)
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			break
		}
	}
	// Values above the last bound only show up in the +Inf bucket via h.count.
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, hubCollector.render())
	})
}

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var builder strings.Builder
	builder.Grow(1024)

	type requestMetric struct {
		requestKey
		value uint64
	}
	reqs := make([]requestMetric, 0, len(c.requests))
	for key, value := range c.requests {
		reqs = append(reqs, requestMetric{requestKey: key, value: value})
	}
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].handler == reqs[j].handler {
			if reqs[i].method == reqs[j].method {
				return reqs[i].code < reqs[j].code
			}
			return reqs[i].method < reqs[j].method
		}
		return reqs[i].handler < reqs[j].handler
	})

	builder.WriteString("# HELP agenthub_http_requests_total Total number of HTTP requests processed.\n")
	builder.WriteString("# TYPE agenthub_http_requests_total counter\n")
	for _, metric := range reqs {
		builder.WriteString(fmt.Sprintf("agenthub_http_requests_total{handler=\"%s\",method=\"%s\",code=\"%s\"} %d\n",
			escape(metric.handler), escape(metric.method), escape(metric.code), metric.value))
	}

	type errorMetric struct {
		errorKey
		value uint64
	}
	errs := make([]errorMetric, 0, len(c.errors))
	for key, value := range c.errors {
		errs = append(errs, errorMetric{errorKey: key, value: value})
	}
	sort.Slice(errs, func(i, j int) bool {
		if errs[i].handler == errs[j].handler {
			return errs[i].method < errs[j].method
		}
		return errs[i].handler < errs[j].handler
	})

	builder.WriteString("# HELP agenthub_http_request_errors_total Total number of HTTP requests that resulted in a server error.\n")
	builder.WriteString("# TYPE agenthub_http_request_errors_total counter\n")
	for _, metric := range errs {
		builder.WriteString(fmt.Sprintf("agenthub_http_request_errors_total{handler=\"%s\",method=\"%s\"} %d\n",
			escape(metric.handler), escape(metric.method), metric.value))
	}

	type latencyMetric struct {
		latencyKey
		hist histogram
	}
	lats := make([]latencyMetric, 0, len(c.latency))
	for key, hist := range c.latency {
		lats = append(lats, latencyMetric{latencyKey: key, hist: snapshot(hist)})
	}
	sort.Slice(lats, func(i, j int) bool {
		if lats[i].handler == lats[j].handler {
			return lats[i].method < lats[j].method
		}
		return lats[i].handler < lats[j].handler
	})

	builder.WriteString("# HELP agenthub_http_request_duration_seconds HTTP request duration in seconds.\n")
	builder.WriteString("# TYPE agenthub_http_request_duration_seconds histogram\n")
	for _, metric := range lats {
		for idx, bound := range metric.hist.buckets {
			builder.WriteString(fmt.Sprintf("agenthub_http_request_duration_seconds_bucket{handler=\"%s\",method=\"%s\",le=\"%s\"} %d\n",
				escape(metric.handler), escape(metric.method), formatFloat(bound), metric.hist.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("agenthub_http_request_duration_seconds_bucket{handler=\"%s\",method=\"%s\",le=\"+Inf\"} %d\n",
			escape(metric.handler), escape(metric.method), metric.hist.count))
		builder.WriteString(fmt.Sprintf("agenthub_http_request_duration_seconds_sum{handler=\"%s\",method=\"%s\"} %s\n",
			escape(metric.handler), escape(metric.method), formatFloat(metric.hist.sum)))
		builder.WriteString(fmt.Sprintf("agenthub_http_request_duration_seconds_count{handler=\"%s\",method=\"%s\"} %d\n",
			escape(metric.handler), escape(metric.method), metric.hist.count))
	}

	type routeMetric struct {
		routeKey
		value uint64
	}
	routes := make([]routeMetric, 0, len(c.routes))
	for key, value := range c.routes {
		routes = append(routes, routeMetric{routeKey: key, value: value})
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].agentID == routes[j].agentID {
			return routes[i].fallback < routes[j].fallback
		}
		return routes[i].agentID < routes[j].agentID
	})

	builder.WriteString("# HELP agenthub_routes_total Total number of routing decisions by agent.\n")
	builder.WriteString("# TYPE agenthub_routes_total counter\n")
	for _, metric := range routes {
		builder.WriteString(fmt.Sprintf("agenthub_routes_total{agent_id=\"%s\",fallback=\"%s\"} %d\n",
			escape(metric.agentID), escape(metric.fallback), metric.value))
	}

	if c.confidence != nil {
		conf := snapshot(c.confidence)
		builder.WriteString("# HELP agenthub_route_confidence Classifier confidence distribution.\n")
		builder.WriteString("# TYPE agenthub_route_confidence histogram\n")
		for idx, bound := range conf.buckets {
			builder.WriteString(fmt.Sprintf("agenthub_route_confidence_bucket{le=\"%s\"} %d\n",
				formatFloat(bound), conf.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("agenthub_route_confidence_bucket{le=\"+Inf\"} %d\n", conf.count))
		builder.WriteString(fmt.Sprintf("agenthub_route_confidence_sum %s\n", formatFloat(conf.sum)))
		builder.WriteString(fmt.Sprintf("agenthub_route_confidence_count %d\n", conf.count))
	}

	return builder.String()
}

func snapshot(h *histogram) histogram {
	return histogram{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
