package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// testSetup creates both metrics and tracing infrastructure for middleware tests.
func testSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	// Metrics.
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	// Tracing.
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	return m, reader, exp
}

// widgetMux mirrors the routes the widget server registers. The chat route
// answers 200, the TTS route fails upstream with 502 and /ws upgrades to a
// WebSocket that the server closes straight away.
func widgetMux(t *testing.T, seen *string) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen = CorrelationID(r.Context())
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"reply":"hi"}`))
	})
	mux.HandleFunc("POST /api/tts", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream failed", http.StatusBadGateway)
	})
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		conn.Close(websocket.StatusNormalClosure, "bye")
	})
	return mux
}

func spanAttr(s tracetest.SpanStub, key string) (attribute.Value, bool) {
	for _, a := range s.Attributes {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

// durationPoints returns the request duration data points keyed by their
// path label.
func durationPoints(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.HistogramDataPoint[float64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "voxwidget.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	points := make(map[string]metricdata.HistogramDataPoint[float64])
	for _, dp := range hist.DataPoints {
		v, _ := dp.Attributes.Value("path")
		points[v.AsString()] = dp
	}
	return points
}

func TestMiddleware_ChatRoute(t *testing.T) {
	m, reader, exp := testSetup(t)

	var cid string
	handler := Middleware(m)(widgetMux(t, &cid))

	req := httptest.NewRequest("POST", "/api/chat", strings.NewReader(`{"message":"hi"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(cid) != 32 {
		t.Errorf("correlation ID = %q, want a 32-char trace ID", cid)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != cid {
		t.Errorf("X-Correlation-ID = %q, want %q", got, cid)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "HTTP POST /api/chat" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	if v, ok := spanAttr(spans[0], "http.response.status_code"); !ok || v.AsInt64() != 200 {
		t.Errorf("status attribute = %v (present %v), want 200", v.AsInt64(), ok)
	}
	if _, ok := spanAttr(spans[0], "error"); ok {
		t.Error("successful chat request marked as error")
	}

	dp, ok := durationPoints(t, reader)["POST /api/chat"]
	if !ok {
		t.Fatal("no data point labelled with the chat route")
	}
	if dp.Count != 1 {
		t.Errorf("sample count = %d, want 1", dp.Count)
	}
	if v, _ := dp.Attributes.Value("method"); v.AsString() != "POST" {
		t.Errorf("method label = %q", v.AsString())
	}
}

func TestMiddleware_ChatRouteContinuesWidgetTrace(t *testing.T) {
	m, _, exp := testSetup(t)

	var cid string
	handler := Middleware(m)(widgetMux(t, &cid))

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest("POST", "/api/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if cid != traceID {
		t.Errorf("correlation ID = %q, want %q", cid, traceID)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
	}
	if tp := rec.Header().Get("traceparent"); !strings.Contains(tp, traceID) {
		t.Errorf("response traceparent = %q, want trace %s", tp, traceID)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Parent.SpanID().String() != "00f067aa0ba902b7" {
		t.Errorf("span not parented on the incoming traceparent: %+v", spans)
	}
}

func TestMiddleware_UpstreamFailureMarksSpan(t *testing.T) {
	m, reader, exp := testSetup(t)
	handler := Middleware(m)(widgetMux(t, nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/tts", strings.NewReader(`{"text":"hi"}`)))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if v, _ := spanAttr(spans[0], "http.response.status_code"); v.AsInt64() != http.StatusBadGateway {
		t.Errorf("status attribute = %d, want 502", v.AsInt64())
	}
	if v, ok := spanAttr(spans[0], "error"); !ok || !v.AsBool() {
		t.Error("502 response not marked as error")
	}
	if _, ok := durationPoints(t, reader)["POST /api/tts"]; !ok {
		t.Error("no data point labelled with the tts route")
	}
}

func TestMiddleware_WebSocketUpgrade(t *testing.T) {
	m, reader, exp := testSetup(t)

	srv := httptest.NewServer(Middleware(m)(widgetMux(t, nil)))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Errorf("handshake status = %d, want 101", resp.StatusCode)
	}
	if _, _, err := conn.Read(ctx); websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Errorf("read err = %v, want a normal closure", err)
	}
	conn.CloseNow()

	// The span ends once the handler returns, after the close handshake.
	deadline := time.Now().Add(5 * time.Second)
	for len(exp.GetSpans()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no span recorded for the upgrade")
		}
		time.Sleep(5 * time.Millisecond)
	}
	span := exp.GetSpans()[0]
	if span.Name != "HTTP GET /ws" {
		t.Errorf("span name = %q", span.Name)
	}
	if v, _ := spanAttr(span, "http.response.status_code"); v.AsInt64() != http.StatusSwitchingProtocols {
		t.Errorf("status attribute = %d, want 101", v.AsInt64())
	}
	if _, ok := durationPoints(t, reader)["GET /ws"]; !ok {
		t.Error("no data point labelled with the ws route")
	}
}

func TestMiddleware_UnmatchedPathsShareLabel(t *testing.T) {
	m, reader, _ := testSetup(t)
	handler := Middleware(m)(widgetMux(t, nil))

	for _, p := range []string{"/wp-login.php", "/.env", "/api/chat/extra"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", p, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", p, rec.Code)
		}
	}

	points := durationPoints(t, reader)
	if len(points) != 1 {
		t.Errorf("path labels = %d, want 1", len(points))
	}
	if dp, ok := points["unmatched"]; !ok || dp.Count != 3 {
		t.Errorf("unmatched data point = %+v (present %v), want 3 samples", dp.Count, ok)
	}
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	m, reader, _ := testSetup(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/messages/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := Middleware(m)(mux)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/messages/42", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/messages/43", nil))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "voxwidget.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1 per route", len(hist.DataPoints))
	}
	v, _ := hist.DataPoints[0].Attributes.Value("path")
	if v.AsString() != "GET /api/messages/{id}" {
		t.Errorf("path label = %q, want the route pattern", v.AsString())
	}
}

func TestStatusRecorder_Hijack(t *testing.T) {
	m, _, _ := testSetup(t)

	results := make(chan error, 2)
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		conn, _, err := http.NewResponseController(w).Hijack()
		if err == nil {
			conn.Close()
		}
		results <- err
	}))

	// httptest.ResponseRecorder cannot be hijacked; the error must surface.
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/ws", nil))
	if err := <-results; err == nil {
		t.Error("expected hijack error from a non-hijackable writer")
	}

	srv := httptest.NewServer(handler)
	defer srv.Close()
	if resp, err := http.Get(srv.URL + "/ws"); err == nil {
		resp.Body.Close()
	}
	if err := <-results; err != nil {
		t.Errorf("hijack through real server: %v", err)
	}
}
