package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequestLogger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := echo.New()
	e.Use(RequestLogger(logger))
	e.GET("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRequestLogger_CarriesTransactionID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	e := echo.New()
	e.Use(RequestLogger(logger))
	e.GET("/test", func(c echo.Context) error {
		c.Set(TxKey, "deadbeefdeadbeefdeadbeefdeadbeef")
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("bad log line %q: %v", buf.String(), err)
	}
	if record["msg"] != "access" {
		t.Errorf("msg = %v, want %q", record["msg"], "access")
	}
	if record["tx"] != "deadbeefdeadbeefdeadbeefdeadbeef" {
		t.Errorf("tx = %v, want the id set by the handler", record["tx"])
	}
	if record["status"] != float64(http.StatusOK) {
		t.Errorf("status = %v, want %d", record["status"], http.StatusOK)
	}
	if record["method"] != http.MethodGet {
		t.Errorf("method = %v, want %q", record["method"], http.MethodGet)
	}
}
