package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"fanout-gateway-go/internal/dispatch"
	"fanout-gateway-go/internal/middleware"
	"fanout-gateway-go/internal/model"
	"fanout-gateway-go/internal/reconcile"
	"fanout-gateway-go/internal/route"
	"fanout-gateway-go/internal/txid"
)

// GatewayHandler resolves a route key and fans the inbound request out to
// the route's upstream targets.
type GatewayHandler struct {
	table      *route.Table
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// NewGatewayHandler creates a GatewayHandler.
func NewGatewayHandler(table *route.Table, d *dispatch.Dispatcher, logger *slog.Logger) *GatewayHandler {
	return &GatewayHandler{
		table:      table,
		dispatcher: d,
		logger:     logger.With("component", "gateway_handler"),
	}
}

// Handle serves one gateway exchange: resolve the route key, fan out to its
// targets, reconcile their responses into a single reply.
func (h *GatewayHandler) Handle(c echo.Context) error {
	req := c.Request()

	key := strings.TrimSpace(c.Param("service"))
	tx := txid.New()
	c.Set(middleware.TxKey, tx)

	logger := h.logger.With("tx", tx)
	logger.Info("request", "upstream", key)

	targets, ok := h.table.Lookup(key)
	if !ok || len(targets) == 0 {
		logger.Error("no routes to upstream", "upstream", key)
		return c.JSONBlob(http.StatusBadGateway, model.DiagnosticBody(model.CodeNoRoute))
	}

	var body []byte
	if req.ContentLength != 0 {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			logger.Error("reading request body", "err", err)
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "failed to read request body",
			})
		}
		body = data
	}

	results := h.dispatcher.Dispatch(req.Context(), tx, targets, req.Method, req.Header, body)

	reply, err := reconcile.Merge(results)
	if err != nil {
		logger.Error("merging upstream responses", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to merge upstream responses",
		})
	}

	header := c.Response().Header()
	for name, vals := range reply.Header {
		for _, v := range vals {
			header.Add(name, v)
		}
	}
	c.Response().WriteHeader(reply.Status)
	if _, err := c.Response().Write(reply.Body); err != nil {
		logger.Error("writing response body", "err", err)
	}

	return nil
}
