package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jogardn/order-dashboard/internal/circuitbreaker"
	"github.com/jogardn/order-dashboard/pkg/models"
	"github.com/sirupsen/logrus"
)

// The list and stats of one load run concurrently, so each gets its own
// breaker: a half-open breaker admits a single trial call.
const (
	listBreaker  = "orders-list"
	statsBreaker = "orders-stats"
	readBreaker  = "orders-read"
	writeBreaker = "orders-write"

	maxErrorBody = 512
)

// Client talks to the orders API. It keeps no state of its own: after any
// write the caller is expected to read the list and stats again.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breakers   *circuitbreaker.Manager
	logger     *logrus.Logger
}

// NewClient builds a client for baseURL. breakers may be nil, in which case
// calls are never short-circuited.
func NewClient(baseURL string, timeout time.Duration, breakers *circuitbreaker.Manager, logger *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breakers: breakers,
		logger:   logger,
	}
}

func (c *Client) ListOrders(ctx context.Context, status string, page, limit int) (*models.OrdersPage, error) {
	query := url.Values{}
	query.Set("status", status)
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))

	var result models.OrdersPage
	if err := c.do(ctx, listBreaker, http.MethodGet, "/orders?"+query.Encode(), nil, &result); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"status": status,
		"page":   result.Page,
		"count":  len(result.Orders),
		"total":  result.Total,
	}).Debug("Retrieved orders page")
	return &result, nil
}

func (c *Client) GetStats(ctx context.Context) (*models.StatsSnapshot, error) {
	var stats models.StatsSnapshot
	if err := c.do(ctx, statsBreaker, http.MethodGet, "/orders/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*models.OrderRecord, error) {
	var order models.OrderRecord
	if err := c.do(ctx, readBreaker, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) CreateOrder(ctx context.Context, input models.OrderInput) (*models.OrderRecord, error) {
	var order models.OrderRecord
	if err := c.do(ctx, writeBreaker, http.MethodPost, "/orders", input, &order); err != nil {
		return nil, err
	}
	c.logger.WithField("order_id", order.ID).Info("Order created")
	return &order, nil
}

func (c *Client) UpdateOrder(ctx context.Context, orderID string, input models.OrderInput) (*models.OrderRecord, error) {
	var order models.OrderRecord
	if err := c.do(ctx, writeBreaker, http.MethodPut, "/orders/"+url.PathEscape(orderID), input, &order); err != nil {
		return nil, err
	}
	c.logger.WithField("order_id", orderID).Info("Order updated")
	return &order, nil
}

func (c *Client) DeleteOrder(ctx context.Context, orderID string) error {
	if err := c.do(ctx, writeBreaker, http.MethodDelete, "/orders/"+url.PathEscape(orderID), nil, nil); err != nil {
		return err
	}
	c.logger.WithField("order_id", orderID).Info("Order deleted")
	return nil
}

func (c *Client) BulkDelete(ctx context.Context, orderIDs []string) (*models.BulkDeleteResult, error) {
	if len(orderIDs) == 0 {
		return nil, ErrEmptySelection
	}

	var result models.BulkDeleteResult
	if err := c.do(ctx, writeBreaker, http.MethodDelete, "/orders/bulk", models.BulkRequest{OrderIDs: orderIDs}, &result); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"requested": len(orderIDs),
		"deleted":   result.DeletedCount,
	}).Info("Orders bulk deleted")
	return &result, nil
}

func (c *Client) BulkDuplicate(ctx context.Context, orderIDs []string) (*models.BulkDuplicateResult, error) {
	if len(orderIDs) == 0 {
		return nil, ErrEmptySelection
	}

	var result models.BulkDuplicateResult
	if err := c.do(ctx, writeBreaker, http.MethodPost, "/orders/bulk/duplicate", models.BulkRequest{OrderIDs: orderIDs}, &result); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"requested":  len(orderIDs),
		"duplicated": result.DuplicatedCount,
	}).Info("Orders bulk duplicated")
	return &result, nil
}

func (c *Client) BulkUpdateStatus(ctx context.Context, orderIDs []string, status models.Status) (*models.BulkStatusResult, error) {
	if len(orderIDs) == 0 {
		return nil, ErrEmptySelection
	}

	body := models.BulkStatusRequest{OrderIDs: orderIDs, Status: status}
	var result models.BulkStatusResult
	if err := c.do(ctx, writeBreaker, http.MethodPut, "/orders/bulk/status", body, &result); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"requested": len(orderIDs),
		"updated":   result.UpdatedCount,
		"status":    status,
	}).Info("Orders bulk status updated")
	return &result, nil
}

func (c *Client) do(ctx context.Context, breaker, method, path string, body, out interface{}) error {
	call := func() error {
		return c.roundTrip(ctx, method, path, body, out)
	}
	if c.breakers == nil {
		return call()
	}

	err := c.breakers.Get(breaker).Execute(call)
	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		c.logger.WithFields(logrus.Fields{
			"method":  method,
			"path":    path,
			"breaker": breaker,
		}).Warn("Orders API call rejected by open circuit breaker")
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out interface{}) error {
	requestID := uuid.New().String()
	log := c.logger.WithFields(logrus.Fields{
		"method":     method,
		"path":       path,
		"request_id": requestID,
	})

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Error("Failed to reach orders API")
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	log = log.WithFields(logrus.Fields{
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.WithField("body", string(excerpt)).Error("Orders API returned error status")
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       string(excerpt),
		}
	}

	if out == nil {
		log.Debug("Orders API call succeeded")
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) && method != http.MethodGet {
			// writes may answer 2xx with an empty body
			return nil
		}
		log.WithError(err).Error("Failed to decode orders API response")
		return fmt.Errorf("%w: %s %s: %w", ErrDecode, method, path, err)
	}

	log.Debug("Orders API call succeeded")
	return nil
}
