package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jogardn/order-dashboard/internal/selection"
	"github.com/jogardn/order-dashboard/pkg/models"
	"github.com/sirupsen/logrus"
)

// API is the part of the orders API the dashboard drives.
type API interface {
	ListOrders(ctx context.Context, status string, page, limit int) (*models.OrdersPage, error)
	GetStats(ctx context.Context) (*models.StatsSnapshot, error)
	GetOrder(ctx context.Context, orderID string) (*models.OrderRecord, error)
	DeleteOrder(ctx context.Context, orderID string) error
	BulkDelete(ctx context.Context, orderIDs []string) (*models.BulkDeleteResult, error)
	BulkDuplicate(ctx context.Context, orderIDs []string) (*models.BulkDuplicateResult, error)
	BulkUpdateStatus(ctx context.Context, orderIDs []string, status models.Status) (*models.BulkStatusResult, error)
	CreateOrder(ctx context.Context, input models.OrderInput) (*models.OrderRecord, error)
	UpdateOrder(ctx context.Context, orderID string, input models.OrderInput) (*models.OrderRecord, error)
}

// AuditPublisher records writes made from a dashboard view.
type AuditPublisher interface {
	PublishDashboardAction(action string, orderIDs []string, sessionID string) error
}

// Observer is told about every state transition of a controller.
type Observer interface {
	StateChanged(state ViewState)
}

type ObserverFunc func(state ViewState)

func (f ObserverFunc) StateChanged(state ViewState) { f(state) }

// Controller owns the state of one mounted dashboard view. Commands that hit
// the orders API block until the resulting reload has settled; State can be
// read at any time.
type Controller struct {
	api       API
	selection *selection.Store
	logger    *logrus.Logger
	sessionID string

	audit     AuditPublisher
	audits    sync.WaitGroup
	observers []Observer

	mutex     sync.Mutex
	phase     Phase
	tab       Tab
	window    models.PageWindow
	orders    []models.OrderRecord
	stats     models.StatsSnapshot
	lastError string
	loadSeq   uint64
}

func NewController(api API, sessionID string, logger *logrus.Logger) *Controller {
	return &Controller{
		api:       api,
		selection: selection.NewStore(),
		logger:    logger,
		sessionID: sessionID,
		phase:     PhaseIdle,
		tab:       TabAll,
		window:    models.NewPageWindow(),
	}
}

// SetAuditPublisher must be called before the controller is mounted.
func (c *Controller) SetAuditPublisher(audit AuditPublisher) {
	c.audit = audit
}

// Observe must be called before the controller is mounted.
func (c *Controller) Observe(observer Observer) {
	c.observers = append(c.observers, observer)
}

// Close waits for audit events still being published.
func (c *Controller) Close() {
	c.audits.Wait()
}

func (c *Controller) State() ViewState {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.snapshotLocked()
}

// Mount performs the first load of the view.
func (c *Controller) Mount(ctx context.Context) error {
	return c.load(ctx)
}

func (c *Controller) ChangeFilter(ctx context.Context, tab Tab) error {
	if _, err := ParseTab(string(tab)); err != nil {
		return err
	}

	c.mutex.Lock()
	c.tab = tab
	c.window.Page = 1
	c.mutex.Unlock()
	c.selection.Clear()

	return c.load(ctx)
}

func (c *Controller) ChangePage(ctx context.Context, page int) error {
	c.mutex.Lock()
	if !c.window.Contains(page) {
		last := c.window.LastPage()
		c.mutex.Unlock()
		return fmt.Errorf("%w: %d not in [1, %d]", ErrPageOutOfRange, page, last)
	}
	c.window.Page = page
	c.mutex.Unlock()
	c.selection.Clear()

	return c.load(ctx)
}

// Refresh reloads the current tab and page, e.g. after the orders changed elsewhere.
func (c *Controller) Refresh(ctx context.Context) error {
	c.selection.Clear()
	return c.load(ctx)
}

func (c *Controller) SelectRow(id string) {
	c.selection.Toggle(id)
	c.notify(c.State())
}

func (c *Controller) SelectAllVisible() {
	c.mutex.Lock()
	visible := make([]string, 0, len(c.orders))
	for _, order := range c.orders {
		visible = append(visible, order.ID)
	}
	c.mutex.Unlock()

	c.selection.ToggleAll(visible)
	c.notify(c.State())
}

func (c *Controller) ClearSelection() {
	c.selection.Clear()
	c.notify(c.State())
}

// PrintSelection only reports which orders would be printed.
func (c *Controller) PrintSelection() []string {
	ids := c.selection.IDs()
	c.logger.WithFields(logrus.Fields{
		"session_id": c.sessionID,
		"order_ids":  ids,
	}).Info("Print orders requested")
	return ids
}

// OpenOrder fetches one order for the edit dialog. The view is not reloaded.
func (c *Controller) OpenOrder(ctx context.Context, orderID string) (*models.OrderRecord, error) {
	order, err := c.api.GetOrder(ctx, orderID)
	if err != nil {
		return nil, c.fail("get_order", err)
	}
	return order, nil
}

func (c *Controller) DeleteOne(ctx context.Context, orderID string) error {
	if err := c.api.DeleteOrder(ctx, orderID); err != nil {
		return c.fail("delete_order", err)
	}
	return c.afterWrite(ctx, "delete_order", []string{orderID})
}

func (c *Controller) BulkDelete(ctx context.Context) error {
	ids := c.selection.IDs()
	if len(ids) == 0 {
		return nil
	}
	if _, err := c.api.BulkDelete(ctx, ids); err != nil {
		return c.fail("bulk_delete", err)
	}
	return c.afterWrite(ctx, "bulk_delete", ids)
}

func (c *Controller) BulkDuplicate(ctx context.Context) error {
	ids := c.selection.IDs()
	if len(ids) == 0 {
		return nil
	}
	if _, err := c.api.BulkDuplicate(ctx, ids); err != nil {
		return c.fail("bulk_duplicate", err)
	}
	return c.afterWrite(ctx, "bulk_duplicate", ids)
}

func (c *Controller) BulkUpdateStatus(ctx context.Context, status models.Status) error {
	ids := c.selection.IDs()
	if len(ids) == 0 {
		return nil
	}
	if _, err := c.api.BulkUpdateStatus(ctx, ids, status); err != nil {
		return c.fail("bulk_update_status", err)
	}
	return c.afterWrite(ctx, "bulk_update_status", ids)
}

func (c *Controller) CreateOrder(ctx context.Context, input models.OrderInput) error {
	order, err := c.api.CreateOrder(ctx, input)
	if err != nil {
		return c.fail("create_order", err)
	}
	return c.afterWrite(ctx, "create_order", []string{order.ID})
}

func (c *Controller) EditOrder(ctx context.Context, orderID string, input models.OrderInput) error {
	if _, err := c.api.UpdateOrder(ctx, orderID, input); err != nil {
		return c.fail("edit_order", err)
	}
	return c.afterWrite(ctx, "edit_order", []string{orderID})
}

// afterWrite runs once the orders API accepted a write: the server is the
// only source of truth, so the selection goes and list and stats are reloaded.
// The audit event is published in the background and never delays the reload.
func (c *Controller) afterWrite(ctx context.Context, action string, orderIDs []string) error {
	c.selection.Clear()

	if c.audit != nil {
		c.audits.Add(1)
		go func() {
			defer c.audits.Done()
			if err := c.audit.PublishDashboardAction(action, orderIDs, c.sessionID); err != nil {
				c.logger.WithError(err).WithFields(logrus.Fields{
					"session_id": c.sessionID,
					"action":     action,
				}).Warn("Failed to publish dashboard action")
			}
		}()
	}

	return c.load(ctx)
}

// load fetches list and stats concurrently and settles into PhaseReady once
// both have answered. A half that fails keeps its previous data. Results of a
// load overtaken by a newer one are dropped.
func (c *Controller) load(ctx context.Context) error {
	c.mutex.Lock()
	c.loadSeq++
	seq := c.loadSeq
	tab := c.tab
	page := c.window.Page
	limit := c.window.Limit
	c.phase = PhaseLoading
	loading := c.snapshotLocked()
	c.mutex.Unlock()
	c.notify(loading)

	var (
		wg       sync.WaitGroup
		list     *models.OrdersPage
		stats    *models.StatsSnapshot
		listErr  error
		statsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		list, listErr = c.api.ListOrders(ctx, string(tab), page, limit)
	}()
	go func() {
		defer wg.Done()
		stats, statsErr = c.api.GetStats(ctx)
	}()
	wg.Wait()

	c.mutex.Lock()
	if seq != c.loadSeq {
		c.mutex.Unlock()
		c.logger.WithFields(logrus.Fields{
			"session_id": c.sessionID,
			"tab":        tab,
			"page":       page,
		}).Debug("Discarding superseded load")
		return nil
	}

	if listErr == nil {
		c.orders = list.Orders
		c.window.TotalItems = list.Total
	}
	if statsErr == nil {
		c.stats = *stats
	}
	c.phase = PhaseReady

	err := errors.Join(listErr, statsErr)
	if err != nil {
		c.lastError = ErrOperationFailed.Error()
	} else {
		c.lastError = ""
	}
	ready := c.snapshotLocked()
	c.mutex.Unlock()

	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"session_id":   c.sessionID,
			"tab":          tab,
			"page":         page,
			"list_failed":  listErr != nil,
			"stats_failed": statsErr != nil,
		}).Error("Failed to load orders view")
		c.notify(ready)
		return fmt.Errorf("%w: load %s page %d: %w", ErrOperationFailed, tab, page, err)
	}

	c.logger.WithFields(logrus.Fields{
		"session_id": c.sessionID,
		"tab":        tab,
		"page":       page,
		"count":      len(ready.Orders),
		"total":      ready.Window.TotalItems,
	}).Debug("Orders view loaded")
	c.notify(ready)
	return nil
}

func (c *Controller) fail(action string, err error) error {
	c.logger.WithError(err).WithFields(logrus.Fields{
		"session_id": c.sessionID,
		"action":     action,
	}).Error("Dashboard action failed")

	c.mutex.Lock()
	c.lastError = ErrOperationFailed.Error()
	state := c.snapshotLocked()
	c.mutex.Unlock()
	c.notify(state)

	return fmt.Errorf("%w: %s: %w", ErrOperationFailed, action, err)
}

func (c *Controller) snapshotLocked() ViewState {
	orders := make([]models.OrderRecord, len(c.orders))
	copy(orders, c.orders)
	visible := make([]string, 0, len(orders))
	for _, order := range orders {
		visible = append(visible, order.ID)
	}
	return ViewState{
		Phase:       c.phase,
		Tab:         c.tab,
		Window:      c.window,
		Orders:      orders,
		Stats:       c.stats,
		Selected:    c.selection.IDs(),
		AllSelected: c.selection.Covers(visible),
		LastError:   c.lastError,
	}
}

func (c *Controller) notify(state ViewState) {
	for _, observer := range c.observers {
		observer.StateChanged(state)
	}
}
