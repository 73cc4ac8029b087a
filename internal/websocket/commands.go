package websocket

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jogardn/order-dashboard/internal/dashboard"
	"github.com/jogardn/order-dashboard/pkg/models"
	"github.com/shopspring/decimal"
)

var ErrInvalidCommand = errors.New("invalid command")

const (
	CommandChangeFilter     = "change_filter"
	CommandChangePage       = "change_page"
	CommandSelectRow        = "select_row"
	CommandSelectAll        = "select_all"
	CommandClearSelection   = "clear_selection"
	CommandDeleteOrder      = "delete_order"
	CommandBulkDelete       = "bulk_delete"
	CommandBulkDuplicate    = "bulk_duplicate"
	CommandBulkUpdateStatus = "bulk_update_status"
	CommandPrint            = "print"
	CommandEditOrder        = "edit_order"
	CommandCreateOrder      = "create_order"
	CommandRefresh          = "refresh"
	CommandGetOrder         = "get_order"
)

// Command is a message sent by the browser. Only the fields its type needs are read.
type Command struct {
	Type   string        `json:"type" validate:"required,oneof=change_filter change_page select_row select_all clear_selection delete_order bulk_delete bulk_duplicate bulk_update_status print edit_order create_order refresh get_order"`
	Tab    string        `json:"tab,omitempty"`
	Page   int           `json:"page,omitempty"`
	ID     string        `json:"id,omitempty"`
	Status string        `json:"status,omitempty"`
	Order  *OrderPayload `json:"order,omitempty" validate:"-"`
}

type OrderPayload struct {
	CustomerName   string           `json:"customer_name" validate:"omitempty,max=255"`
	CustomerEmail  string           `json:"customer_email" validate:"omitempty,email"`
	CustomerAvatar string           `json:"customer_avatar" validate:"omitempty,url"`
	TotalAmount    *decimal.Decimal `json:"total_amount" validate:"-"`
	Status         string           `json:"status" validate:"omitempty,oneof=pending completed refunded"`
	PaymentStatus  string           `json:"payment_status" validate:"omitempty,oneof=paid unpaid"`
}

func (p *OrderPayload) input() models.OrderInput {
	input := models.OrderInput{
		TotalAmount:   p.TotalAmount,
		Status:        models.Status(p.Status),
		PaymentStatus: p.PaymentStatus,
	}
	if p.CustomerName != "" || p.CustomerEmail != "" || p.CustomerAvatar != "" {
		input.Customer = &models.Customer{Name: p.CustomerName, Email: p.CustomerEmail}
		if p.CustomerAvatar != "" {
			avatar := p.CustomerAvatar
			input.Customer.Avatar = &avatar
		}
	}
	return input
}

type commandValidator struct {
	validate *validator.Validate
}

func newCommandValidator() *commandValidator {
	return &commandValidator{validate: validator.New()}
}

func (v *commandValidator) check(cmd *Command) error {
	if err := v.validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	var err error
	switch cmd.Type {
	case CommandChangeFilter:
		err = v.validate.Var(cmd.Tab, "required,oneof=all incomplete overdue ongoing finished")
	case CommandChangePage:
		err = v.validate.Var(cmd.Page, "min=1")
	case CommandSelectRow, CommandDeleteOrder, CommandGetOrder:
		err = v.validate.Var(cmd.ID, "required")
	case CommandBulkUpdateStatus:
		err = v.validate.Var(cmd.Status, "required,oneof=pending completed refunded")
	case CommandEditOrder:
		if err = v.validate.Var(cmd.ID, "required"); err == nil {
			err = v.checkOrder(cmd.Order, false)
		}
	case CommandCreateOrder:
		err = v.checkOrder(cmd.Order, true)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidCommand, cmd.Type, err)
	}
	return nil
}

func (v *commandValidator) checkOrder(order *OrderPayload, create bool) error {
	if order == nil {
		return errors.New("order is required")
	}
	if err := v.validate.Struct(order); err != nil {
		return err
	}
	if order.TotalAmount != nil && order.TotalAmount.IsNegative() {
		return errors.New("total_amount must not be negative")
	}
	if create && (order.CustomerName == "" || order.CustomerEmail == "" || order.TotalAmount == nil) {
		return errors.New("customer_name, customer_email and total_amount are required")
	}
	return nil
}

// dispatch runs a validated command against the session's controller. A
// non-nil reply is sent back to the browser as an order message.
func dispatch(ctx context.Context, c *dashboard.Controller, cmd *Command) (interface{}, error) {
	switch cmd.Type {
	case CommandGetOrder:
		order, err := c.OpenOrder(ctx, cmd.ID)
		if err != nil {
			return nil, err
		}
		return order, nil
	case CommandChangeFilter:
		return nil, c.ChangeFilter(ctx, dashboard.Tab(cmd.Tab))
	case CommandChangePage:
		return nil, c.ChangePage(ctx, cmd.Page)
	case CommandSelectRow:
		c.SelectRow(cmd.ID)
	case CommandSelectAll:
		c.SelectAllVisible()
	case CommandClearSelection:
		c.ClearSelection()
	case CommandDeleteOrder:
		return nil, c.DeleteOne(ctx, cmd.ID)
	case CommandBulkDelete:
		return nil, c.BulkDelete(ctx)
	case CommandBulkDuplicate:
		return nil, c.BulkDuplicate(ctx)
	case CommandBulkUpdateStatus:
		return nil, c.BulkUpdateStatus(ctx, models.Status(cmd.Status))
	case CommandPrint:
		c.PrintSelection()
	case CommandEditOrder:
		return nil, c.EditOrder(ctx, cmd.ID, cmd.Order.input())
	case CommandCreateOrder:
		return nil, c.CreateOrder(ctx, cmd.Order.input())
	case CommandRefresh:
		return nil, c.Refresh(ctx)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, cmd.Type)
	}
	return nil, nil
}
