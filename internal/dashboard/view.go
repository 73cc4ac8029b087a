package dashboard

import (
	"strings"

	"github.com/jogardn/order-dashboard/pkg/models"
	"github.com/shopspring/decimal"
)

const displayDateLayout = "2 Jan 2006"

// FormatDate renders an order date as e.g. "5 Mar 2024".
func FormatDate(d models.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(displayDateLayout)
}

// FormatAmount renders an order total as e.g. "$19.50".
func FormatAmount(amount decimal.Decimal) string {
	return "$" + amount.StringFixed(2)
}

type StatusStyle string

const (
	StyleWarning StatusStyle = "warning"
	StyleSuccess StatusStyle = "success"
	StyleDanger  StatusStyle = "danger"
	StyleNeutral StatusStyle = "neutral"
)

// StatusStyleFor maps every status to a badge style. Statuses the dashboard
// does not know get the neutral style.
func StatusStyleFor(status models.Status) StatusStyle {
	switch status {
	case models.StatusPending:
		return StyleWarning
	case models.StatusCompleted:
		return StyleSuccess
	case models.StatusRefunded:
		return StyleDanger
	default:
		return StyleNeutral
	}
}

func StatusLabel(status models.Status) string {
	s := string(status)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

type StatCard struct {
	Label string `json:"label"`
	Value int    `json:"value"`
	Dot   string `json:"dot"`
}

func StatsCards(stats models.StatsSnapshot) []StatCard {
	return []StatCard{
		{Label: "Total Orders This Month", Value: stats.TotalOrdersThisMonth, Dot: "blue"},
		{Label: "Pending Orders", Value: stats.PendingOrders, Dot: "yellow"},
		{Label: "Shipped Orders", Value: stats.ShippedOrders, Dot: "green"},
		{Label: "Refunded Orders", Value: stats.RefundedOrders, Dot: "red"},
	}
}

type TabView struct {
	ID     Tab    `json:"id"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

type RowView struct {
	ID            string      `json:"id"`
	OrderNumber   string      `json:"order_number"`
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email"`
	Avatar        string      `json:"avatar,omitempty"`
	Date          string      `json:"date"`
	Status        string      `json:"status"`
	StatusStyle   StatusStyle `json:"status_style"`
	Amount        string      `json:"amount"`
	PaymentStatus string      `json:"payment_status"`
	Selected      bool        `json:"selected"`
}

type PaginationView struct {
	Page       int  `json:"page"`
	TotalPages int  `json:"total_pages"`
	TotalItems int  `json:"total_items"`
	First      int  `json:"first"`
	Last       int  `json:"last"`
	HasPrev    bool `json:"has_prev"`
	HasNext    bool `json:"has_next"`
}

type BulkBarView struct {
	Visible bool `json:"visible"`
	Count   int  `json:"count"`
}

// PageView is everything the presentation layer needs to draw the dashboard.
type PageView struct {
	Phase       string         `json:"phase"`
	Loading     bool           `json:"loading"`
	Tabs        []TabView      `json:"tabs"`
	Stats       []StatCard     `json:"stats"`
	Rows        []RowView      `json:"rows"`
	AllSelected bool           `json:"all_selected"`
	BulkBar     BulkBarView    `json:"bulk_bar"`
	Pagination  PaginationView `json:"pagination"`
	Error       string         `json:"error,omitempty"`
}

func Render(state ViewState) PageView {
	tabs := make([]TabView, 0, len(tabOrder))
	for _, t := range tabOrder {
		tabs = append(tabs, TabView{ID: t.tab, Label: t.label, Active: t.tab == state.Tab})
	}

	rows := make([]RowView, 0, len(state.Orders))
	for _, order := range state.Orders {
		row := RowView{
			ID:            order.ID,
			OrderNumber:   order.OrderNumber,
			CustomerName:  order.Customer.Name,
			CustomerEmail: order.Customer.Email,
			Date:          FormatDate(order.OrderDate),
			Status:        StatusLabel(order.Status),
			StatusStyle:   StatusStyleFor(order.Status),
			Amount:        FormatAmount(order.TotalAmount),
			PaymentStatus: order.PaymentStatus,
			Selected:      state.IsSelected(order.ID),
		}
		if order.Customer.Avatar != nil {
			row.Avatar = *order.Customer.Avatar
		}
		rows = append(rows, row)
	}

	first, last := state.Window.Range()
	return PageView{
		Phase:       state.Phase.String(),
		Loading:     state.Loading(),
		Tabs:        tabs,
		Stats:       StatsCards(state.Stats),
		Rows:        rows,
		AllSelected: state.AllSelected,
		BulkBar: BulkBarView{
			Visible: len(state.Selected) > 0,
			Count:   len(state.Selected),
		},
		Pagination: PaginationView{
			Page:       state.Window.Page,
			TotalPages: state.Window.TotalPages(),
			TotalItems: state.Window.TotalItems,
			First:      first,
			Last:       last,
			HasPrev:    state.Window.Page > 1,
			HasNext:    state.Window.Page < state.Window.TotalPages(),
		},
		Error: state.LastError,
	}
}
