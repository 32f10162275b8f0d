package events

import "github.com/nfrund/herald/internal/topicmgr"

// Notification payloads.

type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Content string `json:"content"`
}

type WelcomeEmailPayload struct {
	To   string `json:"to"`
	Name string `json:"name"`
}

type OrderConfirmationPayload struct {
	To      string `json:"to"`
	OrderID string `json:"orderId"`
}

// Inventory payloads.

type StockUpdatePayload struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Warehouse string `json:"warehouse,omitempty"`
}

type LowStockAlertPayload struct {
	ProductID    string `json:"productId"`
	CurrentStock int    `json:"currentStock"`
	Threshold    int    `json:"threshold,omitempty"`
}

// Order payloads.

type OrderCreatedPayload struct {
	OrderID    string  `json:"orderId"`
	CustomerID string  `json:"customerId"`
	Total      float64 `json:"total"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"orderId"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// System payloads.

type SystemWarningPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

var (
	Email             = NewEvent[EmailPayload](topicmgr.TopicNotification, "email")
	WelcomeEmail      = NewEvent[WelcomeEmailPayload](topicmgr.TopicNotification, "welcome_email")
	OrderConfirmation = NewEvent[OrderConfirmationPayload](topicmgr.TopicNotification, "order_confirmation")

	StockUpdate   = NewEvent[StockUpdatePayload](topicmgr.TopicInventory, "stock_update")
	LowStockAlert = NewEvent[LowStockAlertPayload](topicmgr.TopicInventory, "low_stock_alert")

	OrderCreated       = NewEvent[OrderCreatedPayload](topicmgr.TopicOrder, "order_created")
	OrderStatusChanged = NewEvent[OrderStatusChangedPayload](topicmgr.TopicOrder, "order_status_changed")

	SystemWarning = NewEvent[SystemWarningPayload](topicmgr.TopicSystem, "system_warning")
)
