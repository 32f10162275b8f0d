// Package background reacts to events on the core topics.
package background

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nfrund/herald/internal/events"
	"github.com/nfrund/herald/internal/messaging"
	"github.com/nfrund/herald/internal/metrics"
)

// Subscriber is the part of messaging.Subscriber the processor uses.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler messaging.Handler) error
	Close(ctx context.Context) error
}

// Processor handles notification, inventory, order and system events.
type Processor struct {
	sub     Subscriber
	router  *events.Router
	email   EmailSender
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithEmailSender replaces the log-backed sender.
func WithEmailSender(s EmailSender) Option {
	return func(p *Processor) {
		if s != nil {
			p.email = s
		}
	}
}

// WithMetrics counts processed events on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProcessor wires the event routes. Nothing is subscribed until Start.
func NewProcessor(sub Subscriber, opts ...Option) *Processor {
	p := &Processor{
		sub:    sub,
		logger: slog.Default().With("component", "background"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.email == nil {
		p.email = NewLogEmailSender(p.logger)
	}

	p.router = events.NewRouter(p.logger)
	events.On(p.router, events.Email, p.handleEmail)
	events.On(p.router, events.WelcomeEmail, p.handleWelcomeEmail)
	events.On(p.router, events.OrderConfirmation, p.handleOrderConfirmation)
	events.On(p.router, events.StockUpdate, p.handleStockUpdate)
	events.On(p.router, events.LowStockAlert, p.handleLowStockAlert)
	events.On(p.router, events.OrderCreated, p.handleOrderCreated)
	events.On(p.router, events.OrderStatusChanged, p.handleOrderStatusChanged)
	events.On(p.router, events.SystemWarning, p.handleSystemWarning)
	return p
}

// Start subscribes to every routed topic.
func (p *Processor) Start(ctx context.Context) error {
	for _, topic := range p.router.Topics() {
		if err := p.sub.Subscribe(ctx, topic, p.router.Handle); err != nil {
			return fmt.Errorf("background subscribe %s: %w", topic, err)
		}
	}
	p.logger.Info("Background processor started", "topics", p.router.Topics())
	return nil
}

// Stop releases the processor's subscriptions.
func (p *Processor) Stop(ctx context.Context) error {
	return p.sub.Close(ctx)
}

func (p *Processor) record(eventType string, err error) error {
	p.metrics.EventProcessed(eventType, err == nil)
	return err
}

func (p *Processor) handleEmail(ctx context.Context, env events.Envelope, e events.EmailPayload) error {
	err := p.email.Send(ctx, Email{To: e.To, Subject: e.Subject, Body: e.Content})
	return p.record(env.Type, err)
}

func (p *Processor) handleWelcomeEmail(ctx context.Context, env events.Envelope, e events.WelcomeEmailPayload) error {
	err := p.email.Send(ctx, Email{
		To:      e.To,
		Subject: "Welcome",
		Body:    fmt.Sprintf("Hi %s, welcome to our platform!", e.Name),
	})
	return p.record(env.Type, err)
}

func (p *Processor) handleOrderConfirmation(ctx context.Context, env events.Envelope, e events.OrderConfirmationPayload) error {
	err := p.email.Send(ctx, Email{
		To:      e.To,
		Subject: "Order confirmation " + e.OrderID,
		Body:    fmt.Sprintf("Your order %s has been received.", e.OrderID),
	})
	return p.record(env.Type, err)
}

func (p *Processor) handleStockUpdate(ctx context.Context, env events.Envelope, e events.StockUpdatePayload) error {
	if e.ProductID == "" {
		return p.record(env.Type, fmt.Errorf("stock update without product id"))
	}
	p.logger.Info("Updated stock", "product_id", e.ProductID, "quantity", e.Quantity, "warehouse", e.Warehouse)
	return p.record(env.Type, nil)
}

func (p *Processor) handleLowStockAlert(ctx context.Context, env events.Envelope, e events.LowStockAlertPayload) error {
	p.logger.Warn("Low stock alert", "product_id", e.ProductID, "current_stock", e.CurrentStock)
	return p.record(env.Type, nil)
}

func (p *Processor) handleOrderCreated(ctx context.Context, env events.Envelope, e events.OrderCreatedPayload) error {
	p.logger.Info("Order created", "order_id", e.OrderID, "customer_id", e.CustomerID, "total", e.Total)
	return p.record(env.Type, nil)
}

func (p *Processor) handleOrderStatusChanged(ctx context.Context, env events.Envelope, e events.OrderStatusChangedPayload) error {
	p.logger.Info("Order status changed", "order_id", e.OrderID, "from", e.From, "to", e.To)
	return p.record(env.Type, nil)
}

func (p *Processor) handleSystemWarning(ctx context.Context, env events.Envelope, e events.SystemWarningPayload) error {
	p.logger.Warn("System warning", "level", e.Level, "message", e.Message)
	return p.record(env.Type, nil)
}
