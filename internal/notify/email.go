package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/heremarket/orders/internal/models"
	"github.com/heremarket/orders/internal/money"
)

// ErrNoRecipient means the order carries no usable address.
var ErrNoRecipient = errors.New("notify: no recipient for order")

// Recipient is who an order email goes to.
type Recipient struct {
	Name  string
	Email string
}

// RecipientLookup resolves the address for an order.
type RecipientLookup interface {
	Recipient(ctx context.Context, order models.Order) (Recipient, error)
}

// MongoRecipients prefers the address captured on the order and falls back to
// the owning customer account.
type MongoRecipients struct {
	db *mongo.Database
}

func NewMongoRecipients(db *mongo.Database) *MongoRecipients {
	return &MongoRecipients{db: db}
}

func (m *MongoRecipients) Recipient(ctx context.Context, order models.Order) (Recipient, error) {
	if email := strings.TrimSpace(order.Customer.Email); email != "" {
		return Recipient{Name: order.Customer.Title, Email: email}, nil
	}
	if order.OwnerID == nil || m.db == nil {
		return Recipient{}, ErrNoRecipient
	}
	oid, err := primitive.ObjectIDFromHex(*order.OwnerID)
	if err != nil {
		return Recipient{}, ErrNoRecipient
	}

	var customer models.Customer
	err = m.db.Collection("customers").FindOne(ctx, bson.M{"_id": oid, "isActive": true}).Decode(&customer)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Recipient{}, ErrNoRecipient
	}
	if err != nil {
		return Recipient{}, fmt.Errorf("lookup customer %s: %w", *order.OwnerID, err)
	}
	if customer.Email == "" {
		return Recipient{}, ErrNoRecipient
	}
	return Recipient{Name: customer.DisplayName(), Email: customer.Email}, nil
}

type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

// EmailSender mails the customer about payment and fulfillment changes.
type EmailSender struct {
	cfg        SMTPConfig
	recipients RecipientLookup
}

func NewEmailSender(cfg SMTPConfig, recipients RecipientLookup) *EmailSender {
	if cfg.Port == "" {
		cfg.Port = "587"
	}
	return &EmailSender{cfg: cfg, recipients: recipients}
}

func (s *EmailSender) Name() string { return "email" }

func (s *EmailSender) Send(ctx context.Context, ev Event) error {
	to, err := s.recipients.Recipient(ctx, ev.Order)
	if errors.Is(err, ErrNoRecipient) {
		return nil
	}
	if err != nil {
		return err
	}
	subject, body := renderEmail(ev, to.Name)
	msg := buildMessage(s.cfg.From, to.Email, subject, body)
	return s.deliver(ctx, to.Email, msg)
}

func (s *EmailSender) deliver(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if s.cfg.User != "" {
		if err := c.Auth(smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(s.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func renderEmail(ev Event, name string) (subject, body string) {
	o := ev.Order
	greeting := "Hello"
	if strings.TrimSpace(name) != "" {
		greeting = "Hello " + strings.TrimSpace(name)
	}

	var line string
	switch ev.Kind {
	case EventPaymentConfirmed:
		subject = fmt.Sprintf("Payment received for order %s", o.HumanReference)
		line = fmt.Sprintf("We received your payment of %s. Your order is now being prepared.", money.Format(o.Total))
	case EventOrderShipped:
		subject = fmt.Sprintf("Order %s has shipped", o.HumanReference)
		line = "Your order is on its way."
	case EventOrderDelivered:
		subject = fmt.Sprintf("Order %s was delivered", o.HumanReference)
		line = "Your order has been delivered. Thank you for shopping with us."
	case EventOrderCancelled:
		subject = fmt.Sprintf("Order %s was cancelled", o.HumanReference)
		line = "Your order has been cancelled."
		if o.CancelReason != "" {
			line += " Reason: " + o.CancelReason + "."
		}
	default:
		subject = fmt.Sprintf("Update on order %s", o.HumanReference)
		line = fmt.Sprintf("Your order status is now %s.", o.Status)
	}

	body = fmt.Sprintf("%s,\r\n\r\n%s\r\n\r\nOrder reference: %s\r\nPlaced: %s\r\n",
		greeting, line, o.HumanReference, o.CreatedAt.Format(time.RFC1123))
	return subject, body
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
