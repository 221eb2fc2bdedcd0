// Package mail delivers one-time codes out of band. The request path only
// enqueues; a small worker pool performs the actual sends so an SMTP stall
// never blocks an HTTP handler. Delivery is fire-and-forget: failures are
// logged, never propagated, and never refund rate-limit quota.
package mail

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"sync"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender performs a single blocking send.
type Sender interface {
	Send(msg Message) error
}

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// SMTPSender sends mail through a plain-auth SMTP relay.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender constructs an SMTPSender.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPSender{cfg: cfg}, nil
}

// Send implements Sender.
func (s *SMTPSender) Send(msg Message) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		s.cfg.From, msg.To, msg.Subject, msg.Body)
	return smtp.SendMail(addr, auth, s.cfg.From, []string{msg.To}, []byte(body))
}

// LogSender writes messages to the log instead of sending them. It is the
// fallback when no SMTP relay is configured, so development setups still
// surface the codes.
type LogSender struct {
	Logger *slog.Logger
}

// Send implements Sender.
func (s *LogSender) Send(msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Mail delivery skipped (no SMTP configured)",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body)
	return nil
}

// Dispatcher fans messages out to a worker pool over a bounded queue.
type Dispatcher struct {
	sender Sender
	queue  chan Message
	logger *slog.Logger
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// NewDispatcher starts workers goroutines consuming a queue of queueSize.
// Call Stop to drain and terminate them.
func NewDispatcher(sender Sender, workers, queueSize int, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 128
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		sender: sender,
		queue:  make(chan Message, queueSize),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Enqueue submits a message without blocking. When the queue is full the
// message is dropped and logged: a slow relay must not back-pressure the
// request path.
func (d *Dispatcher) Enqueue(msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.logger.Warn("Mail dropped: dispatcher stopped", "to", msg.To)
		return false
	}
	select {
	case d.queue <- msg:
		return true
	default:
		d.logger.Warn("Mail dropped: queue full", "to", msg.To, "capacity", cap(d.queue))
		return false
	}
}

// Stop closes the queue, waits for in-flight sends, and returns. Safe to
// call more than once.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.queue {
		if err := d.sender.Send(msg); err != nil {
			// Failed sends are logged and forgotten; the caller's
			// quota was already spent.
			d.logger.Error("Mail delivery failed", "to", msg.To, "error", err)
		}
	}
}
