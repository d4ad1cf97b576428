package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	dysmsapi20170525 "github.com/alibabacloud-go/dysmsapi-20170525/v5/client"
	util "github.com/alibabacloud-go/tea-utils/v2/service"
	"github.com/alibabacloud-go/tea/tea"

	"github.com/angelmondragon/storefront-fulfillment/pkg/config"
)

const (
	ProviderPubSub = "pubsub"
	ProviderSMS    = "sms"
	ProviderSMTP   = "smtp"

	smsBodyLimit = 60
)

// BuildProviders assembles the provider chain in configured order. Providers
// without credentials are left out of the chain.
func BuildProviders(cfg config.NotificationsConfig, publisher *gcppubsub.Publisher) ([]Provider, error) {
	var providers []Provider
	for _, raw := range cfg.Providers {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch name {
		case "":
			continue
		case ProviderPubSub:
			if publisher == nil {
				continue
			}
			providers = append(providers, NewPubSubProvider(newGCPPublisher(publisher)))
		case ProviderSMS:
			if cfg.SMSAccessKeyID == "" || cfg.SMSAccessKeySecret == "" {
				continue
			}
			provider, err := NewSMSProvider(cfg)
			if err != nil {
				return nil, err
			}
			providers = append(providers, provider)
		case ProviderSMTP:
			if cfg.SMTPHost == "" {
				continue
			}
			providers = append(providers, NewSMTPProvider(cfg))
		default:
			return nil, fmt.Errorf("unknown notification provider %q", raw)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no notification provider configured")
	}
	return providers, nil
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type notificationEnvelope struct {
	Kind        string         `json:"kind"`
	RecipientID string         `json:"recipient_id,omitempty"`
	Email       string         `json:"email,omitempty"`
	Phone       string         `json:"phone,omitempty"`
	OrderID     string         `json:"order_id,omitempty"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Data        map[string]any `json:"data,omitempty"`
	SentAt      time.Time      `json:"sent_at"`
}

// PubSubProvider hands messages to the notification topic for downstream
// push/email fan-out.
type PubSubProvider struct {
	publisher publisher
	now       func() time.Time
}

func NewPubSubProvider(p publisher) *PubSubProvider {
	return &PubSubProvider{publisher: p, now: time.Now}
}

func (p *PubSubProvider) Name() string { return ProviderPubSub }

func (p *PubSubProvider) Send(ctx context.Context, msg Message) error {
	if p == nil || p.publisher == nil {
		return fmt.Errorf("notification publisher not configured")
	}
	envelope := notificationEnvelope{
		Kind:   string(msg.Kind),
		Email:  msg.Email,
		Phone:  msg.Phone,
		Title:  msg.Title,
		Body:   msg.Body,
		Data:   msg.Data,
		SentAt: p.now().UTC(),
	}
	if msg.RecipientID != nil {
		envelope.RecipientID = msg.RecipientID.String()
	}
	if msg.OrderID != nil {
		envelope.OrderID = msg.OrderID.String()
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	result := p.publisher.Publish(ctx, &gcppubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"kind": string(msg.Kind)},
	})
	if result == nil {
		return fmt.Errorf("publish returned no result")
	}
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return p.Publisher.Publish(ctx, msg)
}

type smsSender interface {
	SendSmsWithOptions(request *dysmsapi20170525.SendSmsRequest, runtime *util.RuntimeOptions) (*dysmsapi20170525.SendSmsResponse, error)
}

// SMSProvider sends a short text through Aliyun SMS. It needs a phone number
// on the message.
type SMSProvider struct {
	client       smsSender
	signName     string
	templateCode string
}

func NewSMSProvider(cfg config.NotificationsConfig) (*SMSProvider, error) {
	apiConfig := &openapi.Config{
		AccessKeyId:     tea.String(cfg.SMSAccessKeyID),
		AccessKeySecret: tea.String(cfg.SMSAccessKeySecret),
	}
	apiConfig.Endpoint = tea.String(cfg.SMSEndpoint)
	client, err := dysmsapi20170525.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("create sms client: %w", err)
	}
	return newSMSProvider(client, cfg.SMSSignName, cfg.SMSTemplateCode), nil
}

func newSMSProvider(client smsSender, signName, templateCode string) *SMSProvider {
	return &SMSProvider{client: client, signName: signName, templateCode: templateCode}
}

func (p *SMSProvider) Name() string { return ProviderSMS }

func (p *SMSProvider) Send(ctx context.Context, msg Message) error {
	phone := strings.TrimSpace(msg.Phone)
	if phone == "" {
		return ErrNoRoute
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	params, err := json.Marshal(map[string]string{
		"title":   truncate(msg.Title, smsBodyLimit),
		"content": truncate(msg.Body, smsBodyLimit),
	})
	if err != nil {
		return err
	}
	resp, err := p.client.SendSmsWithOptions(&dysmsapi20170525.SendSmsRequest{
		PhoneNumbers:  tea.String(phone),
		SignName:      tea.String(p.signName),
		TemplateCode:  tea.String(p.templateCode),
		TemplateParam: tea.String(string(params)),
	}, &util.RuntimeOptions{})
	if err != nil {
		if sdkErr, ok := err.(*tea.SDKError); ok {
			return fmt.Errorf("send sms: %s", tea.StringValue(sdkErr.Message))
		}
		return fmt.Errorf("send sms: %w", err)
	}
	if resp == nil || resp.Body == nil {
		return fmt.Errorf("send sms: empty response")
	}
	if code := tea.StringValue(resp.Body.Code); !strings.EqualFold(code, "OK") {
		return fmt.Errorf("send sms: %s %s", code, tea.StringValue(resp.Body.Message))
	}
	return nil
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPProvider sends plain-text mail. It needs an email on the message.
type SMTPProvider struct {
	addr     string
	host     string
	from     string
	username string
	password string
	sendMail sendMailFunc
}

func NewSMTPProvider(cfg config.NotificationsConfig) *SMTPProvider {
	port := cfg.SMTPPort
	if port <= 0 {
		port = 587
	}
	return &SMTPProvider{
		addr:     net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(port)),
		host:     cfg.SMTPHost,
		from:     cfg.SMTPFrom,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		sendMail: smtp.SendMail,
	}
}

func (p *SMTPProvider) Name() string { return ProviderSMTP }

func (p *SMTPProvider) Send(ctx context.Context, msg Message) error {
	to := strings.TrimSpace(msg.Email)
	if to == "" {
		return ErrNoRoute
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if p.username != "" {
		auth = smtp.PlainAuth("", p.username, p.password, p.host)
	}
	if err := p.sendMail(p.addr, auth, p.from, []string{to}, p.compose(to, msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func (p *SMTPProvider) compose(to string, msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", p.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(msg.Title))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

func sanitizeHeader(value string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
