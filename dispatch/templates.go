package dispatch

import (
	"fmt"
	"strings"
	"sync"
	"text/template"

	"matchwire/contract"
	"matchwire/domain"
)

// TemplateStore compiles and renders the per-event-type notification copy.
// Each event type registers up to four parts: title, body, email subject and
// email body. Metadata keys are available as template fields.
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
}

type templateSet struct {
	Title        string
	Body         string
	EmailSubject string
	EmailBody    string
}

// NewTemplateStore seeds the store with the platform's default copy.
func NewTemplateStore() *TemplateStore {
	store := &TemplateStore{templates: make(map[string]*template.Template)}
	defaults := map[domain.EventType]templateSet{
		domain.EventNewMessage: {
			Title:        "New message",
			Body:         "{{or .sender_name \"Someone\"}} sent you a message",
			EmailSubject: "You have a new message",
			EmailBody:    "{{or .sender_name \"Someone\"}} sent you a message. Log in to read and reply.",
		},
		domain.EventProfileView: {
			Title: "Profile visit",
			Body:  "{{or .viewer_name \"Someone\"}} viewed your profile",
		},
		domain.EventInterestReceived: {
			Title: "New interest",
			Body:  "{{or .sender_name \"Someone\"}} expressed interest in your profile",
		},
		domain.EventInterestAccepted: {
			Title: "Interest accepted",
			Body:  "{{or .sender_name \"Someone\"}} accepted your interest. You can now chat.",
		},
		domain.EventPaymentFailed: {
			Title:        "Payment failed",
			Body:         "Your last payment could not be processed",
			EmailSubject: "Action needed: payment failed",
			EmailBody:    "Your last payment could not be processed. Update your payment method to keep your plan active.",
		},
		domain.EventPlanExpiring: {
			Title: "Plan expiring soon",
			Body:  "Your plan expires on {{or .expires_on \"soon\"}}",
		},
	}
	for eventType, set := range defaults {
		_ = store.Register(eventType, set)
	}
	return store
}

// Register adds or replaces the template set of an event type.
func (s *TemplateStore) Register(eventType domain.EventType, set templateSet) error {
	parts := map[string]string{
		"title":         set.Title,
		"body":          set.Body,
		"email_subject": set.EmailSubject,
		"email_body":    set.EmailBody,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for part, raw := range parts {
		if raw == "" {
			continue
		}
		name := fmt.Sprintf("%s.%s", eventType, part)
		tmpl, err := template.New(name).Parse(raw)
		if err != nil {
			return fmt.Errorf("parse template %s: %w", name, err)
		}
		s.templates[name] = tmpl
	}
	return nil
}

// Render satisfies contract.TemplateRenderer.
func (s *TemplateStore) Render(eventType domain.EventType, metadata map[string]string) (contract.RenderedTemplate, error) {
	title, err := s.renderPart(eventType, "title", metadata)
	if err != nil {
		return contract.RenderedTemplate{}, err
	}
	if title == "" {
		return contract.RenderedTemplate{}, fmt.Errorf("no template registered for event type %s", eventType)
	}
	body, err := s.renderPart(eventType, "body", metadata)
	if err != nil {
		return contract.RenderedTemplate{}, err
	}
	emailSubject, err := s.renderPart(eventType, "email_subject", metadata)
	if err != nil {
		return contract.RenderedTemplate{}, err
	}
	emailBody, err := s.renderPart(eventType, "email_body", metadata)
	if err != nil {
		return contract.RenderedTemplate{}, err
	}
	return contract.RenderedTemplate{
		Title:        title,
		Body:         body,
		EmailSubject: emailSubject,
		EmailBody:    emailBody,
	}, nil
}

func (s *TemplateStore) renderPart(eventType domain.EventType, part string, metadata map[string]string) (string, error) {
	s.mu.RLock()
	tmpl, ok := s.templates[fmt.Sprintf("%s.%s", eventType, part)]
	s.mu.RUnlock()
	if !ok {
		return "", nil
	}

	data := make(map[string]string, len(metadata))
	for k, v := range metadata {
		data[k] = v
	}
	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render template %s.%s: %w", eventType, part, err)
	}
	return out.String(), nil
}
