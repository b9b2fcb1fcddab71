// Package sms sends text messages through the Speeda bulk SMS HTTP API.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Provider sends one SMS. Implementations must be safe for concurrent use.
type Provider interface {
	Send(ctx context.Context, phone, message string) error
}

type SpeedaConfig struct {
	URL         string
	APIID       string
	APIPassword string
	SenderID    string
	SMSType     string
}

// Speeda is the production SMS provider.
type Speeda struct {
	cfg  SpeedaConfig
	http *http.Client
}

func NewSpeeda(cfg SpeedaConfig) *Speeda {
	if cfg.SMSType == "" {
		cfg.SMSType = "P"
	}
	return &Speeda{cfg: cfg, http: &http.Client{Timeout: 30 * time.Second}}
}

type speedaRequest struct {
	APIID       string `json:"api_id"`
	APIPassword string `json:"api_password"`
	SMSType     string `json:"sms_type"`
	Encoding    string `json:"encoding"`
	SenderID    string `json:"sender_id"`
	PhoneNumber string `json:"phonenumber"`
	TextMessage string `json:"textmessage"`
}

func (s *Speeda) Send(ctx context.Context, phone, message string) error {
	body, err := json.Marshal(speedaRequest{
		APIID:       s.cfg.APIID,
		APIPassword: s.cfg.APIPassword,
		SMSType:     s.cfg.SMSType,
		Encoding:    "T",
		SenderID:    s.cfg.SenderID,
		PhoneNumber: CleanPhone(phone),
		TextMessage: message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("sms send failed: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sms provider status %d: %s", resp.StatusCode, raw)
	}
	return nil
}

// Mock logs instead of sending. Used when SMS credentials are not configured.
type Mock struct{}

func (Mock) Send(ctx context.Context, phone, message string) error {
	log.Printf("[SMS:mock] to=%s msg=%q", CleanPhone(phone), message)
	return nil
}

// CleanPhone normalizes a Ugandan phone number to international format
// without the plus: +256..., 07..., and bare 9-digit forms all become 256...
func CleanPhone(phone string) string {
	p := strings.TrimSpace(phone)
	p = strings.ReplaceAll(p, " ", "")
	p = strings.ReplaceAll(p, "-", "")
	switch {
	case strings.HasPrefix(p, "+256"):
		return "256" + p[4:]
	case strings.HasPrefix(p, "0"):
		return "256" + p[1:]
	case len(p) == 9:
		return "256" + p
	default:
		return p
	}
}
