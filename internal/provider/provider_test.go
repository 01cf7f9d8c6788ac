package provider

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestConfig_Timeout(t *testing.T) {
	cfg := &Config{}
	if got := cfg.Timeout(30 * time.Second); got != 30*time.Second {
		t.Errorf("Timeout() = %v, want 30s", got)
	}

	cfg.TimeoutSec = 5
	if got := cfg.Timeout(30 * time.Second); got != 5*time.Second {
		t.Errorf("Timeout() = %v, want 5s", got)
	}
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Kind: ErrUpload, StatusCode: 400, Body: `{"error":"bad image"}`}

	if !errors.Is(err, ErrUpload) {
		t.Error("StatusError should unwrap to its kind")
	}
	if errors.Is(err, ErrPublish) {
		t.Error("StatusError should not match other kinds")
	}
	if !strings.Contains(err.Error(), "status 400") {
		t.Errorf("Error() = %q, want status code", err.Error())
	}

	wrapped := fmt.Errorf("upload step: %w", err)
	if got := Message(wrapped); got != `{"error":"bad image"}` {
		t.Errorf("Message() = %q, want raw body", got)
	}
}

func TestGenerationError(t *testing.T) {
	err := &GenerationError{Attempts: 3, Err: fmt.Errorf("%w: last", ErrExhaustedRetries)}

	if !errors.Is(err, ErrExhaustedRetries) {
		t.Error("GenerationError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "3 attempt(s)") {
		t.Errorf("Error() = %q", err.Error())
	}

	var ge *GenerationError
	if !errors.As(fmt.Errorf("wrap: %w", err), &ge) || ge.Attempts != 3 {
		t.Error("errors.As should find GenerationError")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrRateLimited, true},
		{ErrTransientServer, true},
		{fmt.Errorf("dial: %w", ErrNetwork), true},
		{&StatusError{Kind: ErrRateLimited, StatusCode: 429}, true},
		{ErrAuth, false},
		{ErrNotFound, false},
		{ErrValidation, false},
		{ErrUpload, false},
		{errors.New("other"), false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestMessage(t *testing.T) {
	if Message(nil) != "" {
		t.Error("Message(nil) should be empty")
	}
	if got := Message(errors.New("plain")); got != "plain" {
		t.Errorf("Message() = %q, want plain", got)
	}
	if got := Message(&StatusError{Kind: ErrPublish, StatusCode: 500}); !strings.Contains(got, "status 500") {
		t.Errorf("Message() with empty body = %q, want full error", got)
	}
}

func TestRedactURL(t *testing.T) {
	got := RedactURL("https://graph.facebook.com/v18.0/debug_token?input_token=secret&access_token=secret&fields=id")
	if strings.Contains(got, "secret") {
		t.Errorf("RedactURL() leaked token: %s", got)
	}
	if !strings.Contains(got, "fields=id") {
		t.Errorf("RedactURL() dropped other params: %s", got)
	}

	plain := "https://api.imgur.com/3/image"
	if got := RedactURL(plain); got != plain {
		t.Errorf("RedactURL(%q) = %q", plain, got)
	}
}

func TestRedactForm(t *testing.T) {
	got := RedactForm("creation_id=123&access_token=s3cr3t-value")
	if strings.Contains(got, "s3cr3t-value") {
		t.Errorf("RedactForm() leaked token: %s", got)
	}
	values, err := url.ParseQuery(got)
	if err != nil {
		t.Fatalf("RedactForm() = %q is not a form: %v", got, err)
	}
	if values.Get("access_token") != "[REDACTED]" || values.Get("creation_id") != "123" {
		t.Errorf("RedactForm() = %s", got)
	}
}

func TestLogRequest_RedactsCredentials(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	headers := http.Header{}
	headers.Set("Authorization", "Bearer hf_secret")
	headers.Set("Content-Type", "application/json")

	LogRequest(logger, http.MethodPost, "https://example.com/models/x?access_token=ig-s3cr3t", headers, []byte(`{"inputs":"a cat"}`))
	LogResponse(logger, 200, http.Header{"Content-Type": []string{"image/png"}}, []byte{0x89, 'P', 'N', 'G'})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d log entries, want 2", len(entries))
	}

	for _, e := range entries {
		for _, f := range e.Context {
			if strings.Contains(fmt.Sprint(f.Interface), "hf_secret") || strings.Contains(f.String, "ig-s3cr3t") {
				t.Errorf("log field %s leaked a credential", f.Key)
			}
		}
	}

	fields := entries[0].ContextMap()
	if h, ok := fields["headers"].(map[string]string); !ok || h["Authorization"] != "[REDACTED]" {
		t.Errorf("headers field = %#v, want redacted Authorization", fields["headers"])
	}
}

func TestLogRequest_SkippedAboveDebug(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	LogRequest(zap.New(core), http.MethodGet, "https://example.com", http.Header{}, nil)
	if logs.Len() != 0 {
		t.Errorf("got %d entries at info level, want 0", logs.Len())
	}
}

func TestTruncateBody(t *testing.T) {
	long := strings.Repeat("A", 500)
	got := truncateBody([]byte(`{"image":"` + long + `","type":"base64"}`))
	if strings.Contains(got, long) {
		t.Error("truncateBody() should shorten long JSON strings")
	}
	if !strings.Contains(got, "[truncated]") {
		t.Errorf("truncateBody() = %s", got)
	}

	binary := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 300)...)
	if got := truncateBody(binary); !strings.HasPrefix(got, "[image/png") {
		t.Errorf("truncateBody(binary) = %q", got)
	}
}
