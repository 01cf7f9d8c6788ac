package provider

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const redacted = "[REDACTED]"

var secretParams = []string{"access_token", "input_token", "apiKey", "apikey"}

// LogRequest writes a debug entry for an outbound vendor call with credentials redacted.
func LogRequest(logger *zap.Logger, method, rawURL string, headers http.Header, body []byte) {
	if ce := logger.Check(zap.DebugLevel, "vendor request"); ce != nil {
		ce.Write(
			zap.String("method", method),
			zap.String("url", RedactURL(rawURL)),
			zap.Any("headers", redactHeaders(headers)),
			zap.String("body", truncateBody(body)),
		)
	}
}

// LogResponse writes a debug entry for a vendor response.
func LogResponse(logger *zap.Logger, statusCode int, headers http.Header, body []byte) {
	if ce := logger.Check(zap.DebugLevel, "vendor response"); ce != nil {
		ce.Write(
			zap.Int("status", statusCode),
			zap.String("content_type", headers.Get("Content-Type")),
			zap.Int("bytes", len(body)),
			zap.String("body", truncateBody(body)),
		)
	}
}

// RedactURL masks credential query parameters.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	changed := false
	for _, p := range secretParams {
		if q.Has(p) {
			q.Set(p, redacted)
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func redactHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for key, values := range headers {
		value := strings.Join(values, ", ")
		if strings.EqualFold(key, "authorization") {
			value = redacted
		}
		out[key] = value
	}
	return out
}

func truncateBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if !json.Valid(body) {
		if isForm(body) {
			return RedactForm(string(body))
		}
		if len(body) > 200 {
			return "[" + http.DetectContentType(body) + " payload]"
		}
		return string(body)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return string(body)
	}
	truncateLongFields(data)
	out, err := json.Marshal(data)
	if err != nil {
		return string(body)
	}
	return string(out)
}

// RedactForm masks credential fields in a url-encoded form body.
func RedactForm(form string) string {
	values, err := url.ParseQuery(form)
	if err != nil {
		return form
	}
	for _, p := range secretParams {
		if values.Has(p) {
			values.Set(p, redacted)
		}
	}
	return values.Encode()
}

func isForm(body []byte) bool {
	s := string(body)
	return strings.Contains(s, "=") && !strings.ContainsAny(s, " \n{")
}

func truncateLongFields(data map[string]interface{}) {
	for key, value := range data {
		switch v := value.(type) {
		case string:
			if len(v) > 100 {
				data[key] = v[:100] + "... [truncated]"
			}
		case map[string]interface{}:
			truncateLongFields(v)
		case []interface{}:
			for _, item := range v {
				if m, ok := item.(map[string]interface{}); ok {
					truncateLongFields(m)
				}
			}
		}
	}
}
