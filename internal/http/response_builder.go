package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// HTMXResponseBuilder provides a fluent API for building responses to the
// reports screen. It collects HX-Trigger events and the HX-Replace-Url
// header that keeps the browser address in step with the committed filter.
type HTMXResponseBuilder struct {
	triggers   map[string]interface{}
	statusCode int
	body       []byte
	headers    map[string]string
}

// NewHTMXResponse creates a new response builder with default 200 status.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]interface{}),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds a named trigger with optional data to the HX-Trigger header.
func (b *HTMXResponseBuilder) Trigger(name string, data interface{}) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

// ReplaceURL sets HX-Replace-Url so the browser rewrites its address without
// a new history entry.
func (b *HTMXResponseBuilder) ReplaceURL(u string) *HTMXResponseBuilder {
	if u != "" {
		b.headers["HX-Replace-Url"] = u
	}
	return b
}

// TriggerFilterChanged announces the committed filter.
func (b *HTMXResponseBuilder) TriggerFilterChanged(tab, site, supervisor, startDate, endDate string) *HTMXResponseBuilder {
	return b.Trigger("reports:filter-changed", map[string]string{
		"tab":        tab,
		"site":       site,
		"supervisor": supervisor,
		"startDate":  startDate,
		"endDate":    endDate,
	})
}

// TriggerFetchFailed tells the screen to show the error banner.
func (b *HTMXResponseBuilder) TriggerFetchFailed(tab, message string) *HTMXResponseBuilder {
	return b.Trigger("reports:fetch-failed", map[string]string{"tab": tab, "message": message})
}

// NotificationType represents the type of notification to display.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
)

// TriggerNotification adds a show-notification trigger with the specified parameters.
func (b *HTMXResponseBuilder) TriggerNotification(notifType NotificationType, message string, durationMs int) *HTMXResponseBuilder {
	return b.Trigger("show-notification", map[string]interface{}{
		"type":     string(notifType),
		"message":  message,
		"duration": durationMs,
	})
}

// TriggerErrorNotification is a convenience method for error notifications.
func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationError, message, 5000)
}

// Header adds a custom header to the response.
func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the response body as bytes.
func (b *HTMXResponseBuilder) Body(content []byte) *HTMXResponseBuilder {
	b.body = content
	return b
}

// JSON encodes v as the body. An encoding failure turns the response into a 500.
func (b *HTMXResponseBuilder) JSON(v interface{}) *HTMXResponseBuilder {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		b.statusCode = http.StatusInternalServerError
		data = []byte(`{"error":"internal error"}`)
	}
	b.headers["Content-Type"] = "application/json"
	b.body = data
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if len(b.triggers) > 0 {
		triggerJSON, err := json.Marshal(b.triggers)
		if err == nil {
			w.Header().Set("HX-Trigger", string(triggerJSON))
		}
	}

	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates a standard JSON error response.
func ErrorResponse(statusCode int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(statusCode).
		JSON(errorBody{Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// ConflictError creates a 409 Conflict error response.
func ConflictError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusConflict, message)
}

// UnprocessableEntityError creates a 422 Unprocessable Entity error response.
func UnprocessableEntityError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// ServiceUnavailableError creates a 503 Service Unavailable error response.
func ServiceUnavailableError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusServiceUnavailable, message)
}
