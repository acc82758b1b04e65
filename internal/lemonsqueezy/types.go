package lemonsqueezy

import (
	"fmt"
	"net/http"
)

// Order is a JSON:API order resource. Only the fields the payment context reads are mapped.
type Order struct {
	Type       string          `json:"type"`
	ID         string          `json:"id"`
	Attributes OrderAttributes `json:"attributes"`
}

type OrderAttributes struct {
	StoreID         int64  `json:"store_id"`
	OrderNumber     int64  `json:"order_number"`
	UserName        string `json:"user_name"`
	UserEmail       string `json:"user_email"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
	StatusFormatted string `json:"status_formatted"`
	Total           int64  `json:"total"`
	TotalFormatted  string `json:"total_formatted"`
	Refunded        bool   `json:"refunded"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

type listOrdersResponse struct {
	Data []Order `json:"data"`
}

type errorResponse struct {
	Errors []struct {
		Status string `json:"status"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// APIError is a non-2xx response from the Lemon Squeezy API.
type APIError struct {
	StatusCode int
	Title      string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("lemonsqueezy api %d: %s: %s", e.StatusCode, e.Title, e.Detail)
	}
	return fmt.Sprintf("lemonsqueezy api %d: %s", e.StatusCode, e.Title)
}

func (r errorResponse) toAPIError(statusCode int) *APIError {
	e := &APIError{StatusCode: statusCode, Title: http.StatusText(statusCode)}
	if len(r.Errors) > 0 {
		if r.Errors[0].Title != "" {
			e.Title = r.Errors[0].Title
		}
		e.Detail = r.Errors[0].Detail
	}
	return e
}
