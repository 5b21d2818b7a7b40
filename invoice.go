package ups

import (
	"context"
	"net/url"
	"strconv"
)

// InvoiceService manages invoices. All endpoints require an
// authenticated session; paying an invoice goes through
// PaymentService.PayInvoice.
type InvoiceService struct {
	http *HTTPClient
}

// NewInvoiceService creates an InvoiceService over the transport.
func NewInvoiceService(http *HTTPClient) *InvoiceService {
	return &InvoiceService{http: http}
}

// CreateInvoiceRequest describes a new invoice. Amount is an
// atomic-unit decimal string.
type CreateInvoiceRequest struct {
	Merchant    string      `json:"merchant,omitempty"`
	Amount      string      `json:"amount"`
	Payer       string      `json:"payer,omitempty"`
	DueDate     int64       `json:"due_date"`
	PaymentType PaymentType `json:"payment_type"`
	MetadataURI string      `json:"metadata_uri,omitempty"`
}

// InvoiceResponse wraps a single invoice record.
type InvoiceResponse struct {
	Invoice Invoice `json:"invoice"`
}

// InvoiceListResponse is a page of invoices.
type InvoiceListResponse struct {
	Invoices      []Invoice `json:"invoices"`
	NextPageToken string    `json:"next_page_token,omitempty"`
}

// ListInvoicesParams filters and paginates invoice listings.
type ListInvoicesParams struct {
	Merchant  string
	Payer     string
	PageSize  int
	PageToken string
}

// Create creates a new invoice.
func (s *InvoiceService) Create(ctx context.Context, req CreateInvoiceRequest) (*InvoiceResponse, error) {
	var resp InvoiceResponse
	if err := s.http.Post(ctx, "/invoices", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Get returns one invoice by id.
func (s *InvoiceService) Get(ctx context.Context, id string) (*InvoiceResponse, error) {
	var resp InvoiceResponse
	if err := s.http.Get(ctx, "/invoices/"+id, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// List returns invoices matching the filter.
func (s *InvoiceService) List(ctx context.Context, params ListInvoicesParams) (*InvoiceListResponse, error) {
	query := url.Values{}
	if params.Merchant != "" {
		query.Set("merchant", params.Merchant)
	}
	if params.Payer != "" {
		query.Set("payer", params.Payer)
	}
	if params.PageSize > 0 {
		query.Set("page_size", strconv.Itoa(params.PageSize))
	}
	if params.PageToken != "" {
		query.Set("page_token", params.PageToken)
	}

	path := "/invoices"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var resp InvoiceListResponse
	if err := s.http.Get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel cancels a pending invoice.
func (s *InvoiceService) Cancel(ctx context.Context, id string) (*InvoiceResponse, error) {
	var resp InvoiceResponse
	if err := s.http.Post(ctx, "/invoices/"+id+"/cancel", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
