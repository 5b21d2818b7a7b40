package ups

import "context"

// EscrowService manages the lifecycle of escrows created by escrow
// payments. Creating an escrow is a payment: build requirements with
// the Escrow kind and run them through PaymentService.Pay.
type EscrowService struct {
	http *HTTPClient
}

// NewEscrowService creates an EscrowService over the transport.
func NewEscrowService(http *HTTPClient) *EscrowService {
	return &EscrowService{http: http}
}

// Get returns one escrow by id.
func (s *EscrowService) Get(ctx context.Context, escrowID string) (*EscrowRecord, error) {
	var resp EscrowRecord
	if err := s.http.Get(ctx, "/x402/escrow/"+escrowID, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// escrowActionRequest names the network an escrow action settles on.
type escrowActionRequest struct {
	Network string `json:"network"`
}

// Release releases escrowed funds to the payee. Payer or arbiter only.
func (s *EscrowService) Release(ctx context.Context, escrowID, network string) (*EscrowActionResponse, error) {
	var resp EscrowActionResponse
	if err := s.http.Post(ctx, "/x402/escrow/"+escrowID+"/release", escrowActionRequest{Network: network}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refund returns escrowed funds to the payer. Arbiter only.
func (s *EscrowService) Refund(ctx context.Context, escrowID, network string) (*EscrowActionResponse, error) {
	var resp EscrowActionResponse
	if err := s.http.Post(ctx, "/x402/escrow/"+escrowID+"/refund", escrowActionRequest{Network: network}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
