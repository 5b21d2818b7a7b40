package ups

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// AccountService manages custodial smart accounts. All endpoints
// require an authenticated session.
type AccountService struct {
	http *HTTPClient
}

// NewAccountService creates an AccountService over the transport.
func NewAccountService(http *HTTPClient) *AccountService {
	return &AccountService{http: http}
}

// CreateAccountParams identifies the account to deploy: the owning
// wallet and a 0x-prefixed 32-byte salt making the address
// deterministic.
type CreateAccountParams struct {
	OwnerAddress string `json:"owner_address"`
	Salt         string `json:"salt"`
}

// CreateAccountResponse is the created account and its deployment
// transaction.
type CreateAccountResponse struct {
	Account Account `json:"account"`
	TxHash  string  `json:"tx_hash"`
}

// Create deploys a new smart account.
func (s *AccountService) Create(ctx context.Context, params CreateAccountParams) (*CreateAccountResponse, error) {
	var resp CreateAccountResponse
	if err := s.http.Post(ctx, "/accounts", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// List returns the current user's smart accounts.
func (s *AccountService) List(ctx context.Context) ([]Account, error) {
	var resp struct {
		Accounts []Account `json:"accounts"`
	}
	if err := s.http.Get(ctx, "/accounts", &resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

// Get returns one smart account by id.
func (s *AccountService) Get(ctx context.Context, id string) (*Account, error) {
	var resp struct {
		Account Account `json:"account"`
	}
	if err := s.http.Get(ctx, "/accounts/"+id, &resp); err != nil {
		return nil, err
	}
	return &resp.Account, nil
}

// GetByWallet finds the account whose deployed wallet address matches.
func (s *AccountService) GetByWallet(ctx context.Context, address string) (*Account, error) {
	accounts, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if strings.EqualFold(accounts[i].WalletAddress, address) {
			return &accounts[i], nil
		}
	}
	return nil, fmt.Errorf("no account for wallet %s", address)
}

// PredictAddress computes the address a smart account would deploy to
// for the given owner and salt, without deploying it.
func (s *AccountService) PredictAddress(ctx context.Context, params CreateAccountParams) (string, error) {
	var resp struct {
		WalletAddress string `json:"wallet_address"`
	}
	if err := s.http.Post(ctx, "/accounts/predict", params, &resp); err != nil {
		return "", err
	}
	return resp.WalletAddress, nil
}

// NewSalt returns a random 0x-prefixed 32-byte salt for account
// creation.
func NewSalt() (string, error) {
	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return "0x" + hex.EncodeToString(salt[:]), nil
}
