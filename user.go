package ups

import "context"

// UserService exposes user-profile operations.
type UserService struct {
	http *HTTPClient
}

// NewUserService creates a UserService over the transport.
func NewUserService(http *HTTPClient) *UserService {
	return &UserService{http: http}
}

// Me returns the authenticated user's profile.
func (s *UserService) Me(ctx context.Context) (*User, error) {
	var resp struct {
		User User `json:"user"`
	}
	if err := s.http.Get(ctx, "/users/me", &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}
