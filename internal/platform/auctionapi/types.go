package auctionapi

// LoginRequest is the credential payload for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the payload for POST /auth/register.
type RegisterRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	AcceptTerms bool   `json:"acceptTerms"`
}

// placeBidRequest is the payload for POST /bids. The connection id rides in
// the X-Connection-Id header, not the body, so intermediaries that log bodies
// never see it.
type placeBidRequest struct {
	AuctionID string  `json:"auctionId"`
	Amount    float64 `json:"amount"`
}

// errorBody is the error shape the marketplace API returns on non-2xx
// responses.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
