package domain

import "time"

// UserProfile is the public profile of a marketplace user.
type UserProfile struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	MemberSince   time.Time `json:"memberSince"`
	FeedbackScore float64   `json:"feedbackScore"`
	TotalSales    int       `json:"totalSales"`
	TotalAuctions int       `json:"totalAuctions"`
}

// TokenResponse is the auth payload returned by login, register, and
// token-refresh calls. How tokens are stored is up to the application.
type TokenResponse struct {
	AccessToken            string    `json:"accessToken"`
	RefreshToken           string    `json:"refreshToken"`
	AccessTokenExpiration  time.Time `json:"accessTokenExpiration"`
	RefreshTokenExpiration time.Time `json:"refreshTokenExpiration"`
	UserID                 string    `json:"userId"`
	Email                  string    `json:"email"`
	FirstName              string    `json:"firstName"`
	LastName               string    `json:"lastName"`
}
