package domain

import "time"

// Account is the billing-side view of a customer. RealTier is authoritative
// and comes from subscription data, never from the client.
type Account struct {
	ID        string
	Email     string
	Name      string
	RealTier  Tier
	CreatedAt time.Time
}

// DisplayName returns the account's name or email if name is empty.
func (a *Account) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Email
}
