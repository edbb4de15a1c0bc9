package models

type CreateCard struct {
	Balance    int64  `json:"balance"`
	HolderName string `json:"holder_name,omitempty"`
}

type RideRequest struct {
	Distance float64 `json:"distance"`
}

// PaymentRequest credits Amount plus the fare for Distance to the card.
type PaymentRequest struct {
	Amount   int64   `json:"amount"`
	Distance float64 `json:"distance"`
}

type TopUpRequest struct {
	Amount int64 `json:"amount"`
}
