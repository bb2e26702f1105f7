package dto

type AuthResponse struct {
	Token     string `json:"token"`
	Address   string `json:"address"`
	Friendly  string `json:"address_friendly"`
	ExpiresAt int64  `json:"expires_at"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type ListResponse struct {
	Items  any `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type PaymentInfoResponse struct {
	CampaignID      string `json:"campaign_id"`
	WalletAddress   string `json:"wallet_address"`
	Memo            string `json:"memo"`
	RemainingNano   uint64 `json:"remaining_nano"`
	RemainingTON    string `json:"remaining_ton"`
	State           string `json:"state"`
	AcceptsDeposits bool   `json:"accepts_deposits"`
}

type ReleaseResponse struct {
	Gross      uint64 `json:"gross"`
	Fee        uint64 `json:"fee"`
	Net        uint64 `json:"net"`
	NetTON     string `json:"net_ton"`
	Milestones []int  `json:"milestones"`
}

type RefundResponse struct {
	Amount    uint64 `json:"amount"`
	AmountTON string `json:"amount_ton"`
}

type VoteResponse struct {
	Weight uint64 `json:"weight"`
}

type FinalizeResponse struct {
	Approved bool `json:"approved"`
}

type HasVotedResponse struct {
	Voted bool `json:"voted"`
}

type ContributionResponse struct {
	Address   string `json:"address"`
	Amount    uint64 `json:"amount"`
	AmountTON string `json:"amount_ton"`
}
