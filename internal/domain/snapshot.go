package domain

// WatermarkCount is the number of addresses holding at least Watermark.
type WatermarkCount struct {
	Watermark int64 `json:"watermark"`
	Count     int64 `json:"count"`
}

// Snapshot collects every address statistic in one response. Watermark counts
// are independent, so one address may be counted under several watermarks.
type Snapshot struct {
	ActiveAddresses   int64            `json:"active_addresses"`
	AverageBalance    float64          `json:"average_balance"`
	ZeroBalance       int64            `json:"zero_balance"`
	TotalAddresses    int64            `json:"total_addresses"`
	TotalTransactions int64            `json:"total_transactions"`
	AddressesAbove    []WatermarkCount `json:"addresses_above,omitempty"`
}
