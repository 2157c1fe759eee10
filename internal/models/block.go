package models

import "time"

type BlockType string

const (
	BlockStaff        BlockType = "STAFF"
	BlockVIP          BlockType = "VIP"
	BlockChannelQuota BlockType = "CHANNEL_QUOTA"
	BlockMaintenance  BlockType = "MAINTENANCE"
)

func (t BlockType) Valid() bool {
	switch t {
	case BlockStaff, BlockVIP, BlockChannelQuota, BlockMaintenance:
		return true
	}
	return false
}

// Block withholds capacity for non-booking purposes until removed by an administrator.
type Block struct {
	ID          string    `json:"id"`
	DepartureID string    `json:"departure_id"`
	SeatCount   int       `json:"seat_count"`
	BlockType   BlockType `json:"block_type"`
	Reason      string    `json:"reason,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
