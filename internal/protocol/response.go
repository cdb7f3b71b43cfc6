// ABOUTME: State report a turtle sends after every command.
// ABOUTME: Decoding is strict about the fields the gateway relies on.

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedResponse indicates a turtle reply could not be interpreted.
var ErrMalformedResponse = errors.New("malformed response")

// Item is the content of an occupied inventory slot.
type Item struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Slot is one inventory slot. Item is nil when the slot is empty.
type Slot struct {
	ID    int64 `json:"id"`
	Item  *Item `json:"type"`
	Space int64 `json:"space"`
}

// Block is what a turtle senses in one direction.
type Block struct {
	Direction MineDirection `json:"direction"`
	Exists    bool          `json:"exists"`
	Name      string        `json:"block,omitempty"`
}

// ChestSlot is one slot of an adjacent chest.
type ChestSlot struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
	NBT   string `json:"nbt,omitempty"`
}

// ChestInfo describes an adjacent chest, when the turtle reports one.
type ChestInfo struct {
	Slots []ChestSlot `json:"slots"`
	Size  int64       `json:"size"`
}

// Response is the full state report returned after every command.
type Response struct {
	Chest     *ChestInfo `json:"chest"`
	Fuel      int64      `json:"fuel"`
	Slots     []Slot     `json:"slots"`
	Blocks    []Block    `json:"blocks"`
	Pos       Position   `json:"pos"`
	RequestID string     `json:"requestId,omitempty"`
}

// BlockAt returns the sensed reading for a direction.
func (r *Response) BlockAt(d MineDirection) (Block, bool) {
	for _, b := range r.Blocks {
		if b.Direction == d {
			return b, true
		}
	}
	return Block{}, false
}

// DecodeResponse parses a turtle reply. fuel, slots, blocks and pos must
// all be present.
func DecodeResponse(data []byte) (*Response, error) {
	var raw struct {
		Chest     *ChestInfo `json:"chest"`
		Fuel      *int64     `json:"fuel"`
		Slots     *[]Slot    `json:"slots"`
		Blocks    *[]Block   `json:"blocks"`
		Pos       *Position  `json:"pos"`
		RequestID string     `json:"requestId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	switch {
	case raw.Fuel == nil:
		return nil, fmt.Errorf("%w: missing fuel", ErrMalformedResponse)
	case raw.Slots == nil:
		return nil, fmt.Errorf("%w: missing slots", ErrMalformedResponse)
	case raw.Blocks == nil:
		return nil, fmt.Errorf("%w: missing blocks", ErrMalformedResponse)
	case raw.Pos == nil:
		return nil, fmt.Errorf("%w: missing pos", ErrMalformedResponse)
	}

	for _, b := range *raw.Blocks {
		if !b.Direction.Valid() {
			return nil, fmt.Errorf("%w: unknown block direction %q", ErrMalformedResponse, b.Direction)
		}
	}

	return &Response{
		Chest:     raw.Chest,
		Fuel:      *raw.Fuel,
		Slots:     *raw.Slots,
		Blocks:    *raw.Blocks,
		Pos:       *raw.Pos,
		RequestID: raw.RequestID,
	}, nil
}
