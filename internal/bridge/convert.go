package bridge

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yiweisong/ace-can/canbus"
)

// framePayload is the JSON body published for a received frame.
type framePayload struct {
	ID       string `json:"id"`
	Extended bool   `json:"extended,omitempty"`
	Len      int    `json:"len"`
	Data     string `json:"data"` // hex encoded
	Unixtime string `json:"unixtime"`
}

// encodeFrame renders a received frame as its MQTT payload.
func encodeFrame(f canbus.Frame) ([]byte, error) {
	now := time.Now()
	p := framePayload{
		ID:       fmt.Sprintf("0x%X", f.ID),
		Extended: f.Extended,
		Len:      len(f.Data),
		Data:     hex.EncodeToString(f.Data),
		Unixtime: fmt.Sprintf("%d.%06d", now.Unix(), now.Nanosecond()/1000),
	}
	return json.Marshal(p)
}

// decodeFrame builds the frame to transmit for an MQTT message. The payload
// is either a JSON object carrying a hex "data" field or a bare hex string.
// The identifier comes from the matched rule, not the payload.
func decodeFrame(id uint32, payload []byte) (canbus.Frame, error) {
	body := strings.TrimSpace(string(payload))

	var dataHex string
	if strings.HasPrefix(body, "{") {
		var p framePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return canbus.Frame{}, fmt.Errorf("decode payload: %w", err)
		}
		dataHex = p.Data
	} else {
		dataHex = strings.TrimPrefix(body, "0x")
	}

	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return canbus.Frame{}, fmt.Errorf("decode payload data %q: %w", dataHex, err)
	}
	return canbus.Frame{ID: id, Data: data}, nil
}
