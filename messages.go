package openpush

import (
	"cmp"
	"context"
	"strconv"

	"github.com/go-resty/resty/v2"
	"golang.org/x/exp/slices"
)

// GetMessages returns the messages still queued for the device, oldest first.
// Messages with IDs at or below afterID are filtered out; pass 0 to fetch the
// whole queue. The queue only shrinks through MarkDelivered, so calling this
// repeatedly without marking is safe and returns the same messages again.
func (c *Client) GetMessages(ctx context.Context, afterID int64) ([]Message, error) {
	var res struct {
		Status   int       `json:"status"`
		Messages []Message `json:"messages"`
	}

	if err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		if afterID > 0 {
			r.SetQueryParam("after", strconv.FormatInt(afterID, 10))
		}

		return r.SetResult(&res).Get("/1/messages.json")
	}); err != nil {
		return nil, err
	}

	// The relay does not promise an order.
	slices.SortFunc(res.Messages, func(a, b Message) int {
		return cmp.Compare(a.ID, b.ID)
	})

	return res.Messages, nil
}

// MarkDelivered tells the relay that every message up to and including
// highestID reached this device, dropping them from the queue. Until it
// succeeds the relay keeps the messages queued and fetches return them again.
func (c *Client) MarkDelivered(ctx context.Context, highestID int64) error {
	deviceID := c.Credentials().DeviceID

	return c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.
			SetFormData(map[string]string{"message": strconv.FormatInt(highestID, 10)}).
			Post("/1/devices/" + deviceID + "/update_highest_message.json")
	})
}

// AcknowledgeReceipt confirms an emergency message to the relay, stopping the
// sender-side escalation tied to the receipt.
func (c *Client) AcknowledgeReceipt(ctx context.Context, receiptID string) error {
	return c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.Post("/1/receipts/" + receiptID + "/acknowledge.json")
	})
}
