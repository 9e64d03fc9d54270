package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/callrecon/backend/src/logger"
	"github.com/username/callrecon/backend/src/models"
	"github.com/username/callrecon/backend/src/utils"
)

// feedBCall is one call row as the call-tracking/billing API returns it.
type feedBCall struct {
	ID            string          `json:"id"`
	CallerNumber  string          `json:"caller_number"`
	Category      string          `json:"category"`
	StartedAt     string          `json:"started_at"`
	PayoutAmount  decimal.Decimal `json:"payout_amount"`
	RevenueAmount decimal.Decimal `json:"revenue_amount"`
}

type feedBCallsResponse struct {
	Calls      []feedBCall `json:"calls"`
	Page       int         `json:"page"`
	TotalPages int         `json:"total_pages"`
}

// FeedBClient pages through the call-tracking/billing API.
type FeedBClient struct {
	httpClient http.Client
	baseURL    string
	apiKey     string
	pageSize   int
}

func NewFeedBClient(baseURL, apiKey string, pageSize int) *FeedBClient {
	return &FeedBClient{
		httpClient: http.Client{Timeout: 20 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		pageSize:   pageSize,
	}
}

// FetchCalls retrieves every billing call in the window for one category,
// following pagination until the last page.
func (c *FeedBClient) FetchCalls(ctx context.Context, window models.DateWindow, category models.Category) ([]*models.CallRecord, error) {
	var records []*models.CallRecord

	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("start_date", window.Start.Format("2006-01-02"))
		query.Set("end_date", window.End.Format("2006-01-02"))
		query.Set("category", string(category))
		query.Set("page", strconv.Itoa(page))
		query.Set("limit", strconv.Itoa(c.pageSize))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/calls?"+query.Encode(), nil)
		if err != nil {
			return records, err
		}
		if c.apiKey != "" {
			req.Header.Set("X-Api-Key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return records, fmt.Errorf("failed to call feed B page %d: %w", page, err)
		}

		var body feedBCallsResponse
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return records, fmt.Errorf("feed B returned non-OK status %d on page %d", resp.StatusCode, page)
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			resp.Body.Close()
			return records, fmt.Errorf("failed to decode feed B response on page %d: %w", page, err)
		}
		resp.Body.Close()

		for _, call := range body.Calls {
			rec := &models.CallRecord{
				Source:         models.SourceFeedB,
				SourceSystemID: call.ID,
				Category:       resolveLabel(call.Category),
				CallerID:       call.CallerNumber,
				CallTime:       call.StartedAt,
				Payout:         call.PayoutAmount,
				Revenue:        call.RevenueAmount,
			}
			if t, ok := utils.ParseTimestamp(call.StartedAt); ok {
				rec.ParsedCallTime = t
			}
			records = append(records, rec)
		}

		if body.TotalPages == 0 || page >= body.TotalPages {
			break
		}
	}

	logger.L.Debug("Fetched feed B calls", "count", len(records), "category", category)
	return records, nil
}
