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

// feedACall is one call row as the affiliate-reporting API returns it.
type feedACall struct {
	CallID       string          `json:"call_id"`
	CallerID     string          `json:"caller_id"`
	CampaignType string          `json:"campaign_type"`
	CallTime     string          `json:"call_time"`
	Payout       decimal.Decimal `json:"payout"`
}

type feedACallsResponse struct {
	Calls      []feedACall `json:"calls"`
	Page       int         `json:"page"`
	TotalPages int         `json:"total_pages"`
}

type feedAAdjustment struct {
	CallerID       string          `json:"caller_id"`
	AdjustmentTime string          `json:"adjustment_time"`
	Amount         decimal.Decimal `json:"amount"`
	Classification string          `json:"classification"`
}

type feedAAdjustmentsResponse struct {
	Adjustments []feedAAdjustment `json:"adjustments"`
	Page        int               `json:"page"`
	TotalPages  int               `json:"total_pages"`
}

// FeedAClient pages through the affiliate-reporting API.
type FeedAClient struct {
	httpClient http.Client
	baseURL    string
	apiKey     string
	pageSize   int
}

func NewFeedAClient(baseURL, apiKey string, pageSize int) *FeedAClient {
	return &FeedAClient{
		httpClient: http.Client{Timeout: 20 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		pageSize:   pageSize,
	}
}

// FetchCalls retrieves every affiliate call in the window for one campaign
// category, following pagination until the last page.
func (c *FeedAClient) FetchCalls(ctx context.Context, window models.DateWindow, category models.Category) ([]*models.CallRecord, error) {
	var records []*models.CallRecord

	for page := 1; ; page++ {
		var resp feedACallsResponse
		if err := c.getJSON(ctx, "/affiliate/calls", window, map[string]string{
			"campaign_type": string(category),
			"page":          strconv.Itoa(page),
			"limit":         strconv.Itoa(c.pageSize),
		}, &resp); err != nil {
			return records, fmt.Errorf("feed A calls page %d: %w", page, err)
		}

		for _, call := range resp.Calls {
			rec := &models.CallRecord{
				Source:         models.SourceFeedA,
				SourceSystemID: call.CallID,
				Category:       resolveLabel(call.CampaignType),
				CallerID:       call.CallerID,
				CallTime:       call.CallTime,
				Payout:         call.Payout,
			}
			if t, ok := utils.ParseTimestamp(call.CallTime); ok {
				rec.ParsedCallTime = t
			}
			records = append(records, rec)
		}

		if resp.TotalPages == 0 || page >= resp.TotalPages {
			break
		}
	}

	logger.L.Debug("Fetched feed A calls", "count", len(records), "category", category)
	return records, nil
}

// FetchPendingAdjustments retrieves the rate corrections issued inside the
// window.
func (c *FeedAClient) FetchPendingAdjustments(ctx context.Context, window models.DateWindow) ([]*models.AdjustmentRecord, error) {
	var records []*models.AdjustmentRecord

	for page := 1; ; page++ {
		var resp feedAAdjustmentsResponse
		if err := c.getJSON(ctx, "/affiliate/adjustments", window, map[string]string{
			"page":  strconv.Itoa(page),
			"limit": strconv.Itoa(c.pageSize),
		}, &resp); err != nil {
			return records, fmt.Errorf("feed A adjustments page %d: %w", page, err)
		}

		for _, adj := range resp.Adjustments {
			rec := &models.AdjustmentRecord{
				CallerID:       adj.CallerID,
				Timestamp:      adj.AdjustmentTime,
				Amount:         adj.Amount,
				Classification: adj.Classification,
			}
			if t, ok := utils.ParseTimestamp(adj.AdjustmentTime); ok {
				rec.ParsedTime = t
			}
			records = append(records, rec)
		}

		if resp.TotalPages == 0 || page >= resp.TotalPages {
			break
		}
	}

	logger.L.Debug("Fetched feed A adjustments", "count", len(records))
	return records, nil
}

func (c *FeedAClient) getJSON(ctx context.Context, path string, window models.DateWindow, params map[string]string, out interface{}) error {
	query := url.Values{}
	query.Set("start_date", window.Start.Format("2006-01-02"))
	query.Set("end_date", window.End.Format("2006-01-02"))
	for k, v := range params {
		query.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call feed A %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feed A %s returned non-OK status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode feed A %s response: %w", path, err)
	}
	return nil
}

// resolveLabel collapses a feed label onto a known category, keeping the raw
// label when unknown so the matcher can report it as invalid.
func resolveLabel(label string) models.Category {
	if c, ok := models.ResolveCategory(label); ok {
		return c
	}
	return models.Category(label)
}
