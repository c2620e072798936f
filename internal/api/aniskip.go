package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/util"
)

// AniSkipBaseURL is the AniSkip skip-times endpoint
const AniSkipBaseURL = "https://api.aniskip.com/v1/skip-times"

// skipTimesResponse struct to hold the response from the AniSkip API
type skipTimesResponse struct {
	Found   bool         `json:"found"`
	Results []skipResult `json:"results"`
}

type skipResult struct {
	Interval skipInterval `json:"interval"`
	Type     string       `json:"skip_type"`
}

type skipInterval struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// AniSkipClient fetches crowd-sourced opening/ending intervals for anime
type AniSkipClient struct {
	client  *http.Client
	baseURL string
}

// NewAniSkipClient creates a client for the public AniSkip API
func NewAniSkipClient() *AniSkipClient {
	return &AniSkipClient{client: util.GetFastClient(), baseURL: AniSkipBaseURL}
}

// WithBaseURL points the client at another endpoint
func (c *AniSkipClient) WithBaseURL(base string) *AniSkipClient {
	c.baseURL = base
	return c
}

// SkipTimes fetches the OP/ED intervals of one episode. found is false when
// AniSkip has no data for it.
func (c *AniSkipClient) SkipTimes(ctx context.Context, malID, episode int) (st models.SkipTimes, found bool, err error) {
	if malID <= 0 || episode <= 0 {
		return st, false, fmt.Errorf("aniskip needs a MAL id and an episode number")
	}

	endpoint := fmt.Sprintf("%s/%d/%d?types=op&types=ed", c.baseURL, malID, episode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return st, false, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return st, false, fmt.Errorf("error fetching data from AniSkip API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// AniSkip answers 404 with found=false for unknown episodes
	if resp.StatusCode == http.StatusNotFound {
		return st, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return st, false, fmt.Errorf("AniSkip API request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return st, false, fmt.Errorf("failed to read response body: %w", err)
	}
	return ParseAniSkipResponse(body)
}

// RoundTime rounds a time value to the specified precision
func RoundTime(timeValue float64, precision int) float64 {
	multiplier := math.Pow(10, float64(precision))
	return math.Floor(timeValue*multiplier+0.5) / multiplier
}

// ParseAniSkipResponse converts an AniSkip payload into SkipTimes
func ParseAniSkipResponse(body []byte) (st models.SkipTimes, found bool, err error) {
	if len(body) == 0 {
		return st, false, fmt.Errorf("response text is empty")
	}

	var data skipTimesResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return st, false, fmt.Errorf("error unmarshalling response: %w", err)
	}
	util.Debug("AniSkip response", "found", data.Found, "results", len(data.Results))

	if !data.Found {
		return st, false, nil
	}

	for _, result := range data.Results {
		skip := models.Skip{
			Start: int(RoundTime(result.Interval.StartTime, 0)),
			End:   int(RoundTime(result.Interval.EndTime, 0)),
		}
		switch result.Type {
		case "op":
			st.Intro = skip
		case "ed":
			st.Outro = skip
		default:
			util.Debug("Unknown skip type encountered", "type", result.Type)
		}
	}
	return st, !st.Empty(), nil
}
