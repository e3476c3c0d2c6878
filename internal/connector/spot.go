package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"MacroTracker/internal/series"
)

// Spot fetches a single latest-value quote used to top up the bulk FX
// series with a same-day observation.
type Spot struct {
	URL    string
	Client *http.Client
	Log    zerolog.Logger
}

// NewSpot creates the spot-quote connector.
func NewSpot(apiURL string, client *http.Client, log zerolog.Logger) *Spot {
	return &Spot{
		URL:    apiURL,
		Client: client,
		Log:    log.With().Str("source", "spot").Logger(),
	}
}

type spotBody struct {
	Sell      float64 `json:"venta"`
	UpdatedAt string  `json:"fechaActualizacion"`
}

// Latest returns today's quote, or nil if the feed is unavailable or its
// payload is incomplete. The spot feed is best effort only.
func (c *Spot) Latest(ctx context.Context) (*series.SpotQuote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		c.Log.Warn().Err(err).Msg("spot request failed")
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.Log.Warn().Int("status", resp.StatusCode).Msg("spot request rejected")
		return nil, nil
	}

	var body spotBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.Log.Warn().Err(err).Msg("spot decode failed")
		return nil, nil
	}
	if body.Sell == 0 || body.UpdatedAt == "" {
		c.Log.Warn().Msg("spot payload incomplete")
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, body.UpdatedAt)
	if err != nil {
		c.Log.Warn().Str("timestamp", body.UpdatedAt).Err(err).Msg("spot timestamp unparsable")
		return nil, nil
	}

	q := &series.SpotQuote{Date: series.DateOf(t), Value: body.Sell}
	c.Log.Info().Stringer("date", q.Date).Float64("value", q.Value).Msg("spot quote fetched")
	return q, nil
}
