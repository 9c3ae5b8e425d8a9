package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"moment-mint/internal/config"
	"moment-mint/internal/model"
)

// restCountry is the subset of a restcountries.com v3.1 entry we read.
type restCountry struct {
	Name struct {
		Common string `json:"common"`
	} `json:"name"`
	IDD struct {
		Root     string   `json:"root"`
		Suffixes []string `json:"suffixes"`
	} `json:"idd"`
	CCA2 string `json:"cca2"`
}

// CountryClient fetches the country directory used for dial-code selection.
type CountryClient struct {
	URL        string
	HTTPClient *http.Client
	logger     *zap.Logger
}

func NewCountryClient(cfg config.CountriesConfig, logger *zap.Logger) *CountryClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CountryClient{
		URL:        cfg.URL,
		HTTPClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// ListCountries returns every country with a dial code, sorted by name.
// The dial code is the IDD root plus its first suffix (e.g. "+9" + "1").
func (c *CountryClient) ListCountries(ctx context.Context) ([]model.Country, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("countries: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("countries: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("countries: request failed status=%d body=%s", resp.StatusCode, string(b))
	}

	var raw []restCountry
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("countries: decode: %w", err)
	}

	countries := make([]model.Country, 0, len(raw))
	skipped := 0
	for _, rc := range raw {
		if rc.IDD.Root == "" || rc.Name.Common == "" {
			skipped++
			continue
		}
		dial := rc.IDD.Root
		if len(rc.IDD.Suffixes) > 0 {
			dial += rc.IDD.Suffixes[0]
		}
		countries = append(countries, model.Country{
			Name:     rc.Name.Common,
			DialCode: dial,
			Code:     strings.ToUpper(rc.CCA2),
		})
	}
	sort.SliceStable(countries, func(i, j int) bool {
		return countries[i].Name < countries[j].Name
	})

	c.logger.Debug("country directory loaded",
		zap.Int("count", len(countries)),
		zap.Int("skipped", skipped))

	return countries, nil
}
