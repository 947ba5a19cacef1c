package wanaddr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ispmon/ispmon/probe"
)

var ErrProvider = errors.New("unknown address provider")

// Provider fetches the public address record from one external
// service.
type Provider interface {
	Name() string
	Lookup(ctx context.Context) (Info, error)
}

// ProviderConfig carries the per-provider credentials. BaseURL
// overrides the service endpoint and Client the HTTP client; both are
// mainly for tests.
type ProviderConfig struct {
	Token   string
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// New returns the provider with the given name: "ipapi", "ipinfo", or
// "ipgeolocation".
func New(name string, cfg ProviderConfig) (Provider, error) {
	switch name {
	case "ipapi":
		return &ipAPI{cfg: cfg}, nil
	case "ipinfo":
		return &ipInfoIO{cfg: cfg}, nil
	case "ipgeolocation":
		return &ipGeolocation{cfg: cfg}, nil
	}
	return nil, fmt.Errorf("%q: %v", name, ErrProvider)
}

// ipAPI queries ip-api.com, a free service with no credentials.
type ipAPI struct {
	cfg ProviderConfig
}

func (p *ipAPI) Name() string { return "ipapi" }

func (p *ipAPI) Lookup(ctx context.Context) (Info, error) {
	url := p.cfg.BaseURL
	if url == "" {
		url = "http://ip-api.com/json"
	}
	if p.cfg.Token != "" {
		url += "?token=" + p.cfg.Token
	}
	var payload struct {
		Status     string   `json:"status"`
		Message    string   `json:"message"`
		Query      string   `json:"query"`
		Reverse    string   `json:"reverse"`
		City       string   `json:"city"`
		RegionName string   `json:"regionName"`
		Country    string   `json:"country"`
		Lat        *float64 `json:"lat"`
		Lon        *float64 `json:"lon"`
		ISP        string   `json:"isp"`
		Zip        string   `json:"zip"`
		Timezone   string   `json:"timezone"`
	}
	if err := getJSON(ctx, p.client(10*time.Second), url, &payload); err != nil {
		return Info{}, err
	}
	if payload.Status != "success" {
		message := payload.Message
		if message == "" {
			message = "unknown error"
		}
		return Info{}, fmt.Errorf("%w: %s", probe.ErrUnavailable, message)
	}
	return Normalize(Info{
		IP:           payload.Query,
		Hostname:     payload.Reverse,
		City:         payload.City,
		Region:       payload.RegionName,
		Country:      payload.Country,
		Latitude:     payload.Lat,
		Longitude:    payload.Lon,
		Organization: payload.ISP,
		PostalCode:   payload.Zip,
		Timezone:     payload.Timezone,
		Source:       "ip-api.com",
		Timestamp:    time.Now().UTC(),
	}), nil
}

func (p *ipAPI) client(timeout time.Duration) *http.Client {
	if p.cfg.Client != nil {
		return p.cfg.Client
	}
	return &http.Client{Timeout: timeout}
}

// ipInfoIO queries ipinfo.io. Coordinates arrive as one "lat,lon"
// string.
type ipInfoIO struct {
	cfg ProviderConfig
}

func (p *ipInfoIO) Name() string { return "ipinfo" }

func (p *ipInfoIO) Lookup(ctx context.Context) (Info, error) {
	base := p.cfg.BaseURL
	if base == "" {
		base = "https://ipinfo.io"
	}
	url := base + "/json"
	if p.cfg.Token != "" {
		url += "?token=" + p.cfg.Token
	}
	var payload struct {
		IP       string `json:"ip"`
		Hostname string `json:"hostname"`
		City     string `json:"city"`
		Region   string `json:"region"`
		Country  string `json:"country"`
		Loc      string `json:"loc"`
		Org      string `json:"org"`
		Postal   string `json:"postal"`
		Timezone string `json:"timezone"`
	}
	client := p.cfg.Client
	if client == nil {
		// The service is slow to connect from some networks, so cap
		// the dial separately from the whole request.
		client = &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			},
		}
	}
	if err := getJSON(ctx, client, url, &payload); err != nil {
		return Info{}, err
	}
	info := Info{
		IP:           payload.IP,
		Hostname:     payload.Hostname,
		City:         payload.City,
		Region:       payload.Region,
		Country:      payload.Country,
		Organization: payload.Org,
		PostalCode:   payload.Postal,
		Timezone:     payload.Timezone,
		Source:       "ipinfo.io",
		Timestamp:    time.Now().UTC(),
	}
	if parts := strings.Split(payload.Loc, ","); len(parts) == 2 {
		lat, latErr := strconv.ParseFloat(parts[0], 64)
		lon, lonErr := strconv.ParseFloat(parts[1], 64)
		if latErr != nil || lonErr != nil {
			return Info{}, fmt.Errorf("%w: bad loc %q", probe.ErrParse, payload.Loc)
		}
		info.Latitude, info.Longitude = &lat, &lon
	}
	return Normalize(info), nil
}

// ipGeolocation queries ipgeolocation.io, which requires an API key.
type ipGeolocation struct {
	cfg ProviderConfig
}

func (p *ipGeolocation) Name() string { return "ipgeolocation" }

func (p *ipGeolocation) Lookup(ctx context.Context) (Info, error) {
	if p.cfg.APIKey == "" {
		return Info{}, fmt.Errorf("%w: api key required", probe.ErrUnavailable)
	}
	base := p.cfg.BaseURL
	if base == "" {
		base = "https://api.ipgeolocation.io/ipgeo"
	}
	url := base + "?apiKey=" + p.cfg.APIKey
	var payload struct {
		IP           string `json:"ip"`
		Hostname     string `json:"hostname"`
		City         string `json:"city"`
		StateProv    string `json:"state_prov"`
		CountryName  string `json:"country_name"`
		Latitude     string `json:"latitude"`
		Longitude    string `json:"longitude"`
		Organization string `json:"organization"`
		Zipcode      string `json:"zipcode"`
		TimeZone     struct {
			Name string `json:"name"`
		} `json:"time_zone"`
	}
	if err := getJSON(ctx, p.client(10*time.Second), url, &payload); err != nil {
		return Info{}, err
	}
	info := Info{
		IP:           payload.IP,
		Hostname:     payload.Hostname,
		City:         payload.City,
		Region:       payload.StateProv,
		Country:      payload.CountryName,
		Organization: payload.Organization,
		PostalCode:   payload.Zipcode,
		Timezone:     payload.TimeZone.Name,
		Source:       "ipgeolocation.io",
		Timestamp:    time.Now().UTC(),
	}
	// Coordinates arrive as decimal strings; a value that does not
	// parse is reported as absent rather than failing the lookup.
	if lat, err := strconv.ParseFloat(payload.Latitude, 64); err == nil {
		info.Latitude = &lat
	}
	if lon, err := strconv.ParseFloat(payload.Longitude, 64); err == nil {
		info.Longitude = &lon
	}
	return Normalize(info), nil
}

func (p *ipGeolocation) client(timeout time.Duration) *http.Client {
	if p.cfg.Client != nil {
		return p.cfg.Client
	}
	return &http.Client{Timeout: timeout}
}

// getJSON fetches url and decodes the JSON body into out.
func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return probe.ErrTimeout
		}
		return fmt.Errorf("%w: %v", probe.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: HTTP %d: %s", probe.ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", probe.ErrParse, err)
	}
	return nil
}
