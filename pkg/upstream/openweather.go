package upstream

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/waypoint-ai/waypoint/pkg/models"
)

const (
	openWeatherBaseURL = "https://api.openweathermap.org"
	weatherPath        = "/data/2.5/weather"
)

// OpenWeather is a client for the OpenWeather current-weather API.
type OpenWeather struct {
	apiKey string
	c      *client
}

// NewOpenWeather creates an OpenWeather client.
func NewOpenWeather(opts Options) *OpenWeather {
	return &OpenWeather{apiKey: opts.APIKey, c: newClient(opts, openWeatherBaseURL)}
}

// FetchWeather returns the current conditions at lat,lng in metric units.
func (o *OpenWeather) FetchWeather(ctx context.Context, lat, lng float64) (models.WeatherInfo, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("appid", o.apiKey)
	q.Set("units", "metric")

	body, err := o.c.get(ctx, weatherPath, q)
	if err != nil {
		return models.WeatherInfo{}, fmt.Errorf("weather: %w", err)
	}

	res := gjson.ParseBytes(body)
	desc := res.Get("weather.0.description")
	temp := res.Get("main.temp")
	if !desc.Exists() || !temp.Exists() {
		return models.WeatherInfo{}, fmt.Errorf("weather: response missing description or temperature")
	}
	return models.WeatherInfo{Description: desc.String(), TemperatureC: temp.Float()}, nil
}
