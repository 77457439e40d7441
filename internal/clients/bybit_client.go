package clients

import (
	"github.com/hirokisan/bybit/v2"
)

func NewBybitClient(apiKey, apiSecret string) *bybit.Client {
	client := bybit.NewClient()
	if apiKey != "" && apiSecret != "" {
		client = client.WithAuth(apiKey, apiSecret)
	}

	return client
}
