package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvelopeChannel(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    string
	}{
		{"signal", `{"type":"signal","payload":{"symbol":"R_100"}}`, "ch:signal"},
		{"tick carries symbol", `{"type":"tick","payload":{"symbol":"R_100","quote":101.5}}`, "ch:tick:R_100"},
		{"tick without symbol", `{"type":"tick","payload":{}}`, "ch:tick"},
		{"trade", `{"type":"trade","payload":{"trade_id":"t-1"}}`, "ch:trade"},
		{"missing type", `{"payload":{}}`, "ch:status"},
		{"not json", `garbage`, "ch:status"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, envelopeChannel([]byte(tc.payload)))
		})
	}
}

func TestIsSubscribedWildcards(t *testing.T) {
	c := &client{subs: map[string]bool{
		"ch:trade":  true,
		"ch:tick:*": true,
	}}

	assert.True(t, c.isSubscribed("ch:trade"))
	assert.True(t, c.isSubscribed("ch:tick:R_100"))
	assert.True(t, c.isSubscribed("ch:tick:R_50"))
	assert.False(t, c.isSubscribed("ch:signal"))
	assert.False(t, c.isSubscribed("ch:balance"))
}

func TestSubscriptionManagement(t *testing.T) {
	c := &client{subs: map[string]bool{"ch:trade": true}}

	c.handleSubscription(subscribeMsg{
		Subscribe:   []string{"ch:signal"},
		Unsubscribe: []string{"ch:trade"},
	})

	assert.True(t, c.isSubscribed("ch:signal"))
	assert.False(t, c.isSubscribed("ch:trade"))
}
