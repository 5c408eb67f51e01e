package api

import (
	"testing"

	"orderflow-core/pkg/types"
)

func TestClientWantsAllSymbolsByDefault(t *testing.T) {
	t.Parallel()
	c := &Client{subscribed: make(map[string]bool)}
	if !c.wants("BTCUSDT") {
		t.Fatal("expected client with no subscriptions to want every symbol")
	}
}

func TestClientSubscribeNarrowsToGivenSymbols(t *testing.T) {
	t.Parallel()
	c := &Client{hub: &Hub{}, subscribed: make(map[string]bool)}
	c.applyControl(types.SubscribeControlMessage{Type: "subscribe", Symbols: []string{"BTCUSDT"}})

	if !c.wants("BTCUSDT") {
		t.Fatal("expected subscribed symbol to be wanted")
	}
	if c.wants("ETHUSDT") {
		t.Fatal("expected non-subscribed symbol to be filtered out once subscribed set is non-empty")
	}
}

func TestClientUnsubscribeRemovesSymbol(t *testing.T) {
	t.Parallel()
	c := &Client{hub: &Hub{}, subscribed: make(map[string]bool)}
	c.applyControl(types.SubscribeControlMessage{Type: "subscribe", Symbols: []string{"BTCUSDT", "ETHUSDT"}})
	c.applyControl(types.SubscribeControlMessage{Type: "unsubscribe", Symbols: []string{"ETHUSDT"}})

	if !c.wants("BTCUSDT") {
		t.Fatal("expected BTCUSDT to remain subscribed")
	}
	if c.wants("ETHUSDT") {
		t.Fatal("expected ETHUSDT to be removed from subscriptions")
	}
}
