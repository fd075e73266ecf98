package main

import (
	"context"

	"github.com/sells-group/hscore/internal/chat"
	"github.com/sells-group/hscore/internal/fetcher"
	"github.com/sells-group/hscore/internal/store"
	"github.com/sells-group/hscore/pkg/anthropic"
)

// initStore opens the configured snapshot store and applies the schema.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func initResolver() *fetcher.Resolver {
	return fetcher.NewResolver(cfg.Fetch)
}

// initAssistant builds the chat assistant over st. st may be nil.
func initAssistant(st chat.Source) (*chat.Assistant, error) {
	if err := cfg.Validate("chat"); err != nil {
		return nil, err
	}
	client := anthropic.NewClient(cfg.Anthropic.Key)
	return chat.NewAssistant(client, st, cfg.Anthropic), nil
}
