package anthropic

// BuildSystemBlocks returns the base prompt as a cached system block
// followed by any per-request context blocks, which are not cached. The
// base prompt is identical across requests so it stays warm in the prompt
// cache.
func BuildSystemBlocks(base string, context ...string) []SystemBlock {
	blocks := make([]SystemBlock, 0, 1+len(context))
	if base != "" {
		blocks = append(blocks, SystemBlock{
			Text:         base,
			CacheControl: &CacheControl{TTL: "5m"},
		})
	}
	for _, c := range context {
		if c == "" {
			continue
		}
		blocks = append(blocks, SystemBlock{Text: c})
	}
	return blocks
}
