package anthropic

// BuildCachedSystemBlocks wraps a long, stable system prompt (such as a
// category vocabulary) in a single block with an ephemeral cache
// breakpoint, so repeated calls across a batch read it from the prompt
// cache instead of paying full input price.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{{
		Text:         text,
		CacheControl: &CacheControl{TTL: "5m"},
	}}
}
