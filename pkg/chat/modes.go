package chat

const (
	ModeNormal   = "normal"
	ModeImage    = "image"
	ModeThink    = "think"
	ModeResearch = "research"
	ModeShopping = "shopping"
)

var systemPrompts = map[string]string{
	ModeNormal:   "You are a helpful and friendly assistant. Answer clearly and concisely.",
	ModeImage:    "You are an assistant specialised in writing detailed descriptions for image generation. When the user asks for an image, write a detailed English prompt that could be used with DALL-E or a similar generator. Include style, colours, composition, lighting and mood. Give the prompt first, then explain what it describes.",
	ModeThink:    "You are an assistant that thinks step by step. Before giving a final answer, analyse the problem from different angles, consider several perspectives and reason explicitly. Structure your thinking with the headings 'Analysis:', 'Considerations:' and 'Conclusion:'.",
	ModeResearch: "You are an advanced research assistant. Give thorough, well documented answers. Structure the answer in clear sections, cite several sources of information when possible, present different perspectives and offer deep analysis. Use markdown for readability.",
	ModeShopping: "You are an expert shopping assistant. Help the user find the best products, compare options, suggest alternatives and give buying advice. Weigh price, quality, reviews and value for money. Present recommendations clearly with pros and cons where relevant.",
}

// SystemPrompt returns the instruction for mode, falling back to normal.
func SystemPrompt(mode string) string {
	if p, ok := systemPrompts[mode]; ok {
		return p
	}
	return systemPrompts[ModeNormal]
}

// ValidMode reports whether mode is one of the known chat modes.
func ValidMode(mode string) bool {
	_, ok := systemPrompts[mode]
	return ok
}

// SelectModel forces the multimodal model when any attachment is an image,
// otherwise honours the requested model or falls back to the default.
func SelectModel(requested, defaultModel, multimodalModel string, atts []Attachment) string {
	if HasImage(atts) {
		return multimodalModel
	}
	if requested != "" {
		return requested
	}
	return defaultModel
}
