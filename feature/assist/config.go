package assist

// Config holds configuration for the OpenAI-backed query translator.
type Config struct {
	// APIKey is the OpenAI API key. Required for the query feature.
	APIKey string `mapstructure:"api_key" default:""`
	// Model is the chat model used for translation.
	Model string `mapstructure:"model" default:"gpt-4o-mini"`
}
