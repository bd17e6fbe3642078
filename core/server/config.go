package server

// Config holds configuration for the HTTP server.
type Config struct {
	// Host is the interface the server binds.
	Host string `mapstructure:"host" default:"0.0.0.0"`
	// Port is the port where the server will listen. The bare PORT
	// environment variable overrides it.
	Port string `mapstructure:"port" default:"5050"`
	// ApiKey is the secret key required to access the API. Empty disables
	// the API key check.
	ApiKey string `mapstructure:"api_key" default:""`
}

// Addr returns the listen address in host:port form.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}
