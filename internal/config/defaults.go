package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Relay: RelayConfig{
			URL:                "ws://localhost:3002/ws",
			DialTimeoutSeconds: 10,
		},
		Upload: UploadConfig{
			AuthorizeURL:   "http://localhost:3002/api/get-signed-url",
			TimeoutSeconds: 60,
			MaxSizeBytes:   50 << 20,
		},
		Credential: CredentialConfig{
			Company:     "${ROOMCHAT_COMPANY}",
			AccessToken: "${ROOMCHAT_ACCESS_TOKEN}",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9090",
		},
	}
}
