// Package config handles configuration loading for tutor-chat.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (selected by extension)
// with environment variable expansion. Anything the file omits keeps the
// value from Default.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  token: "${DEEPLEARN_TOKEN}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax. The heartbeat interval
// additionally accepts "off".
//
//	socket:
//	  base_delay: "1s"
//	  max_delay: "30s"
//	  heartbeat_interval: "30s"
//
// # Configuration Sections
//
// Socket:
//
//	socket:
//	  base_url: "wss://api.example.com"
//	  max_reconnect_attempts: 5   # 0 disables automatic retries
//	  queue_capacity: 100
//
// Registry:
//
//	registry:
//	  max_inactivity: "30m"
//	  cleanup_interval: "5m"
//	  dedupe_ttl: "30m"
//	  dedupe_size: 1000
//
// Session API (base_url defaults to the socket origin):
//
//	api:
//	  timeout: "15s"
//
// Authentication (token and token_file are mutually exclusive):
//
//	auth:
//	  token_file: "~/.config/deeplearn/token"
//
// Logging and metrics:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	metrics:
//	  enabled: true
//	  addr: "127.0.0.1:9464"
//	  path: "/metrics"
//
// # Usage
//
//	cfg, err := config.Load("tutor.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sock := cfg.SocketSettings()
package config
