// Package config handles configuration loading for moltbot-gateway.
//
// # Configuration File
//
// Lookup order:
//
//  1. --config flag
//  2. MOLTBOT_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/moltbot/gateway.yaml (~/.config when unset)
//
// Files ending in .toml are decoded as TOML; anything else is YAML. Both
// formats share the same keys.
//
// # Environment Variable Expansion
//
//	auth:
//	  token: "${MOLTBOT_GATEWAY_TOKEN}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:18789"
//	  read_timeout: "30s"
//	  allowed_origins: ["https://dashboard.example.com"]
//
//	database:
//	  path: "/var/lib/moltbot/gateway.db"
//
//	auth:
//	  token: "${MOLTBOT_GATEWAY_TOKEN}"      # shared operator token
//	  password_hash: "$2a$10$..."            # bcrypt, see `moltbot-gateway password hash`
//	  jwt_secret: "${MOLTBOT_JWT_SECRET}"    # principal tokens, 32+ bytes
//
//	agents:
//	  default_id: "main"
//	  runtime: "echo"
//
//	http:
//	  max_body_bytes: 1048576
//
//	tailscale:
//	  enabled: false
//	  hostname: "moltbot"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: true
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load rejects configs without a database path, without any auth mechanism,
// with a JWT secret shorter than 32 bytes, or with unknown logging values.
package config
