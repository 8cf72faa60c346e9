// Package config provides configuration loading for keyforge.
//
// # Configuration Sources
//
// Configuration is assembled in order of increasing precedence:
//
//	1. Built-in defaults (Default)
//	2. A YAML file: KEYFORGE_CONFIG, or config.yaml / configs/config.yaml
//	3. Environment variables
//
// # Environment Variables
//
// Every field is addressable as KEYFORGE_<SECTION>_<FIELD>:
//
//	KEYFORGE_SERVER_PORT=8080
//	KEYFORGE_STORE_BACKEND=redis
//	KEYFORGE_STORE_REDIS_URL=redis://localhost:6379/0
//	KEYFORGE_SECURITY_ADMIN_API_KEYS=key-one,key-two
//	KEYFORGE_WEBHOOK_URL=https://discord.com/api/webhooks/...
//
// Relative paths are resolved against the directory of the loaded config
// file, or the working directory when no file is used.
package config
