// Package config loads agent configuration files.
//
// A configuration file is YAML. Environment variables are expanded before
// parsing, in the forms ${VAR}, ${VAR:-default} and $VAR:
//
//	agent:
//	  id: support-bot
//	  max_iterations: 20
//	  system_prompt: You are a helpful assistant.
//	model:
//	  provider: openai
//	  id: ${MODEL_ID:-gpt-4o-mini}
//	  temperature: 0.2
//	tools:
//	  max_parallel: 4
//	logging:
//	  level: debug
//	  format: text
//
// Values may also come from .env files loaded with LoadEnvFiles.
package config
