// Package config handles configuration loading for berthd.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from BERTH_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/berth/berthd.yaml
//  3. ~/.config/berth/berthd.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	matrix:
//	  access_token: "${BERTH_MATRIX_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Configuration Sections
//
// Matrix transport:
//
//	matrix:
//	  homeserver: "https://matrix.example.org"
//	  user_id: "@berth:example.org"
//	  access_token: "${BERTH_MATRIX_TOKEN}"
//	  recovery_key: ""          # optional, enables E2EE
//	  command_prefix: "!"
//	  allowed_rooms: ["!ops:example.org"]
//
// Container engine:
//
//	docker:
//	  host: ""                  # empty = DOCKER_HOST / default socket
//	  op_timeout: "30s"
//	  status_timeout: "10s"
//
// Bootstrap permission state (servers and admins; capability grants are
// managed at runtime and stored in the database):
//
//	bootstrap:
//	  servers:
//	    - name: "factorio"
//	      container: "factorio-main"
//	    - name: "valheim"
//	  admins:
//	    - "@ops-lead:example.org"
//
// A missing or malformed configuration is fatal: berthd refuses to start
// rather than serve commands against an unknown permission state.
package config
