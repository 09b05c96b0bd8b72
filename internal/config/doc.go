// Package config loads fridgewatch configuration.
//
// # Overview
//
// Configuration is a small TOML file plus a few environment overrides. It
// selects the fridge API, the poll cadence and where the local push
// receiver listens.
//
// # Resolution Order
//
//  1. A .env file in the working directory is loaded into the environment
//     (existing variables are never overwritten)
//  2. The TOML file at the given path, or ~/.config/fridgewatch/config.toml
//  3. FRIDGEWATCH_API_URL, then VITE_API_URL, replace api_url when set
//  4. FRIDGEWATCH_LOG_LEVEL replaces log_level when set
//  5. Blank or missing values take defaults
//  6. The result is validated; bad URLs, listen addresses, levels or
//     intervals are reported as "invalid config"
//
// A missing config file is not an error.
//
// # TOML Format
//
//	api_url          = "http://127.0.0.1:5000/api"
//	web_url          = "http://127.0.0.1:5000/"     # default: origin of api_url
//	poll_interval    = 5                            # seconds
//	history_interval = 30                           # seconds
//	push_listen      = "127.0.0.1:8743"
//	push_public_url  = "http://127.0.0.1:8743"      # default: http://<push_listen>
//	data_dir         = "~/.local/share/fridgewatch"
//	log_file         = "~/.local/share/fridgewatch/fridgewatch.log"
//	log_level        = "info"
//	open_command     = "xdg-open"
//
// push_public_url must be reachable by the fridge API server, since it is
// the base of every subscription endpoint handed to it.
//
// # Path Expansion
//
// data_dir, log_file and the config path accept "~" and relative paths;
// both are expanded to absolute paths.
package config
