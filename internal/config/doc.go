// Package config defines the updater settings (image path, scratch mount
// directory, target directory, offline backend, web server options) and
// loads or saves them as YAML, TOML or JSON.
package config
