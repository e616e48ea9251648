// Package app provides the application service layer.
//
// AppConfigService guards the config store with app id validation and the
// protected-key rule. IconService serves themed icons out of the app-data cache,
// rolling the cache folder over whenever the theming cache-buster changes.
// Both depend on domain interfaces, not concrete adapters.
package app
