// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (config.go, appdata.go, theming.go, app.go) hold shared
// types and the contracts implemented by adapters. No implementation code beyond
// small pure helpers. Interfaces live here to keep adapters and services free of
// circular imports.
package domain
