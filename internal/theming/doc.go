// Package theming recolours and rasterises app icons in the instance's branding colour.
package theming
