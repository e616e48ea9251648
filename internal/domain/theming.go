package domain

import "context"

// DefaultThemingColor is the stock brand colour baked into bundled SVG icons.
const DefaultThemingColor = "#0082c9"

// ThemingDefaults supplies the instance's branding.
type ThemingDefaults interface {
	Color(ctx context.Context) (string, error)
	ShouldReplaceIcons() bool
}

// IconBuilder renders raster icons in the theming colour.
type IconBuilder interface {
	Favicon(ctx context.Context, app string) ([]byte, error)
	TouchIcon(ctx context.Context, app string) ([]byte, error)
}

// AppImageLocator loads an image shipped with an app.
// Returns ErrAppImageNotFound when the app has no such image.
type AppImageLocator interface {
	AppImage(app, image string) ([]byte, error)
}
