package theming

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/omigeot/server/internal/domain"
)

const (
	configApp = "theming"
	colorKey  = "color"
)

// Defaults reads the branding colour from the config store.
type Defaults struct {
	store        domain.ConfigStore
	replaceIcons bool
}

func NewDefaults(store domain.ConfigStore, replaceIcons bool) *Defaults {
	return &Defaults{store: store, replaceIcons: replaceIcons}
}

// Color returns the configured theming colour, or the stock colour when
// the stored value is not a hex colour.
func (d *Defaults) Color(ctx context.Context) (string, error) {
	color, err := d.store.GetAppValue(ctx, configApp, colorKey, domain.DefaultThemingColor)
	if err != nil {
		return "", fmt.Errorf("read theming color: %w", err)
	}
	if _, ok := parseHex(color); !ok {
		slog.WarnContext(ctx, "Ignoring invalid theming color", "value", color)
		return domain.DefaultThemingColor, nil
	}
	return color, nil
}

func (d *Defaults) ShouldReplaceIcons() bool {
	return d.replaceIcons
}
