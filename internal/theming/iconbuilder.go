package theming

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/sergeymakinen/go-ico"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/omigeot/server/internal/domain"
)

const (
	TouchIconSize = 512
	FaviconSize   = 32

	// iconScale is the share of the canvas the app icon covers.
	iconScale = 0.6
	// cornerRatio is the corner radius relative to the canvas size.
	cornerRatio = 0.12
)

// IconLocator finds the icon drawn for an app.
type IconLocator interface {
	AppIcon(app string) ([]byte, error)
}

// IconBuilder draws the app icon centred on a rounded square in the theming colour.
type IconBuilder struct {
	icons    IconLocator
	defaults domain.ThemingDefaults
}

func NewIconBuilder(icons IconLocator, defaults domain.ThemingDefaults) *IconBuilder {
	return &IconBuilder{icons: icons, defaults: defaults}
}

// TouchIcon renders a 512x512 PNG.
func (b *IconBuilder) TouchIcon(ctx context.Context, app string) ([]byte, error) {
	img, err := b.render(ctx, app, TouchIconSize)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode touch icon: %w", err)
	}
	return buf.Bytes(), nil
}

// Favicon renders a 32x32 ICO.
func (b *IconBuilder) Favicon(ctx context.Context, app string) ([]byte, error) {
	img, err := b.render(ctx, app, FaviconSize)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := ico.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode favicon: %w", err)
	}
	return buf.Bytes(), nil
}

func (b *IconBuilder) render(ctx context.Context, app string, size int) (*image.RGBA, error) {
	svg, err := b.icons.AppIcon(app)
	if err != nil {
		return nil, fmt.Errorf("app icon for %s: %w", app, err)
	}
	if !IsSVG(svg) {
		return nil, fmt.Errorf("app icon for %s is not an svg: %w", app, domain.ErrAppImageNotFound)
	}

	hex, err := b.defaults.Color(ctx)
	if err != nil {
		return nil, err
	}
	bg, ok := parseHex(hex)
	if !ok {
		bg, _ = parseHex(domain.DefaultThemingColor)
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(svg), oksvg.WarnErrorMode)
	if err != nil {
		return nil, fmt.Errorf("parse app icon for %s: %w", app, err)
	}

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())

	s := float64(size)
	filler := rasterx.NewFiller(size, size, scanner)
	r, g, bl := bg.RGB255()
	filler.SetColor(color.RGBA{R: r, G: g, B: bl, A: 0xff})
	rasterx.AddRoundRect(0, 0, s, s, s*cornerRatio, s*cornerRatio, 0, rasterx.RoundGap, filler)
	filler.Draw()

	inner := s * iconScale
	offset := (s - inner) / 2
	icon.SetTarget(offset, offset, inner, inner)
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1)

	return img, nil
}
