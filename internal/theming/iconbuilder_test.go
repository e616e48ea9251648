package theming

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image/png"
	"testing"

	"github.com/sergeymakinen/go-ico"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omigeot/server/internal/domain"
)

const squareSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="16" height="16" viewBox="0 0 16 16">
<rect x="0" y="0" width="16" height="16" fill="#ffffff"/>
</svg>`

type stubIcons struct {
	svg []byte
	err error
}

func (s stubIcons) AppIcon(string) ([]byte, error) { return s.svg, s.err }

func TestIconBuilder_TouchIcon(t *testing.T) {
	b := NewIconBuilder(stubIcons{svg: []byte(squareSVG)}, fixedDefaults{color: "#ff0000"})

	data, err := b.TouchIcon(context.Background(), "files")
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, TouchIconSize, img.Bounds().Dx())
	assert.Equal(t, TouchIconSize, img.Bounds().Dy())

	// Background edge carries the theming colour, the centre the icon.
	r, g, bl, _ := img.At(TouchIconSize/2, 20).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0, 0}, [3]uint32{r, g, bl})
	r, g, bl, _ = img.At(TouchIconSize/2, TouchIconSize/2).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{r, g, bl})
}

func TestIconBuilder_Favicon(t *testing.T) {
	b := NewIconBuilder(stubIcons{svg: []byte(squareSVG)}, fixedDefaults{color: "#0082c9"})

	data, err := b.Favicon(context.Background(), "core")
	require.NoError(t, err)
	require.Greater(t, len(data), 22)

	// ICONDIR: reserved, type 1 (icon), one entry of 32x32.
	assert.Equal(t, uint16(0), binary.LittleEndian.Uint16(data[0:]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(data[2:]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(data[4:]))
	assert.Equal(t, byte(FaviconSize), data[6])
	assert.Equal(t, byte(FaviconSize), data[7])

	img, err := ico.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, FaviconSize, img.Bounds().Dx())
	assert.Equal(t, FaviconSize, img.Bounds().Dy())
}

func TestIconBuilder_MissingIcon(t *testing.T) {
	b := NewIconBuilder(stubIcons{err: errors.New("no icon")}, fixedDefaults{color: "#0082c9"})

	_, err := b.TouchIcon(context.Background(), "files")
	assert.Error(t, err)
}

func TestIconBuilder_InvalidSVG(t *testing.T) {
	b := NewIconBuilder(stubIcons{svg: []byte("not svg at all")}, fixedDefaults{color: "#0082c9"})

	_, err := b.Favicon(context.Background(), "files")
	assert.Error(t, err)
}

func TestIconBuilder_PNGOnlyIconCountsAsMissing(t *testing.T) {
	pngOnly := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	b := NewIconBuilder(stubIcons{svg: pngOnly}, fixedDefaults{color: "#0082c9"})

	_, err := b.TouchIcon(context.Background(), "files")
	assert.ErrorIs(t, err, domain.ErrAppImageNotFound)

	_, err = b.Favicon(context.Background(), "files")
	assert.ErrorIs(t, err, domain.ErrAppImageNotFound)
}
