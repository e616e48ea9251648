package theming

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/omigeot/server/internal/domain"
)

var imageExtensions = []string{"", ".svg", ".png", ".gif", ".jpg"}

// AppImages finds images shipped with apps in a tree laid out as {app}/img/{image}.
// The core app's images live under core/img like any other app.
type AppImages struct {
	fsys fs.FS
}

func NewAppImages(fsys fs.FS) *AppImages {
	return &AppImages{fsys: fsys}
}

// AppImage returns the first of image, image.svg, image.png, image.gif and
// image.jpg that exists in the app's img folder.
func (a *AppImages) AppImage(app, image string) ([]byte, error) {
	if !domain.ValidAppID(app) {
		return nil, domain.ErrInvalidAppID
	}
	image = strings.TrimPrefix(image, "/")
	if image == "" || !fs.ValidPath(image) {
		return nil, fmt.Errorf("image %q: %w", image, domain.ErrAppImageNotFound)
	}

	base := path.Join(app, "img", image)
	for _, ext := range imageExtensions {
		data, err := fs.ReadFile(a.fsys, base+ext)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, fs.ErrInvalid) {
			return nil, fmt.Errorf("read %s%s: %w", base, ext, err)
		}
	}
	return nil, fmt.Errorf("%s/%s: %w", app, image, domain.ErrAppImageNotFound)
}

// AppIcon returns the app's icon, falling back to the core logo.
func (a *AppImages) AppIcon(app string) ([]byte, error) {
	for _, name := range []string{"app.svg", "app-dark.svg"} {
		data, err := a.AppImage(app, name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, domain.ErrAppImageNotFound) {
			return nil, err
		}
	}
	return a.AppImage(domain.CoreApp, "logo.svg")
}
