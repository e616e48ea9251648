package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/omigeot/server/internal/domain"
	"github.com/omigeot/server/internal/theming"
)

const (
	// IconMaxAge is how long clients may cache an icon response.
	IconMaxAge = 24 * time.Hour

	themingApp     = "theming"
	cacheBusterKey = "cachebuster"
	cacheBusterDef = "0"

	kindThemed    = "themed"
	kindFavicon   = "favicon"
	kindTouchIcon = "touchicon"
)

// IconMetrics receives icon cache events.
type IconMetrics interface {
	CacheHit(kind string)
	CacheMiss(kind string)
	Generated(kind string, d time.Duration)
	FolderRollover(removed int)
}

type noopIconMetrics struct{}

func (noopIconMetrics) CacheHit(string)                 {}
func (noopIconMetrics) CacheMiss(string)                {}
func (noopIconMetrics) Generated(string, time.Duration) {}
func (noopIconMetrics) FolderRollover(int)              {}

// IconService serves icons from a cache folder named after the current
// cache-buster value. Generated bytes are stored once and served as-is until
// the cache-buster changes.
type IconService struct {
	config   domain.ConfigStore
	appData  domain.AppData
	images   domain.AppImageLocator
	defaults domain.ThemingDefaults
	builder  domain.IconBuilder
	clock    clockwork.Clock
	metrics  IconMetrics

	rollover singleflight.Group
	generate singleflight.Group
}

// IconServiceDeps bundles the collaborators of IconService.
// Metrics may be nil.
type IconServiceDeps struct {
	Config   domain.ConfigStore
	AppData  domain.AppData
	Images   domain.AppImageLocator
	Defaults domain.ThemingDefaults
	Builder  domain.IconBuilder
	Clock    clockwork.Clock
	Metrics  IconMetrics
}

func NewIconService(deps IconServiceDeps) *IconService {
	m := deps.Metrics
	if m == nil {
		m = noopIconMetrics{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &IconService{
		config:   deps.Config,
		appData:  deps.AppData,
		images:   deps.Images,
		defaults: deps.Defaults,
		builder:  deps.Builder,
		clock:    clock,
		metrics:  m,
	}
}

// ThemedIcon returns the app's SVG image recoloured with the theming colour.
func (s *IconService) ThemedIcon(ctx context.Context, app, image string) (*domain.Icon, error) {
	if !domain.ValidAppID(app) {
		return nil, domain.ErrInvalidAppID
	}

	filename := "icon-" + app + "-" + strings.ReplaceAll(image, "/", "_")
	content, err := s.cachedOrGenerate(ctx, kindThemed, filename, func(ctx context.Context) ([]byte, error) {
		svg, err := s.images.AppImage(app, image)
		if err != nil {
			return nil, err
		}
		if !theming.IsSVG(svg) {
			return nil, fmt.Errorf("%s/%s is not an svg: %w", app, image, domain.ErrAppImageNotFound)
		}
		color, err := s.defaults.Color(ctx)
		if err != nil {
			return nil, fmt.Errorf("theming color: %w", err)
		}
		return theming.ColorizeSVG(svg, theming.ElementColor(color)), nil
	})
	if err != nil {
		return nil, err
	}
	return &domain.Icon{Content: content, ContentType: "image/svg+xml"}, nil
}

// Favicon returns a 32x32 ICO. Fails with ErrIconReplacementDisabled
// when icon replacement is switched off, even if a cached copy exists.
func (s *IconService) Favicon(ctx context.Context, app string) (*domain.Icon, error) {
	return s.rasterIcon(ctx, kindFavicon, "favIcon-"+app, "image/x-icon", app, s.builder.Favicon)
}

// TouchIcon returns a 512x512 PNG. Same replacement rule as Favicon.
func (s *IconService) TouchIcon(ctx context.Context, app string) (*domain.Icon, error) {
	return s.rasterIcon(ctx, kindTouchIcon, "touchIcon-"+app, "image/png", app, s.builder.TouchIcon)
}

func (s *IconService) rasterIcon(ctx context.Context, kind, filename, contentType, app string, build func(context.Context, string) ([]byte, error)) (*domain.Icon, error) {
	if !domain.ValidAppID(app) {
		return nil, domain.ErrInvalidAppID
	}
	if !s.defaults.ShouldReplaceIcons() {
		return nil, domain.ErrIconReplacementDisabled
	}

	content, err := s.cachedOrGenerate(ctx, kind, filename, func(ctx context.Context) ([]byte, error) {
		return build(ctx, app)
	})
	if err != nil {
		return nil, err
	}
	return &domain.Icon{Content: content, ContentType: contentType}, nil
}

// Expires returns the absolute expiry for a response served now.
func (s *IconService) Expires() time.Time {
	return s.clock.Now().Add(IconMaxAge)
}

// BumpCacheBuster increments the cache-buster so the next icon request
// starts a fresh cache folder. Returns the new value.
func (s *IconService) BumpCacheBuster(ctx context.Context) (string, error) {
	current, err := s.config.GetAppValue(ctx, themingApp, cacheBusterKey, cacheBusterDef)
	if err != nil {
		return "", fmt.Errorf("read cache-buster: %w", err)
	}

	n, err := strconv.Atoi(current)
	if err != nil {
		slog.WarnContext(ctx, "Non-numeric cache-buster, restarting count", "value", current)
		n = 0
	}
	next := strconv.Itoa(n + 1)

	if err := s.config.SetAppValue(ctx, themingApp, cacheBusterKey, next); err != nil {
		return "", fmt.Errorf("write cache-buster: %w", err)
	}
	slog.InfoContext(ctx, "Theming cache-buster bumped", "from", current, "to", next)
	return next, nil
}

func (s *IconService) cachedOrGenerate(ctx context.Context, kind, filename string, gen func(context.Context) ([]byte, error)) ([]byte, error) {
	folder, err := s.cacheFolder(ctx)
	if err != nil {
		return nil, err
	}

	content, ok, err := s.cachedImage(ctx, folder, filename)
	if err != nil {
		return nil, err
	}
	if ok {
		s.metrics.CacheHit(kind)
		return content, nil
	}
	s.metrics.CacheMiss(kind)

	// Waiters share the result, so the work must not end with the caller
	// that started it.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.generate.Do(folder.Name()+"/"+filename, func() (any, error) {
		ctx := shared
		// Another request may have stored it since the first lookup.
		if content, ok, err := s.cachedImage(ctx, folder, filename); err == nil && ok {
			return content, nil
		}

		start := s.clock.Now()
		data, err := gen(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.setCachedImage(ctx, folder, filename, data); err != nil {
			return nil, err
		}
		s.metrics.Generated(kind, s.clock.Since(start))
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// cacheFolder returns the folder for the current cache-buster, creating it
// and removing every stale sibling when it does not exist yet.
func (s *IconService) cacheFolder(ctx context.Context) (domain.Folder, error) {
	buster, err := s.config.GetAppValue(ctx, themingApp, cacheBusterKey, cacheBusterDef)
	if err != nil {
		return nil, fmt.Errorf("read cache-buster: %w", err)
	}

	folder, err := s.appData.GetFolder(ctx, buster)
	if err == nil {
		return folder, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get cache folder %q: %w", buster, err)
	}

	shared := context.WithoutCancel(ctx)
	v, err, _ := s.rollover.Do(buster, func() (any, error) {
		ctx := shared
		folder, err := s.appData.NewFolder(ctx, buster)
		if err != nil {
			return nil, fmt.Errorf("create cache folder %q: %w", buster, err)
		}

		siblings, err := s.appData.GetDirectoryListing(ctx)
		if err != nil {
			slog.WarnContext(ctx, "Failed to list icon cache folders", "error", err)
			return folder, nil
		}

		removed := 0
		for _, f := range siblings {
			if f.Name() == buster {
				continue
			}
			if err := f.Delete(ctx); err != nil {
				slog.WarnContext(ctx, "Failed to delete stale icon cache folder", "folder", f.Name(), "error", err)
				continue
			}
			removed++
		}
		s.metrics.FolderRollover(removed)
		slog.InfoContext(ctx, "Icon cache folder rolled over", "cachebuster", buster, "removed", removed)
		return folder, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(domain.Folder), nil
}

func (s *IconService) cachedImage(ctx context.Context, folder domain.Folder, filename string) ([]byte, bool, error) {
	exists, err := folder.FileExists(ctx, filename)
	if err != nil {
		return nil, false, fmt.Errorf("check cached icon %q: %w", filename, err)
	}
	if !exists {
		return nil, false, nil
	}

	file, err := folder.GetFile(ctx, filename)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("open cached icon %q: %w", filename, err)
	}

	content, err := file.GetContent(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cached icon %q: %w", filename, err)
	}
	// A file created but not yet written counts as a miss.
	if len(content) == 0 {
		return nil, false, nil
	}
	return content, true, nil
}

// setCachedImage overwrites an existing file or creates a new one.
func (s *IconService) setCachedImage(ctx context.Context, folder domain.Folder, filename string, data []byte) error {
	var file domain.File
	exists, err := folder.FileExists(ctx, filename)
	if err != nil {
		return fmt.Errorf("check cached icon %q: %w", filename, err)
	}
	if exists {
		file, err = folder.GetFile(ctx, filename)
	} else {
		file, err = folder.NewFile(ctx, filename)
	}
	if err != nil {
		return fmt.Errorf("open cached icon %q: %w", filename, err)
	}

	if err := file.PutContent(ctx, data); err != nil {
		return fmt.Errorf("write cached icon %q: %w", filename, err)
	}
	return nil
}
