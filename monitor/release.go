package monitor

import (
	"fmt"
	"hordegui/logger"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/PuerkitoBio/goquery"
	"github.com/patrickmn/go-cache"
)

// ReleasesURL lists the published worker releases
const ReleasesURL = "https://github.com/Haidra-Org/horde-worker-reGen/releases"

const releaseCacheTTL = time.Hour

// ReleaseInfo describes the newest published worker release
type ReleaseInfo struct {
	Version   *semver.Version
	Tag       string
	URL       string
	CheckedAt time.Time
}

// ReleaseChecker looks up worker releases on GitHub
type ReleaseChecker struct {
	client *http.Client
	url    string
	cache  *cache.Cache
}

// NewReleaseChecker creates a checker for the worker's releases page
func NewReleaseChecker() *ReleaseChecker {
	return newReleaseChecker(ReleasesURL)
}

func newReleaseChecker(url string) *ReleaseChecker {
	return &ReleaseChecker{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		url:   url,
		cache: cache.New(releaseCacheTTL, 2*releaseCacheTTL),
	}
}

// Latest returns the newest release, served from cache for an hour
func (c *ReleaseChecker) Latest() (*ReleaseInfo, error) {
	if cached, ok := c.cache.Get(c.url); ok {
		return cached.(*ReleaseInfo), nil
	}

	resp, err := c.client.Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("fetching releases: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("releases page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	info := c.extractLatest(doc)
	if info == nil {
		return nil, fmt.Errorf("no release tags found at %s", c.url)
	}
	info.CheckedAt = time.Now()

	logger.Log.WithField("tag", info.Tag).Debug("Latest worker release")
	c.cache.Set(c.url, info, cache.DefaultExpiration)
	return info, nil
}

// extractLatest finds the highest version among the release tag links
func (c *ReleaseChecker) extractLatest(doc *goquery.Document) *ReleaseInfo {
	var best *ReleaseInfo

	doc.Find(`a[href*="/releases/tag/"]`).Each(func(i int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		tag := path.Base(strings.TrimRight(href, "/"))

		version, err := semver.NewVersion(tag)
		if err != nil {
			return
		}
		if best != nil && !version.GreaterThan(best.Version) {
			return
		}

		url := href
		if strings.HasPrefix(href, "/") {
			url = "https://github.com" + href
		}
		best = &ReleaseInfo{Version: version, Tag: tag, URL: url}
	})

	return best
}

// HasUpdate reports whether the latest release is newer than current
func (c *ReleaseChecker) HasUpdate(current string) (bool, *ReleaseInfo, error) {
	latest, err := c.Latest()
	if err != nil {
		return false, nil, err
	}

	currentVersion, err := semver.NewVersion(current)
	if err != nil {
		return false, latest, fmt.Errorf("invalid current version %q: %w", current, err)
	}
	return latest.Version.GreaterThan(currentVersion), latest, nil
}
