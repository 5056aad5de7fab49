package binary

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// versionAPITimeout bounds the latest-release metadata lookup.
const versionAPITimeout = 10 * time.Second

// fetchLatestVersion asks the release API for the newest published version.
// The returned version has any leading "v" stripped.
func (m *Manager) fetchLatestVersion(ctx context.Context) (string, error) {
	data, err := m.downloader.FetchBytes(ctx, m.latestURL, versionAPITimeout)
	if err != nil {
		return "", fmt.Errorf("fetch latest release: %w", err)
	}

	tag := gjson.GetBytes(data, "tag_name").String()
	if tag == "" {
		return "", fmt.Errorf("latest release response has no tag_name")
	}
	return NormalizeVersion(tag), nil
}
