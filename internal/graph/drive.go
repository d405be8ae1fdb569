package graph

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// DriveFile downloads a OneDrive file by its path from the drive root.
// An empty driveID reads the configured user's default drive.
func (c *Client) DriveFile(ctx context.Context, driveID, itemPath string) ([]byte, error) {
	itemPath = strings.Trim(itemPath, "/")
	if itemPath == "" {
		return nil, fmt.Errorf("drive file: empty path")
	}

	segments := strings.Split(itemPath, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	prefix := c.userPath() + "/drive"
	if driveID != "" {
		prefix = "/drives/" + url.PathEscape(driveID)
	}
	path := prefix + "/root:/" + strings.Join(segments, "/") + ":/content"

	// Graph answers with a redirect to a pre-authenticated download URL.
	data, err := c.send(ctx, "GET", path, nil, "Accept", "*/*")
	if err != nil {
		return nil, fmt.Errorf("drive file %s: %w", itemPath, err)
	}
	return data, nil
}
