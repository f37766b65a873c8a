// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package platform

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/storepulse/storepulse/internal/logging"
	"github.com/storepulse/storepulse/internal/models"
	"github.com/storepulse/storepulse/internal/retry"
)

const (
	// maxCountCap is the platform's per-page limit for video listings.
	maxCountCap = 20

	// maxPages guards fetch-all pagination against a malformed cursor chain.
	maxPages = 100
)

// videoItem is the wire shape of one video; every field may be absent.
type videoItem struct {
	ID           string `json:"id"`
	CreateTime   int64  `json:"create_time"`
	Description  string `json:"video_description"`
	CoverURL     string `json:"cover_image_url"`
	ShareURL     string `json:"share_url"`
	ViewCount    int64  `json:"view_count"`
	LikeCount    int64  `json:"like_count"`
	CommentCount int64  `json:"comment_count"`
	ShareCount   int64  `json:"share_count"`
}

func (v *videoItem) toStats() models.VideoStats {
	stats := models.VideoStats{
		VideoID:      v.ID,
		Description:  v.Description,
		CoverURL:     v.CoverURL,
		ShareURL:     v.ShareURL,
		ViewCount:    v.ViewCount,
		LikeCount:    v.LikeCount,
		CommentCount: v.CommentCount,
		ShareCount:   v.ShareCount,
	}
	if v.CreateTime > 0 {
		stats.CreatedAt = time.Unix(v.CreateTime, 0).UTC()
	}
	return stats
}

// VideoPage is one page of a video listing.
type VideoPage struct {
	Videos     []models.VideoStats
	NextCursor int64
	HasMore    bool
}

// ListVideos fetches one page of the token user's videos. maxCount above the
// platform cap is clamped to 20.
func (c *Client) ListVideos(ctx context.Context, accessToken string, cursor int64, maxCount int) (*VideoPage, error) {
	if maxCount <= 0 || maxCount > maxCountCap {
		maxCount = maxCountCap
	}

	body := map[string]any{
		"cursor":    cursor,
		"max_count": maxCount,
	}

	return retry.Do(ctx, c.policy, "list_videos", func(ctx context.Context) (*VideoPage, error) {
		data, err := c.call(ctx, http.MethodPost, "/video/list/", c.videoFields, accessToken, body, "video_list")
		if err != nil {
			return nil, err
		}

		var payload struct {
			Videos  []videoItem `json:"videos"`
			Cursor  int64       `json:"cursor"`
			HasMore bool        `json:"has_more"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, &APIError{Kind: KindParse, Message: fmt.Sprintf("decode video list: %v", err)}
		}

		page := &VideoPage{
			Videos:     make([]models.VideoStats, 0, len(payload.Videos)),
			NextCursor: payload.Cursor,
			HasMore:    payload.HasMore,
		}
		for i := range payload.Videos {
			page.Videos = append(page.Videos, payload.Videos[i].toStats())
		}
		return page, nil
	})
}

// FetchAllVideos walks the cursor chain from 0 until has_more is false or
// maxVideos is reached. has_more=false is terminal regardless of the cursor
// value, and a cursor that stops advancing terminates the walk with the
// partial results collected. onProgress, when non-nil, is called after each
// page with the running video count.
func (c *Client) FetchAllVideos(ctx context.Context, accessToken string, maxVideos int, onProgress func(fetched int)) ([]models.VideoStats, error) {
	if maxVideos <= 0 {
		maxVideos = 1000
	}

	var all []models.VideoStats
	var cursor int64

	for page := 0; page < maxPages; page++ {
		remaining := maxVideos - len(all)
		if remaining <= 0 {
			return all, nil
		}

		result, err := c.ListVideos(ctx, accessToken, cursor, remaining)
		if err != nil {
			return nil, err
		}
		all = append(all, result.Videos...)

		if onProgress != nil {
			onProgress(len(all))
		}

		if !result.HasMore {
			return all, nil
		}
		if result.NextCursor == cursor {
			// Platform pagination bug: has_more with a stuck cursor.
			logging.Warn().
				Int64("cursor", cursor).
				Int("collected", len(all)).
				Msg("Video pagination cursor stopped advancing, returning partial results")
			return all, nil
		}
		cursor = result.NextCursor
	}

	logging.Warn().
		Int("pages", maxPages).
		Int("collected", len(all)).
		Msg("Video pagination hit the page cap, returning partial results")
	return all, nil
}
