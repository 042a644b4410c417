package feedserver

// HealthResponse reports the feed server's aggregate counts.
type HealthResponse struct {
	ChannelCount int `json:"channelCount"`
	VideoCount   int `json:"videoCount"`
}

type SubscriptionsResponse struct {
	Channels []ChannelSummary `json:"channels"`
}

type ChannelSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Description  string `json:"description"`
	UploadsID    string `json:"uploadsId"`
}

type RegisterRequest struct {
	ChannelIDs []string `json:"channelIds"`
}

type FeedPageResponse struct {
	Videos     []VideoDelta `json:"videos"`
	NextCursor string       `json:"nextCursor"`
}

type VideoDelta struct {
	ID           string `json:"id"`
	ChannelID    string `json:"channelId"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Duration     int    `json:"duration"`
	PublishedAt  string `json:"publishedAt"`
	LastModified int64  `json:"lastModified"`
}
