package store

// Stats holds store statistics.
type Stats struct {
	DBPath        string      `json:"db_path,omitempty"`
	DBSizeBytes   int64       `json:"db_size_bytes,omitempty"`
	TotalMemories int         `json:"total_memories"`
	Summaries     int         `json:"summaries"`
	Users         []UserStats `json:"users"`
}

// UserStats holds per-user counts.
type UserStats struct {
	UserID    string `json:"user_id"`
	Memories  int    `json:"memories"`
	Summaries int    `json:"summaries"`
}
