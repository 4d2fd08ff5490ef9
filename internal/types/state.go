package types

// MaxRecentLinks bounds the recent-link history
const MaxRecentLinks = 10

// LinkRecord is a single visited page
type LinkRecord struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Snapshot is the durable portion of coordinator state, written to the
// local cache on every mutation and read back once on startup
type Snapshot struct {
	CurrentMode   Mode         `json:"currentMode"`
	Submode       *Submode     `json:"submode,omitempty"`
	LyricsEnabled bool         `json:"lyricsEnabled"`
	RecentLinks   []LinkRecord `json:"recentLinks"`
}

// DefaultSnapshot returns cold-start state: work mode, no submode
func DefaultSnapshot() Snapshot {
	return Snapshot{
		CurrentMode: ModeWork,
		RecentLinks: []LinkRecord{},
	}
}

// TabRef identifies a browser tab at a point in time
type TabRef struct {
	ID    int    `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}
